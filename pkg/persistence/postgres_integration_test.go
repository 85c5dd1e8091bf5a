//go:build integration

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"mercator-hq/helios/pkg/governance"
)

func TestPostgres_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("helios"),
		postgres.WithUsername("helios"),
		postgres.WithPassword("helios"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pg, err := NewPostgres(ctx, PostgresConfig{DSN: dsn, MaxConns: 4, ConnectTimeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("NewPostgres() error = %v", err)
	}
	defer pg.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := pg.Save(ctx, samplePolicy("pol-b", base.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}
	p := samplePolicy("pol-a", base)
	if err := pg.Save(ctx, p); err != nil {
		t.Fatal(err)
	}
	p.Status = governance.StatusActive
	p.Version = 2
	if err := pg.Save(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := pg.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "pol-a" || got[0].Version != 2 {
		t.Fatalf("LoadAll() = %+v", got)
	}

	if err := pg.Delete(ctx, "pol-a"); err != nil {
		t.Fatal(err)
	}
	got, _ = pg.LoadAll(ctx)
	if len(got) != 1 {
		t.Errorf("after delete got %d policies, want 1", len(got))
	}
}
