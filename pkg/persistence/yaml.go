package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"mercator-hq/helios/pkg/governance"
)

const yamlExt = ".yaml"

var safeID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// YAML stores one <id>.yaml file per policy in a directory. Writes go to a
// temporary file that is renamed into place.
type YAML struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewYAML creates the directory if needed and returns the backend.
func NewYAML(dir string) (*YAML, error) {
	if dir == "" {
		return nil, governance.NewValidationError("persistence.yaml.dir", "directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, opError("yaml", "open", err)
	}
	return &YAML{dir: dir, logger: slog.Default().With("component", "persistence.yaml")}, nil
}

// Name implements Backend.
func (y *YAML) Name() string { return "yaml" }

// LoadAll decodes every *.yaml file in the directory. Files that fail to
// decode abort the load.
func (y *YAML) LoadAll(ctx context.Context) ([]*governance.Policy, error) {
	entries, err := os.ReadDir(y.dir)
	if err != nil {
		return nil, opError(y.Name(), "load", err)
	}

	var out []*governance.Policy
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), yamlExt) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, opError(y.Name(), "load", err)
		}
		path := filepath.Join(y.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, opError(y.Name(), "load", err)
		}
		var p governance.Policy
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, opError(y.Name(), "load", fmt.Errorf("%s: %w", e.Name(), err))
		}
		out = append(out, &p)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	y.logger.Debug("policies read", "dir", y.dir, "count", len(out))
	return out, nil
}

// Save writes p to <id>.yaml atomically.
func (y *YAML) Save(_ context.Context, p *governance.Policy) error {
	if err := requireID(y.Name(), "save", p); err != nil {
		return err
	}
	path, err := y.path(p.ID)
	if err != nil {
		return opError(y.Name(), "save", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return opError(y.Name(), "save", err)
	}

	y.mu.Lock()
	defer y.mu.Unlock()

	tmp, err := os.CreateTemp(y.dir, ".policy-*.tmp")
	if err != nil {
		return opError(y.Name(), "save", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return opError(y.Name(), "save", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return opError(y.Name(), "save", err)
	}
	if err := tmp.Close(); err != nil {
		return opError(y.Name(), "save", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return opError(y.Name(), "save", err)
	}
	return nil
}

// Delete removes <id>.yaml. A missing file is not an error.
func (y *YAML) Delete(_ context.Context, id string) error {
	path, err := y.path(id)
	if err != nil {
		return opError(y.Name(), "delete", err)
	}
	y.mu.Lock()
	defer y.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return opError(y.Name(), "delete", err)
	}
	return nil
}

// Ping checks that the directory is still accessible.
func (y *YAML) Ping(context.Context) error {
	if _, err := os.Stat(y.dir); err != nil {
		return opError(y.Name(), "ping", err)
	}
	return nil
}

// Close implements Backend.
func (y *YAML) Close() error { return nil }

func (y *YAML) path(id string) (string, error) {
	if !safeID.MatchString(id) {
		return "", fmt.Errorf("policy id %q is not a safe file name", id)
	}
	return filepath.Join(y.dir, id+yamlExt), nil
}
