package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/helios/pkg/config"
	"mercator-hq/helios/pkg/eventbus"
	"mercator-hq/helios/pkg/governance"
)

type recorder struct {
	mu   sync.Mutex
	got  []Notification
	fail bool
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("unavailable")
	}
	r.got = append(r.got, n)
	return nil
}

func (r *recorder) notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}

func violationEvent(seq uint64, sev governance.Severity) eventbus.Event {
	return eventbus.Event{
		Seq:       seq,
		Kind:      eventbus.ViolationDetected,
		PolicyID:  "pol-1",
		Timestamp: time.Now(),
		Payload: &governance.Violation{
			ID:          "v-1",
			PolicyID:    "pol-1",
			Severity:    sev,
			Description: "evaluated non-compliant",
			Status:      governance.ViolationOpen,
		},
	}
}

func TestWebhook_PostsJSON(t *testing.T) {
	var (
		gotAuth string
		gotType string
		gotBody Notification
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, map[string]string{"Authorization": "Bearer token"}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	n := Notification{Kind: eventbus.ViolationDetected, Seq: 3, PolicyID: "pol-1", Severity: governance.SeverityHigh, Summary: "s"}
	if err := wh.Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if gotAuth != "Bearer token" || gotType != "application/json" {
		t.Errorf("headers = %q %q", gotAuth, gotType)
	}
	if gotBody.Seq != 3 || gotBody.Severity != governance.SeverityHigh {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestWebhook_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "receiver down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	wh, _ := NewWebhook(srv.URL, nil, 0)
	err := wh.Notify(context.Background(), Notification{})
	if err == nil || !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "receiver down") {
		t.Errorf("Notify() error = %v, want status and body", err)
	}
}

func TestNewWebhook_RequiresURL(t *testing.T) {
	if _, err := NewWebhook("", nil, 0); !errors.Is(err, governance.ErrValidation) {
		t.Errorf("error = %v, want validation error", err)
	}
}

func TestLog_WritesViolationAtWarn(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))
	if err := l.Notify(context.Background(), Notification{Kind: eventbus.ViolationDetected, Summary: "bad", Severity: governance.SeverityCritical}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"severity":"CRITICAL"`) {
		t.Errorf("log output = %s", out)
	}
}

func TestDispatcher_MinSeverity(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(eventbus.New(10, nil), []Notifier{rec}, WithMinSeverity(governance.SeverityHigh))

	if d.Dispatch(context.Background(), violationEvent(1, governance.SeverityMedium)) {
		t.Error("MEDIUM violation should be filtered")
	}
	if !d.Dispatch(context.Background(), violationEvent(2, governance.SeverityCritical)) {
		t.Error("CRITICAL violation should pass")
	}

	approval := eventbus.Event{
		Seq:      3,
		Kind:     eventbus.ApprovalDecided,
		PolicyID: "pol-1",
		Payload:  &governance.Approval{ID: "a-1", PolicyID: "pol-1", Status: governance.ApprovalApproved, Approver: "carol"},
	}
	if !d.Dispatch(context.Background(), approval) {
		t.Error("approval decisions are not severity filtered")
	}

	got := rec.notifications()
	if len(got) != 2 {
		t.Fatalf("got %d notifications, want 2", len(got))
	}
	if got[0].Seq != 2 || got[0].Severity != governance.SeverityCritical {
		t.Errorf("first = %+v", got[0])
	}
	if !strings.Contains(got[1].Summary, "APPROVED by carol") {
		t.Errorf("approval summary = %q", got[1].Summary)
	}
}

func TestDispatcher_FailingNotifierDoesNotBlockOthers(t *testing.T) {
	bad := &recorder{fail: true}
	good := &recorder{}
	d := NewDispatcher(eventbus.New(10, nil), []Notifier{bad, good})

	d.Dispatch(context.Background(), violationEvent(1, governance.SeverityLow))
	if len(good.notifications()) != 1 {
		t.Error("second notifier should still receive the notification")
	}
}

func TestDispatcher_StartConsumesBus(t *testing.T) {
	bus := eventbus.New(10, nil)
	rec := &recorder{}
	d := NewDispatcher(bus, []Notifier{rec})
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	bus.Publish(eventbus.PolicyExecuted, "pol-1", nil)
	bus.Publish(eventbus.ViolationDetected, "pol-1", violationEvent(0, governance.SeverityHigh).Payload)

	deadline := time.Now().Add(time.Second)
	for len(rec.notifications()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := rec.notifications()
	if len(got) != 1 || got[0].Seq != 2 {
		t.Fatalf("notifications = %+v", got)
	}
}

func TestFromConfig(t *testing.T) {
	bus := eventbus.New(10, nil)

	d, err := FromConfig(bus, config.NotificationConfig{Enabled: false, Log: true}, nil)
	if err != nil || d != nil {
		t.Errorf("disabled: d = %v err = %v", d, err)
	}

	d, err = FromConfig(bus, config.NotificationConfig{Enabled: true, Log: true, MinSeverity: "HIGH"}, nil)
	if err != nil || d == nil {
		t.Fatalf("log: d = %v err = %v", d, err)
	}
	if len(d.notifiers) != 1 || d.minSeverity != governance.SeverityHigh {
		t.Errorf("dispatcher = %+v", d)
	}

	_, err = FromConfig(bus, config.NotificationConfig{Enabled: true, Log: true, MinSeverity: "URGENT"}, nil)
	if !errors.Is(err, governance.ErrValidation) {
		t.Errorf("bad severity error = %v", err)
	}
}
