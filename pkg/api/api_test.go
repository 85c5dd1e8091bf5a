package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"mercator-hq/helios/pkg/audit"
	"mercator-hq/helios/pkg/config"
	"mercator-hq/helios/pkg/engine"
	"mercator-hq/helios/pkg/evaluator"
	"mercator-hq/helios/pkg/eventbus"
	"mercator-hq/helios/pkg/governance"
)

type harness struct {
	t      *testing.T
	engine *engine.Engine
	server *Server
	http   *httptest.Server
}

func newHarness(t *testing.T, opts ...engine.Option) *harness {
	t.Helper()
	cfg := config.NewDefault()
	eng, err := engine.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	srv := NewServer(&cfg.API, eng, WithVersion("1.2.3", "abc123", "today"))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		eng.Close(context.Background())
	})
	return &harness{t: t, engine: eng, server: srv, http: ts}
}

// do sends body as JSON with the given actor and decodes the response into
// out when out is non-nil.
func (h *harness) do(method, path, actor string, body any, out any) *http.Response {
	h.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			h.t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.http.URL+path, r)
	if err != nil {
		h.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	resp, err := h.http.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			h.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp
}

func (h *harness) createPolicy(name string) *governance.Policy {
	h.t.Helper()
	var p governance.Policy
	resp := h.do(http.MethodPost, "/api/v1/policies", "alice",
		map[string]any{"name": name, "policy_type": "RETENTION"}, &p)
	if resp.StatusCode != http.StatusCreated {
		h.t.Fatalf("create status = %d", resp.StatusCode)
	}
	return &p
}

func nonCompliant(confidence float64) engine.Option {
	return engine.WithEvaluator(evaluator.Func(func(context.Context, *governance.Policy, governance.Metadata) (governance.Result, error) {
		return governance.Result{Compliant: false, Confidence: confidence}, nil
	}))
}

func TestPolicyLifecycle(t *testing.T) {
	h := newHarness(t, nonCompliant(0.92))

	p := h.createPolicy("PII-Retention")
	if p.Status != governance.StatusDraft {
		t.Fatalf("status = %s, want DRAFT", p.Status)
	}

	var a governance.Approval
	resp := h.do(http.MethodPost, "/api/v1/policies/"+p.ID+"/approvals", "alice", nil, &a)
	if resp.StatusCode != http.StatusCreated || resp.Header.Get("Location") != "/api/v1/approvals/"+a.ID {
		t.Fatalf("request approval status = %d location = %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp = h.do(http.MethodPost, "/api/v1/approvals/"+a.ID+"/decision", "bob",
		decisionRequest{Decision: governance.DecisionApprove, Comments: "ok"}, &a)
	if resp.StatusCode != http.StatusOK || a.Status != governance.ApprovalApproved {
		t.Fatalf("decide status = %d approval = %+v", resp.StatusCode, a)
	}

	var got governance.Policy
	h.do(http.MethodGet, "/api/v1/policies/"+p.ID, "", nil, &got)
	if got.Status != governance.StatusActive {
		t.Fatalf("policy status = %s, want ACTIVE", got.Status)
	}

	var exec executeResponse
	resp = h.do(http.MethodPost, "/api/v1/policies/"+p.ID+"/execute", "carol", nil, &exec)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("execute status = %d", resp.StatusCode)
	}
	if exec.Violation == nil || exec.Violation.Severity != governance.SeverityCritical {
		t.Fatalf("violation = %+v, want CRITICAL", exec.Violation)
	}

	var violations listResponse[governance.Violation]
	h.do(http.MethodGet, "/api/v1/violations?severity=critical", "", nil, &violations)
	if violations.Count != 1 {
		t.Errorf("violations = %d, want 1", violations.Count)
	}

	var v governance.Violation
	resp = h.do(http.MethodPost, "/api/v1/violations/"+exec.Violation.ID+"/resolve", "dave",
		resolveRequest{Resolution: "rotated keys"}, &v)
	if resp.StatusCode != http.StatusOK || v.Status != governance.ViolationResolved {
		t.Errorf("resolve status = %d violation = %+v", resp.StatusCode, v)
	}

	var execs listResponse[governance.Execution]
	h.do(http.MethodGet, "/api/v1/policies/"+p.ID+"/executions?limit=5", "", nil, &execs)
	if execs.Count != 1 || execs.Items[0].ExecutedBy != "carol" {
		t.Errorf("executions = %+v", execs)
	}

	var trail audit.Result
	h.do(http.MethodGet, "/api/v1/audit?policy_id="+p.ID+"&action=approve", "", nil, &trail)
	if trail.Total != 1 || trail.Records[0].Actor != "bob" {
		t.Errorf("audit trail = %+v", trail)
	}
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t)
	draft := h.createPolicy("draft")
	pending := h.createPolicy("pending")
	h.do(http.MethodPost, "/api/v1/policies/"+pending.ID+"/approvals", "alice", nil, nil)

	tests := []struct {
		name     string
		method   string
		path     string
		actor    string
		body     any
		wantCode int
		wantType string
	}{
		{"missing actor", http.MethodPost, "/api/v1/policies", "", map[string]any{"name": "x", "policy_type": "SECURITY"}, 400, ErrorTypeValidation},
		{"malformed body", http.MethodPost, "/api/v1/policies", "alice", "{not json", 400, ErrorTypeValidation},
		{"unknown field", http.MethodPost, "/api/v1/policies", "alice", map[string]any{"name": "x", "colour": "red"}, 400, ErrorTypeValidation},
		{"empty body", http.MethodPost, "/api/v1/policies/" + draft.ID + "/transition", "alice", nil, 400, ErrorTypeValidation},
		{"unknown policy", http.MethodGet, "/api/v1/policies/missing", "", nil, 404, ErrorTypeNotFound},
		{"unknown approval", http.MethodGet, "/api/v1/approvals/missing", "", nil, 404, ErrorTypeNotFound},
		{"invalid transition", http.MethodPost, "/api/v1/policies/" + pending.ID + "/transition", "alice", transitionRequest{Status: governance.StatusActive}, 409, ErrorTypeConflict},
		{"duplicate approval", http.MethodPost, "/api/v1/policies/" + pending.ID + "/approvals", "alice", nil, 409, ErrorTypeConflict},
		{"execute draft", http.MethodPost, "/api/v1/policies/" + draft.ID + "/execute", "alice", nil, 400, ErrorTypeValidation},
		{"bad limit", http.MethodGet, "/api/v1/audit?limit=ten", "", nil, 400, ErrorTypeValidation},
		{"bad since", http.MethodGet, "/api/v1/audit?since=yesterday", "", nil, 400, ErrorTypeValidation},
		{"unknown audit action", http.MethodGet, "/api/v1/audit?action=explode", "", nil, 400, ErrorTypeValidation},
		{"archive disabled", http.MethodGet, "/api/v1/audit/archive", "", nil, 404, ErrorTypeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body ErrorResponse
			resp := h.do(tt.method, tt.path, tt.actor, tt.body, &body)
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d (%+v)", resp.StatusCode, tt.wantCode, body)
			}
			if body.Error.Type != tt.wantType {
				t.Errorf("error type = %q, want %q", body.Error.Type, tt.wantType)
			}
			if body.Error.Message == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{governance.NewValidationError("name", "required"), http.StatusBadRequest},
		{governance.NewNotFoundError("policy", "p1"), http.StatusNotFound},
		{&governance.ConcurrencyConflictError{PolicyID: "p1"}, http.StatusConflict},
		{&governance.DuplicateRequestError{PolicyID: "p1", ApprovalID: "a1"}, http.StatusConflict},
		{&governance.EvaluationError{PolicyID: "p1", Cause: io.EOF}, http.StatusUnprocessableEntity},
		{governance.NewPersistenceError("sqlite", "save", io.ErrUnexpectedEOF), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if code, _ := classify(tt.err); code != tt.code {
			t.Errorf("classify(%v) = %d, want %d", tt.err, code, tt.code)
		}
	}
	if _, d := classify(governance.NewValidationError("name", "required")); d.Field != "name" {
		t.Errorf("Field = %q, want name", d.Field)
	}
}

func TestListPolicies(t *testing.T) {
	h := newHarness(t)
	h.createPolicy("alpha")
	h.createPolicy("beta")

	var active listResponse[governance.Policy]
	h.do(http.MethodGet, "/api/v1/policies", "", nil, &active)
	if active.Count != 0 {
		t.Errorf("default list = %d, want only ACTIVE policies", active.Count)
	}

	var all listResponse[governance.Policy]
	h.do(http.MethodGet, "/api/v1/policies?all=true", "", nil, &all)
	if all.Count != 2 {
		t.Errorf("all = %d, want 2", all.Count)
	}

	var drafts listResponse[governance.Policy]
	h.do(http.MethodGet, "/api/v1/policies?status=draft&q=alp", "", nil, &drafts)
	if drafts.Count != 1 || drafts.Items[0].Name != "alpha" {
		t.Errorf("filtered = %+v", drafts.Items)
	}

	resp := h.do(http.MethodGet, "/api/v1/policies?all=maybe", "", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad bool status = %d", resp.StatusCode)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	h := newHarness(t)
	p := h.createPolicy("old")

	var updated governance.Policy
	resp := h.do(http.MethodPatch, "/api/v1/policies/"+p.ID, "alice", map[string]any{"name": "new"}, &updated)
	if resp.StatusCode != http.StatusOK || updated.Name != "new" || updated.Version != p.Version+1 {
		t.Fatalf("patch status = %d policy = %+v", resp.StatusCode, updated)
	}

	resp = h.do(http.MethodDelete, "/api/v1/policies/"+p.ID, "alice", nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp = h.do(http.MethodGet, "/api/v1/policies/"+p.ID, "", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d", resp.StatusCode)
	}
}

func TestOrchestrationEndpoints(t *testing.T) {
	h := newHarness(t)

	var status struct {
		Running bool `json:"running"`
	}
	h.do(http.MethodPost, "/api/v1/orchestration/start", "", nil, &status)
	if !status.Running {
		t.Error("start did not start the scheduler")
	}
	h.do(http.MethodPost, "/api/v1/orchestration/stop", "", nil, &status)
	if status.Running {
		t.Error("stop did not stop the scheduler")
	}

	var report struct {
		Eligible int `json:"eligible"`
	}
	resp := h.do(http.MethodPost, "/api/v1/orchestration/tick", "", nil, &report)
	if resp.StatusCode != http.StatusOK || report.Eligible != 0 {
		t.Errorf("tick status = %d report = %+v", resp.StatusCode, report)
	}

	var snap engine.MetricsSnapshot
	h.do(http.MethodGet, "/api/v1/metrics", "", nil, &snap)
	if snap.Orchestration.TickCount != 1 {
		t.Errorf("TickCount = %d, want 1", snap.Orchestration.TickCount)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	h := newHarness(t)
	h.createPolicy("counted")

	var version struct {
		Version string `json:"version"`
		Commit  string `json:"commit"`
	}
	h.do(http.MethodGet, "/version", "", nil, &version)
	if version.Version != "1.2.3" || version.Commit != "abc123" {
		t.Errorf("version = %+v", version)
	}

	resp := h.do(http.MethodGet, "/health", "", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
	resp = h.do(http.MethodGet, "/ready", "", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready status = %d", resp.StatusCode)
	}

	res, err := h.http.Client().Get(h.http.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), `helios_engine_policies{status="DRAFT"} 1`) {
		t.Errorf("metrics output missing policy gauge:\n%s", body)
	}
}

func TestEventStream(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/api/v1/events?kind=PolicyChanged"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	p := h.createPolicy("streamed")

	var evt struct {
		Seq      uint64         `json:"seq"`
		Kind     eventbus.Kind  `json:"kind"`
		PolicyID string         `json:"policy_id"`
		Payload  map[string]any `json:"payload"`
	}
	if err := wsjson.Read(ctx, conn, &evt); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if evt.Kind != eventbus.PolicyChanged || evt.PolicyID != p.ID || evt.Payload["action"] != engine.ChangeCreate {
		t.Errorf("event = %+v", evt)
	}
}

func TestEventStream_UnknownKind(t *testing.T) {
	h := newHarness(t)
	resp := h.do(http.MethodGet, "/api/v1/events?kind=Bogus", "", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRecoverPanics(t *testing.T) {
	h := newHarness(t)
	handler := h.server.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	cfg := config.NewDefault()
	eng, err := engine.New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close(context.Background())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(&cfg.API, eng, WithListener(ln))

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never became reachable: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !srv.IsRunning() {
		t.Error("IsRunning() = false while serving")
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	srv.Shutdown()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Shutdown()")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}
