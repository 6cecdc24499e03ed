package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Shailesh-Murmu/AutoMpp/internal/orchestrator"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
	"github.com/Shailesh-Murmu/AutoMpp/internal/taskdef"
)

type fakeCycles struct {
	mu     sync.Mutex
	latest *orchestrator.CycleReport
	subs   []chan orchestrator.CycleReport
	subbed chan struct{}
}

func newFakeCycles() *fakeCycles {
	return &fakeCycles{subbed: make(chan struct{}, 1)}
}

func (f *fakeCycles) Phase() orchestrator.Phase { return orchestrator.Sleeping }

func (f *fakeCycles) Latest() (orchestrator.CycleReport, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return orchestrator.CycleReport{}, false
	}
	return *f.latest, true
}

func (f *fakeCycles) Subscribe() (<-chan orchestrator.CycleReport, func()) {
	ch := make(chan orchestrator.CycleReport, 1)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	f.subbed <- struct{}{}
	return ch, func() {}
}

func (f *fakeCycles) publish(report orchestrator.CycleReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = &report
	for _, ch := range f.subs {
		ch <- report
	}
}

type fakeTasks struct {
	set *taskdef.Set
	err error
}

func (f fakeTasks) Load() (*taskdef.Set, error) { return f.set, f.err }

func testTasks() fakeTasks {
	return fakeTasks{set: &taskdef.Set{
		Drive:    []taskdef.SyncTask{{Title: "Docs", FolderID: "abc", Path: "/tmp/docs"}},
		Settings: &taskdef.Settings{SMTPEmail: "ops@x.com", SMTPPassword: "secret"},
	}}
}

func doRequest(t *testing.T, handler http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	server := NewServer(newFakeCycles(), testTasks())
	resp := doRequest(t, server, http.MethodGet, "/health", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ok" || body["phase"] != "sleeping" {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestTasksListingOmitsSettings(t *testing.T) {
	server := NewServer(newFakeCycles(), testTasks())
	resp := doRequest(t, server, http.MethodGet, "/v1/tasks", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	body := resp.Body.String()
	if strings.Contains(body, "secret") {
		t.Fatalf("settings leaked into task listing: %s", body)
	}
	var decoded struct {
		Tasks map[string][]map[string]any `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		t.Fatalf("decode tasks: %v", err)
	}
	if len(decoded.Tasks["drive_tasks"]) != 1 || decoded.Tasks["drive_tasks"][0]["title"] != "Docs" {
		t.Fatalf("unexpected drive tasks: %+v", decoded.Tasks)
	}
	if tasks, ok := decoded.Tasks["reminders"]; !ok || len(tasks) != 0 {
		t.Fatalf("expected empty reminders list, got %+v", decoded.Tasks["reminders"])
	}
}

func TestTasksCategoryFilter(t *testing.T) {
	server := NewServer(newFakeCycles(), testTasks())
	resp := doRequest(t, server, http.MethodGet, "/v1/tasks?category=sync", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "reminders") {
		t.Fatalf("expected only sync tasks, got %s", resp.Body.String())
	}
	bad := doRequest(t, server, http.MethodGet, "/v1/tasks?category=bogus", map[string]string{"X-Correlation-Id": "corr_1"})
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.Code)
	}
	if !strings.Contains(bad.Body.String(), "corr_1") {
		t.Fatalf("expected correlation id echoed, got %s", bad.Body.String())
	}
}

func TestTasksCorruptFileIsAnError(t *testing.T) {
	tasks := fakeTasks{set: &taskdef.Set{}, err: fmt.Errorf("%w: emails: expected array", taskdef.ErrCorrupt)}
	server := NewServer(newFakeCycles(), tasks)
	resp := doRequest(t, server, http.MethodGet, "/v1/tasks", nil)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d (%s)", resp.Code, resp.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body["code"] != "corrupt_task_file" || !strings.Contains(body["message"], "expected array") {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestLatestCycle(t *testing.T) {
	cycles := newFakeCycles()
	server := NewServer(cycles, testTasks())
	if resp := doRequest(t, server, http.MethodGet, "/v1/cycles/latest", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before first cycle, got %d", resp.Code)
	}

	cycles.latest = &orchestrator.CycleReport{
		ID:      "cycle-1",
		Phase:   orchestrator.PersistingState,
		Results: []outcome.Result{{Category: "drive_tasks", Task: "Docs", Status: outcome.Success}},
	}
	resp := doRequest(t, server, http.MethodGet, "/v1/cycles/latest", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"phase":"persisting_state"`) {
		t.Fatalf("expected phase rendered by name, got %s", resp.Body.String())
	}
}

func TestAuthRequiredWhenTokenConfigured(t *testing.T) {
	server := NewServerWithConfig(newFakeCycles(), testTasks(), ServerConfig{Token: "s3cret"})

	if resp := doRequest(t, server, http.MethodGet, "/v1/tasks", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if resp := doRequest(t, server, http.MethodGet, "/v1/tasks", map[string]string{"Authorization": "Bearer wrong"}); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", resp.Code)
	}
	if resp := doRequest(t, server, http.MethodGet, "/v1/tasks", map[string]string{"Authorization": "Bearer s3cret"}); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.Code)
	}
	if resp := doRequest(t, server, http.MethodGet, "/health", nil); resp.Code != http.StatusOK {
		t.Fatalf("expected health to stay open, got %d", resp.Code)
	}
}

func TestRateLimit(t *testing.T) {
	server := NewServerWithConfig(newFakeCycles(), testTasks(), ServerConfig{RateLimitMax: 2, RateLimitWindow: time.Hour})
	for i := 0; i < 2; i++ {
		if resp := doRequest(t, server, http.MethodGet, "/v1/tasks", nil); resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.Code)
		}
	}
	if resp := doRequest(t, server, http.MethodGet, "/v1/tasks", nil); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	server := NewServer(newFakeCycles(), testTasks())
	if resp := doRequest(t, server, http.MethodGet, "/v1/nope", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestEventsStreamCycleReports(t *testing.T) {
	cycles := newFakeCycles()
	srv := httptest.NewServer(NewServer(cycles, testTasks()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/events", nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	defer conn.CloseNow()

	select {
	case <-cycles.subbed:
	case <-ctx.Done():
		t.Fatalf("server never subscribed")
	}
	cycles.publish(orchestrator.CycleReport{ID: "cycle-7", Phase: orchestrator.PersistingState})

	var got map[string]any
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if got["id"] != "cycle-7" {
		t.Fatalf("unexpected event: %+v", got)
	}
}
