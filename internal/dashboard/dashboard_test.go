package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coordctl/coordctl/internal/controller"
	"github.com/coordctl/coordctl/internal/health"
	"github.com/coordctl/coordctl/internal/retry"
)

type fakeSource struct {
	healthSummary health.Summary
	retries       map[string]retry.Entry
	candidates    []controller.Candidate
	queueDepth    int
	queueErr      error
}

func (f *fakeSource) HealthSummary() health.Summary                   { return f.healthSummary }
func (f *fakeSource) RetrySnapshot() map[string]retry.Entry           { return f.retries }
func (f *fakeSource) ListCandidates() ([]controller.Candidate, error) { return f.candidates, nil }
func (f *fakeSource) QueueDepth() (int, error)                        { return f.queueDepth, f.queueErr }

func newTestServer(t *testing.T, src *fakeSource) *Server {
	t.Helper()
	s := New(":0", src)
	return s
}

func TestHandleHealthReturnsSummary(t *testing.T) {
	src := &fakeSource{healthSummary: health.Summary{OverallStatus: health.StatusHealthy}}
	s := newTestServer(t, src)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got health.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.OverallStatus != health.StatusHealthy {
		t.Fatalf("expected healthy status, got %q", got.OverallStatus)
	}
}

func TestHandleRetriesReturnsSnapshot(t *testing.T) {
	src := &fakeSource{retries: map[string]retry.Entry{
		"task-1": {TaskID: "task-1", RetryCount: 1, MaxRetries: 3, Status: retry.StatusRetrying},
	}}
	s := newTestServer(t, src)

	req := httptest.NewRequest(http.MethodGet, "/api/retries", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "task-1") {
		t.Fatalf("expected task-1 in response, got %s", rec.Body.String())
	}
}

func TestHandleCandidatesReturnsList(t *testing.T) {
	src := &fakeSource{candidates: []controller.Candidate{{CandidateID: "cand-1", Status: "pending_review"}}}
	s := newTestServer(t, src)

	req := httptest.NewRequest(http.MethodGet, "/api/candidates", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var got []controller.Candidate
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].CandidateID != "cand-1" {
		t.Fatalf("unexpected candidates response: %+v", got)
	}
}

func TestHandleQueueDepthSurfacesErrors(t *testing.T) {
	src := &fakeSource{queueErr: errTest{}}
	s := newTestServer(t, src)

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }

func TestWebSocketDeliversInitialHealthSnapshot(t *testing.T) {
	src := &fakeSource{healthSummary: health.Summary{OverallStatus: health.StatusDegraded}}
	s := newTestServer(t, src)
	go s.hub.Run(s.stop)
	defer close(s.stop)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != MessageHealth {
		t.Fatalf("expected health_update message, got %q", msg.Type)
	}
}

func TestBroadcastEscalationReachesClient(t *testing.T) {
	src := &fakeSource{}
	s := newTestServer(t, src)
	go s.hub.Run(s.stop)
	defer close(s.stop)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatal(err)
	}

	s.BroadcastEscalation(map[string]string{"reason": "max retries exhausted"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != MessageEscalation {
		t.Fatalf("expected escalation message, got %q", msg.Type)
	}
}
