// Package dashboard exposes a read-only HTTP+WebSocket status surface over
// the Controller's view of the system: health summary, retry state, the
// candidate review queue, and inbox queue depth. It never writes state —
// the Controller is the only writer, per spec.md §3's single-writer model —
// and every handler here is a GET.
//
// Grounded on the teacher's internal/server (gorilla/mux routing,
// SecurityHeadersMiddleware, the websocket Hub/Client pair) and
// internal/server/handlers.go's handleGetState/handleHealthCheck/
// handleWebSocket shape, generalized from the teacher's agent-spawning
// dashboard to this system's read-only status surface.
package dashboard

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/coordctl/coordctl/internal/controller"
	"github.com/coordctl/coordctl/internal/health"
	"github.com/coordctl/coordctl/internal/logging"
	"github.com/coordctl/coordctl/internal/protocol"
	"github.com/coordctl/coordctl/internal/retry"
)

var log = logging.New("dashboard")

// StatusSource is the read-only subset of *controller.Controller the
// dashboard depends on, kept as an interface so tests can supply a fake
// without constructing a full Controller.
type StatusSource interface {
	HealthSummary() health.Summary
	RetrySnapshot() map[string]retry.Entry
	ListCandidates() ([]controller.Candidate, error)
	QueueDepth() (int, error)
}

// Server is the dashboard's HTTP server: a mux.Router plus a WebSocket hub
// broadcasting status changes to connected browsers.
type Server struct {
	addr   string
	source StatusSource
	hub    *Hub
	router *mux.Router
	http   *http.Server
	stop   chan struct{}
}

// New builds a Server bound to addr (e.g. ":8088"), backed by source.
func New(addr string, source StatusSource) *Server {
	s := &Server{
		addr:   addr,
		source: source,
		hub:    NewHub(),
		stop:   make(chan struct{}),
	}
	s.router = mux.NewRouter()
	s.router.Use(securityHeaders)
	s.setupRoutes()
	s.http = &http.Server{Addr: addr, Handler: s.router}
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/retries", s.handleRetries).Methods(http.MethodGet)
	api.HandleFunc("/candidates", s.handleCandidates).Methods(http.MethodGet)
	api.HandleFunc("/queue", s.handleQueueDepth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Start runs the hub loop and the HTTP listener. It blocks until the
// listener stops (normally via Shutdown) and returns the listener's error,
// treating a clean shutdown as nil.
func (s *Server) Start() error {
	go s.hub.Run(s.stop)
	go s.pollAndBroadcast(10 * time.Second)
	log.Printf("dashboard listening on %s", s.addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP listener and the hub loop.
func (s *Server) Shutdown() error {
	close(s.stop)
	return s.http.Close()
}

// BroadcastEscalation pushes an escalation notice to every connected
// client, for callers (the Controller's escalation path) that want the
// dashboard to reflect an event the instant it happens rather than waiting
// for the next poll.
func (s *Server) BroadcastEscalation(payload any) {
	s.hub.Broadcast(Message{Type: MessageEscalation, Data: payload})
}

// Name implements notify.Channel so the dashboard can be registered as an
// escalation channel alongside toast and webhook.
func (s *Server) Name() string { return "dashboard" }

// Notify implements notify.Channel by broadcasting d to every connected
// dashboard client.
func (s *Server) Notify(d protocol.Directive) error {
	s.BroadcastEscalation(d)
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("encoding response failed: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, s.source.HealthSummary())
}

func (s *Server) handleRetries(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, s.source.RetrySnapshot())
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.source.ListCandidates()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list candidates")
		return
	}
	s.respondJSON(w, candidates)
}

func (s *Server) handleQueueDepth(w http.ResponseWriter, r *http.Request) {
	depth, err := s.source.QueueDepth()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to compute queue depth")
		return
	}
	s.respondJSON(w, map[string]int{"queue_depth": depth})
}

var upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}

// checkOrigin allows requests without an Origin header and any localhost
// origin, and rejects everything else, including a same-host origin whose
// host is not localhost — there is no configured allow-list.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{hub: s.hub, conn: conn, send: make(chan []byte, clientSendBuffer)}
	s.hub.register <- c

	snapshot, _ := json.Marshal(Message{Type: MessageHealth, Data: s.source.HealthSummary()})
	c.send <- snapshot

	go c.readPump()
	go c.writePump()
}

// securityHeaders sets the Server response header to a fixed value so it
// carries no version information; no other header is touched.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "coordctl-dashboard")
		next.ServeHTTP(w, r)
	})
}

// pollAndBroadcast periodically pushes a health snapshot to every
// connected client so a dashboard tab stays current even if no escalation
// fires during the interval.
func (s *Server) pollAndBroadcast(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.hub.Broadcast(Message{Type: MessageHealth, Data: s.source.HealthSummary()})
			if depth, err := s.source.QueueDepth(); err == nil {
				s.hub.Broadcast(Message{Type: MessageQueueDepth, Data: map[string]int{"queue_depth": depth}})
			}
		}
	}
}
