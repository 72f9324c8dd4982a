package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/treemirror/kit"
	"github.com/hazyhaar/treemirror/record"
)

// Server exposes a Replica over HTTP: patch ingest (POST and websocket)
// and read access to sessions.
type Server struct {
	replica  *Replica
	router   chi.Router
	upgrader websocket.Upgrader
	maxBody  int64
	logger   *slog.Logger
	mcp      *mcp.Server

	sessions Endpoint
	state    Endpoint
	markdown Endpoint
	patches  Endpoint
}

// Endpoint is a replica operation shared by the HTTP and MCP surfaces.
type Endpoint = kit.Endpoint

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets a custom logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxBody caps ingested patch size. Default: 10 MiB.
func WithMaxBody(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithMCP registers the replica tools on srv and serves it at /v1/mcp
// over the streamable HTTP transport.
func WithMCP(srv *mcp.Server) ServerOption {
	return func(s *Server) { s.mcp = srv }
}

// NewServer builds the HTTP routes over r.
func NewServer(r *Replica, opts ...ServerOption) *Server {
	s := &Server{
		replica: r,
		maxBody: 10 << 20,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.upgrader = websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 1024}

	s.sessions = s.wrap("sessions", sessionsEndpoint(r))
	s.state = s.wrap("state", stateEndpoint(r))
	s.markdown = s.wrap("markdown", markdownEndpoint(r))
	s.patches = s.wrap("patches", patchesEndpoint(r))

	rt := chi.NewRouter()
	rt.Use(middleware.Recoverer)
	rt.Use(requestID)
	rt.Use(securityHeaders)
	rt.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	})
	rt.Route("/v1", func(rt chi.Router) {
		rt.With(maxBody(s.maxBody)).Post("/patches", s.handlePatch)
		rt.Get("/ws", s.handleWebSocket)
		rt.Get("/sessions", s.handleSessions)
		rt.Get("/sessions/{id}", s.handleState)
		rt.Delete("/sessions/{id}", s.handleDelete)
		rt.Get("/sessions/{id}/markdown", s.handleMarkdown)
		rt.Get("/sessions/{id}/patches", s.handlePatches)
		if s.mcp != nil {
			r.RegisterMCP(s.mcp)
			h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
			rt.Handle("/mcp", h)
		}
	})
	s.router = rt
	return s
}

func (s *Server) wrap(op string, e Endpoint) Endpoint {
	return kit.Chain(kit.Logging(s.logger, "replica_"+op))(e)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("replica: listening", "addr", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("replica: serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("replica: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	var p record.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, fmt.Errorf("%w: %w", ErrInvalidPatch, err))
		return
	}
	if err := s.replica.Apply(r.Context(), &p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": p.Session, "seq": p.Seq})
}

// handleWebSocket ingests one patch per JSON message until the peer closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("replica: websocket upgrade", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.maxBody)

	ctx := r.Context()
	for {
		var p record.Patch
		if err := conn.ReadJSON(&p); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("replica: websocket read", "error", err)
			}
			return
		}
		if err := s.replica.Apply(ctx, &p); err != nil {
			s.logger.Warn("replica: websocket apply", "session", p.Session, "seq", p.Seq, "error", err)
		}
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, s.sessions, &sessionsRequest{})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, s.state, &sessionRequest{ID: chi.URLParam(r, "id")})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.replica.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	resp, err := s.markdown(r.Context(), &sessionRequest{ID: chi.URLParam(r, "id")})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	io.WriteString(w, resp.(*markdownResponse).Markdown)
}

func (s *Server) handlePatches(w http.ResponseWriter, r *http.Request) {
	req := &patchesRequest{ID: chi.URLParam(r, "id")}
	q := r.URL.Query()
	if v := q.Get("after"); v != "" {
		after, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: after: %v", errBadRequest, err))
			return
		}
		req.After = after
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: limit: %v", errBadRequest, err))
			return
		}
		req.Limit = limit
	}
	s.serve(w, r, s.patches, req)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, e Endpoint, req any) {
	resp, err := e(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

var errBadRequest = errors.New("replica: bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &maxErr):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrInvalidPatch), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNoStore):
		status = http.StatusNotImplemented
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
