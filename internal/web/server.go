package web

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/cjeanneret/WristGo/internal/debug"
	"github.com/cjeanneret/WristGo/internal/hw/gamepad"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
	verifier *tokenVerifier // nil when auth is disabled
}

// NewServer creates a server on addr. When authSecret is non-empty the
// control and start endpoints require an HS256 token signed with it.
func NewServer(addr string, broadcaster *StatusBroadcaster, pad *gamepad.Virtual, settings Settings, authSecret string) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("web: static fs: %w", err)
	}

	settings.AuthRequired = authSecret != ""
	s := &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, pad, settings, subFS),
	}
	if authSecret != "" {
		s.verifier = newTokenVerifier(authSecret)
	}
	return s, nil
}

// Started is closed once a client posts to /start.
func (s *Server) Started() <-chan struct{} {
	return s.handlers.Started()
}

func (s *Server) protect(h http.HandlerFunc) http.HandlerFunc {
	if s.verifier == nil {
		return h
	}
	return s.verifier.requireToken(h)
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /start", s.protect(s.handlers.HandleStart))
	mux.HandleFunc("GET /control", s.protect(s.handlers.HandleControl))
	mux.HandleFunc("GET /config", s.handlers.HandleConfig)
	mux.HandleFunc("GET /status/stream", s.handlers.HandleStatusStream)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	mux.HandleFunc("GET /{$}", s.handlers.ServeIndex) // exact match for root only

	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Mux()}
	// Request contexts end with ctx so open SSE streams don't hold Shutdown.
	srv.BaseContext = func(net.Listener) context.Context { return ctx }
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
