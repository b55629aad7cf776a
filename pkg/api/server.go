package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/loadpilot/loadpilot/pkg/telemetry"
)

// Server wraps the admin HTTP server
type Server struct {
	srv *http.Server
}

// NewServer builds the mux router and the underlying HTTP server
func NewServer(addr string, handler *Handler, tel *telemetry.Metrics) *Server {
	r := mux.NewRouter()
	handler.RegisterRoutes(r)
	r.Use(observeMiddleware(tel))

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins serving. It blocks until shutdown, so callers run it
// in a goroutine.
func (s *Server) Start() error {
	log.WithFields(log.Fields{"addr": s.srv.Addr}).Info("Admin API starting")

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// observeMiddleware times each request against its route template so
// metric cardinality stays bounded
func observeMiddleware(tel *telemetry.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}
			tel.ObserveAPIRequest(r.Method, path, time.Since(start))
		})
	}
}
