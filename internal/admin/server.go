package admin

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/syncbridge/eventbridge/internal/pkg/logger"
)

// HealthChecker is the narrow slice of connection.Supervisor the /healthz
// endpoint needs.
type HealthChecker interface {
	Connected() (bool, error)
}

// Readiness is a concurrency-safe flag cmd/bridge flips once the topology
// manager has successfully reconciled the stream and consumer, exposed at
// /readyz. Zero value reports not-ready.
type Readiness struct {
	ready atomic.Bool
}

// Set marks the bridge ready or not-ready.
func (r *Readiness) Set(ready bool) { r.ready.Store(ready) }

// Ready reports the current readiness state.
func (r *Readiness) Ready() bool { return r.ready.Load() }

// Server is the bridge daemon's operational HTTP surface: /healthz,
// /readyz, and /swagger/*, following the router shape of the teacher's
// internal/delivery/http/router.go scaled down to three routes.
type Server struct {
	http *http.Server
}

// New builds a Server bound to addr (":PORT" form). health reports
// transport connectivity; ready reports topology reconciliation.
func New(addr string, health HealthChecker, ready *Readiness, log *logger.Logger) *Server {
	r := chi.NewRouter()
	r.Use(recovery(log))
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		MaxAge:         300,
	}))

	r.Get("/healthz", healthzHandler(health))
	r.Get("/readyz", readyzHandler(ready))
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	return &Server{
		http: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe blocks serving the admin surface until Shutdown is called.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func healthzHandler(health HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, err := health.Connected()
		if !ok {
			body := map[string]any{"status": "down"}
			if err != nil {
				body["error"] = err.Error()
			}
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}

func readyzHandler(ready *Readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ready": true})
	}
}
