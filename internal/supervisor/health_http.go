package supervisor

import (
	"context"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

const healthPath = "/healthz"

// NewHealthServer builds the health HTTP surface (SPEC_FULL §6.1): a single
// GET /healthz endpoint serving the Supervisor's structured snapshot as
// JSON, grounded on the teacher's internal/infra/server/http handler
// pattern (a thin net/http layer over an otherwise-decoupled core) and its
// use of goccy/go-json for encoding.
func (s *Supervisor) NewHealthServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, s.handleHealth)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *Supervisor) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.HealthSnapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// StartHealthServer runs server until ctx is cancelled, logging a non-clean
// exit but never treating it as fatal (spec.md §4.7's health surface is
// diagnostic, not load-bearing).
func (s *Supervisor) StartHealthServer(ctx context.Context, server *http.Server) {
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("health server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
