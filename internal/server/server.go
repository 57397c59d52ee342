package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"heritage/taxonomy/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// StateReader is the read-only capability the views depend on
type StateReader interface {
	State() domain.State
}

type subcategoriesResponse struct {
	Items     []domain.Subcategory `json:"items"`
	IsLoading bool                 `json:"isLoading"`
	Source    string               `json:"source,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// NewRouter mounts the subcategory view, health and metrics endpoints
func NewRouter(reader StateReader, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/subcategories", subcategoriesHandler(reader))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

func subcategoriesHandler(reader StateReader) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		state := reader.State()

		resp := subcategoriesResponse{
			Items:     state.Items,
			IsLoading: state.IsLoading,
			Source:    state.Source.String(),
		}
		if resp.Items == nil {
			resp.Items = []domain.Subcategory{}
		}
		if state.Err != nil {
			resp.Error = state.Err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Errorf("❌ Failed to encode subcategories response: %v", err)
		}
	}
}

// Run serves handler on addr until ctx is cancelled, then shuts down gracefully
func Run(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("🚀 Serving subcategories on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Info("🛑 HTTP server stopped")
	return nil
}
