package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/domadao/event-indexer/config"
	"github.com/domadao/event-indexer/database"
	"github.com/domadao/event-indexer/logger"
)

// Monitor serves the operator-facing health and status endpoints.
type Monitor struct {
	server  *http.Server
	metrics *Metrics
	store   database.Store
}

func NewMonitor(cfg config.MonitorConfig, metrics *Metrics, store database.Store) *Monitor {
	m := &Monitor{metrics: metrics, store: store}

	router := mux.NewRouter()
	router.HandleFunc("/health", m.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", m.handleStatus).Methods(http.MethodGet)

	m.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return m
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (m *Monitor) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	logger.Info("Monitor listening on %s", m.server.Addr)

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return m.server.Shutdown(shutdownCtx)
	}
}

func (m *Monitor) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Metrics Snapshot         `json:"metrics"`
	Events  map[string]int64 `json:"events"`
}

func (m *Monitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := m.store.StatusCounts(r.Context())
	if err != nil {
		logger.Error("Status counts failed: %s", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status counts unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Metrics: m.metrics.Snapshot(),
		Events:  counts,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to write response: %s", err)
	}
}
