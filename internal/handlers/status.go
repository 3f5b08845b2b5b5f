package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ZerkerEOD/folderport/internal/metrics"
	"github.com/ZerkerEOD/folderport/internal/models"
	"github.com/ZerkerEOD/folderport/internal/services/status"
	"github.com/ZerkerEOD/folderport/internal/version"
	"github.com/ZerkerEOD/folderport/pkg/debug"
)

const (
	defaultEventLimit    = 50
	defaultTransferLimit = 100
	maxTransferLimit     = 1000
)

// TransferLister reads the transfer journal
type TransferLister interface {
	ListRecent(ctx context.Context, limit int) ([]models.TransferRecord, error)
}

// RegistrySizer reports how many files are currently claimed
type RegistrySizer interface {
	Len() int
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	status.Snapshot
	Version      string                 `json:"version"`
	RegistrySize int                    `json:"registry_size"`
	Load         *metrics.SystemMetrics `json:"load,omitempty"`
	RecentEvents []status.Event         `json:"recent_events"`
}

// StatusHandler serves the read-only status API
type StatusHandler struct {
	hub       *status.Hub
	registry  RegistrySizer
	transfers TransferLister
	load      *metrics.Collector
}

// NewStatusHandler creates a status handler. registry, transfers and load may be nil.
func NewStatusHandler(hub *status.Hub, registry RegistrySizer, transfers TransferLister, load *metrics.Collector) *StatusHandler {
	return &StatusHandler{hub: hub, registry: registry, transfers: transfers, load: load}
}

// Health answers liveness probes
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.GetVersion()})
}

// Status returns the aggregated daemon state and the newest events
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "events", defaultEventLimit, status.DefaultHistory)

	resp := StatusResponse{
		Snapshot:     h.hub.Snapshot(),
		Version:      version.GetVersion(),
		RecentEvents: h.hub.Recent(limit),
	}
	if h.registry != nil {
		resp.RegistrySize = h.registry.Len()
	}
	if h.load != nil {
		sample := h.load.Collect()
		resp.Load = &sample
	}
	writeJSON(w, http.StatusOK, resp)
}

// Transfers lists journaled transfers, newest first
func (h *StatusHandler) Transfers(w http.ResponseWriter, r *http.Request) {
	if h.transfers == nil {
		http.Error(w, "Transfer journal is not enabled", http.StatusServiceUnavailable)
		return
	}

	limit := queryInt(r, "limit", defaultTransferLimit, maxTransferLimit)
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	records, err := h.transfers.ListRecent(ctx, limit)
	if err != nil {
		debug.Error("Failed to list transfers: %v", err)
		http.Error(w, "Failed to list transfers", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.TransferRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func queryInt(r *http.Request, key string, def, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		debug.Error("Failed to encode response: %v", err)
	}
}
