package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/clipfetch/clipfetch/internal/history"
	"github.com/clipfetch/clipfetch/internal/scheduler"
)

var startTime = time.Now()

// slotSource reports the live scheduler occupancy.
type slotSource interface {
	Stats() scheduler.Snapshot
}

// historySource reports accumulated download totals.
type historySource interface {
	Stats(ctx context.Context) (history.Stats, error)
}

// Handler serves the operational endpoints.
type Handler struct {
	slots   slotSource
	history historySource
	logger  *slog.Logger
}

// NewHandler creates the operational handler.
func NewHandler(slots slotSource, hist historySource, logger *slog.Logger) *Handler {
	return &Handler{slots: slots, history: hist, logger: logger}
}

// HealthResponse is the JSON response for the liveness probe.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Live handles GET /healthz.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// StatsResponse aggregates scheduler occupancy, download totals, and process
// runtime statistics.
type StatsResponse struct {
	Uptime        int64         `json:"uptime_seconds"`
	NumGoroutines int           `json:"num_goroutines"`
	MemAllocMB    int64         `json:"mem_alloc_mb"`
	Slots         SlotStats     `json:"slots"`
	Downloads     *HistoryStats `json:"downloads,omitempty"`
}

// SlotStats describes current scheduler occupancy.
type SlotStats struct {
	Capacity    int     `json:"capacity"`
	Active      int     `json:"active"`
	ActiveUsers []int64 `json:"active_users"`
}

// HistoryStats describes accumulated download totals.
type HistoryStats struct {
	Total          int64 `json:"total"`
	Succeeded      int64 `json:"succeeded"`
	Failed         int64 `json:"failed"`
	BytesDelivered int64 `json:"bytes_delivered"`
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	snap := h.slots.Stats()
	resp := StatsResponse{
		Uptime:        int64(time.Since(startTime).Seconds()),
		NumGoroutines: runtime.NumGoroutine(),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		Slots: SlotStats{
			Capacity:    snap.Capacity,
			Active:      snap.ActiveSlots,
			ActiveUsers: snap.ActiveUsers,
		},
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if totals, err := h.history.Stats(ctx); err != nil {
		h.logger.Warn("failed to read download totals", "error", err)
	} else {
		resp.Downloads = &HistoryStats{
			Total:          totals.Total,
			Succeeded:      totals.Succeeded,
			Failed:         totals.Failed,
			BytesDelivered: totals.BytesDelivered,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
