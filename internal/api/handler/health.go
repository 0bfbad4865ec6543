package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/VkTheEncoder/Anime4i/internal/repository"
)

var startTime = time.Now()

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	jobRepo     repository.JobRepository
	storagePath string
}

// NewHealthHandler creates a new health handler. storagePath is the artifact
// volume reported by Stats.
func NewHealthHandler(jobRepo repository.JobRepository, storagePath string) *HealthHandler {
	return &HealthHandler{
		jobRepo:     jobRepo,
		storagePath: storagePath,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Queue     *repository.QueueStats `json:"queue,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.jobRepo.Stats(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Queue:     stats,
	})
}

// SystemStats contains process, storage and queue statistics.
type SystemStats struct {
	Uptime         int64                  `json:"uptime_seconds"`
	UptimeHuman    string                 `json:"uptime_human"`
	MemAllocMB     int64                  `json:"mem_alloc_mb"`
	MemSysMB       int64                  `json:"mem_sys_mb"`
	NumGoroutines  int                    `json:"num_goroutines"`
	NumCPU         int                    `json:"num_cpu"`
	StoragePath    string                 `json:"storage_path"`
	DiskTotalBytes int64                  `json:"disk_total_bytes"`
	DiskFreeBytes  int64                  `json:"disk_free_bytes"`
	DiskUsedPct    float64                `json:"disk_used_pct"`
	DiskFreeHuman  string                 `json:"disk_free_human"`
	Queue          *repository.QueueStats `json:"queue,omitempty"`
}

// Stats handles GET /api/v1/stats - system statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		StoragePath:   h.storagePath,
	}

	total, free, usedPct := getDiskStats(h.storagePath)
	stats.DiskTotalBytes = total
	stats.DiskFreeBytes = free
	stats.DiskUsedPct = usedPct
	stats.DiskFreeHuman = humanize.IBytes(uint64(free))

	if queue, err := h.jobRepo.Stats(r.Context()); err == nil {
		stats.Queue = queue
	}

	writeJSON(w, http.StatusOK, stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
