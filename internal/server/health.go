package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"telegram_loyalty_bot/pkg/metrics"
)

const (
	statusHealthy   = "healthy"
	statusWarning   = "warning"
	statusUnhealthy = "unhealthy"
	statusPending   = "pending"
)

// Pinger проверяет доступность хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// JobReporter отдает итог последнего запуска фоновой задачи
type JobReporter interface {
	LastRun(name string) (runs int, lastErr error, ok bool)
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]string `json:"checks"`
}

// HealthChecker проверяет хранилище, фоновые задачи и рантайм
type HealthChecker struct {
	storage   Pinger
	jobs      JobReporter
	jobNames  []string
	startTime time.Time
	version   string
}

// NewHealthChecker создает новый health checker
func NewHealthChecker(storage Pinger, version string) *HealthChecker {
	return &HealthChecker{
		storage:   storage,
		startTime: time.Now(),
		version:   version,
	}
}

// WatchJobs добавляет в ответ состояние фоновых задач.
// Ошибка последнего запуска дает warning, а не unhealthy.
func (h *HealthChecker) WatchJobs(jobs JobReporter, names ...string) {
	h.jobs = jobs
	h.jobNames = names
}

// HealthHandler обрабатывает запросы health check
func (h *HealthChecker) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"database": statusHealthy}
	overall := statusHealthy

	if h.storage != nil {
		if err := h.storage.Ping(ctx); err != nil {
			checks["database"] = statusUnhealthy + ": " + err.Error()
			overall = statusUnhealthy
		}
	}

	degraded := func(name, status string) {
		checks[name] = status
		if status != statusHealthy && status != statusPending && overall == statusHealthy {
			overall = statusWarning
		}
	}

	for _, name := range h.jobNames {
		degraded("job:"+name, h.jobStatus(name))
	}
	mem, goroutines := runtimeStatus()
	degraded("memory", mem)
	degraded("goroutines", goroutines)

	w.Header().Set("Content-Type", "application/json")
	if overall == statusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:    overall,
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Truncate(time.Second).String(),
		Checks:    checks,
	})
}

func (h *HealthChecker) jobStatus(name string) string {
	runs, lastErr, ok := h.jobs.LastRun(name)
	switch {
	case !ok:
		return statusWarning + ": job not registered"
	case runs == 0:
		return statusPending
	case lastErr != nil:
		return statusWarning + ": " + lastErr.Error()
	}
	return statusHealthy
}

// runtimeStatus обновляет gauges памяти и горутин и оценивает их
func runtimeStatus() (memory, goroutines string) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	count := runtime.NumGoroutine()

	metrics.MemoryUsage.Set(float64(m.Alloc))
	metrics.GoroutinesCount.Set(float64(count))

	memory, goroutines = statusHealthy, statusHealthy
	if m.Alloc > 512<<20 {
		memory = statusWarning + ": memory usage > 512MB"
	}
	if count > 1000 {
		goroutines = statusWarning + ": too many goroutines"
	}
	return memory, goroutines
}
