// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/visaflow/visaflow/internal/config"
)

// ReadinessChecker — проверка готовности одной зависимости.
type ReadinessChecker interface {
	CheckReady() (status string, message string)
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// tempDir, durableDir — корни хранилищ (для проверки FS)
	tempDir    string
	durableDir string
	// db — проверка готовности PostgreSQL
	db ReadinessChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(tempDir, durableDir string, db ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		version:    config.Version,
		tempDir:    tempDir,
		durableDir: durableDir,
		db:         db,
	}
}

// Live обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "visaflow",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// Ready обрабатывает GET /health/ready.
// Проверяет: PostgreSQL, каталоги временного и постоянного хранилищ.
func (h *HealthHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	checks := map[string]any{}

	dbStatus, dbMessage := h.db.CheckReady()
	checks["database"] = map[string]string{"status": dbStatus, "message": dbMessage}
	if dbStatus != "ok" {
		overallStatus = "fail"
		httpStatus = http.StatusServiceUnavailable
	}

	for name, dir := range map[string]string{"temp_store": h.tempDir, "durable_store": h.durableDir} {
		status := "ok"
		message := "каталог доступен"
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			status = "fail"
			message = "каталог недоступен"
			overallStatus = "fail"
			httpStatus = http.StatusServiceUnavailable
		}
		checks[name] = map[string]string{"status": status, "message": message}
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"checks":    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}
