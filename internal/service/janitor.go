// janitor.go — фоновая очистка временного хранилища.
//
// Временные файлы остаются после терминальных ошибок ingest (намеренно,
// для ручного восстановления) и после сбоев до постановки в очередь.
// Janitor удаляет файлы старше VF_TEMP_TTL по тикеру VF_JANITOR_INTERVAL.
package service

import (
	"context"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/visaflow/visaflow/internal/storage/diskstore"
)

// Prometheus метрики janitor.
var (
	// janitorRunsTotal — количество запусков очистки.
	janitorRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vf_janitor_runs_total",
		Help: "Общее количество запусков очистки временного хранилища",
	})

	// janitorFilesDeletedTotal — количество удалённых временных файлов.
	janitorFilesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vf_janitor_files_deleted_total",
		Help: "Общее количество удалённых временных файлов",
	})
)

// JanitorResult — результат одного запуска очистки.
type JanitorResult struct {
	// DeletedCount — количество удалённых файлов
	DeletedCount int
	// Errors — количество ошибок при удалении
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// JanitorService — фоновая очистка временного хранилища.
type JanitorService struct {
	store    *diskstore.Manager
	interval time.Duration
	ttl      time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewJanitorService создаёт сервис очистки.
func NewJanitorService(store *diskstore.Manager, interval, ttl time.Duration, logger *slog.Logger) *JanitorService {
	return &JanitorService{
		store:    store,
		interval: interval,
		ttl:      ttl,
		logger:   logger.With(slog.String("component", "janitor")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
func (j *JanitorService) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel

	go j.run(runCtx)

	j.logger.Info("Janitor запущен",
		slog.String("interval", j.interval.String()),
		slog.String("ttl", j.ttl.String()),
	)
}

// Stop останавливает фоновый процесс.
func (j *JanitorService) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.logger.Info("Janitor остановлен")
}

// run — основной цикл фоновой горутины.
func (j *JanitorService) run(ctx context.Context) {
	// Первый запуск — сразу после старта
	j.RunOnce()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл очистки: обходит временное хранилище
// и удаляет файлы, чей возраст превысил TTL.
func (j *JanitorService) RunOnce() *JanitorResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	start := time.Now()
	result := &JanitorResult{}
	cutoff := start.Add(-j.ttl)

	err := j.store.ForEach(diskstore.StoreTemp, func(relPath string, info fs.FileInfo) error {
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := j.store.Delete(diskstore.StoreTemp, relPath); err != nil {
			j.logger.Error("Не удалось удалить временный файл",
				slog.String("path", relPath),
				slog.String("error", err.Error()),
			)
			result.Errors++
			return nil
		}
		result.DeletedCount++
		return nil
	})
	if err != nil {
		j.logger.Error("Ошибка обхода временного хранилища", slog.String("error", err.Error()))
		result.Errors++
	}

	result.Duration = time.Since(start)

	janitorRunsTotal.Inc()
	janitorFilesDeletedTotal.Add(float64(result.DeletedCount))

	if result.DeletedCount > 0 || result.Errors > 0 {
		j.logger.Info("Очистка завершена",
			slog.Int("deleted", result.DeletedCount),
			slog.Int("errors", result.Errors),
			slog.Duration("duration", result.Duration),
		)
	}
	return result
}
