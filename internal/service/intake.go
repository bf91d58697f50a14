// Пакет service — бизнес-логика Visaflow.
// intake.go — синхронный приём загрузки: валидация, запись во временное
// хранилище и постановка Descriptor в очередь. Возвращает Accepted —
// постоянное размещение файла НЕ гарантируется этим ответом.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/visaflow/visaflow/internal/api/errors"
	"github.com/visaflow/visaflow/internal/authz"
	"github.com/visaflow/visaflow/internal/config"
	"github.com/visaflow/visaflow/internal/domain/model"
	"github.com/visaflow/visaflow/internal/queue"
	"github.com/visaflow/visaflow/internal/repository"
	"github.com/visaflow/visaflow/internal/storage/diskstore"
)

// Prometheus метрики приёма загрузок.
var (
	// intakeAcceptedTotal — количество принятых загрузок (202).
	intakeAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vf_intake_accepted_total",
		Help: "Общее количество принятых загрузок",
	})

	// intakeRejectedTotal — количество отклонённых загрузок по кодам ошибок.
	intakeRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vf_intake_rejected_total",
		Help: "Общее количество отклонённых загрузок",
	}, []string{"code"})
)

// Допустимые MIME-типы документов досье.
var allowedMimeTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

// IntakeParams — параметры одной загрузки.
type IntakeParams struct {
	// ApplicationID — владеющая заявка
	ApplicationID int64
	// UserID — пользователь, инициировавший загрузку (sub из JWT)
	UserID int64
	// CategoryID — категория документа
	CategoryID int64
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalName — оригинальное имя файла
	OriginalName string
	// MimeType — заявленный MIME-тип
	MimeType string
	// Size — размер файла (из multipart part)
	Size int64
}

// IntakeError — ошибка приёма с HTTP-кодом.
type IntakeError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *IntakeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IntakeService — сервис синхронного приёма загрузок.
type IntakeService struct {
	cfg      *config.Config
	apps     repository.ApplicationRepository
	cats     repository.CategoryRepository
	catCache *expirable.LRU[int64, *model.FileCategory]
	store    *diskstore.Manager
	q        queue.Queue
	logger   *slog.Logger
}

// NewIntakeService создаёт сервис приёма загрузок.
// Справочник категорий кэшируется с TTL: он почти не меняется,
// а проверяется на каждой загрузке.
func NewIntakeService(
	cfg *config.Config,
	apps repository.ApplicationRepository,
	cats repository.CategoryRepository,
	store *diskstore.Manager,
	q queue.Queue,
	logger *slog.Logger,
) *IntakeService {
	return &IntakeService{
		cfg:      cfg,
		apps:     apps,
		cats:     cats,
		catCache: expirable.NewLRU[int64, *model.FileCategory](cfg.CacheSize, nil, cfg.CacheTTL),
		store:    store,
		q:        q,
		logger:   logger.With(slog.String("component", "intake_service")),
	}
}

// Submit принимает загрузку файла для заявки.
//
// Порядок синхронных проверок:
//  1. Заявка существует и принадлежит пользователю
//  2. Категория существует
//  3. Размер не превышает максимум
//  4. MIME-тип из белого списка
//
// Затем поток пишется во временное хранилище
// (tmp/visa-applications/{id}/{uuid}{ext}), строится Descriptor
// и ставится в очередь. Ошибка записи или постановки — 503, ничего
// не ставится в очередь.
func (s *IntakeService) Submit(ctx context.Context, params IntakeParams) (*model.Descriptor, *IntakeError) {
	// 1. Заявка и владение
	app, err := s.apps.GetByID(ctx, params.ApplicationID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, s.reject(&IntakeError{
				StatusCode: 404,
				Code:       apierrors.CodeNotFound,
				Message:    fmt.Sprintf("Заявка %d не найдена", params.ApplicationID),
			})
		}
		s.logger.Error("Ошибка получения заявки", slog.String("error", err.Error()))
		return nil, s.reject(&IntakeError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Внутренняя ошибка при проверке заявки",
		})
	}
	if !authz.CanAccess(params.UserID, authz.ActionUpdate, app) {
		return nil, s.reject(&IntakeError{
			StatusCode: 403,
			Code:       apierrors.CodeForbidden,
			Message:    "Заявка принадлежит другому пользователю",
		})
	}

	// 2. Категория
	if _, ok := s.catCache.Get(params.CategoryID); !ok {
		cat, err := s.cats.GetByID(ctx, params.CategoryID)
		if err != nil {
			if err == repository.ErrNotFound {
				return nil, s.reject(&IntakeError{
					StatusCode: 400,
					Code:       apierrors.CodeValidationError,
					Message:    fmt.Sprintf("Категория %d не существует", params.CategoryID),
				})
			}
			s.logger.Error("Ошибка получения категории", slog.String("error", err.Error()))
			return nil, s.reject(&IntakeError{
				StatusCode: 500,
				Code:       apierrors.CodeInternalError,
				Message:    "Внутренняя ошибка при проверке категории",
			})
		}
		s.catCache.Add(cat.ID, cat)
	}

	// 3. Размер
	if params.Size > s.cfg.MaxFileSize {
		return nil, s.reject(&IntakeError{
			StatusCode: 413,
			Code:       apierrors.CodeFileTooLarge,
			Message:    fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", params.Size, s.cfg.MaxFileSize),
		})
	}

	// 4. MIME-тип
	ext, ok := allowedMimeTypes[params.MimeType]
	if !ok {
		return nil, s.reject(&IntakeError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Недопустимый тип файла %q", params.MimeType),
		})
	}

	// Запись во временное хранилище. Имя генерируется, чтобы
	// параллельные загрузки одной заявки не конфликтовали.
	tempPath := path.Join("tmp", "visa-applications",
		strconv.FormatInt(params.ApplicationID, 10),
		uuid.New().String()+ext,
	)

	start := time.Now()
	written, err := s.store.WriteStream(diskstore.StoreTemp, tempPath, params.Reader)
	if err != nil {
		s.logger.Error("Ошибка записи во временное хранилище",
			slog.String("path", tempPath),
			slog.String("error", err.Error()),
		)
		return nil, s.reject(&IntakeError{
			StatusCode: 503,
			Code:       apierrors.CodeIntakeFailed,
			Message:    "Не удалось сохранить файл, попробуйте позже",
		})
	}

	desc := &model.Descriptor{
		VisaApplicationID: params.ApplicationID,
		ApplicantID:       params.UserID,
		FileCategoryID:    params.CategoryID,
		TemporaryStore:    diskstore.StoreTemp,
		TemporaryPath:     tempPath,
		OriginalName:      params.OriginalName,
		MimeType:          params.MimeType,
		SizeBytes:         written,
	}

	if err := s.q.Enqueue(ctx, desc); err != nil {
		// Очередь недоступна — убираем временный файл, чтобы
		// janitor не ждал TTL, и отвечаем 503.
		if delErr := s.store.Delete(diskstore.StoreTemp, tempPath); delErr != nil {
			s.logger.Error("Не удалось удалить временный файл после отказа очереди",
				slog.String("path", tempPath),
				slog.String("error", delErr.Error()),
			)
		}
		s.logger.Error("Ошибка постановки в очередь", slog.String("error", err.Error()))
		return nil, s.reject(&IntakeError{
			StatusCode: 503,
			Code:       apierrors.CodeIntakeFailed,
			Message:    "Очередь обработки недоступна, попробуйте позже",
		})
	}

	intakeAcceptedTotal.Inc()
	s.logger.Info("Загрузка принята",
		slog.Int64("application_id", params.ApplicationID),
		slog.Int64("user_id", params.UserID),
		slog.String("temp_path", tempPath),
		slog.Int64("size", written),
		slog.Duration("duration", time.Since(start)),
	)
	return desc, nil
}

// reject инкрементирует метрику отклонённых загрузок.
func (s *IntakeService) reject(e *IntakeError) *IntakeError {
	intakeRejectedTotal.WithLabelValues(e.Code).Inc()
	return e
}
