// files.go — endpoints файлов досье: приём загрузки (202), листинг
// и удаление. Сам приём асинхронный: 202 здесь означает только то,
// что работа запланирована, итог приходит событием в канал заявки.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/visaflow/visaflow/internal/api/errors"
	"github.com/visaflow/visaflow/internal/api/middleware"
	"github.com/visaflow/visaflow/internal/authz"
	"github.com/visaflow/visaflow/internal/domain/model"
	"github.com/visaflow/visaflow/internal/repository"
	"github.com/visaflow/visaflow/internal/service"
	"github.com/visaflow/visaflow/internal/storage/diskstore"
)

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	intake *service.IntakeService
	apps   repository.ApplicationRepository
	cats   repository.CategoryRepository
	files  repository.FileRepository
	store  *diskstore.Manager
	logger *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(
	intake *service.IntakeService,
	apps repository.ApplicationRepository,
	cats repository.CategoryRepository,
	files repository.FileRepository,
	store *diskstore.Manager,
	logger *slog.Logger,
) *FilesHandler {
	return &FilesHandler{
		intake: intake,
		apps:   apps,
		cats:   cats,
		files:  files,
		store:  store,
		logger: logger.With(slog.String("component", "files_handler")),
	}
}

// Upload обрабатывает POST /api/v1/visa-applications/{id}/files.
// Multipart form: file (обязательно), category_id (обязательно).
// Успех — 202 Accepted: файл лежит во временном хранилище и поставлен
// в очередь, постоянное размещение подтверждается событием stored.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	appID, ok := pathID(r, "id")
	if !ok {
		apierrors.ValidationError(w, "Некорректный идентификатор заявки")
		return
	}
	userID := middleware.UserIDFromContext(r.Context())

	// Парсим multipart form (буфер в памяти + запас на заголовки)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		apierrors.ValidationError(w, "Ошибка парсинга multipart: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	categoryID, err := strconv.ParseInt(r.FormValue("category_id"), 10, 64)
	if err != nil || categoryID <= 0 {
		apierrors.ValidationError(w, "Поле 'category_id' обязательно и должно быть числом")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, intakeErr := h.intake.Submit(r.Context(), service.IntakeParams{
		ApplicationID: appID,
		UserID:        userID,
		CategoryID:    categoryID,
		Reader:        file,
		OriginalName:  header.Filename,
		MimeType:      contentType,
		Size:          header.Size,
	})
	if intakeErr != nil {
		apierrors.WriteError(w, intakeErr.StatusCode, intakeErr.Code, intakeErr.Message)
		return
	}

	writeMessage(w, http.StatusAccepted, "File upload queued for processing.")
}

// List обрабатывает GET /api/v1/visa-applications/{id}/files.
// Возвращает wire-представления файлов заявки, новые первыми.
// Это авторитетный источник для клиента после разрыва соединения:
// события не переигрываются.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	app, ok := h.resolveOwned(w, r)
	if !ok {
		return
	}

	records, err := h.files.ListByApplication(r.Context(), app.ID)
	if err != nil {
		h.logger.Error("Ошибка списка файлов", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось получить список файлов")
		return
	}

	// Категории денормализуются в ответ; справочник маленький,
	// дешевле прочитать целиком, чем по одной на файл.
	cats, err := h.cats.List(r.Context())
	if err != nil {
		h.logger.Error("Ошибка списка категорий", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось получить список файлов")
		return
	}
	catByID := make(map[int64]model.CategorySummary, len(cats))
	for _, c := range cats {
		catByID[c.ID] = c.Summary()
	}

	resources := make([]model.FileResource, 0, len(records))
	for _, rec := range records {
		resources = append(resources, rec.Resource(app.Summary(), catByID[rec.FileCategoryID]))
	}
	writeData(w, http.StatusOK, resources)
}

// Delete обрабатывает DELETE /api/v1/visa-applications/{id}/files/{fileID}.
// Удаляет запись и байты из постоянного хранилища.
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	app, ok := h.resolveOwned(w, r)
	if !ok {
		return
	}

	fileID, ok := pathID(r, "fileID")
	if !ok {
		apierrors.ValidationError(w, "Некорректный идентификатор файла")
		return
	}

	rec, err := h.files.GetByID(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			apierrors.NotFound(w, "Файл не найден")
			return
		}
		h.logger.Error("Ошибка получения файла", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось удалить файл")
		return
	}
	if rec.VisaApplicationID != app.ID {
		apierrors.NotFound(w, "Файл не найден")
		return
	}

	if err := h.files.Delete(r.Context(), rec.ID); err != nil {
		h.logger.Error("Ошибка удаления записи файла", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось удалить файл")
		return
	}
	// Байты убираем после записи: файл-сирота безопаснее битой ссылки
	if err := h.store.Delete(rec.Store, rec.Path); err != nil {
		h.logger.Error("Не удалось удалить байты файла",
			slog.String("path", rec.Path),
			slog.String("error", err.Error()),
		)
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolveOwned извлекает заявку из пути и проверяет владение.
func (h *FilesHandler) resolveOwned(w http.ResponseWriter, r *http.Request) (*model.VisaApplication, bool) {
	appID, ok := pathID(r, "id")
	if !ok {
		apierrors.ValidationError(w, "Некорректный идентификатор заявки")
		return nil, false
	}

	app, err := h.apps.GetByID(r.Context(), appID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			apierrors.NotFound(w, "Заявка не найдена")
			return nil, false
		}
		h.logger.Error("Ошибка получения заявки", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось получить заявку")
		return nil, false
	}

	userID := middleware.UserIDFromContext(r.Context())
	if !authz.CanAccess(userID, authz.ActionView, app) {
		apierrors.Forbidden(w, "Заявка принадлежит другому пользователю")
		return nil, false
	}
	return app, true
}
