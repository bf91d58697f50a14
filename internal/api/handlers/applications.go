// applications.go — CRUD визовых заявок. Все операции ограничены
// владельцем: чужая заявка неотличима от несуществующей только для
// листинга, точечные операции отвечают 403.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/visaflow/visaflow/internal/api/errors"
	"github.com/visaflow/visaflow/internal/api/middleware"
	"github.com/visaflow/visaflow/internal/authz"
	"github.com/visaflow/visaflow/internal/domain/model"
	"github.com/visaflow/visaflow/internal/repository"
	"github.com/visaflow/visaflow/internal/storage/diskstore"
)

// ApplicationsHandler — обработчик endpoints визовых заявок.
type ApplicationsHandler struct {
	apps   repository.ApplicationRepository
	files  repository.FileRepository
	store  *diskstore.Manager
	logger *slog.Logger
}

// NewApplicationsHandler создаёт обработчик заявок.
func NewApplicationsHandler(
	apps repository.ApplicationRepository,
	files repository.FileRepository,
	store *diskstore.Manager,
	logger *slog.Logger,
) *ApplicationsHandler {
	return &ApplicationsHandler{
		apps:   apps,
		files:  files,
		store:  store,
		logger: logger.With(slog.String("component", "applications_handler")),
	}
}

// applicationRequest — тело запросов создания и обновления заявки.
type applicationRequest struct {
	Country string `json:"country"`
	Status  string `json:"status"`
}

// validStatuses — допустимые статусы заявки.
var validStatuses = map[string]bool{
	model.ApplicationStatusDraft:     true,
	model.ApplicationStatusSubmitted: true,
	model.ApplicationStatusApproved:  true,
	model.ApplicationStatusRejected:  true,
}

// validCountry проверяет код страны: две латинские буквы (ISO 3166-1 alpha-2).
func validCountry(country string) bool {
	if len(country) != 2 {
		return false
	}
	for _, c := range country {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// List обрабатывает GET /api/v1/visa-applications.
// Возвращает только заявки текущего пользователя, новые первыми.
func (h *ApplicationsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	apps, err := h.apps.ListByApplicant(r.Context(), userID)
	if err != nil {
		h.logger.Error("Ошибка списка заявок", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось получить список заявок")
		return
	}
	if apps == nil {
		apps = []*model.VisaApplication{}
	}
	writeData(w, http.StatusOK, apps)
}

// Create обрабатывает POST /api/v1/visa-applications.
// Новая заявка всегда создаётся в статусе draft.
func (h *ApplicationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req applicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}
	if !validCountry(req.Country) {
		apierrors.ValidationError(w, "Поле country должно быть кодом страны ISO 3166-1 alpha-2")
		return
	}

	app := &model.VisaApplication{
		ApplicantID: userID,
		Country:     req.Country,
		Status:      model.ApplicationStatusDraft,
	}
	if err := h.apps.Create(r.Context(), app); err != nil {
		h.logger.Error("Ошибка создания заявки", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось создать заявку")
		return
	}
	writeData(w, http.StatusCreated, app)
}

// Get обрабатывает GET /api/v1/visa-applications/{id}.
func (h *ApplicationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	app, ok := h.resolveOwned(w, r, authz.ActionView)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, app)
}

// Update обрабатывает PUT /api/v1/visa-applications/{id}.
// Меняет страну и статус; переход draft → submitted фиксирует submitted_at.
func (h *ApplicationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	app, ok := h.resolveOwned(w, r, authz.ActionUpdate)
	if !ok {
		return
	}

	var req applicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}
	if req.Country != "" {
		if !validCountry(req.Country) {
			apierrors.ValidationError(w, "Поле country должно быть кодом страны ISO 3166-1 alpha-2")
			return
		}
		app.Country = req.Country
	}
	if req.Status != "" {
		if !validStatuses[req.Status] {
			apierrors.ValidationError(w, "Недопустимый статус заявки")
			return
		}
		if req.Status == model.ApplicationStatusSubmitted && app.Status == model.ApplicationStatusDraft {
			now := time.Now().UTC()
			app.SubmittedAt = &now
		}
		app.Status = req.Status
	}

	if err := h.apps.Update(r.Context(), app); err != nil {
		h.logger.Error("Ошибка обновления заявки", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось обновить заявку")
		return
	}
	writeData(w, http.StatusOK, app)
}

// Delete обрабатывает DELETE /api/v1/visa-applications/{id}.
// Записи файлов удаляются каскадно на уровне БД, байты из постоянного
// хранилища убираются после — файл-сирота безопаснее битой ссылки.
func (h *ApplicationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	app, ok := h.resolveOwned(w, r, authz.ActionDelete)
	if !ok {
		return
	}

	records, err := h.files.ListByApplication(r.Context(), app.ID)
	if err != nil {
		h.logger.Error("Ошибка списка файлов заявки", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось удалить заявку")
		return
	}

	if err := h.apps.Delete(r.Context(), app.ID); err != nil {
		h.logger.Error("Ошибка удаления заявки", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось удалить заявку")
		return
	}

	for _, rec := range records {
		if err := h.store.Delete(rec.Store, rec.Path); err != nil {
			h.logger.Error("Не удалось удалить байты файла",
				slog.String("path", rec.Path),
				slog.String("error", err.Error()),
			)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolveOwned извлекает заявку из пути и проверяет владение.
// При ошибке пишет ответ и возвращает ok=false.
func (h *ApplicationsHandler) resolveOwned(w http.ResponseWriter, r *http.Request, action authz.Action) (*model.VisaApplication, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		apierrors.ValidationError(w, "Некорректный идентификатор заявки")
		return nil, false
	}

	app, err := h.apps.GetByID(r.Context(), id)
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
	if !authz.CanAccess(userID, action, app) {
		apierrors.Forbidden(w, "Заявка принадлежит другому пользователю")
		return nil, false
	}
	return app, true
}
