// categories.go — чтение справочника категорий документов.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/visaflow/visaflow/internal/api/errors"
	"github.com/visaflow/visaflow/internal/domain/model"
	"github.com/visaflow/visaflow/internal/repository"
)

// CategoriesHandler — обработчик справочника категорий.
type CategoriesHandler struct {
	cats   repository.CategoryRepository
	logger *slog.Logger
}

// NewCategoriesHandler создаёт обработчик категорий.
func NewCategoriesHandler(cats repository.CategoryRepository, logger *slog.Logger) *CategoriesHandler {
	return &CategoriesHandler{
		cats:   cats,
		logger: logger.With(slog.String("component", "categories_handler")),
	}
}

// List обрабатывает GET /api/v1/file-categories.
func (h *CategoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	cats, err := h.cats.List(r.Context())
	if err != nil {
		h.logger.Error("Ошибка списка категорий", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось получить список категорий")
		return
	}
	if cats == nil {
		cats = []*model.FileCategory{}
	}
	writeData(w, http.StatusOK, cats)
}
