package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/visaflow/visaflow/internal/domain/model"
)

// CategoryRepository — доступ к справочнику категорий документов.
// Справочник заполняется миграциями, через API только читается.
type CategoryRepository interface {
	// GetByID возвращает категорию по идентификатору.
	GetByID(ctx context.Context, id int64) (*model.FileCategory, error)
	// List возвращает все категории в порядке создания.
	List(ctx context.Context) ([]*model.FileCategory, error)
}

// categoryRepo — реализация CategoryRepository.
type categoryRepo struct {
	db DBTX
}

// NewCategoryRepository создаёт репозиторий категорий файлов.
func NewCategoryRepository(db DBTX) CategoryRepository {
	return &categoryRepo{db: db}
}

func (r *categoryRepo) GetByID(ctx context.Context, id int64) (*model.FileCategory, error) {
	query := `
		SELECT id, name, slug, created_at
		FROM file_categories
		WHERE id = $1`

	c := &model.FileCategory{}
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения категории: %w", err)
	}
	return c, nil
}

func (r *categoryRepo) List(ctx context.Context) ([]*model.FileCategory, error) {
	query := `
		SELECT id, name, slug, created_at
		FROM file_categories
		ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка списка категорий: %w", err)
	}
	defer rows.Close()

	var cats []*model.FileCategory
	for rows.Next() {
		c := &model.FileCategory{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения категории: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}
