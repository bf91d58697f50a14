package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/visaflow/visaflow/internal/domain/model"
)

// ApplicationRepository — интерфейс CRUD для таблицы visa_applications.
type ApplicationRepository interface {
	// Create создаёт новую визовую заявку.
	Create(ctx context.Context, a *model.VisaApplication) error
	// GetByID возвращает заявку по идентификатору.
	GetByID(ctx context.Context, id int64) (*model.VisaApplication, error)
	// ListByApplicant возвращает заявки заявителя, новые первыми.
	ListByApplicant(ctx context.Context, applicantID int64) ([]*model.VisaApplication, error)
	// Update обновляет страну, статус и момент подачи заявки.
	Update(ctx context.Context, a *model.VisaApplication) error
	// Delete удаляет заявку (каскадно удаляются записи файлов).
	Delete(ctx context.Context, id int64) error
}

// applicationRepo — реализация ApplicationRepository.
type applicationRepo struct {
	db DBTX
}

// NewApplicationRepository создаёт репозиторий визовых заявок.
func NewApplicationRepository(db DBTX) ApplicationRepository {
	return &applicationRepo{db: db}
}

func (r *applicationRepo) Create(ctx context.Context, a *model.VisaApplication) error {
	query := `
		INSERT INTO visa_applications (applicant_id, country, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, a.ApplicantID, a.Country, a.Status).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания заявки: %w", err)
	}
	return nil
}

func (r *applicationRepo) GetByID(ctx context.Context, id int64) (*model.VisaApplication, error) {
	query := `
		SELECT id, applicant_id, country, status, submitted_at, created_at, updated_at
		FROM visa_applications
		WHERE id = $1`

	a := &model.VisaApplication{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.ApplicantID, &a.Country, &a.Status,
		&a.SubmittedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения заявки: %w", err)
	}
	return a, nil
}

func (r *applicationRepo) ListByApplicant(ctx context.Context, applicantID int64) ([]*model.VisaApplication, error) {
	query := `
		SELECT id, applicant_id, country, status, submitted_at, created_at, updated_at
		FROM visa_applications
		WHERE applicant_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, applicantID)
	if err != nil {
		return nil, fmt.Errorf("ошибка списка заявок: %w", err)
	}
	defer rows.Close()

	var apps []*model.VisaApplication
	for rows.Next() {
		a := &model.VisaApplication{}
		if err := rows.Scan(
			&a.ID, &a.ApplicantID, &a.Country, &a.Status,
			&a.SubmittedAt, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения заявки: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (r *applicationRepo) Update(ctx context.Context, a *model.VisaApplication) error {
	query := `
		UPDATE visa_applications
		SET country = $2, status = $3, submitted_at = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query, a.ID, a.Country, a.Status, a.SubmittedAt).
		Scan(&a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления заявки: %w", err)
	}
	return nil
}

func (r *applicationRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM visa_applications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления заявки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
