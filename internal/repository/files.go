package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/visaflow/visaflow/internal/domain/model"
)

// FileRepository — интерфейс CRUD для таблицы visa_applicant_files.
type FileRepository interface {
	// Create создаёт запись файла. При дубликате path возвращает ErrConflict.
	Create(ctx context.Context, f *model.VisaApplicantFile) error
	// GetByID возвращает файл по идентификатору.
	GetByID(ctx context.Context, id int64) (*model.VisaApplicantFile, error)
	// GetByPath возвращает файл по пути в постоянном хранилище.
	GetByPath(ctx context.Context, path string) (*model.VisaApplicantFile, error)
	// ListByApplication возвращает файлы заявки, новые первыми.
	ListByApplication(ctx context.Context, applicationID int64) ([]*model.VisaApplicantFile, error)
	// Delete удаляет запись файла.
	Delete(ctx context.Context, id int64) error
}

// fileRepo — реализация FileRepository.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов заявителей.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

func (r *fileRepo) Create(ctx context.Context, f *model.VisaApplicantFile) error {
	query := `
		INSERT INTO visa_applicant_files (visa_application_id, applicant_id, file_category_id,
			original_name, stored_name, mime_type, size_bytes, path, store)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		f.VisaApplicationID, f.ApplicantID, f.FileCategoryID,
		f.OriginalName, f.StoredName, f.MimeType, f.SizeBytes, f.Path, f.Store,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл с таким путём уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка регистрации файла: %w", err)
	}
	return nil
}

func (r *fileRepo) GetByID(ctx context.Context, id int64) (*model.VisaApplicantFile, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *fileRepo) GetByPath(ctx context.Context, path string) (*model.VisaApplicantFile, error) {
	return r.getOne(ctx, `WHERE path = $1`, path)
}

func (r *fileRepo) getOne(ctx context.Context, where string, arg any) (*model.VisaApplicantFile, error) {
	query := `
		SELECT id, visa_application_id, applicant_id, file_category_id,
			original_name, stored_name, mime_type, size_bytes, path, store, created_at
		FROM visa_applicant_files ` + where

	f := &model.VisaApplicantFile{}
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&f.ID, &f.VisaApplicationID, &f.ApplicantID, &f.FileCategoryID,
		&f.OriginalName, &f.StoredName, &f.MimeType, &f.SizeBytes,
		&f.Path, &f.Store, &f.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

func (r *fileRepo) ListByApplication(ctx context.Context, applicationID int64) ([]*model.VisaApplicantFile, error) {
	query := `
		SELECT id, visa_application_id, applicant_id, file_category_id,
			original_name, stored_name, mime_type, size_bytes, path, store, created_at
		FROM visa_applicant_files
		WHERE visa_application_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, applicationID)
	if err != nil {
		return nil, fmt.Errorf("ошибка списка файлов: %w", err)
	}
	defer rows.Close()

	var files []*model.VisaApplicantFile
	for rows.Next() {
		f := &model.VisaApplicantFile{}
		if err := rows.Scan(
			&f.ID, &f.VisaApplicationID, &f.ApplicantID, &f.FileCategoryID,
			&f.OriginalName, &f.StoredName, &f.MimeType, &f.SizeBytes,
			&f.Path, &f.Store, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения файла: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *fileRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM visa_applicant_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
