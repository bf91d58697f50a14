package model

import "time"

// VisaApplicantFile — метаданные успешно принятого файла досье.
// Запись создаётся воркером ingest строго ПОСЛЕ успешной записи байтов
// в постоянное хранилище; промежуточных состояний ("pending") не существует.
type VisaApplicantFile struct {
	// ID — первичный ключ
	ID int64
	// VisaApplicationID — владеющая заявка
	VisaApplicationID int64
	// ApplicantID — пользователь, загрузивший файл
	ApplicantID int64
	// FileCategoryID — категория документа
	FileCategoryID int64
	// OriginalName — имя файла, заданное клиентом
	OriginalName string
	// StoredName — сгенерированное имя файла в хранилище
	StoredName string
	// MimeType — заявленный MIME-тип
	MimeType string
	// SizeBytes — размер файла в байтах
	SizeBytes int64
	// Path — путь в постоянном хранилище
	// (visa-applications/{id}/files/{stored_name})
	Path string
	// Store — имя постоянного хранилища
	Store string
	// CreatedAt — момент создания записи
	CreatedAt time.Time
}

// FileResource — wire-представление файла для API и терминальных событий.
// Сводки заявки и категории денормализованы для удобства клиента.
type FileResource struct {
	ID           int64              `json:"id"`
	Application  ApplicationSummary `json:"owningResource"`
	OriginalName string             `json:"originalName"`
	StoredName   string             `json:"storedName"`
	MimeType     string             `json:"mimeType"`
	SizeBytes    int64              `json:"sizeBytes"`
	Path         string             `json:"path"`
	Store        string             `json:"store"`
	Category     CategorySummary    `json:"category"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// Resource собирает wire-представление файла из записи и сводок
// заявки и категории.
func (f *VisaApplicantFile) Resource(app ApplicationSummary, cat CategorySummary) FileResource {
	return FileResource{
		ID:           f.ID,
		Application:  app,
		OriginalName: f.OriginalName,
		StoredName:   f.StoredName,
		MimeType:     f.MimeType,
		SizeBytes:    f.SizeBytes,
		Path:         f.Path,
		Store:        f.Store,
		Category:     cat,
		CreatedAt:    f.CreatedAt,
	}
}
