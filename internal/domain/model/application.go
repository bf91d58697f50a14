// Пакет model — доменные модели сервиса Visaflow.
package model

import "time"

// Статусы визовой заявки.
const (
	ApplicationStatusDraft     = "draft"
	ApplicationStatusSubmitted = "submitted"
	ApplicationStatusApproved  = "approved"
	ApplicationStatusRejected  = "rejected"
)

// VisaApplication — визовая заявка (владеющий ресурс для файлов).
type VisaApplication struct {
	// ID — первичный ключ
	ID int64 `json:"id"`
	// ApplicantID — идентификатор заявителя (владельца)
	ApplicantID int64 `json:"applicantId"`
	// Country — код страны назначения (ISO 3166-1 alpha-2)
	Country string `json:"country"`
	// Status — статус заявки (draft, submitted, approved, rejected)
	Status string `json:"status"`
	// SubmittedAt — момент подачи заявки (nil для draft)
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Summary возвращает краткое представление заявки для вложения
// в payload терминального события.
func (a *VisaApplication) Summary() ApplicationSummary {
	return ApplicationSummary{
		ID:      a.ID,
		Country: a.Country,
		Status:  a.Status,
	}
}

// ApplicationSummary — денормализованная сводка заявки в событиях и ресурсах.
type ApplicationSummary struct {
	ID      int64  `json:"id"`
	Country string `json:"country"`
	Status  string `json:"status"`
}
