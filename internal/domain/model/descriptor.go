package model

// Descriptor — инертное сообщение очереди, описывающее одну задачу
// приёма файла. Никакого поведения не несёт: воркер ingest интерпретирует
// его и выполняет перенос temp → durable.
type Descriptor struct {
	// VisaApplicationID — владеющая заявка
	VisaApplicationID int64 `json:"ownerResourceId"`
	// ApplicantID — пользователь, инициировавший загрузку
	ApplicantID int64 `json:"uploaderId"`
	// FileCategoryID — категория документа
	FileCategoryID int64 `json:"categoryId"`
	// TemporaryStore — имя временного хранилища
	TemporaryStore string `json:"temporaryStore"`
	// TemporaryPath — путь файла во временном хранилище
	TemporaryPath string `json:"temporaryPath"`
	// OriginalName — имя файла, заданное клиентом
	OriginalName string `json:"originalName"`
	// MimeType — заявленный MIME-тип
	MimeType string `json:"mimeType"`
	// SizeBytes — заявленный размер в байтах
	SizeBytes int64 `json:"sizeBytes"`
}
