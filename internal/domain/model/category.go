package model

import "time"

// FileCategory — категория документа досье (паспорт, анкета, фото и т.д.).
type FileCategory struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary возвращает краткое представление категории для вложения
// в payload терминального события.
func (c *FileCategory) Summary() CategorySummary {
	return CategorySummary{
		ID:   c.ID,
		Name: c.Name,
		Slug: c.Slug,
	}
}

// CategorySummary — денормализованная сводка категории в событиях и ресурсах.
type CategorySummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}
