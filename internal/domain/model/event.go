package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Канал уведомлений заявки: visa-applications.{id}. Канал приватный —
// подписка требует успешной авторизации владельца.
const channelPrefix = "visa-applications."

// EventName — имя терминального события в realtime-канале.
const EventName = "ingestion"

// ApplicationChannel возвращает имя канала для заявки.
func ApplicationChannel(applicationID int64) string {
	return channelPrefix + strconv.FormatInt(applicationID, 10)
}

// ParseApplicationChannel извлекает ID заявки из имени канала.
// Возвращает ошибку, если имя не соответствует формату visa-applications.{id}.
func ParseApplicationChannel(channel string) (int64, error) {
	raw, ok := strings.CutPrefix(channel, channelPrefix)
	if !ok {
		return 0, fmt.Errorf("неизвестный канал: %q", channel)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("некорректный ID заявки в канале %q", channel)
	}
	return id, nil
}

// ReasonCode — код терминальной ошибки приёма файла.
type ReasonCode string

// Коды терминальных ошибок. Каждый соответствует шагу алгоритма ingest,
// на котором обработка была прервана.
const (
	ReasonApplicationMissing   ReasonCode = "application_missing"
	ReasonTemporaryFileMissing ReasonCode = "temporary_file_missing"
	ReasonReadStreamFailed     ReasonCode = "read_stream_failed"
	ReasonWriteStreamFailed    ReasonCode = "write_stream_failed"
)

// TerminalEvent — закрытый tagged-вариант: либо Stored со снимком файла,
// либо Failed с кодом причины. Ровно одно событие публикуется на каждый
// принятый Descriptor; события не персистятся и не воспроизводятся.
type TerminalEvent struct {
	stored *FileResource
	reason ReasonCode
}

// StoredEvent создаёт событие успешного приёма.
func StoredEvent(file FileResource) TerminalEvent {
	return TerminalEvent{stored: &file}
}

// FailedEvent создаёт событие терминальной ошибки.
func FailedEvent(reason ReasonCode) TerminalEvent {
	return TerminalEvent{reason: reason}
}

// IsStored сообщает, является ли событие успешным.
func (e TerminalEvent) IsStored() bool {
	return e.stored != nil
}

// Reason возвращает код причины для Failed-события (пустой для Stored).
func (e TerminalEvent) Reason() ReasonCode {
	return e.reason
}

// storedPayload — wire-форма Stored-события.
type storedPayload struct {
	Status string       `json:"status"`
	File   FileResource `json:"file"`
}

// failedPayload — wire-форма Failed-события.
type failedPayload struct {
	Status string     `json:"status"`
	Reason ReasonCode `json:"reason"`
}

// Payload сериализует событие в wire-форму:
//
//	{"status":"stored","file":{...}} либо {"status":"failed","reason":"..."}
func (e TerminalEvent) Payload() ([]byte, error) {
	if e.stored != nil {
		return json.Marshal(storedPayload{Status: "stored", File: *e.stored})
	}
	return json.Marshal(failedPayload{Status: "failed", Reason: e.reason})
}
