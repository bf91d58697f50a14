// Пакет handlers — HTTP-обработчики API Visaflow.
// respond.go — общие помощники ответов и разбора параметров пути.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// dataBody — единый envelope успешных ответов: {"data": ...}.
type dataBody struct {
	Data any `json:"data"`
}

// writeData записывает успешный ответ в envelope {"data": ...}.
func writeData(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(dataBody{Data: payload})
}

// messageBody — тело ответа с человекочитаемым сообщением.
type messageBody struct {
	Message string `json:"message"`
}

// writeMessage записывает ответ {"data":{"message": ...}}.
func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeData(w, statusCode, messageBody{Message: message})
}

// pathID извлекает числовой параметр пути chi. Возвращает false при мусоре.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
