// Пакет errors — единый формат ошибок HTTP API.
// Тело ответа: {"error": {"code": "...", "message": "..."}}.
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок API.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeArchiveNotReady  = "ARCHIVE_NOT_READY"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// APIError — ошибка API с HTTP-статусом.
type APIError struct {
	// Code — машиночитаемый код ошибки
	Code string `json:"code"`
	// Message — человекочитаемое описание
	Message string `json:"message"`
	// Status — HTTP-статус ответа, в тело не сериализуется
	Status int `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

// errorResponse — обёртка тела ответа.
type errorResponse struct {
	Error *APIError `json:"error"`
}

// Write сериализует ошибку в ResponseWriter.
func Write(w http.ResponseWriter, apiErr *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	json.NewEncoder(w).Encode(errorResponse{Error: apiErr})
}

// Validation — 400 Bad Request.
func Validation(message string) *APIError {
	return &APIError{Code: CodeValidation, Message: message, Status: http.StatusBadRequest}
}

// NotFound — 404 Not Found.
func NotFound(message string) *APIError {
	return &APIError{Code: CodeNotFound, Message: message, Status: http.StatusNotFound}
}

// ArchiveNotReady — 409 Conflict: архив ещё не готов к скачиванию.
func ArchiveNotReady(message string) *APIError {
	return &APIError{Code: CodeArchiveNotReady, Message: message, Status: http.StatusConflict}
}

// Unauthorized — 401 Unauthorized.
func Unauthorized(message string) *APIError {
	return &APIError{Code: CodeUnauthorized, Message: message, Status: http.StatusUnauthorized}
}

// StoreUnavailable — 503 Service Unavailable: document store недоступен.
func StoreUnavailable(message string) *APIError {
	return &APIError{Code: CodeStoreUnavailable, Message: message, Status: http.StatusServiceUnavailable}
}

// Internal — 500 Internal Server Error.
func Internal(message string) *APIError {
	return &APIError{Code: CodeInternal, Message: message, Status: http.StatusInternalServerError}
}
