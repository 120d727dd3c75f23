package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

// Envelope is the JSON body shape of every /api response.
type Envelope struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
	Data       any    `json:"data,omitempty"`
	Pagination any    `json:"pagination,omitempty"`
	Filters    any    `json:"filters,omitempty"`
	Errors     any    `json:"errors,omitempty"`
	Conflicts  any    `json:"conflicts,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func OK(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

func Fail(w http.ResponseWriter, status int, message string) {
	FailWith(w, status, Envelope{Message: message})
}

// FailWith writes a failure envelope, forcing success=false and a timestamp.
func FailWith(w http.ResponseWriter, status int, e Envelope) {
	e.Success = false
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	WriteJSON(w, status, e)
}

func ValidationFailed(w http.ResponseWriter, errs []FieldError) {
	FailWith(w, http.StatusBadRequest, Envelope{Message: "Validation failed", Code: "validation_failed", Errors: errs})
}
