package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/paul-bouzian/saycal/internal/model"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string       `json:"error"`
	Code    int          `json:"code"`
	Message string       `json:"message,omitempty"`
	Reason  model.Reason `json:"reason,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    statusCode,
		Message: message,
	})
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

// WriteInternalError writes a 500 Internal Server Error response
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	var ve *model.VoiceError
	switch {
	case errors.As(err, &ve):
		return statusForReason(ve.Reason)
	case errors.Is(err, model.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func statusForReason(r model.Reason) int {
	switch r {
	case model.ReasonAudioMissing, model.ReasonEmptyAudio, model.ReasonCouldNotUnderstand:
		return http.StatusBadRequest
	case model.ReasonFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.ReasonQuotaExhausted, model.ReasonPremiumRequired:
		return http.StatusPaymentRequired
	case model.ReasonUnauthenticated:
		return http.StatusUnauthorized
	case model.ReasonTranscriptionFailed, model.ReasonAssistantFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteErr maps err to a status and a localized message. Voice failures
// carry their reason; internal details are logged, never returned.
func WriteErr(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	lang := Language(r.Header.Get("Accept-Language"))

	resp := ErrorResponse{Error: http.StatusText(status), Code: status}
	var ve *model.VoiceError
	switch {
	case errors.As(err, &ve):
		resp.Reason = ve.Reason
		resp.Message = Message(ve.Reason, lang)
	case status == http.StatusUnauthorized:
		resp.Reason = model.ReasonUnauthenticated
		resp.Message = Message(model.ReasonUnauthenticated, lang)
	case status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusConflict:
		resp.Message = err.Error()
	default:
		resp.Message = Message(model.ReasonInternal, lang)
	}
	if status >= 500 {
		log.Error().Stack().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	WriteJSON(w, status, resp)
}
