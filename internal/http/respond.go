package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Clark-Hu/rate-the-washroom/internal/apperr"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Error().Err(err).Msg("failed to encode response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.As(err, &maxBytesError):
		s.respondError(w, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "Request body too large")
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body cannot be empty")
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

// respondServiceError maps an apperr kind onto a status. invalidStatus lets
// body-validation failures answer 422 while path and query failures answer 400.
func (s *Server) respondServiceError(w http.ResponseWriter, err error, invalidStatus int) {
	var appErr *apperr.Error
	message := "Internal server error"
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput:
		code := "BAD_REQUEST"
		if invalidStatus == http.StatusUnprocessableEntity {
			code = "VALIDATION_ERROR"
		}
		s.respondError(w, invalidStatus, code, message)
	case apperr.KindNotFound:
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", message)
	case apperr.KindForbidden:
		s.respondError(w, http.StatusForbidden, "FORBIDDEN", message)
	case apperr.KindConflict:
		s.respondError(w, http.StatusConflict, "CONFLICT", message)
	case apperr.KindUnavailable:
		w.Header().Set("Retry-After", "1")
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Service temporarily unavailable, retry later")
	default:
		s.logger.Error().Err(err).Msg("unhandled service error")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

func (s *Server) verifyBearer(header string) bool {
	token, ok := bearerToken(header)
	return ok && s.cfg.AdminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) == 1
}

func normalizeStringPtr(ptr *string) *string {
	if ptr == nil {
		return nil
	}
	val := strings.TrimSpace(*ptr)
	if val == "" {
		return nil
	}
	return &val
}
