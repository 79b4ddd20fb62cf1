package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"devspace/internal/domain"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusClientClosedRequest is recorded when the caller went away before
// the agent answered.
const StatusClientClosedRequest = 499

// StatusFor maps an error code onto an HTTP status.
func StatusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeNotFound, domain.CodeAgentNotFound:
		return http.StatusNotFound
	case domain.CodeDuplicate, domain.CodeAgentDuplicate:
		return http.StatusConflict
	case domain.CodeInvalidInput, domain.CodeInvalidConfig:
		return http.StatusBadRequest
	case domain.CodeUnknownAction:
		return http.StatusUnprocessableEntity
	case domain.CodeBackendFailure, domain.CodeAuthBackend:
		return http.StatusBadGateway
	case domain.CodeRateLimit:
		return http.StatusTooManyRequests
	case domain.CodeAuthInvalid:
		return http.StatusUnauthorized
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, msg string, code domain.ErrorCode) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: string(code)})
}

// writeError classifies err and writes it. Unclassified errors are logged and
// reported without their message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCodeOf(err)
	status := StatusFor(code)
	msg := err.Error()
	log := s.logger.With(requestAttrs(r)...)
	if status == http.StatusInternalServerError {
		log.Error("request failed", "error", err)
		msg = "internal server error"
	} else if status >= http.StatusInternalServerError {
		log.Warn("request failed", "code", code, "error", err)
	} else if code == domain.CodeCanceled {
		log.Debug("request canceled by client")
	}
	writeErrorCode(w, status, msg, code)
}

// requestAttrs identifies r in logs, including the authenticated user.
func requestAttrs(r *http.Request) []any {
	attrs := []any{"method", r.Method, "path", r.URL.Path}
	if sub, ok := SubjectFromContext(r.Context()); ok {
		attrs = append(attrs, "user", sub)
	}
	return attrs
}

// decodeJSON reads a single JSON document from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewDomainError("decodeJSON", domain.ErrInvalidInput, "request body is empty")
		}
		return domain.NewDomainError("decodeJSON", domain.ErrInvalidInput, err.Error())
	}
	return nil
}
