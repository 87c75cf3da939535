package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
)

// maxRequestBodySize bounds JSON request bodies (64 KiB).
const maxRequestBodySize = 64 << 10

type envelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data})
}

// statusFor maps a domain error code to its HTTP status.
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodePermissionDenied:
		return http.StatusForbidden
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to its status. Only domain.Error messages reach the
// client; anything else is logged and reported as internal.
func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	code := domain.CodeOf(err)
	message := "an unexpected error occurred"

	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
	} else if code != domain.CodeInternal {
		message = err.Error()
	}
	if code == domain.CodeInternal {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	writeJSON(w, statusFor(code), errorEnvelope{Error: errorDetail{Code: string(code), Message: message}})
}

// decodeJSON reads a single JSON object into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytes):
			return domain.NewError(domain.CodeValidation, "request body too large", err)
		case errors.Is(err, io.EOF):
			return domain.NewError(domain.CodeValidation, "request body must not be empty", err)
		default:
			return domain.NewError(domain.CodeValidation, "invalid JSON in request body", err)
		}
	}
	if dec.More() {
		return domain.NewError(domain.CodeValidation, "request body must contain a single JSON object", nil)
	}
	return nil
}
