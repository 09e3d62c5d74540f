package server

import (
	"errors"
	"net/http"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/config"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIError is a standardized error response structure.
type APIError struct {
	Message string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

const (
	ErrCodeViewNotFound    = "VIEW_NOT_FOUND"
	ErrCodeInvalidQuery    = "INVALID_QUERY"
	ErrCodeBackendError    = "BACKEND_ERROR"
	ErrCodeConfigError     = "CONFIG_ERROR"
	ErrCodeValidationError = "VALIDATION_ERROR"
)

var errUnknownBackend = errors.New("unknown backend")

// writeJSON writes a JSON response with a given status code.
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to write json response", "err", err)
	}
}

// writeError writes a standardized APIError response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	s.writeJSON(w, statusCode, APIError{
		Code:    code,
		Message: message,
	})
}

// writeFailure maps an engine error to its status and code. Backend
// failures keep the failing operation in the details.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var (
		schemaErr *backend.SchemaError
		queryErr  *backend.QueryError
		countErr  *backend.CountError
		streamErr *backend.StreamError
	)
	switch {
	case errors.Is(err, config.ErrViewNotFound):
		s.writeError(w, http.StatusNotFound, ErrCodeViewNotFound, err.Error())
	case errors.Is(err, config.ErrNoTarget), errors.Is(err, backend.ErrUnknownStream):
		s.writeError(w, http.StatusBadRequest, ErrCodeValidationError, err.Error())
	case errors.Is(err, errUnknownBackend):
		s.writeError(w, http.StatusBadRequest, ErrCodeConfigError, err.Error())
	case errors.As(err, &schemaErr):
		s.backendFailure(w, "schema", err)
	case errors.As(err, &queryErr):
		s.backendFailure(w, "query", err)
	case errors.As(err, &countErr):
		s.backendFailure(w, "count", err)
	case errors.As(err, &streamErr):
		s.backendFailure(w, "stream", err)
	default:
		s.writeError(w, http.StatusBadRequest, ErrCodeInvalidQuery, err.Error())
	}
}

func (s *Server) backendFailure(w http.ResponseWriter, op string, err error) {
	s.logger.Error("backend request failed", "op", op, "err", err)
	s.writeJSON(w, http.StatusBadGateway, APIError{
		Code:    ErrCodeBackendError,
		Message: err.Error(),
		Details: map[string]interface{}{"operation": op},
	})
}
