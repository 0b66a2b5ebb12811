// Package handler provides HTTP request handlers.
package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/idxstock/stockapi/internal/handler/dto"
	"github.com/idxstock/stockapi/internal/middleware"
	"github.com/idxstock/stockapi/internal/response"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Handler serves the endpoints that have no dependencies.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// RootResponse describes the service and its route groups.
type RootResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// Root handles GET /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, RootResponse{
		Success: true,
		Message: "StockAPI Server is running",
		Version: Version,
		Endpoints: map[string]string{
			"auth":  "/auth",
			"api":   "/api/v1",
			"admin": "/admin",
		},
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	response.Error(w, http.StatusNotFound, response.CodeNotFound, "Endpoint tidak ditemukan")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	response.Error(w, http.StatusMethodNotAllowed, response.CodeMethodNotAllowed, "Method tidak diizinkan")
}

// decodeBody reads a JSON body into dst. An empty body leaves dst zeroed so
// required-field validation reports it. It writes the error response and
// returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := response.DecodeJSON(r, dst)
	if err == nil || errors.Is(err, response.ErrEmptyBody) {
		return true
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		response.Error(w, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, "Ukuran request terlalu besar")
		return false
	}
	response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Format request tidak valid")
	return false
}

// validateBody runs struct validation. Missing required fields are reported
// with missingMsg; other failures name the field.
func validateBody(w http.ResponseWriter, v any, missingMsg string) bool {
	err := dto.Validate(v)
	if err == nil {
		return true
	}

	var fe *dto.FieldError
	if errors.As(err, &fe) {
		if fe.Missing() {
			response.Error(w, http.StatusBadRequest, response.CodeMissingFields, missingMsg)
		} else {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidField, fmt.Sprintf("Field '%s' tidak valid", fe.Field))
		}
		return false
	}
	response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Format request tidak valid")
	return false
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// serverError logs err with request context and writes the generic 500.
func serverError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger.Error(msg,
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	)
	response.ServerError(w)
}
