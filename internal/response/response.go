// Package response writes the uniform JSON envelope used by every endpoint.
package response

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
)

// Error codes.
const (
	CodeMissingFields      = "MISSING_FIELDS"
	CodeInvalidPassword    = "INVALID_PASSWORD"
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeMissingToken       = "MISSING_TOKEN"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeForbidden          = "FORBIDDEN"
	CodeMissingAPIKey      = "MISSING_API_KEY"
	CodeInvalidAPIKey      = "INVALID_API_KEY"
	CodeQuotaExceeded      = "QUOTA_EXCEEDED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeMissingQuery       = "MISSING_QUERY"
	CodeInvalidQuery       = "INVALID_QUERY"
	CodeMissingParameters  = "MISSING_PARAMETERS"
	CodeInvalidDate        = "INVALID_DATE"
	CodeInvalidInterval    = "INVALID_INTERVAL"
	CodeInvalidField       = "INVALID_FIELD"
	CodeStockNotFound      = "STOCK_NOT_FOUND"
	CodeStockExists        = "STOCK_EXISTS"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeServerError        = "SERVER_ERROR"
)

// MsgServerError is the client-facing message for unhandled failures.
const MsgServerError = "Terjadi kesalahan server"

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Meta    any        `json:"meta,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a success envelope.
func OK(w http.ResponseWriter, status int, message string, data, meta any) {
	JSON(w, status, Envelope{Success: true, Message: message, Data: data, Meta: meta})
}

// Error writes a failure envelope.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, Envelope{Error: &ErrorBody{Code: code, Message: message}})
}

// ServerError writes the generic 500 envelope.
func ServerError(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, CodeServerError, MsgServerError)
}

// ErrEmptyBody is returned by DecodeJSON when the request has no body.
var ErrEmptyBody = errors.New("request body is empty")

// DecodeJSON decodes a single JSON object from r into dst. Unknown fields
// and trailing data are rejected.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("decode body: %w", err)
	}
	if dec.More() {
		return errors.New("decode body: unexpected data after JSON object")
	}
	return nil
}
