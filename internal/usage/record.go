// Package usage records API-key calls to the api_usage audit table through a
// Redis stream, keeping the database write off the request path.
package usage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"

	"github.com/idxstock/stockapi/internal/model"
)

// maxEndpointLen bounds stored request paths.
const maxEndpointLen = 512

var (
	errMissingID     = errors.New("missing record id")
	errMissingUserID = errors.New("missing user id")
	errBadMethod     = errors.New("invalid http method")
	errBadStatus     = errors.New("invalid status code")
	errBadTimestamp  = errors.New("invalid timestamp")
)

// Payload is the compact stream encoding of an APIUsage record.
type Payload struct {
	ID         string `json:"id"`
	UserID     string `json:"uid"`
	Endpoint   string `json:"ep"`
	Method     string `json:"m"`
	StatusCode int    `json:"s"`
	Timestamp  int64  `json:"t"` // Unix milliseconds
}

// NewPayload builds a payload for a completed request. The ID is assigned
// here so stream redelivery inserts the row at most once.
func NewPayload(userID, endpoint, method string, status int, at time.Time) Payload {
	if len(endpoint) > maxEndpointLen {
		endpoint = endpoint[:maxEndpointLen]
	}
	return Payload{
		ID:         ulid.Make().String(),
		UserID:     userID,
		Endpoint:   endpoint,
		Method:     strings.ToUpper(method),
		StatusCode: status,
		Timestamp:  at.UnixMilli(),
	}
}

// Validate checks the payload before it is persisted.
func (p Payload) Validate() error {
	switch {
	case p.ID == "":
		return errMissingID
	case p.UserID == "":
		return errMissingUserID
	case p.Method == "" || len(p.Method) > 10:
		return errBadMethod
	case p.StatusCode < 100 || p.StatusCode > 599:
		return errBadStatus
	case p.Timestamp <= 0:
		return errBadTimestamp
	}
	return nil
}

// Record converts the payload to its table row.
func (p Payload) Record() *model.APIUsage {
	return &model.APIUsage{
		ID:         p.ID,
		UserID:     p.UserID,
		Endpoint:   p.Endpoint,
		Method:     p.Method,
		StatusCode: p.StatusCode,
		Timestamp:  time.UnixMilli(p.Timestamp).UTC(),
	}
}

// Encode serializes the payload.
func (p Payload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal usage payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload parses and validates a serialized payload.
func DecodePayload(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, fmt.Errorf("unmarshal usage payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}
