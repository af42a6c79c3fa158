package types

import "errors"

// Error codes surfaced in API error envelopes.
const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeNoTransitRoute  = "NO_TRANSIT_ROUTE"
	CodeValidationError = "VALIDATION_ERROR"
	CodeAPIError        = "API_ERROR"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNoPOIs       = errors.New("no places found")
	ErrNoRoute      = errors.New("no route found")
	ErrCityNotFound = errors.New("city not found")
)

// RecoveryOption tells the client how it can retry a failed request.
type RecoveryOption struct {
	Action  string   `json:"action"`
	Label   string   `json:"label"`
	Options []string `json:"options,omitempty"`
}

// APIError is the wire-level error payload inside a failed envelope.
type APIError struct {
	Code            string           `json:"code"`
	Message         string           `json:"message"`
	UserMessage     string           `json:"user_message"`
	RecoveryOptions []RecoveryOption `json:"recovery_options,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Warning flags partial data alongside an otherwise successful response.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const WarnPartialData = "PARTIAL_DATA"
