package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/quizboard/core"
)

var ErrUnauthorized = errors.New("not authenticated")

const unexpectedErrorMessage = "An unexpected error occurred"

// ValidationDetail is one entry of the backend's structured validation error.
type ValidationDetail struct {
	Loc  []interface{} `json:"loc"`
	Msg  string        `json:"msg"`
	Type string        `json:"type"`
}

// APIError is a non-2xx backend response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string             // plain detail, if any
	Fields     []ValidationDetail // structured validation errors, if any
}

func newAPIError(method, path string, code int, body []byte) *APIError {
	apiErr := &APIError{Method: method, Path: path, StatusCode: code}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return apiErr
	}
	raw := bytes.TrimSpace(envelope.Detail)
	switch {
	case len(raw) > 0 && raw[0] == '[':
		_ = json.Unmarshal(raw, &apiErr.Fields)
	case len(raw) > 0 && raw[0] == '"':
		_ = json.Unmarshal(raw, &apiErr.Detail)
	}
	return apiErr
}

// Error mimics the transport's wording when the backend gave no detail.
func (e *APIError) Error() string {
	return fmt.Sprintf("Request failed with status code %d", e.StatusCode)
}

// Is makes errors.Is(err, ErrUnauthorized) hold for 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Message is the human readable form of the backend's error envelope.
func (e *APIError) Message() string {
	if len(e.Fields) > 0 {
		msgs := make([]string, 0, len(e.Fields))
		for _, fld := range e.Fields {
			msgs = append(msgs, fld.Msg)
		}
		return strings.Join(msgs, ", ")
	}
	if e.Detail != "" {
		return e.Detail
	}
	return e.Error()
}

// TransportError is a failure to reach the backend or to read its answer.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err comes from a 401 response.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// ErrorMessage extracts a message fit for display: joined field errors, the backend's
// detail, the transport error text, or form validation messages.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return tErr.Error()
	}
	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}
	return unexpectedErrorMessage
}
