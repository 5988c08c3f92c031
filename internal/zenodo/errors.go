package zenodo

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/zensync/internal/apperr"
)

// APIError is returned for every non-2xx response from the service.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	return fmt.Sprintf("zenodo: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, msg)
}

// Unwrap lets callers match any remote failure with apperr.ErrRemote.
func (e *APIError) Unwrap() error {
	return apperr.ErrRemote
}

// errorBody is the service's error envelope, e.g.
// {"status": 400, "message": "Validation error.", "errors": [{"field": ..., "message": ...}]}.
type errorBody struct {
	Message string `json:"message"`
	Errors  []struct {
		Field    string   `json:"field"`
		Message  string   `json:"message"`
		Messages []string `json:"messages"`
	} `json:"errors"`
}

func newAPIError(method, url string, status int, body []byte) *APIError {
	e := &APIError{Method: method, URL: url, StatusCode: status, Body: string(body)}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Message != "" {
		parts := []string{eb.Message}
		for _, fe := range eb.Errors {
			m := fe.Message
			if m == "" {
				m = strings.Join(fe.Messages, "; ")
			}
			if fe.Field != "" {
				m = fe.Field + ": " + m
			}
			parts = append(parts, m)
		}
		e.Message = strings.Join(parts, " ")
	}
	return e
}
