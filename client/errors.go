package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is the structured form of a non-2xx backend response. Status
// carries the HTTP status code and Body the parsed response body (or the raw
// text when the body is not JSON).
type APIError struct {
	Status  int
	Body    any
	Message string
}

func newAPIError(status int, raw []byte) *APIError {
	e := &APIError{Status: status}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		e.Body = body
		for _, key := range []string{"error", "message", "detail"} {
			if msg, ok := body[key].(string); ok && msg != "" {
				e.Message = msg
				break
			}
		}
	} else {
		e.Body = strings.TrimSpace(string(raw))
	}

	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// AsAPIError unwraps err into an *APIError when possible.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Status == status
}
