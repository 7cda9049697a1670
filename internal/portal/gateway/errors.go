package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
)

// APIError is a normalized backend rejection: the HTTP status, a machine
// code, the human message, and any field-level validation messages. Transport
// failures are never APIErrors; they surface as wrapped plain errors.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     map[string][]string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// FieldMessages flattens the field-level validation errors into
// "field: message" lines, sorted by field for stable presentation.
func (e *APIError) FieldMessages() []string {
	if len(e.Fields) == 0 {
		return nil
	}

	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var out []string
	for _, field := range fields {
		for _, msg := range e.Fields[field] {
			out = append(out, fmt.Sprintf("%s: %s", field, msg))
		}
	}
	return out
}

// errorEnvelope covers the two error shapes the backend emits: the standard
// `{success:false, message, errors:{field:[...]}}` body and the older
// `{error, error_description}` body still used by a few endpoints.
type errorEnvelope struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`

	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// parseErrorResponse normalizes a non-2xx body into an *APIError. Unparseable
// bodies fall back to a generic error derived from the status code, so the
// caller always gets something presentable.
func parseErrorResponse(status int, body []byte) *APIError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		switch {
		case env.Message != "" || len(env.Errors) > 0:
			return &APIError{
				StatusCode: status,
				Code:       env.Error,
				Message:    env.Message,
				Fields:     env.Errors,
			}
		case env.Error != "":
			return &APIError{
				StatusCode: status,
				Code:       env.Error,
				Message:    env.ErrorDescription,
			}
		}
	}

	return &APIError{
		StatusCode: status,
		Code:       "server_error",
		Message:    fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)),
	}
}
