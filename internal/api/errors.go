package api

import (
	"fmt"
	"sort"
	"strings"
)

// APIError is a structured error returned by the HTTP API.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
	Fields    map[string][]string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	message := e.Message
	if detail := e.fieldSummary(); detail != "" {
		if message == "" {
			message = detail
		} else {
			message = message + " (" + detail + ")"
		}
	}
	if e.Code != "" && message != "" {
		return fmt.Sprintf("%s: %s", e.Code, message)
	}
	if message != "" {
		return message
	}
	if e.Status > 0 {
		return fmt.Sprintf("api error: %d", e.Status)
	}
	return "api error"
}

func (e *APIError) fieldSummary() string {
	if len(e.Fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+strings.Join(e.Fields[key], "; "))
	}
	return strings.Join(parts, ", ")
}
