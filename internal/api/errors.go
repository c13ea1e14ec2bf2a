package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error is a non-2xx answer from the backend.
type Error struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsUnauthorized reports whether err is a backend 401.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

func hasStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Message returns the best user-facing text for err: the backend's own
// message when there is one, fallback otherwise.
func Message(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// parseError decodes the Django REST framework error shapes:
// {"detail": "..."}, {"error": "..."}, {"message": "..."} and
// {"field": ["msg", ...], "non_field_errors": [...]}.
func parseError(status int, body []byte) *Error {
	apiErr := &Error{Status: status}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		if len(apiErr.Message) > 200 || strings.HasPrefix(apiErr.Message, "<") {
			apiErr.Message = ""
		}
		return apiErr
	}

	for _, key := range []string{"detail", "error", "message"} {
		if raw, ok := obj[key]; ok {
			if msg := firstString(raw); msg != "" {
				apiErr.Message = msg
				return apiErr
			}
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	apiErr.Fields = make(map[string]string, len(keys))
	for _, k := range keys {
		msg := firstString(obj[k])
		if msg == "" {
			continue
		}
		apiErr.Fields[k] = msg
		if apiErr.Message != "" {
			continue
		}
		if k == "non_field_errors" {
			apiErr.Message = msg
		} else {
			apiErr.Message = k + ": " + msg
		}
	}
	return apiErr
}

func firstString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}
