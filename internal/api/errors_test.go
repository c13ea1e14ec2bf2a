package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail", `{"detail":"Not found."}`, "Not found."},
		{"error", `{"error":"post_id parameter is required"}`, "post_id parameter is required"},
		{"non field", `{"non_field_errors":["Bad combination"]}`, "Bad combination"},
		{"first field sorted", `{"title":["Too long"],"category_id":["Required"]}`, "category_id: Required"},
		{"plain text", `Service Unavailable`, "Service Unavailable"},
		{"html page", `<html>oops</html>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseError(400, []byte(tt.body)).Message)
		})
	}
}

func TestMessage_UnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("create comment: %w", &Error{Status: 403, Message: "Forbidden"})
	assert.Equal(t, "Forbidden", Message(err, "generic"))
	assert.Equal(t, "generic", Message(errors.New("boom"), "generic"))
	assert.Equal(t, "generic", Message(&Error{Status: 500}, "generic"))
	assert.False(t, IsNotFound(err))
}
