package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewSchema = `{
	"type": "object",
	"required": ["businessId", "action"],
	"properties": {
		"businessId": {"type": "string", "minLength": 1},
		"action": {"type": "string", "enum": ["approve", "reject"]}
	}
}`

func TestSchema_ValidateJSON(t *testing.T) {
	s := MustCompile(reviewSchema)

	tests := []struct {
		name    string
		doc     string
		wantErr bool
		field   string
	}{
		{"valid", `{"businessId":"biz-1","action":"approve"}`, false, ""},
		{"missing action", `{"businessId":"biz-1"}`, true, "(root)"},
		{"bad enum", `{"businessId":"biz-1","action":"delete"}`, true, "action"},
		{"empty id", `{"businessId":"","action":"reject"}`, true, "businessId"},
		{"malformed", `{"businessId":`, true, "(root)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateJSON(tt.doc)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))

			var verr *Error
			require.True(t, errors.As(err, &verr))
			require.NotEmpty(t, verr.Fields)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}
}

func TestSchema_ValidateGoValue(t *testing.T) {
	s := MustCompile(reviewSchema)

	assert.NoError(t, s.Validate(map[string]interface{}{"businessId": "b", "action": "reject"}))
	assert.Error(t, s.Validate(map[string]interface{}{"businessId": 7, "action": "reject"}))
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile(`{"type": 12}`)
	assert.Error(t, err)
	assert.Panics(t, func() { MustCompile(`not json`) })
}
