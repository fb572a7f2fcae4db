// internal/common/validation/schema_test.go
package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var answersSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"relationship", "known_years"},
	"properties": map[string]interface{}{
		"relationship": map[string]interface{}{"type": "string", "minLength": 1},
		"known_years":  map[string]interface{}{"type": "integer", "minimum": 0},
	},
}

func TestCompileSchema_Validate(t *testing.T) {
	s, err := CompileSchema(answersSchema)
	require.NoError(t, err)

	tests := []struct {
		name       string
		doc        map[string]interface{}
		valid      bool
		errorField string
	}{
		{"valid", map[string]interface{}{"relationship": "colleague", "known_years": 4}, true, ""},
		{"missing required", map[string]interface{}{"relationship": "colleague"}, false, "(root)"},
		{"wrong type", map[string]interface{}{"relationship": "colleague", "known_years": "four"}, false, "known_years"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Validate(tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid)
			if tt.errorField != "" {
				assert.True(t, res.HasErrors(tt.errorField), "errors: %v", res.GetErrorMessages())
			}
		})
	}
}

func TestCompileSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"object","required":["ok"]}`), 0o600))

	s, err := CompileSchemaFile(path)
	require.NoError(t, err)

	res, err := s.Validate(map[string]interface{}{})
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("jane.doe@example.org"))
	assert.False(t, ValidateEmail("jane.doe"))
	assert.False(t, ValidateEmail(""))
}
