package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/resource-engine/pkg/models"
)

func TestCheckParameterForInjection(t *testing.T) {
	tests := []struct {
		name            string
		value           any
		expectInjection bool
	}{
		{name: "clean string value", value: "12345"},
		{name: "clean date string", value: "2024-01-15"},
		{name: "clean search term", value: "laptop computers"},
		{name: "legitimate apostrophe", value: "O'Brien"},
		{name: "integer value", value: 100},
		{name: "boolean value", value: true},
		{name: "nil value", value: nil},
		{name: "empty string", value: ""},
		{name: "classic quote injection", value: "' OR '1'='1", expectInjection: true},
		{name: "drop table injection", value: "'; DROP TABLE users--", expectInjection: true},
		{name: "union select injection", value: "1 UNION SELECT * FROM passwords", expectInjection: true},
		{name: "comment injection", value: "admin'--", expectInjection: true},
		{name: "stacked queries", value: "admin'; DELETE FROM logs; --", expectInjection: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckParameterForInjection("title", tt.value)
			if !tt.expectInjection {
				assert.Nil(t, result)
				return
			}
			require.NotNil(t, result)
			assert.True(t, result.IsSQLi)
			assert.Equal(t, "title", result.ParamName)
			assert.Equal(t, tt.value, result.ParamValue)
			assert.NotEmpty(t, result.Fingerprint)
		})
	}
}

func TestCheckAllParameters(t *testing.T) {
	params := []models.NameValuePair{
		{Name: "film_id", Value: 7},
		{Name: "title", Value: "ACADEMY DINOSAUR"},
		{Name: "description", Value: "' OR 1=1--"},
		{Name: "rating", Value: []any{"PG", "admin'--"}, Operator: models.OperatorIn},
	}

	results := CheckAllParameters(params)
	require.Len(t, results, 2)
	assert.Equal(t, "description", results[0].ParamName)
	assert.Equal(t, "rating", results[1].ParamName)

	assert.Nil(t, CheckAllParameters(params[:2]))
	assert.Nil(t, CheckAllParameters(nil))
}

func TestInjectionError_Message(t *testing.T) {
	err := &InjectionError{Results: []*InjectionCheckResult{{ParamName: "title", Fingerprint: "s&1c", IsSQLi: true}}}
	assert.Contains(t, err.Error(), `"title"`)
	assert.Contains(t, err.Error(), "s&1c")
}
