package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndNormalize_ValidQueries(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple select without semicolon",
			input:    "SELECT 1",
			expected: "SELECT 1",
		},
		{
			name:     "select with trailing semicolon and whitespace",
			input:    "SELECT 1;  ",
			expected: "SELECT 1",
		},
		{
			name:     "semicolon inside single quoted string",
			input:    "SELECT * FROM users WHERE name = 'test;test'",
			expected: "SELECT * FROM users WHERE name = 'test;test'",
		},
		{
			name:     "SQL standard escaped single quote",
			input:    "SELECT * FROM users WHERE name = 'O''Brien'",
			expected: "SELECT * FROM users WHERE name = 'O''Brien'",
		},
		{
			name:     "multi-line definition query",
			input:    "\n\t\tselect film.film_id, film.title\n\t\tfrom film\n\t\torder by film.film_id\n\t",
			expected: "select film.film_id, film.title from film order by film.film_id",
		},
		{
			name:     "whitespace inside literal preserved",
			input:    "select *  from film where title = 'A   B'",
			expected: "select * from film where title = 'A   B'",
		},
		{
			name:     "space before trailing semicolon",
			input:    "select 1 ;\n",
			expected: "select 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			require.NoError(t, result.Error)
			assert.Equal(t, tt.expected, result.NormalizedSQL)
		})
	}
}

func TestValidateAndNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "empty string", input: "", wantErr: ErrEmptyQuery},
		{name: "whitespace only", input: " \n\t ", wantErr: ErrEmptyQuery},
		{name: "two statements", input: "SELECT 1; SELECT 2", wantErr: ErrMultipleStatements},
		{name: "stacked delete", input: "select * from film; delete from film;", wantErr: ErrMultipleStatements},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			assert.ErrorIs(t, result.Error, tt.wantErr)
			assert.Empty(t, result.NormalizedSQL)
		})
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "", NormalizeWhitespace("   "))
	assert.Equal(t, "a b", NormalizeWhitespace("a\r\n\r\nb"))
	assert.Equal(t, `select "my  col" from t`, NormalizeWhitespace("select   \"my  col\"\tfrom t"))
}
