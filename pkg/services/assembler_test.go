package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/resource-engine/pkg/testhelpers"
)

// sliceCursor serves rows from memory.
type sliceCursor struct {
	cols []string
	rows [][]any
	pos  int
	err  error
}

func (c *sliceCursor) Columns() ([]string, error) { return c.cols, nil }

func (c *sliceCursor) Next() bool {
	if c.pos >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Scan(dest ...any) error {
	row := c.rows[c.pos-1]
	for i := range dest {
		*(dest[i].(*any)) = row[i]
	}
	return nil
}

func (c *sliceCursor) Err() error { return c.err }

var languageFilmColumns = []string{"language_id", "lang_name", "film_id", "title", "year", "stars"}

func TestAssembler_Flat(t *testing.T) {
	meta := testhelpers.MustMetaData(t, testhelpers.FilmDefinition())
	cur := &sliceCursor{
		cols: []string{"film_id", "title", "year", "stars"},
		rows: [][]any{
			{int64(1), "ACADEMY DINOSAUR", int64(2006), int64(4)},
			{int64(2), "ACE GOLDFINGER", int64(2006), nil},
		},
	}

	records, err := NewAssembler(meta).Assemble(cur)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, map[string]any{
		"film_id": int64(1), "title": "ACADEMY DINOSAUR", "year": int64(2006), "stars": int64(4),
	}, records[0])
	assert.Nil(t, records[1]["stars"])
	assert.Contains(t, records[1], "stars")
	assert.NotContains(t, records[0], "language_id", "nonqueried foreign keys are not emitted")
}

func TestAssembler_FlatEmpty(t *testing.T) {
	meta := testhelpers.MustMetaData(t, testhelpers.FilmDefinition())

	records, err := NewAssembler(meta).Assemble(&sliceCursor{cols: []string{"film_id"}})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestAssembler_Hierarchical(t *testing.T) {
	meta := testhelpers.MustMetaData(t, testhelpers.LanguageFilmsDefinition())
	cur := &sliceCursor{
		cols: languageFilmColumns,
		rows: [][]any{
			{int64(1), "English", int64(1), "ACADEMY DINOSAUR", int64(2006), int64(4)},
			{int64(1), "English", int64(2), "ACE GOLDFINGER", int64(2006), nil},
			{int64(2), "Italian", int64(3), "ADAPTATION HOLES", int64(2006), nil},
			{int64(3), "Japanese", nil, nil, nil, nil},
		},
	}

	records, err := NewAssembler(meta).Assemble(cur)
	require.NoError(t, err)
	require.Len(t, records, 3)

	english := records[0]
	assert.Equal(t, int64(1), english["language_id"])
	assert.Equal(t, "English", english["lang_name"])
	films := english["films"].([]map[string]any)
	require.Len(t, films, 2)
	assert.Equal(t, map[string]any{
		"film_id": int64(1), "title": "ACADEMY DINOSAUR", "year": int64(2006), "stars": int64(4),
	}, films[0])
	assert.Equal(t, int64(2), films[1]["film_id"])

	assert.Len(t, records[1]["films"], 1)

	japanese := records[2]
	assert.Equal(t, "Japanese", japanese["lang_name"])
	require.Contains(t, japanese, "films")
	assert.Empty(t, japanese["films"], "a null child key yields no child record")
	assert.NotNil(t, japanese["films"])
}

func TestAssembler_HierarchicalKeepsRowOrder(t *testing.T) {
	meta := testhelpers.MustMetaData(t, testhelpers.LanguageFilmsDefinition())
	cur := &sliceCursor{
		cols: languageFilmColumns,
		rows: [][]any{
			{int64(2), "Italian", int64(3), "ADAPTATION HOLES", int64(2006), nil},
			{int64(1), "English", int64(1), "ACADEMY DINOSAUR", int64(2006), int64(4)},
			{int64(2), "Italian", int64(5), "AFRICAN EGG", int64(2006), nil},
		},
	}

	records, err := NewAssembler(meta).Assemble(cur)
	require.NoError(t, err)

	// Non-contiguous rows of a parent start a new record rather than being merged.
	require.Len(t, records, 3)
	assert.Equal(t, int64(2), records[0]["language_id"])
	assert.Equal(t, int64(1), records[1]["language_id"])
	assert.Equal(t, int64(2), records[2]["language_id"])
	assert.Len(t, records[2]["films"], 1)
}

func TestAssembler_HierarchicalKeyComparesTypedValues(t *testing.T) {
	meta := testhelpers.MustMetaData(t, testhelpers.LanguageFilmsDefinition())
	cur := &sliceCursor{
		cols: languageFilmColumns,
		rows: [][]any{
			{int64(1), "English", int64(1), "ACADEMY DINOSAUR", int64(2006), nil},
			{"1", "English", int64(2), "ACE GOLDFINGER", int64(2006), nil},
			{nil, "Unknown", int64(3), "ADAPTATION HOLES", int64(2006), nil},
			{"<nil>", "Unknown", int64(4), "AFFAIR PREJUDICE", int64(2006), nil},
			{nil, "Unknown", int64(5), "AFRICAN EGG", int64(2006), nil},
			{nil, "Unknown", int64(6), "AGENT TRUMAN", int64(2006), nil},
		},
	}

	records, err := NewAssembler(meta).Assemble(cur)
	require.NoError(t, err)

	// Keys that only print alike belong to different parents.
	require.Len(t, records, 5)
	assert.Equal(t, int64(1), records[0]["language_id"])
	assert.Equal(t, "1", records[1]["language_id"])
	assert.Nil(t, records[2]["language_id"])
	assert.Equal(t, "<nil>", records[3]["language_id"])
	assert.Nil(t, records[4]["language_id"])
	assert.Len(t, records[4]["films"], 2)
}

func TestSameValue(t *testing.T) {
	utc := time.Date(2006, 2, 15, 5, 3, 42, 0, time.UTC)

	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"equal ints", int64(7), int64(7), true},
		{"different ints", int64(7), int64(8), false},
		{"int and string", int64(1), "1", false},
		{"int widths", int32(1), int64(1), false},
		{"both nil", nil, nil, true},
		{"nil and text", nil, "<nil>", false},
		{"same instant in two zones", utc, utc.In(time.FixedZone("CET", 3600)), true},
		{"time and string", utc, utc.String(), false},
		{"uncomparable values", []any{1, "a"}, []any{1, "a"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sameValue(tt.a, tt.b))
			assert.Equal(t, tt.want, sameValue(tt.b, tt.a))
		})
	}
}

func TestAssembler_NormalizesBytes(t *testing.T) {
	meta := testhelpers.MustMetaData(t, testhelpers.LanguageFilmsDefinition())
	cur := &sliceCursor{
		cols: []string{"LANGUAGE_ID", "LANG_NAME", "FILM_ID", "TITLE", "YEAR", "STARS"},
		rows: [][]any{
			{[]byte("1"), []byte("English"), []byte("7"), []byte("AIRPORT POLLOCK"), nil, nil},
			{[]byte("1"), []byte("English"), []byte("8"), []byte("ALADDIN CALENDAR"), nil, nil},
		},
	}

	records, err := NewAssembler(meta).Assemble(cur)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "English", records[0]["lang_name"])
	films := records[0]["films"].([]map[string]any)
	require.Len(t, films, 2)
	assert.Equal(t, "AIRPORT POLLOCK", films[0]["title"])
}

func TestAssembler_MissingColumn(t *testing.T) {
	meta := testhelpers.MustMetaData(t, testhelpers.FilmDefinition())
	cur := &sliceCursor{
		cols: []string{"film_id", "title"},
		rows: [][]any{{int64(1), "ACADEMY DINOSAUR"}},
	}

	_, err := NewAssembler(meta).Assemble(cur)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column year is not in the result set")
}

func TestAssembler_CursorError(t *testing.T) {
	meta := testhelpers.MustMetaData(t, testhelpers.LanguageFilmsDefinition())
	cause := errors.New("connection reset by peer")
	cur := &sliceCursor{cols: languageFilmColumns, err: cause}

	_, err := NewAssembler(meta).Assemble(cur)
	assert.ErrorIs(t, err, cause)
}
