package services

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ekaya-inc/resource-engine/pkg/models"
)

// Cursor is a forward-only result set. *sql.Rows satisfies it.
type Cursor interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// Assembler turns a result set into read records. Flat resources yield one
// record per row. Hierarchical resources group rows by parent primary key into
// parent records carrying their child records under the child list key.
type Assembler struct {
	meta *models.ResourceMetaData
}

// NewAssembler creates an assembler for a resource's metadata.
func NewAssembler(meta *models.ResourceMetaData) *Assembler {
	return &Assembler{meta: meta}
}

// Assemble consumes cur and returns the records in result-set order.
func (a *Assembler) Assemble(cur Cursor) ([]map[string]any, error) {
	row, err := newRowReader(cur)
	if err != nil {
		return nil, err
	}
	if a.meta.IsHierarchical() {
		return a.hierarchical(cur, row)
	}
	return a.flat(cur, row)
}

func (a *Assembler) flat(cur Cursor, row *rowReader) ([]map[string]any, error) {
	cols := models.OutputColumns(a.meta.AllReadColumns)
	records := []map[string]any{}
	for cur.Next() {
		if err := row.scan(cur); err != nil {
			return nil, err
		}
		rec, err := row.record(cols)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// hierarchical assumes rows of one parent are contiguous. Only the current
// parent is buffered; rows are never reordered.
func (a *Assembler) hierarchical(cur Cursor, row *rowReader) ([]map[string]any, error) {
	parentCols := models.OutputColumns(a.meta.ParentReadColumns)
	childCols := models.OutputColumns(a.meta.ChildReadColumns)
	parentKeys := a.meta.Parent.PrimaryKeys()
	childKeys := a.meta.Child.PrimaryKeys()
	listKey := a.meta.ChildListKey()

	records := []map[string]any{}
	var (
		currentKey []any
		haveParent bool
		children   []map[string]any
		parent     map[string]any
	)
	for cur.Next() {
		if err := row.scan(cur); err != nil {
			return nil, err
		}

		key, err := row.key(parentKeys)
		if err != nil {
			return nil, err
		}
		if !haveParent || !sameKey(key, currentKey) {
			if parent != nil {
				parent[listKey] = children
			}
			parent, err = row.record(parentCols)
			if err != nil {
				return nil, err
			}
			children = []map[string]any{}
			parent[listKey] = children
			records = append(records, parent)
			currentKey, haveParent = key, true
		}

		nullKey, err := row.anyNull(childKeys)
		if err != nil {
			return nil, err
		}
		if nullKey {
			// Outer join row for a parent without children.
			continue
		}
		child, err := row.record(childCols)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if parent != nil {
		parent[listKey] = children
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// rowReader scans rows into reusable buffers and looks values up by column label.
type rowReader struct {
	index  map[string]int
	values []any
	dest   []any
}

func newRowReader(cur Cursor) (*rowReader, error) {
	names, err := cur.Columns()
	if err != nil {
		return nil, err
	}
	r := &rowReader{
		index:  make(map[string]int, len(names)),
		values: make([]any, len(names)),
		dest:   make([]any, len(names)),
	}
	for i, name := range names {
		key := strings.ToLower(name)
		if _, dup := r.index[key]; !dup {
			r.index[key] = i
		}
		r.dest[i] = &r.values[i]
	}
	return r, nil
}

func (r *rowReader) scan(cur Cursor) error {
	return cur.Scan(r.dest...)
}

func (r *rowReader) value(col *models.ColumnMetaData) (any, error) {
	i, ok := r.index[strings.ToLower(col.ColumnLabel)]
	if !ok {
		return nil, fmt.Errorf("column %s is not in the result set", col.ColumnLabel)
	}
	if b, ok := r.values[i].([]byte); ok {
		return string(b), nil
	}
	return r.values[i], nil
}

func (r *rowReader) record(cols []*models.ColumnMetaData) (map[string]any, error) {
	rec := make(map[string]any, len(cols)+1)
	for _, col := range cols {
		v, err := r.value(col)
		if err != nil {
			return nil, err
		}
		rec[col.ColumnLabel] = v
	}
	return rec, nil
}

func (r *rowReader) key(cols []*models.ColumnMetaData) ([]any, error) {
	key := make([]any, len(cols))
	for i, col := range cols {
		v, err := r.value(col)
		if err != nil {
			return nil, err
		}
		key[i] = v
	}
	return key, nil
}

// sameKey compares parent keys value by value. Values of different types never match.
func sameKey(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameValue(a[i], b[i]) {
			return false
		}
	}
	return true
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	if !ta.Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

func (r *rowReader) anyNull(cols []*models.ColumnMetaData) (bool, error) {
	for _, col := range cols {
		v, err := r.value(col)
		if err != nil {
			return false, err
		}
		if v == nil {
			return true, nil
		}
	}
	return false, nil
}
