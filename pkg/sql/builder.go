package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/resource-engine/pkg/apperrors"
	"github.com/ekaya-inc/resource-engine/pkg/models"
)

// Reserved parameter names that control paging instead of filtering.
const (
	ParamLimit  = "_limit"
	ParamOffset = "_offset"
)

// SQLStruct is the statement generated for one physical table.
type SQLStruct struct {
	Table     string
	Statement string
	// ClauseEmpty is true when the statement has no filtering clause (update,
	// delete) or no values (insert), i.e. it would touch every row or nothing useful.
	ClauseEmpty bool
}

// Builder generates the statements the engine executes.
type Builder interface {
	// BuildSelect applies identifiers and parameters to a query template.
	BuildSelect(meta *models.ResourceMetaData, query string, resIDs, params []models.NameValuePair) (string, error)

	// BuildWrite returns one statement per physical table of the level, keyed
	// by qualified table name. Tables with nothing to write are omitted.
	BuildWrite(meta *models.ResourceMetaData, req *models.Request, parentLevel bool) (map[string]*SQLStruct, error)
}

// DialectResolver maps a database name to its dialect.
type DialectResolver interface {
	DialectFor(database string) *Dialect
}

// BuilderOptions configures the default builder.
type BuilderOptions struct {
	// RejectInjection screens string values with libinjection before rendering them.
	RejectInjection bool
}

type builder struct {
	dialects DialectResolver
	opts     BuilderOptions
}

// NewBuilder returns the default literal-rendering statement builder.
// A nil resolver renders every statement in the Postgres dialect.
func NewBuilder(dialects DialectResolver, opts BuilderOptions) Builder {
	return &builder{
		dialects: dialects,
		opts:     opts,
	}
}

func (b *builder) dialect(meta *models.ResourceMetaData) *Dialect {
	if b.dialects == nil {
		return Postgres
	}
	if d := b.dialects.DialectFor(meta.Database); d != nil {
		return d
	}
	return Postgres
}

func (b *builder) screen(pairs ...[]models.NameValuePair) error {
	if !b.opts.RejectInjection {
		return nil
	}
	for _, p := range pairs {
		if results := CheckAllParameters(p); len(results) > 0 {
			return fmt.Errorf("%w: %w", apperrors.ErrInvalidRequest, &InjectionError{Results: results})
		}
	}
	return nil
}

func (b *builder) BuildSelect(meta *models.ResourceMetaData, query string, resIDs, params []models.NameValuePair) (string, error) {
	if err := b.screen(resIDs, params); err != nil {
		return "", err
	}
	d := b.dialect(meta)

	limit, offset := 0, 0
	var conditions []string
	for _, pairs := range [][]models.NameValuePair{resIDs, params} {
		for _, p := range pairs {
			switch p.Name {
			case ParamLimit, ParamOffset:
				n, err := pagingValue(p)
				if err != nil {
					return "", err
				}
				if p.Name == ParamLimit {
					limit = n
				} else {
					offset = n
				}
				continue
			}

			col := resolveReadColumn(meta, p.Name)
			if col == nil {
				return "", fmt.Errorf("%w: unknown parameter %q", apperrors.ErrInvalidRequest, p.Name)
			}
			cond, err := condition(d, col.QualifiedColumnName(), p)
			if err != nil {
				return "", err
			}
			conditions = append(conditions, cond)
		}
	}

	statement := applyConditions(query, conditions)
	return d.Paginate(statement, limit, offset), nil
}

func (b *builder) BuildWrite(meta *models.ResourceMetaData, req *models.Request, parentLevel bool) (map[string]*SQLStruct, error) {
	if err := b.screen(req.ResourceIdentifiers, req.Parameters); err != nil {
		return nil, err
	}
	own := meta.LevelTable(parentLevel)
	if own == nil {
		return nil, fmt.Errorf("%w: resource has no child table", apperrors.ErrInvalidRequest)
	}
	d := b.dialect(meta)

	tables := append([]*models.TableMetaData{own}, meta.LevelExtensions(parentLevel)...)
	sqls := make(map[string]*SQLStruct, len(tables))
	for _, table := range tables {
		var (
			s   *SQLStruct
			err error
		)
		switch req.Type {
		case models.RequestTypeInsert:
			s, err = buildInsert(d, meta, table, req)
		case models.RequestTypeUpdate:
			s, err = buildUpdate(d, meta, table, req)
		case models.RequestTypeDelete:
			s, err = buildDelete(d, meta, table, req)
		default:
			return nil, fmt.Errorf("%w: %s is not a write operation", apperrors.ErrInvalidRequest, req.Type)
		}
		if err != nil {
			return nil, err
		}
		if s != nil {
			sqls[table.QualifiedTableName()] = s
		}
	}
	return sqls, nil
}

func buildInsert(d *Dialect, meta *models.ResourceMetaData, table *models.TableMetaData, req *models.Request) (*SQLStruct, error) {
	var names, values []string
	seen := make(map[string]bool)
	for _, p := range req.Parameters {
		col := writeColumn(meta, table, p.Name)
		if col == nil || seen[col.ColumnName] {
			continue
		}
		seen[col.ColumnName] = true
		lit, err := d.FormatLiteral(p.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %q: %v", apperrors.ErrInvalidRequest, p.Name, err)
		}
		names = append(names, col.ColumnName)
		values = append(values, lit)
	}
	if len(names) == 0 {
		return nil, nil
	}
	return &SQLStruct{
		Table: table.QualifiedTableName(),
		Statement: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table.QualifiedTableName(), strings.Join(names, ", "), strings.Join(values, ", ")),
	}, nil
}

func buildUpdate(d *Dialect, meta *models.ResourceMetaData, table *models.TableMetaData, req *models.Request) (*SQLStruct, error) {
	var sets []string
	var where []models.NameValuePair
	for _, p := range req.ResourceIdentifiers {
		if col := writeColumn(meta, table, p.Name); col != nil {
			where = append(where, models.NameValuePair{Name: col.ColumnName, Value: p.Value, Operator: p.Operator})
		}
	}
	for _, p := range req.Parameters {
		col := writeColumn(meta, table, p.Name)
		if col == nil {
			continue
		}
		if col.PrimaryKey {
			where = append(where, models.NameValuePair{Name: col.ColumnName, Value: p.Value, Operator: p.Operator})
			continue
		}
		lit, err := d.FormatLiteral(p.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %q: %v", apperrors.ErrInvalidRequest, p.Name, err)
		}
		sets = append(sets, col.ColumnName+" = "+lit)
	}
	if len(sets) == 0 {
		return nil, nil
	}

	conds, err := buildConditions(d, where)
	if err != nil {
		return nil, err
	}
	return &SQLStruct{
		Table:       table.QualifiedTableName(),
		Statement:   fmt.Sprintf("UPDATE %s SET %s", table.QualifiedTableName(), strings.Join(sets, ", ")) + whereClause(conds),
		ClauseEmpty: len(conds) == 0,
	}, nil
}

func buildDelete(d *Dialect, meta *models.ResourceMetaData, table *models.TableMetaData, req *models.Request) (*SQLStruct, error) {
	var where []models.NameValuePair
	for _, pairs := range [][]models.NameValuePair{req.ResourceIdentifiers, req.Parameters} {
		for _, p := range pairs {
			if col := writeColumn(meta, table, p.Name); col != nil {
				where = append(where, models.NameValuePair{Name: col.ColumnName, Value: p.Value, Operator: p.Operator})
			}
		}
	}

	conds, err := buildConditions(d, where)
	if err != nil {
		return nil, err
	}
	return &SQLStruct{
		Table:       table.QualifiedTableName(),
		Statement:   "DELETE FROM " + table.QualifiedTableName() + whereClause(conds),
		ClauseEmpty: len(conds) == 0,
	}, nil
}

// resolveReadColumn finds the column a select parameter filters on: read
// columns by label first, then any declared column by name.
func resolveReadColumn(meta *models.ResourceMetaData, name string) *models.ColumnMetaData {
	if col := meta.ReadColumn(name); col != nil {
		return col
	}
	for _, table := range orderedTables(meta) {
		if col := table.Column(name); col != nil {
			return col
		}
	}
	return nil
}

// writeColumn finds the column of table a write parameter targets. A name that
// only matches a parent column (typically its key, by label) is mapped to the
// same-named column of table, which is how children and extensions link back.
func writeColumn(meta *models.ResourceMetaData, table *models.TableMetaData, name string) *models.ColumnMetaData {
	if col := table.Column(name); col != nil {
		return col
	}
	if table != meta.Parent && meta.Parent != nil {
		if pc := meta.Parent.Column(name); pc != nil {
			return table.Column(pc.ColumnName)
		}
	}
	return nil
}

func orderedTables(meta *models.ResourceMetaData) []*models.TableMetaData {
	tables := []*models.TableMetaData{meta.Parent}
	tables = append(tables, meta.ParentExtensions...)
	if meta.Child != nil {
		tables = append(tables, meta.Child)
	}
	tables = append(tables, meta.ChildExtensions...)
	if meta.Join != nil {
		tables = append(tables, meta.Join)
	}
	return tables
}

func buildConditions(d *Dialect, pairs []models.NameValuePair) ([]string, error) {
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		cond, err := condition(d, p.Name, p)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

func condition(d *Dialect, column string, p models.NameValuePair) (string, error) {
	op := p.Op()

	if p.Value == nil {
		switch op {
		case models.OperatorEquals:
			return column + " IS NULL", nil
		case models.OperatorNotEquals:
			return column + " IS NOT NULL", nil
		default:
			return "", fmt.Errorf("%w: parameter %q: operator %s does not accept null", apperrors.ErrInvalidRequest, p.Name, op)
		}
	}

	if op == models.OperatorIn {
		values, ok := p.Value.([]any)
		if !ok || len(values) == 0 {
			return "", fmt.Errorf("%w: parameter %q: IN requires a non-empty list", apperrors.ErrInvalidRequest, p.Name)
		}
		lits := make([]string, len(values))
		for i, v := range values {
			lit, err := d.FormatLiteral(v)
			if err != nil {
				return "", fmt.Errorf("%w: parameter %q: %v", apperrors.ErrInvalidRequest, p.Name, err)
			}
			lits[i] = lit
		}
		return column + " IN (" + strings.Join(lits, ", ") + ")", nil
	}

	switch op {
	case models.OperatorEquals, models.OperatorNotEquals, models.OperatorLessThan, models.OperatorLessOrEqual,
		models.OperatorGreaterThan, models.OperatorGreaterOrEqual, models.OperatorLike:
	default:
		return "", fmt.Errorf("%w: parameter %q: unsupported operator %q", apperrors.ErrInvalidRequest, p.Name, op)
	}

	lit, err := d.FormatLiteral(p.Value)
	if err != nil {
		return "", fmt.Errorf("%w: parameter %q: %v", apperrors.ErrInvalidRequest, p.Name, err)
	}
	sqlOp := string(op)
	if op == models.OperatorNotEquals {
		sqlOp = "<>"
	}
	return column + " " + sqlOp + " " + lit, nil
}

func pagingValue(p models.NameValuePair) (int, error) {
	var n int
	switch v := p.Value.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be an integer", apperrors.ErrInvalidRequest, p.Name)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("%w: %s must be an integer", apperrors.ErrInvalidRequest, p.Name)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", apperrors.ErrInvalidRequest, p.Name)
	}
	return n, nil
}
