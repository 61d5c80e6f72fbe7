package models

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// TableRole describes how a table participates in a resource.
type TableRole string

const (
	TableRoleParent          TableRole = "Parent"
	TableRoleParentExtension TableRole = "ParentExtension"
	TableRoleChild           TableRole = "Child"
	TableRoleChildExtension  TableRole = "ChildExtension"
	TableRoleJoin            TableRole = "Join"
	TableRoleUnknown         TableRole = "Unknown"
)

// ParseTableRole converts a definition attribute into a TableRole.
// Matching is case-insensitive; unrecognized values map to TableRoleUnknown.
func ParseTableRole(s string) TableRole {
	for _, role := range []TableRole{
		TableRoleParent, TableRoleParentExtension,
		TableRoleChild, TableRoleChildExtension,
		TableRoleJoin,
	} {
		if strings.EqualFold(s, string(role)) {
			return role
		}
	}
	return TableRoleUnknown
}

// IsExtension reports whether the role is a 1:1 extension of the parent or child.
func (r TableRole) IsExtension() bool {
	return r == TableRoleParentExtension || r == TableRoleChildExtension
}

// Definition is the parsed form of a resource definition file.
// It is immutable after the definition store hands it out.
type Definition struct {
	// Query is the select template, whitespace-normalized at load.
	Query           string            `json:"query"`
	DefaultDatabase string            `json:"default_database"`
	Tables          []TableDefinition `json:"tables"`
}

// TableDefinition declares one table of a resource.
type TableDefinition struct {
	Name    string             `json:"name"`
	Schema  string             `json:"schema,omitempty"`
	Alias   string             `json:"alias,omitempty"`
	Role    TableRole          `json:"role"`
	Columns []ColumnDefinition `json:"columns"`
}

// ColumnDefinition declares one column of a table.
type ColumnDefinition struct {
	Name                 string `json:"name"`
	Label                string `json:"label,omitempty"`
	PrimaryKey           bool   `json:"primary_key"`
	NonqueriedForeignKey bool   `json:"nonqueried_foreign_key"`
	Read                 bool   `json:"read"`
}

// ColumnMetaData describes a column as seen by the engine.
type ColumnMetaData struct {
	TableName  string
	TableAlias string
	ColumnName string
	// ColumnLabel is the key used in read records and the result-set column name.
	ColumnLabel          string
	PrimaryKey           bool
	NonqueriedForeignKey bool
	Read                 bool
}

// QualifiedColumnName returns alias.column, the form used in generated where clauses.
func (c *ColumnMetaData) QualifiedColumnName() string {
	return c.TableAlias + "." + c.ColumnName
}

// TableMetaData describes one table of a resource and its columns.
type TableMetaData struct {
	TableName  string
	SchemaName string
	TableAlias string
	Role       TableRole
	Columns    []*ColumnMetaData
}

// QualifiedTableName returns schema.table, or the bare table name without a schema.
func (t *TableMetaData) QualifiedTableName() string {
	if t.SchemaName == "" {
		return t.TableName
	}
	return t.SchemaName + "." + t.TableName
}

// PrimaryKeys returns the primary key columns in declaration order.
func (t *TableMetaData) PrimaryKeys() []*ColumnMetaData {
	var pks []*ColumnMetaData
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pks = append(pks, c)
		}
	}
	return pks
}

// ReadColumns returns the columns included in read output, in declaration order.
func (t *TableMetaData) ReadColumns() []*ColumnMetaData {
	var cols []*ColumnMetaData
	for _, c := range t.Columns {
		if c.Read {
			cols = append(cols, c)
		}
	}
	return cols
}

// Column finds a column by name or label. Names win over labels.
func (t *TableMetaData) Column(nameOrLabel string) *ColumnMetaData {
	for _, c := range t.Columns {
		if strings.EqualFold(c.ColumnName, nameOrLabel) {
			return c
		}
	}
	for _, c := range t.Columns {
		if strings.EqualFold(c.ColumnLabel, nameOrLabel) {
			return c
		}
	}
	return nil
}

// ResourceMetaData is the derived table graph of a resource.
// At most two levels exist: the parent and an optional child. Extensions
// attach to exactly one of them.
type ResourceMetaData struct {
	// Database is the datasource the resource's statements run against.
	Database          string
	Parent            *TableMetaData
	Child             *TableMetaData
	Join              *TableMetaData
	ParentExtensions  []*TableMetaData
	ChildExtensions   []*TableMetaData
	ParentReadColumns []*ColumnMetaData
	ChildReadColumns  []*ColumnMetaData
	AllReadColumns    []*ColumnMetaData
	// Tables is keyed by qualified table name.
	Tables map[string]*TableMetaData
}

// IsHierarchical reports whether the resource has a child table.
func (m *ResourceMetaData) IsHierarchical() bool {
	return m.Child != nil
}

// LevelTable returns the parent table for the parent level and the child table otherwise.
func (m *ResourceMetaData) LevelTable(parentLevel bool) *TableMetaData {
	if parentLevel {
		return m.Parent
	}
	return m.Child
}

// LevelExtensions returns the extension tables attached to a level, in declaration order.
func (m *ResourceMetaData) LevelExtensions(parentLevel bool) []*TableMetaData {
	if parentLevel {
		return m.ParentExtensions
	}
	return m.ChildExtensions
}

// ReadColumn resolves a read column by label, parent columns first.
func (m *ResourceMetaData) ReadColumn(label string) *ColumnMetaData {
	for _, c := range m.AllReadColumns {
		if strings.EqualFold(c.ColumnLabel, label) {
			return c
		}
	}
	return nil
}

// ChildListKey is the record key holding a parent's child records: the
// pluralized child alias. Empty for flat resources.
func (m *ResourceMetaData) ChildListKey() string {
	if m.Child == nil {
		return ""
	}
	return inflection.Plural(m.Child.TableAlias)
}

// OutputColumns filters cols down to those emitted in read records, dropping
// nonqueried foreign keys.
func OutputColumns(cols []*ColumnMetaData) []*ColumnMetaData {
	out := make([]*ColumnMetaData, 0, len(cols))
	for _, c := range cols {
		if c.Read && !c.NonqueriedForeignKey {
			out = append(out, c)
		}
	}
	return out
}

// Resource is the cached handle for a named resource.
type Resource struct {
	name       string
	definition *Definition
	metaData   *ResourceMetaData
}

// NewResource builds a resource handle. The definition and metadata must not be mutated afterwards.
func NewResource(name string, definition *Definition, metaData *ResourceMetaData) *Resource {
	return &Resource{
		name:       name,
		definition: definition,
		metaData:   metaData,
	}
}

func (r *Resource) Name() string                      { return r.name }
func (r *Resource) Definition() *Definition           { return r.definition }
func (r *Resource) MetaData() *ResourceMetaData       { return r.metaData }
func (r *Resource) ParentTable() *TableMetaData       { return r.metaData.Parent }
func (r *Resource) ChildTable() *TableMetaData        { return r.metaData.Child }
func (r *Resource) JoinTable() *TableMetaData         { return r.metaData.Join }
func (r *Resource) Tables() map[string]*TableMetaData { return r.metaData.Tables }
func (r *Resource) IsHierarchical() bool              { return r.metaData.IsHierarchical() }
