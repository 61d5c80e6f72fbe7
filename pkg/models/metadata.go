package models

import (
	"fmt"
)

// BuildMetaData derives the table graph of a resource from its definition.
// Aliases default to table names and labels to column names.
func BuildMetaData(def *Definition) (*ResourceMetaData, error) {
	meta := &ResourceMetaData{
		Database: def.DefaultDatabase,
		Tables:   make(map[string]*TableMetaData, len(def.Tables)),
	}

	for _, td := range def.Tables {
		table, err := newTableMetaData(td)
		if err != nil {
			return nil, err
		}
		name := table.QualifiedTableName()
		if _, dup := meta.Tables[name]; dup {
			return nil, fmt.Errorf("table %s declared more than once", name)
		}
		meta.Tables[name] = table

		switch table.Role {
		case TableRoleParent:
			if meta.Parent != nil {
				return nil, fmt.Errorf("multiple parent tables: %s and %s", meta.Parent.TableName, table.TableName)
			}
			meta.Parent = table
		case TableRoleChild:
			if meta.Child != nil {
				return nil, fmt.Errorf("multiple child tables: %s and %s", meta.Child.TableName, table.TableName)
			}
			meta.Child = table
		case TableRoleJoin:
			if meta.Join != nil {
				return nil, fmt.Errorf("multiple join tables: %s and %s", meta.Join.TableName, table.TableName)
			}
			meta.Join = table
		case TableRoleParentExtension:
			meta.ParentExtensions = append(meta.ParentExtensions, table)
		case TableRoleChildExtension:
			meta.ChildExtensions = append(meta.ChildExtensions, table)
		default:
			return nil, fmt.Errorf("table %s has unknown role", table.TableName)
		}
	}

	if meta.Parent == nil {
		return nil, fmt.Errorf("no parent table declared")
	}
	if len(meta.Parent.PrimaryKeys()) == 0 {
		return nil, fmt.Errorf("parent table %s has no primary key", meta.Parent.TableName)
	}
	if meta.Child != nil && len(meta.Child.PrimaryKeys()) == 0 {
		return nil, fmt.Errorf("child table %s has no primary key", meta.Child.TableName)
	}
	if meta.Child == nil && len(meta.ChildExtensions) > 0 {
		return nil, fmt.Errorf("child extension %s declared without a child table", meta.ChildExtensions[0].TableName)
	}

	for _, t := range append([]*TableMetaData{meta.Parent}, meta.ParentExtensions...) {
		meta.ParentReadColumns = append(meta.ParentReadColumns, t.ReadColumns()...)
	}
	if meta.Child != nil {
		for _, t := range append([]*TableMetaData{meta.Child}, meta.ChildExtensions...) {
			meta.ChildReadColumns = append(meta.ChildReadColumns, t.ReadColumns()...)
		}
	}
	meta.AllReadColumns = append(append(meta.AllReadColumns, meta.ParentReadColumns...), meta.ChildReadColumns...)

	return meta, nil
}

func newTableMetaData(td TableDefinition) (*TableMetaData, error) {
	if td.Name == "" {
		return nil, fmt.Errorf("table without a name")
	}
	table := &TableMetaData{
		TableName:  td.Name,
		SchemaName: td.Schema,
		TableAlias: td.Alias,
		Role:       td.Role,
	}
	if table.TableAlias == "" {
		table.TableAlias = td.Name
	}

	for _, cd := range td.Columns {
		if cd.Name == "" {
			return nil, fmt.Errorf("table %s: column without a name", td.Name)
		}
		label := cd.Label
		if label == "" {
			label = cd.Name
		}
		table.Columns = append(table.Columns, &ColumnMetaData{
			TableName:            td.Name,
			TableAlias:           table.TableAlias,
			ColumnName:           cd.Name,
			ColumnLabel:          label,
			PrimaryKey:           cd.PrimaryKey,
			NonqueriedForeignKey: cd.NonqueriedForeignKey,
			Read:                 cd.Read,
		})
	}
	return table, nil
}
