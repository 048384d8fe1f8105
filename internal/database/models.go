package database

import "strings"

// TableKind distinguishes base tables from views.
type TableKind string

const (
	KindTable TableKind = "TABLE"
	KindView  TableKind = "VIEW"
)

// NormalizeTableKind maps an information_schema table_type to a TableKind.
// Anything other than a base table is reported as a view.
func NormalizeTableKind(catalogType string) TableKind {
	if strings.EqualFold(strings.TrimSpace(catalogType), "BASE TABLE") {
		return KindTable
	}
	return KindView
}

// FieldDescriptor describes one column of an introspected table.
type FieldDescriptor struct {
	Name      string  `json:"fieldName"`
	DataType  string  `json:"dataType"`
	Nullable  bool    `json:"isNullable"`
	Default   *string `json:"columnDefault,omitempty"`
	MaxLength *int64  `json:"maxLength,omitempty"`
}

// TableDescriptor describes one introspected table or view.
type TableDescriptor struct {
	Name   string            `json:"tableName"`
	Kind   TableKind         `json:"tableType"`
	Fields []FieldDescriptor `json:"fields"`
}

// NativeRows is a result set as decoded from the driver, before normalization.
type NativeRows struct {
	Columns []string
	Rows    [][]any
}
