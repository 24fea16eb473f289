// Package models holds the typed artifacts exchanged between pipeline
// phases and the conversational engine. Every stage boundary is a declared
// schema here; JSON is the wire format for the on-disk artifacts.
package models

// FKCardinality describes the shape of a foreign-key relationship.
type FKCardinality string

const (
	CardinalityOneToOne FKCardinality = "1:1"
	CardinalityOneToN   FKCardinality = "1:n"
)

// Column is a single column as declared in the source database.
type Column struct {
	Name     string  `json:"name"`
	SQLType  string  `json:"sql_type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default,omitempty"`
	Comment  *string `json:"comment,omitempty"`
}

// ForeignKey is an explicit foreign-key constraint. Cardinality is 1:1 iff
// the constrained column set equals some unique-constraint column set on
// the referring table.
type ForeignKey struct {
	Columns         []string      `json:"columns"`
	ReferredTable   string        `json:"referred_table"`
	ReferredColumns []string      `json:"referred_columns"`
	Cardinality     FKCardinality `json:"cardinality"`
}

// Index is a secondary index on a table.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// TableSchema is the raw structural description of one table.
type TableSchema struct {
	Name              string       `json:"name"`
	RowCount          int64        `json:"row_count"`
	PrimaryKey        []string     `json:"primary_key"`
	Columns           []Column     `json:"columns"`
	ForeignKeys       []ForeignKey `json:"explicit_foreign_keys"`
	UniqueConstraints [][]string   `json:"unique_constraints,omitempty"`
	Indexes           []Index      `json:"indexes"`
	Warnings          []string     `json:"warnings,omitempty"`
}

// RawSchema is the phase-1 artifact: the complete structural snapshot of a
// client database.
type RawSchema struct {
	Tables map[string]*TableSchema `json:"tables"`
}

// ColumnNames returns the declared column names in declaration order.
func (t *TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the table declares a column with the given name.
func (t *TableSchema) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// IsPrimaryKey reports whether the named column is part of the primary key.
func (t *TableSchema) IsPrimaryKey(name string) bool {
	for _, pk := range t.PrimaryKey {
		if pk == name {
			return true
		}
	}
	return false
}
