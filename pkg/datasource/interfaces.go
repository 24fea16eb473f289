// Package datasource abstracts read access to a client's relational
// database for schema discovery, profiling, and query execution.
package datasource

import (
	"context"

	"github.com/luminadata/schemagraph/pkg/models"
)

// TableData is a sampled slice of a table, column-ordered.
type TableData struct {
	Columns []string
	Rows    [][]any
}

// ValueOverlap is the result of comparing distinct values between a
// candidate foreign key column and a candidate target key column.
type ValueOverlap struct {
	SourceDistinct int64
	TargetDistinct int64
	MatchedCount   int64
	// Ratio is matched / source distinct, 0 when the source is empty.
	Ratio float64
}

// QueryResult is the outcome of executing a validated SELECT. Columns
// preserves the statement's projection order.
type QueryResult struct {
	Columns []string
	Rows    []map[string]any
}

// Reader is the read-only surface the pipeline and the query engine
// use against a client datasource.
type Reader interface {
	// ListTables returns every user table name, excluding system
	// schemas, in deterministic order.
	ListTables(ctx context.Context) ([]string, error)

	// DescribeTable returns the structural schema of one table:
	// columns in ordinal order with comments, primary key, foreign
	// keys, unique constraints, and indexes. Row counting is a
	// separate operation so its failure can be tolerated.
	DescribeTable(ctx context.Context, table string) (*models.TableSchema, error)

	// RowCount returns the exact row count of a table.
	RowCount(ctx context.Context, table string) (int64, error)

	// FetchTableData reads up to limit rows of a table in column
	// order. A non-positive limit fetches the whole table.
	FetchTableData(ctx context.Context, table string, limit int) (*TableData, error)

	// CheckValueOverlap measures how many distinct source column
	// values also appear in the target column, over at most
	// sampleLimit distinct values per side.
	CheckValueOverlap(ctx context.Context, sourceTable, sourceColumn, targetTable, targetColumn string, sampleLimit int) (*ValueOverlap, error)

	// Execute runs a validated read-only statement and returns the
	// result with projection order preserved.
	Execute(ctx context.Context, query string) (*QueryResult, error)

	// Close releases the underlying connection pool.
	Close()
}
