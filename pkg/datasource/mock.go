package datasource

import (
	"context"

	"github.com/luminadata/schemagraph/pkg/models"
)

// MockReader is a configurable in-memory Reader for testing pipeline
// and engine code. Set the function fields to control behavior.
type MockReader struct {
	ListTablesFunc        func(ctx context.Context) ([]string, error)
	DescribeTableFunc     func(ctx context.Context, table string) (*models.TableSchema, error)
	RowCountFunc          func(ctx context.Context, table string) (int64, error)
	FetchTableDataFunc    func(ctx context.Context, table string, limit int) (*TableData, error)
	CheckValueOverlapFunc func(ctx context.Context, sourceTable, sourceColumn, targetTable, targetColumn string, sampleLimit int) (*ValueOverlap, error)
	ExecuteFunc           func(ctx context.Context, query string) (*QueryResult, error)

	// Call tracking for verification.
	ExecuteCalls []string
	OverlapCalls int
	Closed       bool
}

// NewMockReader creates a mock whose unset operations return empty
// results.
func NewMockReader() *MockReader {
	return &MockReader{}
}

// ListTables implements Reader.
func (m *MockReader) ListTables(ctx context.Context) ([]string, error) {
	if m.ListTablesFunc != nil {
		return m.ListTablesFunc(ctx)
	}
	return nil, nil
}

// DescribeTable implements Reader.
func (m *MockReader) DescribeTable(ctx context.Context, table string) (*models.TableSchema, error) {
	if m.DescribeTableFunc != nil {
		return m.DescribeTableFunc(ctx, table)
	}
	return &models.TableSchema{Name: table}, nil
}

// RowCount implements Reader.
func (m *MockReader) RowCount(ctx context.Context, table string) (int64, error) {
	if m.RowCountFunc != nil {
		return m.RowCountFunc(ctx, table)
	}
	return 0, nil
}

// FetchTableData implements Reader.
func (m *MockReader) FetchTableData(ctx context.Context, table string, limit int) (*TableData, error) {
	if m.FetchTableDataFunc != nil {
		return m.FetchTableDataFunc(ctx, table, limit)
	}
	return &TableData{}, nil
}

// CheckValueOverlap implements Reader.
func (m *MockReader) CheckValueOverlap(ctx context.Context, sourceTable, sourceColumn, targetTable, targetColumn string, sampleLimit int) (*ValueOverlap, error) {
	m.OverlapCalls++
	if m.CheckValueOverlapFunc != nil {
		return m.CheckValueOverlapFunc(ctx, sourceTable, sourceColumn, targetTable, targetColumn, sampleLimit)
	}
	return &ValueOverlap{}, nil
}

// Execute implements Reader.
func (m *MockReader) Execute(ctx context.Context, query string) (*QueryResult, error) {
	m.ExecuteCalls = append(m.ExecuteCalls, query)
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, query)
	}
	return &QueryResult{}, nil
}

// Close implements Reader.
func (m *MockReader) Close() {
	m.Closed = true
}

var _ Reader = (*MockReader)(nil)
