package sqlsafe

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/apperrors"
	"github.com/luminadata/schemagraph/pkg/datasource"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare statement gets semicolon", "select * from incidents", "select * from incidents;"},
		{"trailing semicolon kept", "select 1;", "select 1;"},
		{"fenced with language tag", "```sql\nselect * from incidents\n```", "select * from incidents;"},
		{"fenced without tag", "```\nselect 1;\n```", "select 1;"},
		{"surrounding whitespace", "  select 1  ", "select 1;"},
		{"empty stays empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.raw))
		})
	}
}

func TestValidate_BlocksDestructiveKeywords(t *testing.T) {
	statements := []string{
		"drop table incidents;",
		"DELETE FROM incidents;",
		"select 1; truncate incidents;",
		"alter table incidents add column x int;",
		"update incidents set status = 'closed';",
		"create table t (id int);",
		"insert into incidents values (1);",
	}
	for _, sql := range statements {
		err := Validate(sql)
		require.Error(t, err, sql)
		assert.True(t, apperrors.Is(err, apperrors.KindSQLUnsafe))
	}
}

func TestValidate_WholeWordsOnly(t *testing.T) {
	// Keywords embedded in identifiers must not trip the check.
	assert.NoError(t, Validate("select created_at, last_updated_by from incidents;"))
	assert.NoError(t, Validate("select * from insertion_log;"))
}

func TestValidate_RejectsMultiStatement(t *testing.T) {
	err := Validate("select 1; select 2;")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindSQLUnsafe))
}

func TestValidate_AllowsSemicolonsInsideStringLiterals(t *testing.T) {
	allowed := []string{
		`SELECT ';' AS sep FROM incidents;`,
		`SELECT "odd;name" FROM incidents;`,
		`SELECT 'it''s; fine' FROM incidents;`,
	}
	for _, sql := range allowed {
		assert.NoError(t, Validate(sql), sql)
	}

	// An unquoted semicolon after a literal is still a second statement.
	err := Validate(`SELECT ';' FROM incidents; SELECT 2;`)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindSQLUnsafe))
}

func TestExecute_ReturnsColumnOrderedResult(t *testing.T) {
	reader := datasource.NewMockReader()
	reader.ExecuteFunc = func(ctx context.Context, query string) (*datasource.QueryResult, error) {
		return &datasource.QueryResult{
			Columns: []string{"status", "total"},
			Rows: []map[string]any{
				{"status": "open", "total": int64(3)},
			},
		}, nil
	}

	exec := NewExecutor(0, zap.NewNop())
	df, err := exec.Execute(context.Background(), reader, "select status, count(*) as total from incidents group by status;")
	require.NoError(t, err)
	assert.Equal(t, []string{"status", "total"}, df.Columns)
	require.Len(t, df.Rows, 1)
	assert.Equal(t, "open", df.Rows[0]["status"])
}

func TestExecute_BlockedStatementNeverReachesDriver(t *testing.T) {
	reader := datasource.NewMockReader()
	exec := NewExecutor(0, zap.NewNop())

	_, err := exec.Execute(context.Background(), reader, "drop table incidents;")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindSQLUnsafe))
	assert.Empty(t, reader.ExecuteCalls)
}

func TestExecute_TruncatesDriverError(t *testing.T) {
	reader := datasource.NewMockReader()
	reader.ExecuteFunc = func(ctx context.Context, query string) (*datasource.QueryResult, error) {
		return nil, errors.New(strings.Repeat("x", 500))
	}

	exec := NewExecutor(0, zap.NewNop())
	_, err := exec.Execute(context.Background(), reader, "select 1;")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindSQLExecFailed))

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Len(t, appErr.Msg, 200)
}
