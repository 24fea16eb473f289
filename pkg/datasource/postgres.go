package datasource

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/apperrors"
	"github.com/luminadata/schemagraph/pkg/database"
	"github.com/luminadata/schemagraph/pkg/models"
)

// qualifiedTableName returns a properly quoted table reference.
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	return pgx.Identifier{schemaName}.Sanitize() + "." + quotedTable
}

// PostgresReader implements Reader against a PostgreSQL datasource.
// All access is read-only; statement safety is the caller's concern.
type PostgresReader struct {
	db     *database.DB
	schema string
	logger *zap.Logger
}

// NewPostgresReader wraps an open connection pool. An empty schemaName
// defaults to public.
func NewPostgresReader(db *database.DB, schemaName string, logger *zap.Logger) *PostgresReader {
	if schemaName == "" {
		schemaName = "public"
	}
	return &PostgresReader{
		db:     db,
		schema: schemaName,
		logger: logger.Named("datasource"),
	}
}

// ListTables returns all user tables in the configured schema,
// sorted by name.
func (r *PostgresReader) ListTables(ctx context.Context) ([]string, error) {
	const query = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema = $1
		  AND table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY table_name
	`

	rows, err := r.db.Query(ctx, query, r.schema)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDBQueryFailed, "query tables", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// DescribeTable assembles the full structural schema of one table.
func (r *PostgresReader) DescribeTable(ctx context.Context, table string) (*models.TableSchema, error) {
	ts := &models.TableSchema{Name: table}

	columns, err := r.describeColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	ts.Columns = columns

	pk, uniques, err := r.describeKeyConstraints(ctx, table)
	if err != nil {
		return nil, err
	}
	ts.PrimaryKey = pk
	ts.UniqueConstraints = uniques

	fks, err := r.describeForeignKeys(ctx, table)
	if err != nil {
		return nil, err
	}
	ts.ForeignKeys = fks

	indexes, err := r.describeIndexes(ctx, table)
	if err != nil {
		return nil, err
	}
	ts.Indexes = indexes

	if len(ts.PrimaryKey) == 0 {
		ts.Warnings = append(ts.Warnings, "table has no primary key")
	}

	return ts, nil
}

// describeColumns returns columns in ordinal order with comments read
// from pg_description.
func (r *PostgresReader) describeColumns(ctx context.Context, table string) ([]models.Column, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS is_nullable,
			c.column_default,
			pgd.description
		FROM information_schema.columns c
		JOIN pg_class cls ON cls.relname = c.table_name
		JOIN pg_namespace n ON n.oid = cls.relnamespace AND n.nspname = c.table_schema
		LEFT JOIN pg_description pgd
			ON pgd.objoid = cls.oid AND pgd.objsubid = c.ordinal_position
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := r.db.Query(ctx, query, r.schema, table)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDBQueryFailed, "query columns", err)
	}
	defer rows.Close()

	var columns []models.Column
	for rows.Next() {
		var c models.Column
		if err := rows.Scan(&c.Name, &c.SQLType, &c.Nullable, &c.Default, &c.Comment); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// describeKeyConstraints returns the primary key column list and the
// unique-constraint column sets, each in constraint declaration order.
func (r *PostgresReader) describeKeyConstraints(ctx context.Context, table string) (pk []string, uniques [][]string, err error) {
	const query = `
		SELECT tc.constraint_name, tc.constraint_type, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = $1
		  AND tc.table_name = $2
		  AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`

	rows, err := r.db.Query(ctx, query, r.schema, table)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindDBQueryFailed, "query key constraints", err)
	}
	defer rows.Close()

	uniqueByName := make(map[string][]string)
	var uniqueOrder []string
	for rows.Next() {
		var name, ctype, column string
		if err := rows.Scan(&name, &ctype, &column); err != nil {
			return nil, nil, fmt.Errorf("scan key constraint: %w", err)
		}
		if ctype == "PRIMARY KEY" {
			pk = append(pk, column)
			continue
		}
		if _, seen := uniqueByName[name]; !seen {
			uniqueOrder = append(uniqueOrder, name)
		}
		uniqueByName[name] = append(uniqueByName[name], column)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate key constraints: %w", err)
	}

	for _, name := range uniqueOrder {
		uniques = append(uniques, uniqueByName[name])
	}

	return pk, uniques, nil
}

// describeForeignKeys reads multi-column foreign keys from pg_catalog.
// The information_schema view mispairs columns for composite keys, so
// conkey and confkey are unnested together with ordinality.
func (r *PostgresReader) describeForeignKeys(ctx context.Context, table string) ([]models.ForeignKey, error) {
	const query = `
		SELECT
			con.conname,
			src_att.attname AS source_column,
			tgt_cls.relname AS target_table,
			tgt_att.attname AS target_column
		FROM pg_constraint con
		JOIN pg_class src_cls ON src_cls.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = src_cls.relnamespace
		JOIN pg_class tgt_cls ON tgt_cls.oid = con.confrelid
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey)
			WITH ORDINALITY AS pairs(src_num, tgt_num, ord)
		JOIN pg_attribute src_att
			ON src_att.attrelid = con.conrelid AND src_att.attnum = pairs.src_num
		JOIN pg_attribute tgt_att
			ON tgt_att.attrelid = con.confrelid AND tgt_att.attnum = pairs.tgt_num
		WHERE con.contype = 'f'
		  AND n.nspname = $1
		  AND src_cls.relname = $2
		ORDER BY con.conname, pairs.ord
	`

	rows, err := r.db.Query(ctx, query, r.schema, table)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDBQueryFailed, "query foreign keys", err)
	}
	defer rows.Close()

	fkByName := make(map[string]*models.ForeignKey)
	var order []string
	for rows.Next() {
		var name, sourceCol, targetTable, targetCol string
		if err := rows.Scan(&name, &sourceCol, &targetTable, &targetCol); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fk, seen := fkByName[name]
		if !seen {
			fk = &models.ForeignKey{ReferredTable: targetTable}
			fkByName[name] = fk
			order = append(order, name)
		}
		fk.Columns = append(fk.Columns, sourceCol)
		fk.ReferredColumns = append(fk.ReferredColumns, targetCol)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}

	fks := make([]models.ForeignKey, 0, len(order))
	for _, name := range order {
		fks = append(fks, *fkByName[name])
	}

	return fks, nil
}

// describeIndexes returns secondary indexes from pg_index, excluding
// the primary key index.
func (r *PostgresReader) describeIndexes(ctx context.Context, table string) ([]models.Index, error) {
	const query = `
		SELECT
			i.relname AS index_name,
			a.attname AS column_name,
			ix.indisunique
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1
		  AND t.relname = $2
		  AND ix.indisprimary = false
		ORDER BY i.relname, array_position(ix.indkey, a.attnum)
	`

	rows, err := r.db.Query(ctx, query, r.schema, table)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDBQueryFailed, "query indexes", err)
	}
	defer rows.Close()

	idxByName := make(map[string]*models.Index)
	var order []string
	for rows.Next() {
		var name, column string
		var unique bool
		if err := rows.Scan(&name, &column, &unique); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		idx, seen := idxByName[name]
		if !seen {
			idx = &models.Index{Name: name, Unique: unique}
			idxByName[name] = idx
			order = append(order, name)
		}
		idx.Columns = append(idx.Columns, column)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indexes: %w", err)
	}

	indexes := make([]models.Index, 0, len(order))
	for _, name := range order {
		indexes = append(indexes, *idxByName[name])
	}

	return indexes, nil
}

// RowCount returns the exact row count via COUNT(*).
func (r *PostgresReader) RowCount(ctx context.Context, table string) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, qualifiedTableName(r.schema, table))

	var count int64
	if err := r.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, apperrors.Wrap(apperrors.KindDBQueryFailed,
			fmt.Sprintf("count rows of %s", table), err)
	}
	return count, nil
}

// FetchTableData reads up to limit rows in declared column order.
func (r *PostgresReader) FetchTableData(ctx context.Context, table string, limit int) (*TableData, error) {
	query := fmt.Sprintf(`SELECT * FROM %s`, qualifiedTableName(r.schema, table))
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDBQueryFailed,
			fmt.Sprintf("fetch data of %s", table), err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	data := &TableData{Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row of %s: %w", table, err)
		}
		data.Rows = append(data.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows of %s: %w", table, err)
	}

	return data, nil
}

// CheckValueOverlap measures distinct-value containment between two
// columns, comparing as text to allow cross-type candidates.
func (r *PostgresReader) CheckValueOverlap(ctx context.Context, sourceTable, sourceColumn, targetTable, targetColumn string, sampleLimit int) (*ValueOverlap, error) {
	srcTableRef := qualifiedTableName(r.schema, sourceTable)
	tgtTableRef := qualifiedTableName(r.schema, targetTable)
	srcCol := pgx.Identifier{sourceColumn}.Sanitize()
	tgtCol := pgx.Identifier{targetColumn}.Sanitize()

	query := fmt.Sprintf(`
		WITH source_vals AS (
			SELECT DISTINCT %s::text AS val
			FROM %s
			WHERE %s IS NOT NULL
			LIMIT $1
		),
		target_vals AS (
			SELECT DISTINCT %s::text AS val
			FROM %s
			WHERE %s IS NOT NULL
			LIMIT $1
		)
		SELECT
			(SELECT COUNT(*) FROM source_vals) AS source_distinct,
			(SELECT COUNT(*) FROM target_vals) AS target_distinct,
			(SELECT COUNT(*) FROM source_vals s JOIN target_vals t ON s.val = t.val) AS matched_count
	`, srcCol, srcTableRef, srcCol, tgtCol, tgtTableRef, tgtCol)

	var result ValueOverlap
	row := r.db.QueryRow(ctx, query, sampleLimit)
	if err := row.Scan(&result.SourceDistinct, &result.TargetDistinct, &result.MatchedCount); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDBQueryFailed, "check value overlap", err)
	}

	if result.SourceDistinct > 0 {
		result.Ratio = float64(result.MatchedCount) / float64(result.SourceDistinct)
	}

	return &result, nil
}

// Execute runs a validated read-only statement and preserves the
// projection order of the result.
func (r *PostgresReader) Execute(ctx context.Context, query string) (*QueryResult, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSQLExecFailed, "execute query", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result := &QueryResult{Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read result row: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = values[i]
		}
		result.Rows = append(result.Rows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}

	return result, nil
}

// Close releases the connection pool.
func (r *PostgresReader) Close() {
	r.db.Close()
}

var _ Reader = (*PostgresReader)(nil)
