// Package pipeline implements the staged schema-enrichment pipeline:
// extraction, profiling, relationship detection, fingerprinting,
// assembly, LLM enrichment, graph build. Each phase reads the previous phase's
// artifact and writes its own atomically, so runs are restartable at
// phase granularity.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/datasource"
	"github.com/luminadata/schemagraph/pkg/models"
)

// Extractor builds the raw structural snapshot of a client database.
type Extractor struct {
	reader datasource.Reader
	logger *zap.Logger
}

// NewExtractor creates the extraction phase.
func NewExtractor(reader datasource.Reader, logger *zap.Logger) *Extractor {
	return &Extractor{
		reader: reader,
		logger: logger.Named("extract"),
	}
}

// Extract introspects every base table: columns in declaration order,
// primary key, unique constraints, indexes, foreign keys with derived
// cardinality, and an exact row count. A failed row count becomes
// count 0 with a recorded warning; the table is still included.
func (e *Extractor) Extract(ctx context.Context) (*models.RawSchema, error) {
	tables, err := e.reader.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	raw := &models.RawSchema{Tables: make(map[string]*models.TableSchema, len(tables))}
	for _, table := range tables {
		ts, err := e.reader.DescribeTable(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("describe table %s: %w", table, err)
		}

		count, err := e.reader.RowCount(ctx, table)
		if err != nil {
			e.logger.Warn("row count failed, recording zero",
				zap.String("table", table),
				zap.Error(err))
			ts.RowCount = 0
			ts.Warnings = append(ts.Warnings, fmt.Sprintf("row count failed: %v", err))
		} else {
			ts.RowCount = count
		}

		for i := range ts.ForeignKeys {
			ts.ForeignKeys[i].Cardinality = fkCardinality(ts.ForeignKeys[i].Columns, ts.UniqueConstraints)
		}

		raw.Tables[table] = ts
	}

	e.logger.Info("schema extracted", zap.Int("tables", len(raw.Tables)))
	return raw, nil
}

// fkCardinality is 1:1 iff the FK column set equals some
// unique-constraint column set on the referring table, else 1:n.
func fkCardinality(fkColumns []string, uniqueSets [][]string) models.FKCardinality {
	for _, set := range uniqueSets {
		if sameColumnSet(fkColumns, set) {
			return models.CardinalityOneToOne
		}
	}
	return models.CardinalityOneToN
}

func sameColumnSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, col := range a {
		seen[col] = true
	}
	for _, col := range b {
		if !seen[col] {
			return false
		}
	}
	return true
}
