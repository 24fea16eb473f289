// Package schemactx materializes the compact textual schema view the
// conversational engine pins into its system prompt.
package schemactx

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/models"
)

// maxColumnsPerTable caps the column list per table to keep the
// context inside the prompt token budget.
const maxColumnsPerTable = 20

// ColumnInfo is one column of a table as the context needs it.
type ColumnInfo struct {
	Name     string
	DataType string
}

// Join is an outgoing foreign-key reference of a table.
type Join struct {
	TargetTable  string
	TargetColumn string
}

// GraphReader is the read surface the context builder needs from a
// knowledge graph, queryable or portable.
type GraphReader interface {
	// Tables returns the client's table names in deterministic order.
	Tables(ctx context.Context, clientID string) ([]string, error)
	// Columns returns a table's columns in deterministic order.
	Columns(ctx context.Context, clientID, table string) ([]ColumnInfo, error)
	// Joins returns a table's outgoing foreign-key references.
	Joins(ctx context.Context, clientID, table string) ([]Join, error)
}

// Builder renders the schema context string.
type Builder struct {
	reader GraphReader
	logger *zap.Logger
}

// NewBuilder creates a context builder over a graph reader.
func NewBuilder(reader GraphReader, logger *zap.Logger) *Builder {
	return &Builder{
		reader: reader,
		logger: logger.Named("schemactx"),
	}
}

// Build renders one block per table:
//
//	TABLE <name>:
//	  Columns: <col> (<type>), ...
//	  Joins to: <target>(<target_col>), ...
//
// The output is deterministic for a given graph so identical requests
// see identical system prompts.
func (b *Builder) Build(ctx context.Context, clientID string) (string, error) {
	tables, err := b.reader.Tables(ctx, clientID)
	if err != nil {
		return "", fmt.Errorf("list graph tables: %w", err)
	}

	var blocks []string
	for _, table := range tables {
		columns, err := b.reader.Columns(ctx, clientID, table)
		if err != nil {
			return "", fmt.Errorf("graph columns for %s: %w", table, err)
		}
		joins, err := b.reader.Joins(ctx, clientID, table)
		if err != nil {
			return "", fmt.Errorf("graph joins for %s: %w", table, err)
		}
		blocks = append(blocks, renderTable(table, columns, joins))
	}

	b.logger.Debug("schema context built",
		zap.String("client_id", clientID),
		zap.Int("tables", len(tables)))

	return strings.Join(blocks, "\n"), nil
}

func renderTable(table string, columns []ColumnInfo, joins []Join) string {
	var b strings.Builder

	specs := make([]string, 0, len(columns))
	for _, col := range columns {
		specs = append(specs, fmt.Sprintf("%s (%s)", col.Name, col.DataType))
	}

	fmt.Fprintf(&b, "TABLE %s:\n", table)
	shown := specs
	if len(shown) > maxColumnsPerTable {
		shown = shown[:maxColumnsPerTable]
	}
	fmt.Fprintf(&b, "  Columns: %s", strings.Join(shown, ", "))
	if hidden := len(specs) - maxColumnsPerTable; hidden > 0 {
		fmt.Fprintf(&b, " ... +%d more", hidden)
	}
	b.WriteString("\n")

	if len(joins) > 0 {
		specs := make([]string, 0, len(joins))
		for _, j := range joins {
			specs = append(specs, fmt.Sprintf("%s(%s)", j.TargetTable, j.TargetColumn))
		}
		fmt.Fprintf(&b, "  Joins to: %s\n", strings.Join(specs, ", "))
	}

	return b.String()
}

// PortableReader serves the GraphReader surface from a portable
// knowledge-graph dump, for engines that run without a graph store.
type PortableReader struct {
	graph *models.KnowledgeGraph
}

// NewPortableReader wraps a loaded portable graph.
func NewPortableReader(graph *models.KnowledgeGraph) *PortableReader {
	return &PortableReader{graph: graph}
}

// Tables implements GraphReader.
func (r *PortableReader) Tables(ctx context.Context, clientID string) ([]string, error) {
	var tables []string
	for _, n := range r.graph.Nodes {
		if n.Layer == models.LayerTable {
			tables = append(tables, n.Name)
		}
	}
	sort.Strings(tables)
	return tables, nil
}

// Columns implements GraphReader.
func (r *PortableReader) Columns(ctx context.Context, clientID, table string) ([]ColumnInfo, error) {
	prefix := table + ":"
	var cols []ColumnInfo
	for _, n := range r.graph.Nodes {
		if n.Layer != models.LayerColumn || !strings.HasPrefix(n.ID, prefix) {
			continue
		}
		dataType, _ := n.Props["data_type"].(string)
		cols = append(cols, ColumnInfo{Name: n.Name, DataType: dataType})
	}
	return cols, nil
}

// Joins implements GraphReader.
func (r *PortableReader) Joins(ctx context.Context, clientID, table string) ([]Join, error) {
	var joins []Join
	for _, e := range r.graph.Edges {
		if e.Kind != models.EdgeForeignKey || e.Source != table {
			continue
		}
		targetCol, _ := e.Props["target_column"].(string)
		joins = append(joins, Join{TargetTable: e.Target, TargetColumn: targetCol})
	}
	return joins, nil
}

var _ GraphReader = (*PortableReader)(nil)
