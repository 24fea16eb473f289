// Package graph lowers the semantic layer into the typed multi-layer
// knowledge graph: client root, business domains, entities, tables,
// columns, and quality metrics, plus foreign-key edges between tables.
package graph

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/models"
)

const graphVersion = "1.5"

// Domain keyword map, checked in order. Tables matching no keyword
// fall into the general domain so every table is reachable from the
// client root.
var domainKeywords = []struct {
	keyword string
	domain  string
}{
	{"incident", models.DomainIncidentTracking},
	{"corrective", models.DomainEHSCompliance},
	{"facility", models.DomainFacilityOperations},
	{"employee", models.DomainPersonnelManagement},
}

// Audit column names, matched exactly.
var auditColumns = map[string]bool{
	"created_at":      true,
	"updated_at":      true,
	"created_by":      true,
	"updated_by":      true,
	"last_updated_at": true,
}

// Geospatial column names, matched exactly.
var geoColumns = map[string]bool{
	"latitude":    true,
	"longitude":   true,
	"coordinates": true,
}

// Builder derives the knowledge graph from an enriched semantic layer.
type Builder struct {
	logger *zap.Logger
}

// NewBuilder creates the graph building phase.
func NewBuilder(logger *zap.Logger) *Builder {
	return &Builder{logger: logger.Named("graph")}
}

// Build produces the portable graph. The dump is fully deterministic:
// nodes are ordered by layer then ID, edges by kind then endpoints, so
// rebuilding from the same semantic layer yields an identical artifact
// apart from the timestamp.
func (b *Builder) Build(layer *models.SemanticLayer) *models.KnowledgeGraph {
	kg := &models.KnowledgeGraph{
		Version:     graphVersion,
		ClientID:    layer.ClientID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}

	tableNames := sortedTableNames(layer)

	kg.Nodes = append(kg.Nodes, models.GraphNode{
		ID:    layer.ClientID,
		Layer: models.LayerClient,
		Kind:  "client",
		Name:  layer.ClientID,
		Props: map[string]any{"description": "Database root node"},
	})

	domains := make(map[string][]string)
	for _, name := range tableNames {
		domains[DomainFor(name)] = append(domains[DomainFor(name)], name)
	}
	domainNames := make([]string, 0, len(domains))
	for d := range domains {
		domainNames = append(domainNames, d)
	}
	sort.Strings(domainNames)

	for _, domain := range domainNames {
		domainID := "domain_" + domain
		entityID := "entity_" + domain
		kg.Nodes = append(kg.Nodes, models.GraphNode{
			ID:    domainID,
			Layer: models.LayerDomain,
			Kind:  "domain",
			Name:  domain,
		})
		kg.Nodes = append(kg.Nodes, models.GraphNode{
			ID:    entityID,
			Layer: models.LayerEntity,
			Kind:  "business_entity",
			Name:  domain,
			Props: map[string]any{"table_count": len(domains[domain])},
		})
		kg.Edges = append(kg.Edges,
			models.GraphEdge{Source: layer.ClientID, Target: domainID, Kind: models.EdgeContainsDomain},
			models.GraphEdge{Source: domainID, Target: entityID, Kind: models.EdgeDefinesEntity},
		)
	}

	for _, name := range tableNames {
		table := layer.Tables[name]
		quality := DataQualityScore(table)

		kg.Nodes = append(kg.Nodes, models.GraphNode{
			ID:    name,
			Layer: models.LayerTable,
			Kind:  "table",
			Name:  name,
			Props: map[string]any{
				"role":               string(table.Role),
				"row_count":          table.RowCount,
				"column_count":       table.ColumnCount,
				"description":        table.Description,
				"data_quality_score": quality,
				"has_temporal":       table.HasTemporal,
				"has_geospatial":     table.HasGeospatial,
				"risk_profile":       string(table.RiskProfile),
				"cluster_id":         table.ClusterID,
			},
		})
		kg.Edges = append(kg.Edges, models.GraphEdge{
			Source: "entity_" + DomainFor(name),
			Target: name,
			Kind:   models.EdgeHasTable,
		})

		for _, col := range table.Columns {
			colID := name + ":" + col.Name
			kg.Nodes = append(kg.Nodes, models.GraphNode{
				ID:    colID,
				Layer: models.LayerColumn,
				Kind:  "column",
				Name:  col.Name,
				Props: map[string]any{
					"data_type":    col.DataType,
					"nullable":     col.Nullable,
					"column_role":  string(ClassifyColumn(col)),
					"null_pct":     floatOrZero(col.NullPct),
					"distinct_pct": floatOrZero(col.DistinctPct),
				},
			})
			kg.Edges = append(kg.Edges, models.GraphEdge{
				Source: name,
				Target: colID,
				Kind:   models.EdgeHasColumn,
			})
		}

		metricID := "quality_" + name
		kg.Nodes = append(kg.Nodes, models.GraphNode{
			ID:    metricID,
			Layer: models.LayerMetric,
			Kind:  "metric",
			Name:  "data_quality",
			Props: map[string]any{"score": quality},
		})
		kg.Edges = append(kg.Edges, models.GraphEdge{
			Source: name,
			Target: metricID,
			Kind:   models.EdgeHasMetric,
		})
	}

	for _, name := range tableNames {
		for _, rel := range layer.Tables[name].Relationships {
			kg.Edges = append(kg.Edges, models.GraphEdge{
				Source: rel.SourceTable,
				Target: rel.TargetTable,
				Kind:   models.EdgeForeignKey,
				Props: map[string]any{
					"source_column": rel.SourceColumn,
					"target_column": rel.TargetColumn,
					"cardinality":   string(EdgeCardinality(layer, rel)),
					"semantic_role": string(SemanticRole(layer, rel)),
					"confidence":    rel.Confidence,
					"evidence":      rel.Evidence,
				},
			})
		}
	}

	sort.Slice(kg.Nodes, func(i, j int) bool {
		if kg.Nodes[i].Layer != kg.Nodes[j].Layer {
			return kg.Nodes[i].Layer < kg.Nodes[j].Layer
		}
		return kg.Nodes[i].ID < kg.Nodes[j].ID
	})
	sort.Slice(kg.Edges, func(i, j int) bool {
		a, c := kg.Edges[i], kg.Edges[j]
		if a.Kind != c.Kind {
			return a.Kind < c.Kind
		}
		if a.Source != c.Source {
			return a.Source < c.Source
		}
		if a.Target != c.Target {
			return a.Target < c.Target
		}
		return colProp(a) < colProp(c)
	})

	b.logger.Info("knowledge graph built",
		zap.String("client_id", layer.ClientID),
		zap.Int("nodes", len(kg.Nodes)),
		zap.Int("edges", len(kg.Edges)))

	return kg
}

// colProp disambiguates parallel foreign-key edges between the same
// table pair during the deterministic sort.
func colProp(e models.GraphEdge) string {
	if e.Props == nil {
		return ""
	}
	s, _ := e.Props["source_column"].(string)
	return s
}

// Summarize derives the companion summary artifact from the layer and
// the built graph.
func (b *Builder) Summarize(layer *models.SemanticLayer, kg *models.KnowledgeGraph) *models.GraphSummary {
	summary := &models.GraphSummary{
		ClientID:     kg.ClientID,
		GeneratedAt:  kg.GeneratedAt,
		NodeCount:    len(kg.Nodes),
		EdgeCount:    len(kg.Edges),
		NodesByLayer: make(map[string]int),
		EdgesByKind:  make(map[string]int),
		Tables:       make(map[string]models.TableGraphSummary, len(layer.Tables)),
	}

	layerKeys := map[models.GraphLayer]string{
		models.LayerClient: "layer_0_client",
		models.LayerDomain: "layer_1_domains",
		models.LayerEntity: "layer_2_entities",
		models.LayerTable:  "layer_3_tables",
		models.LayerColumn: "layer_4_columns",
		models.LayerMetric: "layer_5_metrics",
	}
	for _, n := range kg.Nodes {
		summary.NodesByLayer[layerKeys[n.Layer]]++
		if n.Kind == "domain" {
			summary.Domains = append(summary.Domains, n.Name)
		}
	}
	sort.Strings(summary.Domains)

	for _, e := range kg.Edges {
		summary.EdgesByKind[e.Kind]++
	}

	for name, table := range layer.Tables {
		summary.Tables[name] = models.TableGraphSummary{
			Name:             name,
			Role:             string(table.Role),
			Domain:           DomainFor(name),
			RowCount:         table.RowCount,
			ColumnCount:      table.ColumnCount,
			DataQualityScore: DataQualityScore(table),
			Relationships:    len(table.Relationships),
		}
	}

	return summary
}

// DomainFor classifies a table into a business domain by name keyword.
func DomainFor(table string) string {
	lower := strings.ToLower(table)
	for _, dk := range domainKeywords {
		if strings.Contains(lower, dk.keyword) {
			return dk.domain
		}
	}
	return models.DomainGeneral
}

// ClassifyColumn assigns the semantic column role, most specific rule
// first.
func ClassifyColumn(col models.SemanticColumn) models.ColumnRole {
	name := strings.ToLower(col.Name)
	dataType := strings.ToLower(col.DataType)

	switch {
	case col.IsKey:
		return models.ColumnRolePrimaryKey
	case strings.HasSuffix(name, "_id") || strings.HasPrefix(name, "fk_"):
		return models.ColumnRoleForeignKey
	case strings.HasPrefix(dataType, "timestamp") || strings.HasPrefix(dataType, "date") || strings.HasPrefix(dataType, "time"):
		return models.ColumnRoleTemporal
	case geoColumns[name]:
		return models.ColumnRoleGeospatial
	case strings.Contains(name, "status"):
		return models.ColumnRoleStatus
	case auditColumns[name]:
		return models.ColumnRoleAudit
	case isMeasureType(dataType):
		return models.ColumnRoleMeasure
	case strings.Contains(dataType, "char") || strings.Contains(dataType, "text"):
		return models.ColumnRoleText
	default:
		return models.ColumnRoleAttribute
	}
}

func isMeasureType(dataType string) bool {
	for _, hint := range []string{"int", "numeric", "decimal", "float", "double", "real"} {
		if strings.Contains(dataType, hint) {
			return true
		}
	}
	return false
}

// DataQualityScore averages per-column completeness, key uniqueness,
// and value consistency. Tables with no columns score the neutral 0.95.
func DataQualityScore(table *models.SemanticTable) float64 {
	if len(table.Columns) == 0 {
		return 0.95
	}

	var sum float64
	for _, col := range table.Columns {
		completeness := (100 - floatOrZero(col.NullPct)) / 100
		uniqueness := 1.0
		if col.IsKey {
			uniqueness = floatOrZero(col.DistinctPct) / 100
		}
		consistency := 1.0
		if floatOrZero(col.DistinctPct) < 5 {
			consistency = 0.95
		}
		sum += 0.5*completeness + 0.3*uniqueness + 0.2*consistency
	}
	return sum / float64(len(table.Columns))
}

// EdgeCardinality is M:1 when a non-key column references a key
// column, else 1:M.
func EdgeCardinality(layer *models.SemanticLayer, rel models.Relationship) models.GraphCardinality {
	source := columnOf(layer, rel.SourceTable, rel.SourceColumn)
	target := columnOf(layer, rel.TargetTable, rel.TargetColumn)
	if source != nil && target != nil && target.IsKey && !source.IsKey {
		return models.CardinalityManyToOne
	}
	return models.CardinalityOneToMany
}

// SemanticRole names what a foreign-key edge means: detail rows
// pointing at their header, children pointing at a dimension parent,
// or a plain reference.
func SemanticRole(layer *models.SemanticLayer, rel models.Relationship) models.SemanticEdgeRole {
	if strings.Contains(strings.ToLower(rel.SourceTable), "detail") {
		return models.EdgeRoleDetailToHeader
	}
	if target, ok := layer.Tables[rel.TargetTable]; ok && target.Role == models.RoleDimension {
		return models.EdgeRoleChildToParent
	}
	return models.EdgeRoleReference
}

func columnOf(layer *models.SemanticLayer, table, column string) *models.SemanticColumn {
	t, ok := layer.Tables[table]
	if !ok {
		return nil
	}
	return t.ColumnByName(column)
}

func sortedTableNames(layer *models.SemanticLayer) []string {
	names := make([]string, 0, len(layer.Tables))
	for name := range layer.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func floatOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
