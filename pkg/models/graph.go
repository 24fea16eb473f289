package models

// GraphLayer partitions knowledge-graph nodes by abstraction level,
// client root at the top, per-table quality metrics at the bottom.
type GraphLayer int

const (
	LayerClient GraphLayer = iota
	LayerDomain
	LayerEntity
	LayerTable
	LayerColumn
	LayerMetric
)

// BusinessDomain tags recognized by the domain keyword map.
const (
	DomainIncidentTracking    = "incident_tracking"
	DomainEHSCompliance       = "ehs_compliance"
	DomainFacilityOperations  = "facility_operations"
	DomainPersonnelManagement = "personnel_management"
	DomainGeneral             = "general"
)

// ColumnRole classifies a column node's function inside its table.
type ColumnRole string

const (
	ColumnRolePrimaryKey ColumnRole = "primary_key"
	ColumnRoleForeignKey ColumnRole = "foreign_key"
	ColumnRoleTemporal   ColumnRole = "temporal"
	ColumnRoleGeospatial ColumnRole = "geospatial"
	ColumnRoleStatus     ColumnRole = "status"
	ColumnRoleAudit      ColumnRole = "audit"
	ColumnRoleMeasure    ColumnRole = "measure"
	ColumnRoleText       ColumnRole = "text"
	ColumnRoleAttribute  ColumnRole = "attribute"
)

// GraphCardinality is the directionality of a foreign-key edge as seen
// from the referring side.
type GraphCardinality string

const (
	CardinalityManyToOne GraphCardinality = "M:1"
	CardinalityOneToMany GraphCardinality = "1:M"
)

// SemanticEdgeRole describes what a foreign-key edge means between two
// table nodes.
type SemanticEdgeRole string

const (
	EdgeRoleDetailToHeader SemanticEdgeRole = "detail_to_header"
	EdgeRoleChildToParent  SemanticEdgeRole = "child_to_parent"
	EdgeRoleReference      SemanticEdgeRole = "reference"
)

// Edge kinds of the knowledge graph.
const (
	EdgeContainsDomain = "contains_domain"
	EdgeDefinesEntity  = "defines_entity"
	EdgeHasTable       = "has_table"
	EdgeHasColumn      = "has_column"
	EdgeHasMetric      = "has_metric"
	EdgeForeignKey     = "foreign_key"
)

// GraphNode is a node in the portable knowledge graph. ID is unique
// within a client's graph and stable across rebuilds of the same input.
type GraphNode struct {
	ID    string         `json:"id"`
	Layer GraphLayer     `json:"layer"`
	Kind  string         `json:"kind"`
	Name  string         `json:"name"`
	Props map[string]any `json:"props,omitempty"`
}

// GraphEdge connects two nodes by ID.
type GraphEdge struct {
	Source string         `json:"source"`
	Target string         `json:"target"`
	Kind   string         `json:"kind"`
	Props  map[string]any `json:"props,omitempty"`
}

// KnowledgeGraph is the phase-7 portable artifact: every node and edge,
// ordered deterministically so rebuilds from the same semantic layer
// are byte-identical.
type KnowledgeGraph struct {
	Version     string      `json:"version"`
	ClientID    string      `json:"client_id"`
	GeneratedAt string      `json:"generated_at"`
	Nodes       []GraphNode `json:"nodes"`
	Edges       []GraphEdge `json:"edges"`
}

// NodesInLayer returns the nodes of one layer in dump order.
func (g *KnowledgeGraph) NodesInLayer(layer GraphLayer) []GraphNode {
	var out []GraphNode
	for _, n := range g.Nodes {
		if n.Layer == layer {
			out = append(out, n)
		}
	}
	return out
}

// TableGraphSummary is the per-table entry of the summary artifact.
type TableGraphSummary struct {
	Name             string  `json:"name"`
	Role             string  `json:"role"`
	Domain           string  `json:"domain"`
	RowCount         int64   `json:"row_count"`
	ColumnCount      int     `json:"column_count"`
	DataQualityScore float64 `json:"data_quality_score"`
	Relationships    int     `json:"relationships"`
}

// GraphSummary is the companion artifact to the full graph dump.
type GraphSummary struct {
	ClientID     string                       `json:"client_id"`
	GeneratedAt  string                       `json:"generated_at"`
	NodeCount    int                          `json:"node_count"`
	EdgeCount    int                          `json:"edge_count"`
	NodesByLayer map[string]int               `json:"nodes_by_layer"`
	EdgesByKind  map[string]int               `json:"edges_by_kind"`
	Domains      []string                     `json:"domains"`
	Tables       map[string]TableGraphSummary `json:"tables"`
}
