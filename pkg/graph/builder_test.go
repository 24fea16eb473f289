package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/models"
)

func fp(f float64) *float64 { return &f }

func graphLayer() *models.SemanticLayer {
	return &models.SemanticLayer{
		Version:  "1.5",
		ClientID: "acme",
		Tables: map[string]*models.SemanticTable{
			"incidents": {
				Name:        "incidents",
				RowCount:    500,
				ColumnCount: 4,
				PrimaryKey:  []string{"incident_id"},
				Role:        models.RoleHub,
				HasTemporal: true,
				Columns: []models.SemanticColumn{
					{Name: "incident_id", DataType: "integer", IsKey: true, NullPct: fp(0), DistinctPct: fp(100)},
					{Name: "emp_id", DataType: "integer", NullPct: fp(0), DistinctPct: fp(40)},
					{Name: "occurred_at", DataType: "timestamp without time zone", NullPct: fp(0), DistinctPct: fp(90)},
					{Name: "status", DataType: "text", NullPct: fp(0), DistinctPct: fp(2)},
				},
				Relationships: []models.Relationship{
					{
						SourceTable: "incidents", SourceColumn: "emp_id",
						TargetTable: "employees", TargetColumn: "emp_id",
						Type: models.RelationshipExplicit, Confidence: 1.0,
						Evidence: "foreign_key_constraint",
					},
				},
			},
			"employees": {
				Name:        "employees",
				RowCount:    100,
				ColumnCount: 2,
				PrimaryKey:  []string{"emp_id"},
				Role:        models.RoleDimension,
				Columns: []models.SemanticColumn{
					{Name: "emp_id", DataType: "integer", IsKey: true, NullPct: fp(0), DistinctPct: fp(100)},
					{Name: "name", DataType: "text", NullPct: fp(0), DistinctPct: fp(98)},
				},
			},
			"warehouses": {
				Name:        "warehouses",
				RowCount:    3,
				ColumnCount: 1,
				Role:        models.RoleUnknown,
				Columns: []models.SemanticColumn{
					{Name: "code", DataType: "text", NullPct: fp(0), DistinctPct: fp(100)},
				},
			},
		},
	}
}

func TestDomainFor(t *testing.T) {
	assert.Equal(t, models.DomainIncidentTracking, DomainFor("incidents"))
	assert.Equal(t, models.DomainEHSCompliance, DomainFor("corrective_actions"))
	assert.Equal(t, models.DomainFacilityOperations, DomainFor("facility_zones"))
	assert.Equal(t, models.DomainPersonnelManagement, DomainFor("employees"))
	assert.Equal(t, models.DomainGeneral, DomainFor("warehouses"))
}

func TestClassifyColumn(t *testing.T) {
	tests := []struct {
		name string
		col  models.SemanticColumn
		want models.ColumnRole
	}{
		{"primary key wins", models.SemanticColumn{Name: "emp_id", DataType: "integer", IsKey: true}, models.ColumnRolePrimaryKey},
		{"fk by suffix", models.SemanticColumn{Name: "facility_id", DataType: "integer"}, models.ColumnRoleForeignKey},
		{"fk by prefix", models.SemanticColumn{Name: "fk_parent", DataType: "integer"}, models.ColumnRoleForeignKey},
		{"temporal", models.SemanticColumn{Name: "occurred_at", DataType: "timestamp with time zone"}, models.ColumnRoleTemporal},
		{"geospatial", models.SemanticColumn{Name: "latitude", DataType: "numeric"}, models.ColumnRoleGeospatial},
		{"status", models.SemanticColumn{Name: "review_status", DataType: "text"}, models.ColumnRoleStatus},
		{"audit", models.SemanticColumn{Name: "created_by", DataType: "text"}, models.ColumnRoleAudit},
		{"measure", models.SemanticColumn{Name: "amount", DataType: "numeric"}, models.ColumnRoleMeasure},
		{"text", models.SemanticColumn{Name: "narrative", DataType: "character varying"}, models.ColumnRoleText},
		{"attribute fallback", models.SemanticColumn{Name: "payload", DataType: "jsonb"}, models.ColumnRoleAttribute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyColumn(tt.col))
		})
	}
}

func TestDataQualityScore(t *testing.T) {
	table := &models.SemanticTable{
		Columns: []models.SemanticColumn{
			// Key column: 0.5*1 + 0.3*1 + 0.2*1 = 1.0
			{Name: "id", IsKey: true, NullPct: fp(0), DistinctPct: fp(100)},
			// Half-null enum: 0.5*0.5 + 0.3*1 + 0.2*0.95 = 0.74
			{Name: "state", NullPct: fp(50), DistinctPct: fp(2)},
		},
	}
	assert.InDelta(t, 0.87, DataQualityScore(table), 1e-9)

	assert.Equal(t, 0.95, DataQualityScore(&models.SemanticTable{}))
}

func TestEdgeCardinalityAndSemanticRole(t *testing.T) {
	layer := graphLayer()
	rel := layer.Tables["incidents"].Relationships[0]

	// Non-key column referencing a key column.
	assert.Equal(t, models.CardinalityManyToOne, EdgeCardinality(layer, rel))
	// Target is a dimension.
	assert.Equal(t, models.EdgeRoleChildToParent, SemanticRole(layer, rel))

	detail := models.Relationship{SourceTable: "incident_details", TargetTable: "incidents"}
	assert.Equal(t, models.EdgeRoleDetailToHeader, SemanticRole(layer, detail))

	plain := models.Relationship{SourceTable: "incidents", TargetTable: "warehouses"}
	assert.Equal(t, models.EdgeRoleReference, SemanticRole(layer, plain))
}

func TestBuild_LayersAndEdges(t *testing.T) {
	kg := NewBuilder(zap.NewNop()).Build(graphLayer())

	assert.Equal(t, "acme", kg.ClientID)
	require.Len(t, kg.NodesInLayer(models.LayerClient), 1)

	// incidents, employees, warehouses span three domains.
	assert.Len(t, kg.NodesInLayer(models.LayerDomain), 3)
	assert.Len(t, kg.NodesInLayer(models.LayerEntity), 3)
	assert.Len(t, kg.NodesInLayer(models.LayerTable), 3)
	assert.Len(t, kg.NodesInLayer(models.LayerColumn), 7)
	assert.Len(t, kg.NodesInLayer(models.LayerMetric), 3)

	byKind := make(map[string]int)
	for _, e := range kg.Edges {
		byKind[e.Kind]++
	}
	assert.Equal(t, 3, byKind[models.EdgeContainsDomain])
	assert.Equal(t, 3, byKind[models.EdgeDefinesEntity])
	assert.Equal(t, 3, byKind[models.EdgeHasTable])
	assert.Equal(t, 7, byKind[models.EdgeHasColumn])
	assert.Equal(t, 3, byKind[models.EdgeHasMetric])
	assert.Equal(t, 1, byKind[models.EdgeForeignKey])

	var fk models.GraphEdge
	for _, e := range kg.Edges {
		if e.Kind == models.EdgeForeignKey {
			fk = e
		}
	}
	assert.Equal(t, "incidents", fk.Source)
	assert.Equal(t, "employees", fk.Target)
	assert.Equal(t, "M:1", fk.Props["cardinality"])
	assert.Equal(t, "child_to_parent", fk.Props["semantic_role"])
	assert.Equal(t, 1.0, fk.Props["confidence"])
}

func TestBuild_Deterministic(t *testing.T) {
	builder := NewBuilder(zap.NewNop())
	a := builder.Build(graphLayer())
	b := builder.Build(graphLayer())

	assert.Equal(t, a.Nodes, b.Nodes)
	assert.Equal(t, a.Edges, b.Edges)
}

func TestSummarize(t *testing.T) {
	builder := NewBuilder(zap.NewNop())
	layer := graphLayer()
	kg := builder.Build(layer)

	summary := builder.Summarize(layer, kg)
	assert.Equal(t, len(kg.Nodes), summary.NodeCount)
	assert.Equal(t, len(kg.Edges), summary.EdgeCount)
	assert.Equal(t, 1, summary.NodesByLayer["layer_0_client"])
	assert.Equal(t, 3, summary.NodesByLayer["layer_3_tables"])
	assert.Equal(t, []string{
		models.DomainGeneral,
		models.DomainIncidentTracking,
		models.DomainPersonnelManagement,
	}, summary.Domains)

	incidents := summary.Tables["incidents"]
	assert.Equal(t, "hub", incidents.Role)
	assert.Equal(t, models.DomainIncidentTracking, incidents.Domain)
	assert.Equal(t, 1, incidents.Relationships)
}
