package models

// SemanticColumn flattens structural and statistical knowledge about one
// column into the semantic layer.
type SemanticColumn struct {
	Name        string   `json:"name"`
	DataType    string   `json:"data_type"`
	Nullable    bool     `json:"nullable"`
	Comment     *string  `json:"comment"`
	IsKey       bool     `json:"is_key"`
	NullPct     *float64 `json:"null_pct"`
	DistinctPct *float64 `json:"distinct_pct"`
	Min         *float64 `json:"min"`
	Max         *float64 `json:"max"`
	Samples     []string `json:"samples"`
}

// SemanticTable is one table entry of the semantic layer: RawSchema +
// ColumnProfile + Fingerprint flattened, with relationships grouped by
// source table, plus the LLM description added by the enricher.
type SemanticTable struct {
	Name        string   `json:"name"`
	RowCount    int64    `json:"row_count"`
	ColumnCount int      `json:"column_count"`
	PrimaryKey  []string `json:"primary_key"`

	Role            TableRole   `json:"role"`
	RiskProfile     RiskProfile `json:"risk_profile"`
	RedlineComments []string    `json:"redline_comments"`
	ClusterID       string      `json:"cluster_id"`
	HasTemporal     bool        `json:"has_temporal"`
	HasGeospatial   bool        `json:"has_geospatial"`

	Columns       []SemanticColumn `json:"columns"`
	Relationships []Relationship   `json:"relationships"`

	// Set by the enricher.
	Description            string `json:"description,omitempty"`
	DescriptionGeneratedAt string `json:"description_generated_at,omitempty"`
	DescriptionSource      string `json:"description_source,omitempty"`
}

// LayerSummary carries aggregate counts over the semantic layer. It is
// recomputed on assembly, never read back.
type LayerSummary struct {
	TotalTables        int `json:"total_tables"`
	TotalColumns       int `json:"total_columns"`
	TotalRelationships int `json:"total_relationships"`
	HighRiskTables     int `json:"high_risk_tables"`
	OrphanTables       int `json:"orphan_tables"`
	HubTables          int `json:"hub_tables"`
	DimensionTables    int `json:"dimension_tables"`
	DetailTables       int `json:"detail_tables"`
	TemporalTables     int `json:"temporal_tables"`
	GeospatialTables   int `json:"geospatial_tables"`
}

// SemanticLayer is the phase-5 artifact, enriched in place by phase 6.
type SemanticLayer struct {
	Version     string                    `json:"version"`
	ClientID    string                    `json:"client_id"`
	GeneratedAt string                    `json:"generated_at"`
	Tables      map[string]*SemanticTable `json:"tables"`
	Summary     LayerSummary              `json:"summary"`
}

// ColumnByName returns the named semantic column, or nil.
func (t *SemanticTable) ColumnByName(name string) *SemanticColumn {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}
