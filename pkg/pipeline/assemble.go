package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/models"
)

// semanticLayerVersion marks the assembly format carried in the
// artifact.
const semanticLayerVersion = "1.5"

// Assembler merges the four upstream artifacts into the semantic layer.
type Assembler struct {
	logger *zap.Logger
}

// NewAssembler creates the assembly phase.
func NewAssembler(logger *zap.Logger) *Assembler {
	return &Assembler{logger: logger.Named("assemble")}
}

// Assemble is a deterministic merge: structural schema flattened with
// profile statistics and fingerprints, relationships grouped by source
// table, summary recomputed from scratch.
func (a *Assembler) Assemble(clientID string, raw *models.RawSchema, profiles models.ProfileSet, rels *models.RelationshipSet, fps models.FingerprintSet) *models.SemanticLayer {
	layer := &models.SemanticLayer{
		Version:     semanticLayerVersion,
		ClientID:    clientID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Tables:      make(map[string]*models.SemanticTable, len(raw.Tables)),
	}

	for name, ts := range raw.Tables {
		fp := fps[name]
		if fp == nil {
			fp = &models.Fingerprint{
				Role:        models.RoleUnknown,
				RiskProfile: models.RiskLow,
				ClusterID:   models.OrphanCluster,
			}
		}

		entry := &models.SemanticTable{
			Name:        name,
			RowCount:    ts.RowCount,
			ColumnCount: len(ts.Columns),
			PrimaryKey:  ts.PrimaryKey,

			Role:            fp.Role,
			RiskProfile:     fp.RiskProfile,
			RedlineComments: fp.RedlineComments,
			ClusterID:       fp.ClusterID,
			HasTemporal:     fp.HasTemporal,
			HasGeospatial:   fp.HasGeospatial,

			Relationships: rels.EdgesBySource[name],
		}

		tableProfiles := profiles[name]
		for _, col := range ts.Columns {
			entry.Columns = append(entry.Columns, assembleColumn(ts, col, tableProfiles))
		}

		layer.Tables[name] = entry
	}

	layer.Summary = computeSummary(layer)

	a.logger.Info("semantic layer assembled",
		zap.String("client_id", clientID),
		zap.Int("tables", layer.Summary.TotalTables),
		zap.Int("relationships", layer.Summary.TotalRelationships))

	return layer
}

func assembleColumn(ts *models.TableSchema, col models.Column, tableProfiles map[string]*models.ColumnProfile) models.SemanticColumn {
	sc := models.SemanticColumn{
		Name:     col.Name,
		DataType: col.SQLType,
		Nullable: col.Nullable,
		Comment:  col.Comment,
		IsKey:    ts.IsPrimaryKey(col.Name),
	}

	profile, ok := tableProfiles[col.Name]
	if !ok || profile.Error != "" {
		return sc
	}

	nullPct := profile.NullPct
	sc.NullPct = &nullPct
	if ts.RowCount > 0 {
		pct := round2(100 * float64(profile.DistinctCount) / float64(ts.RowCount))
		sc.DistinctPct = &pct
	}
	if profile.Numeric != nil {
		minVal, maxVal := profile.Numeric.Min, profile.Numeric.Max
		sc.Min = &minVal
		sc.Max = &maxVal
	}
	sc.Samples = profile.SampleValues

	return sc
}

// computeSummary derives the aggregate counts. The summary is never
// read back; re-assembly always recomputes it.
func computeSummary(layer *models.SemanticLayer) models.LayerSummary {
	var s models.LayerSummary
	s.TotalTables = len(layer.Tables)
	for _, t := range layer.Tables {
		s.TotalColumns += t.ColumnCount
		s.TotalRelationships += len(t.Relationships)
		if t.RiskProfile == models.RiskHigh {
			s.HighRiskTables++
		}
		if t.ClusterID == models.OrphanCluster {
			s.OrphanTables++
		}
		switch t.Role {
		case models.RoleHub:
			s.HubTables++
		case models.RoleDimension:
			s.DimensionTables++
		case models.RoleDetail:
			s.DetailTables++
		}
		if t.HasTemporal {
			s.TemporalTables++
		}
		if t.HasGeospatial {
			s.GeospatialTables++
		}
	}
	return s
}
