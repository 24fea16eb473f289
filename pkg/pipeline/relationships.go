package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/datasource"
	"github.com/luminadata/schemagraph/pkg/models"
)

// Naming conventions that suggest a column references another table.
// The regex literal becomes part of the evidence string.
var namingPatterns = []struct {
	re      *regexp.Regexp
	literal string
}{
	{regexp.MustCompile(`(.+)_id$`), "(.+)_id$"},
	{regexp.MustCompile(`(.+)Id$`), "(.+)Id$"},
	{regexp.MustCompile(`^(.+?)_code$`), "^(.+?)_code$"},
}

// inclusionDistinctCap bounds which columns are candidate foreign keys
// for inclusion checking.
const inclusionDistinctCap = 1000

// inclusionThreshold is the containment ratio above which an inclusion
// dependency is emitted.
const inclusionThreshold = 0.90

// Detector fuses explicit FK evidence with naming heuristics and
// value-inclusion evidence into one ranked relationship set.
type Detector struct {
	reader        datasource.Reader
	overlapSample int
	logger        *zap.Logger
}

// NewDetector creates the relationship detection phase. overlapSample
// caps the distinct values compared per side in inclusion checks.
func NewDetector(reader datasource.Reader, overlapSample int, logger *zap.Logger) *Detector {
	if overlapSample <= 0 {
		overlapSample = 1000
	}
	return &Detector{
		reader:        reader,
		overlapSample: overlapSample,
		logger:        logger.Named("relationships"),
	}
}

// Detect runs the three producers, de-duplicates on the endpoint tuple
// keeping the highest confidence, drops self-loops and dangling
// endpoints, and returns a deterministically ordered set.
func (d *Detector) Detect(ctx context.Context, clientID string, raw *models.RawSchema, profiles models.ProfileSet) (*models.RelationshipSet, error) {
	var all []models.Relationship

	all = append(all, d.detectExplicit(raw)...)
	all = append(all, d.detectNaming(raw, profiles)...)

	inclusions, err := d.detectInclusion(ctx, raw, profiles)
	if err != nil {
		return nil, err
	}
	all = append(all, inclusions...)

	best := make(map[string]models.Relationship)
	for _, rel := range all {
		if rel.SourceTable == rel.TargetTable {
			continue
		}
		if !endpointExists(raw, rel.SourceTable, rel.SourceColumn) ||
			!endpointExists(raw, rel.TargetTable, rel.TargetColumn) {
			continue
		}
		key := rel.Key()
		if prev, ok := best[key]; !ok || rel.Confidence > prev.Confidence {
			best[key] = rel
		}
	}

	set := &models.RelationshipSet{
		ClientID:      clientID,
		Relationships: make([]models.Relationship, 0, len(best)),
		EdgesBySource: make(map[string][]models.Relationship),
	}
	for _, rel := range best {
		set.Relationships = append(set.Relationships, rel)
	}
	sort.Slice(set.Relationships, func(i, j int) bool {
		return set.Relationships[i].Key() < set.Relationships[j].Key()
	})

	for _, rel := range set.Relationships {
		set.EdgesBySource[rel.SourceTable] = append(set.EdgesBySource[rel.SourceTable], rel)
		switch rel.Type {
		case models.RelationshipExplicit:
			set.Summary.Explicit++
		case models.RelationshipNaming:
			set.Summary.Naming++
		case models.RelationshipInclusion:
			set.Summary.Inclusion++
		}
	}

	d.logger.Info("relationships detected",
		zap.Int("total", len(set.Relationships)),
		zap.Int("explicit", set.Summary.Explicit),
		zap.Int("naming", set.Summary.Naming),
		zap.Int("inclusion", set.Summary.Inclusion))

	return set, nil
}

// detectExplicit converts the extracted FK constraints, pairing the
// constrained columns positionally with the referred columns.
func (d *Detector) detectExplicit(raw *models.RawSchema) []models.Relationship {
	var rels []models.Relationship
	for table, ts := range raw.Tables {
		for _, fk := range ts.ForeignKeys {
			for i, col := range fk.Columns {
				if i >= len(fk.ReferredColumns) {
					break
				}
				rels = append(rels, models.Relationship{
					SourceTable:  table,
					SourceColumn: col,
					TargetTable:  fk.ReferredTable,
					TargetColumn: fk.ReferredColumns[i],
					Type:         models.RelationshipExplicit,
					Confidence:   1.0,
					Evidence:     "foreign_key_constraint",
				})
			}
		}
	}
	return rels
}

// detectNaming emits a relationship when a column matches a reference
// naming convention and the referenced table has an id-like key.
func (d *Detector) detectNaming(raw *models.RawSchema, profiles models.ProfileSet) []models.Relationship {
	idColumns := idLikeColumns(raw, profiles)

	var rels []models.Relationship
	for table, ts := range raw.Tables {
		for _, col := range ts.Columns {
			for _, pattern := range namingPatterns {
				m := pattern.re.FindStringSubmatch(col.Name)
				if m == nil {
					continue
				}
				target := m[1]
				targetCol, ok := idColumns[target]
				if !ok || target == table {
					continue
				}
				rels = append(rels, models.Relationship{
					SourceTable:  table,
					SourceColumn: col.Name,
					TargetTable:  target,
					TargetColumn: targetCol,
					Type:         models.RelationshipNaming,
					Confidence:   0.85,
					Evidence:     "naming_pattern_" + pattern.literal,
				})
			}
		}
	}
	return rels
}

// detectInclusion checks value containment of low-cardinality candidate
// FK columns inside id-like columns of other tables.
func (d *Detector) detectInclusion(ctx context.Context, raw *models.RawSchema, profiles models.ProfileSet) ([]models.Relationship, error) {
	idColumns := idLikeColumns(raw, profiles)

	// Deterministic iteration for a stable artifact.
	tables := make([]string, 0, len(raw.Tables))
	for t := range raw.Tables {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	targets := make([]string, 0, len(idColumns))
	for t := range idColumns {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	var rels []models.Relationship
	for _, table := range tables {
		cols := profiles[table]
		colNames := make([]string, 0, len(cols))
		for c := range cols {
			colNames = append(colNames, c)
		}
		sort.Strings(colNames)

		for _, col := range colNames {
			profile := cols[col]
			if profile.Error != "" || profile.DistinctCount == 0 || profile.DistinctCount >= inclusionDistinctCap {
				continue
			}
			for _, target := range targets {
				if target == table {
					continue
				}
				overlap, err := d.reader.CheckValueOverlap(ctx, table, col, target, idColumns[target], d.overlapSample)
				if err != nil {
					return nil, fmt.Errorf("value overlap %s.%s vs %s.%s: %w",
						table, col, target, idColumns[target], err)
				}
				if overlap.Ratio >= inclusionThreshold {
					rels = append(rels, models.Relationship{
						SourceTable:  table,
						SourceColumn: col,
						TargetTable:  target,
						TargetColumn: idColumns[target],
						Type:         models.RelationshipInclusion,
						Confidence:   overlap.Ratio,
						Evidence:     fmt.Sprintf("value_overlap_%.1f%%", overlap.Ratio*100),
					})
				}
			}
		}
	}
	return rels, nil
}

// idLikeColumns picks, per table, the column most likely to be its
// identifier: the declared primary key when single-column, else a
// column named like an id, else a near-unique column.
func idLikeColumns(raw *models.RawSchema, profiles models.ProfileSet) map[string]string {
	out := make(map[string]string, len(raw.Tables))
	for table, ts := range raw.Tables {
		if len(ts.PrimaryKey) == 1 {
			out[table] = ts.PrimaryKey[0]
			continue
		}
		if col, ok := findIDLikeColumn(ts, profiles[table]); ok {
			out[table] = col
		}
	}
	return out
}

func findIDLikeColumn(ts *models.TableSchema, cols map[string]*models.ColumnProfile) (string, bool) {
	for _, c := range ts.Columns {
		lower := strings.ToLower(c.Name)
		if lower == "id" || strings.Contains(lower, "key") || strings.Contains(lower, "code") {
			return c.Name, true
		}
	}
	if ts.RowCount > 0 {
		for _, c := range ts.Columns {
			p, ok := cols[c.Name]
			if !ok || p.Error != "" {
				continue
			}
			if float64(p.DistinctCount)/float64(ts.RowCount) > 0.95 {
				return c.Name, true
			}
		}
	}
	return "", false
}

func endpointExists(raw *models.RawSchema, table, column string) bool {
	ts, ok := raw.Tables[table]
	if !ok {
		return false
	}
	return ts.HasColumn(column)
}
