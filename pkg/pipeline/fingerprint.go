package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/models"
)

// Comment keywords that mark a table as high risk.
var riskKeywords = []string{
	"redline", "osha", "violation", "critical", "danger", "incident", "safety",
}

// Column-name keywords for the domain flags.
var (
	temporalKeywords   = []string{"date", "time", "timestamp", "created", "modified", "updated"}
	geospatialKeywords = []string{"location", "geo", "latitude", "longitude", "coords", "address"}
)

// Fingerprinter derives per-table role, risk profile, domain flags,
// and connected-component cluster assignments.
type Fingerprinter struct {
	logger *zap.Logger
}

// NewFingerprinter creates the fingerprinting phase.
func NewFingerprinter(logger *zap.Logger) *Fingerprinter {
	return &Fingerprinter{logger: logger.Named("fingerprint")}
}

// Fingerprint computes the fingerprint of every table.
func (f *Fingerprinter) Fingerprint(raw *models.RawSchema, rels *models.RelationshipSet) models.FingerprintSet {
	incoming, outgoing := degreeCounts(raw, rels)
	clusterOf := assignClusters(raw, rels)

	out := make(models.FingerprintSet, len(raw.Tables))
	for table, ts := range raw.Tables {
		riskProfile, redline := detectRisk(ts)
		hasTemporal, hasGeospatial := detectDomainFlags(ts)

		out[table] = &models.Fingerprint{
			Role:            classifyRole(table, incoming[table], outgoing[table]),
			RiskProfile:     riskProfile,
			RedlineComments: redline,
			ClusterID:       clusterOf[table],
			HasTemporal:     hasTemporal,
			HasGeospatial:   hasGeospatial,
		}
	}

	highRisk := 0
	for _, fp := range out {
		if fp.RiskProfile == models.RiskHigh {
			highRisk++
		}
	}
	f.logger.Info("fingerprints generated",
		zap.Int("tables", len(out)),
		zap.Int("high_risk", highRisk))

	return out
}

// classifyRole applies the connectivity rules in order. unknown appears
// only for fully disconnected tables.
func classifyRole(table string, incoming, outgoing int) models.TableRole {
	name := strings.ToLower(table)
	switch {
	case incoming == 0 && outgoing > 0 && strings.Contains(name, "incident"):
		return models.RoleHub
	case incoming == 0 && outgoing > 0:
		return models.RoleDimension
	case incoming > 0 && outgoing == 0:
		return models.RoleDetail
	case incoming > 0 && outgoing > 0 && strings.HasSuffix(name, "_details"):
		return models.RoleDetail
	case incoming > 0 && outgoing > 0:
		// Fact-shaped table, normalized into the public enum.
		if strings.Contains(name, "incident") {
			return models.RoleHub
		}
		return models.RoleDimension
	default:
		return models.RoleUnknown
	}
}

func degreeCounts(raw *models.RawSchema, rels *models.RelationshipSet) (incoming, outgoing map[string]int) {
	incoming = make(map[string]int, len(raw.Tables))
	outgoing = make(map[string]int, len(raw.Tables))
	for _, rel := range rels.Relationships {
		outgoing[rel.SourceTable]++
		incoming[rel.TargetTable]++
	}
	return incoming, outgoing
}

// detectRisk scans column comments for the risk keywords, collecting
// the matching comments verbatim.
func detectRisk(ts *models.TableSchema) (models.RiskProfile, []string) {
	profile := models.RiskLow
	var redline []string
	for _, col := range ts.Columns {
		if col.Comment == nil || *col.Comment == "" {
			continue
		}
		lower := strings.ToLower(*col.Comment)
		for _, kw := range riskKeywords {
			if strings.Contains(lower, kw) {
				profile = models.RiskHigh
				redline = append(redline, *col.Comment)
				break
			}
		}
	}
	return profile, redline
}

func detectDomainFlags(ts *models.TableSchema) (hasTemporal, hasGeospatial bool) {
	for _, col := range ts.Columns {
		name := strings.ToLower(col.Name)
		for _, kw := range temporalKeywords {
			if strings.Contains(name, kw) {
				hasTemporal = true
				break
			}
		}
		for _, kw := range geospatialKeywords {
			if strings.Contains(name, kw) {
				hasGeospatial = true
				break
			}
		}
	}
	return hasTemporal, hasGeospatial
}

// assignClusters finds connected components of the undirected
// relationship projection via BFS. Components are numbered in the
// order of their smallest table name; disconnected tables form
// singleton clusters labelled orphan.
func assignClusters(raw *models.RawSchema, rels *models.RelationshipSet) map[string]string {
	adjacency := make(map[string][]string, len(raw.Tables))
	for _, rel := range rels.Relationships {
		adjacency[rel.SourceTable] = append(adjacency[rel.SourceTable], rel.TargetTable)
		adjacency[rel.TargetTable] = append(adjacency[rel.TargetTable], rel.SourceTable)
	}

	tables := make([]string, 0, len(raw.Tables))
	for t := range raw.Tables {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	clusterOf := make(map[string]string, len(tables))
	visited := make(map[string]bool, len(tables))
	clusterIdx := 0

	for _, start := range tables {
		if visited[start] {
			continue
		}

		var component []string
		queue := []string{start}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			if visited[current] {
				continue
			}
			visited[current] = true
			component = append(component, current)

			neighbors := append([]string(nil), adjacency[current]...)
			sort.Strings(neighbors)
			for _, next := range neighbors {
				if !visited[next] {
					queue = append(queue, next)
				}
			}
		}

		if len(component) == 1 && len(adjacency[component[0]]) == 0 {
			clusterOf[component[0]] = models.OrphanCluster
			continue
		}

		clusterIdx++
		name := fmt.Sprintf("cluster_%d", clusterIdx)
		for _, t := range component {
			clusterOf[t] = name
		}
	}

	return clusterOf
}
