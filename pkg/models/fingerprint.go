package models

// TableRole is the connectivity-derived role of a table. The external
// contract is the four-valued enum below; richer internal classifications
// normalize into it.
type TableRole string

const (
	RoleHub       TableRole = "hub"
	RoleDimension TableRole = "dimension"
	RoleDetail    TableRole = "detail"
	RoleUnknown   TableRole = "unknown"
)

// RiskProfile is the binary comment-keyword risk flag.
type RiskProfile string

const (
	RiskLow  RiskProfile = "low_risk"
	RiskHigh RiskProfile = "high_risk"
)

// OrphanCluster labels tables unreachable from any relationship edge.
const OrphanCluster = "orphan"

// Fingerprint is the phase-4 compact per-table summary.
type Fingerprint struct {
	Role            TableRole   `json:"role"`
	RiskProfile     RiskProfile `json:"risk_profile"`
	RedlineComments []string    `json:"redline_comments"`
	ClusterID       string      `json:"cluster_id"`
	HasTemporal     bool        `json:"has_temporal"`
	HasGeospatial   bool        `json:"has_geospatial"`
}

// FingerprintSet maps table name to fingerprint.
type FingerprintSet map[string]*Fingerprint
