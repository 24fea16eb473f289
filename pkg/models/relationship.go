package models

// RelationshipType identifies the evidence class behind a detected
// relationship. Confidence bounds follow the evidence: explicit (1.0) ≥
// naming (0.85) ≥ inclusion (observed containment ratio).
type RelationshipType string

const (
	RelationshipExplicit  RelationshipType = "explicit"
	RelationshipNaming    RelationshipType = "naming"
	RelationshipInclusion RelationshipType = "inclusion"
)

// Relationship is a directed table-to-table association detected by the
// relationship detector. Endpoints always exist in the RawSchema and
// source never equals target.
type Relationship struct {
	SourceTable  string           `json:"source_table"`
	SourceColumn string           `json:"source_column"`
	TargetTable  string           `json:"target_table"`
	TargetColumn string           `json:"target_column"`
	Type         RelationshipType `json:"type"`
	Confidence   float64          `json:"confidence"`
	Evidence     string           `json:"evidence"`
}

// Key returns the de-duplication key for the relationship.
func (r Relationship) Key() string {
	return r.SourceTable + "." + r.SourceColumn + "->" + r.TargetTable + "." + r.TargetColumn
}

// RelationshipSummary counts relationships by evidence class.
type RelationshipSummary struct {
	Explicit  int `json:"explicit"`
	Naming    int `json:"naming"`
	Inclusion int `json:"inclusion"`
}

// RelationshipSet is the phase-3 artifact.
type RelationshipSet struct {
	ClientID      string                    `json:"client_id"`
	Relationships []Relationship            `json:"relationships"`
	EdgesBySource map[string][]Relationship `json:"edges_by_source"`
	Summary       RelationshipSummary       `json:"summary"`
}
