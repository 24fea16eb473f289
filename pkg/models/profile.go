package models

// IDPattern classifies identifier-looking string columns.
type IDPattern string

const (
	IDPatternNumeric  IDPattern = "numeric_id"
	IDPatternUUID     IDPattern = "uuid"
	IDPatternPrefixed IDPattern = "prefixed_id"
)

// DatePattern classifies date-looking string columns.
type DatePattern string

const (
	DatePatternISO8601 DatePattern = "ISO_8601"
	DatePatternUS      DatePattern = "US_DATE"
	DatePatternEU      DatePattern = "EU_DATE"
)

// Patterns holds the shape signals detected from a bounded sample of
// column values.
type Patterns struct {
	IDPattern    *IDPattern   `json:"id_pattern"`
	DatePattern  *DatePattern `json:"date_pattern"`
	EmailPattern bool         `json:"email_pattern"`
	EnumLike     bool         `json:"enum_like"`
	IsBinary     bool         `json:"is_binary"`
}

// Anomalies holds the data-quality warning signals for a column.
type Anomalies struct {
	HasOutliers   bool    `json:"has_outliers"`
	OutlierCount  int     `json:"outlier_count"`
	DuplicateRate float64 `json:"duplicate_rate"`
	TypeMismatch  bool    `json:"type_mismatch"`
}

// ValueCount is one entry of a low-cardinality column's top-values list.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// NumericStats carries the distribution statistics of a numeric-coercible
// column.
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Q25    float64 `json:"q25"`
	Q75    float64 `json:"q75"`
}

// ColumnProfile is the phase-2 artifact for a single column. A profiling
// failure produces a stub carrying only Error and TotalRows=0.
type ColumnProfile struct {
	TotalRows     int64   `json:"total_rows"`
	NullCount     int64   `json:"null_count"`
	NullPct       float64 `json:"null_pct"`
	NonNullCount  int64   `json:"non_null_count"`
	DistinctCount int64   `json:"distinct_count"`
	DataType      string  `json:"data_type"`

	Numeric *NumericStats `json:"numeric,omitempty"`

	// Populated only for low-cardinality columns (distinct < 100).
	TopValues        []ValueCount `json:"top_values,omitempty"`
	CardinalityRatio *float64     `json:"cardinality_ratio,omitempty"`

	SampleValues []string  `json:"sample_values"`
	Patterns     Patterns  `json:"patterns"`
	Anomalies    Anomalies `json:"anomalies"`

	Error string `json:"error,omitempty"`
}

// ProfileSet maps table name to per-column profiles.
type ProfileSet map[string]map[string]*ColumnProfile
