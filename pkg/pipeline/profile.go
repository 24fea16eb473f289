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

// Pattern detection regexes, applied to the first 100 non-null
// string-coerced values of a column.
var (
	numericIDPattern  = regexp.MustCompile(`^\d+$`)
	uuidPattern       = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	prefixedIDPattern = regexp.MustCompile(`^[A-Z]{2,4}-\d{3,}$`)
	isoDatePattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	usDatePattern     = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}`)
	euDatePattern     = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}`)
	emailPattern      = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
)

const patternSampleSize = 100

// numericTypeHints marks declared SQL types where failed numeric
// coercion indicates a type mismatch.
var numericTypeHints = []string{
	"int", "serial", "numeric", "decimal", "real", "double", "float", "money",
}

// Profiler computes per-column statistical, pattern, and anomaly
// signals from an in-memory copy of each table. No per-column SQL.
type Profiler struct {
	reader      datasource.Reader
	pool        *WorkerPool
	sampleLimit int
	logger      *zap.Logger
}

// NewProfiler creates the profiling phase with a bounded worker pool.
// sampleLimit caps the rows fetched per table; zero reads the whole
// table.
func NewProfiler(reader datasource.Reader, workers, sampleLimit int, logger *zap.Logger) *Profiler {
	return &Profiler{
		reader:      reader,
		pool:        NewWorkerPool(workers, logger),
		sampleLimit: sampleLimit,
		logger:      logger.Named("profile"),
	}
}

type tableProfile struct {
	table   string
	columns map[string]*models.ColumnProfile
}

// Profile profiles every non-empty table. Tables run in the worker
// pool; a table fetch failure fails the phase, while a per-column
// failure only stubs that column.
func (p *Profiler) Profile(ctx context.Context, raw *models.RawSchema) (models.ProfileSet, error) {
	items := make([]WorkItem[tableProfile], 0, len(raw.Tables))
	for name, ts := range raw.Tables {
		if ts.RowCount == 0 {
			p.logger.Debug("skipping empty table", zap.String("table", name))
			continue
		}
		name, ts := name, ts
		items = append(items, WorkItem[tableProfile]{
			ID: name,
			Execute: func(ctx context.Context) (tableProfile, error) {
				return p.profileTable(ctx, name, ts)
			},
		})
	}

	results := Process(ctx, p.pool, items)

	profiles := make(models.ProfileSet, len(results))
	for _, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("profile table %s: %w", r.ID, r.Err)
		}
		profiles[r.Result.table] = r.Result.columns
	}

	p.logger.Info("profiling complete",
		zap.Int("tables", len(profiles)))
	return profiles, nil
}

func (p *Profiler) profileTable(ctx context.Context, table string, ts *models.TableSchema) (tableProfile, error) {
	data, err := p.reader.FetchTableData(ctx, table, p.sampleLimit)
	if err != nil {
		return tableProfile{}, err
	}

	colIndex := make(map[string]int, len(data.Columns))
	for i, c := range data.Columns {
		colIndex[c] = i
	}

	out := tableProfile{table: table, columns: make(map[string]*models.ColumnProfile, len(ts.Columns))}
	for _, col := range ts.Columns {
		out.columns[col.Name] = p.profileColumn(data, colIndex, col)
	}

	return out, nil
}

// profileColumn computes all statistics for one column. Any panic
// while profiling produces the error stub and the other columns
// proceed.
func (p *Profiler) profileColumn(data *datasource.TableData, colIndex map[string]int, col models.Column) (profile *models.ColumnProfile) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("column profiling failed",
				zap.String("column", col.Name),
				zap.Any("panic", r))
			profile = &models.ColumnProfile{
				TotalRows: 0,
				Error:     fmt.Sprintf("%v", r),
			}
		}
	}()

	idx, ok := colIndex[col.Name]
	if !ok {
		return &models.ColumnProfile{
			TotalRows: 0,
			Error:     fmt.Sprintf("column %s not present in fetched data", col.Name),
		}
	}

	totalRows := int64(len(data.Rows))
	var nullCount int64
	nonNull := make([]any, 0, len(data.Rows))
	for _, row := range data.Rows {
		if row[idx] == nil {
			nullCount++
			continue
		}
		nonNull = append(nonNull, row[idx])
	}
	nonNullCount := int64(len(nonNull))

	distinct := make(map[string]int64)
	strValues := make([]string, len(nonNull))
	for i, v := range nonNull {
		s := coerceString(v)
		strValues[i] = s
		distinct[s]++
	}
	distinctCount := int64(len(distinct))

	profile = &models.ColumnProfile{
		TotalRows:     totalRows,
		NullCount:     nullCount,
		NonNullCount:  nonNullCount,
		DistinctCount: distinctCount,
		DataType:      col.SQLType,
	}
	if totalRows > 0 {
		profile.NullPct = round2(100 * float64(nullCount) / float64(totalRows))
	}

	numeric := make([]float64, 0, len(nonNull))
	for _, v := range nonNull {
		if f, ok := coerceFloat(v); ok {
			numeric = append(numeric, f)
		}
	}

	if len(numeric) > 0 {
		sorted := sortedCopy(numeric)
		profile.Numeric = &models.NumericStats{
			Min:    sorted[0],
			Max:    sorted[len(sorted)-1],
			Mean:   mean(numeric),
			Median: quantile(sorted, 0.5),
			Std:    sampleStd(numeric),
			Q25:    quantile(sorted, 0.25),
			Q75:    quantile(sorted, 0.75),
		}
	}

	if distinctCount < 100 && nonNullCount > 0 {
		profile.TopValues = topValues(distinct, 10)
		ratio := round4(float64(distinctCount) / float64(nonNullCount))
		profile.CardinalityRatio = &ratio
	}

	for i := 0; i < len(strValues) && i < 10; i++ {
		profile.SampleValues = append(profile.SampleValues, truncate(strValues[i], 100))
	}

	profile.Patterns = detectPatterns(strValues, distinctCount)
	profile.Anomalies = detectAnomalies(numeric, nonNullCount, distinctCount, col.SQLType)

	return profile
}

// topValues returns the most frequent values, ties broken by value for
// determinism.
func topValues(counts map[string]int64, limit int) []models.ValueCount {
	out := make([]models.ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, models.ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// detectPatterns checks the first patternSampleSize values against the
// shape regexes. One match within the sample is enough.
func detectPatterns(strValues []string, distinctCount int64) models.Patterns {
	patterns := models.Patterns{}
	if len(strValues) == 0 {
		return patterns
	}

	sample := strValues
	if len(sample) > patternSampleSize {
		sample = sample[:patternSampleSize]
	}

	anyMatch := func(re *regexp.Regexp) bool {
		for _, s := range sample {
			if re.MatchString(s) {
				return true
			}
		}
		return false
	}

	switch {
	case anyMatch(numericIDPattern):
		id := models.IDPatternNumeric
		patterns.IDPattern = &id
	case anyMatch(uuidPattern):
		id := models.IDPatternUUID
		patterns.IDPattern = &id
	case anyMatch(prefixedIDPattern):
		id := models.IDPatternPrefixed
		patterns.IDPattern = &id
	}

	switch {
	case anyMatch(isoDatePattern):
		d := models.DatePatternISO8601
		patterns.DatePattern = &d
	case anyMatch(usDatePattern):
		d := models.DatePatternUS
		patterns.DatePattern = &d
	case anyMatch(euDatePattern):
		d := models.DatePatternEU
		patterns.DatePattern = &d
	}

	patterns.EmailPattern = anyMatch(emailPattern)
	patterns.IsBinary = distinctCount == 2
	patterns.EnumLike = distinctCount < 20

	return patterns
}

// detectAnomalies flags IQR outliers, duplicate rate, and declared-type
// mismatches.
func detectAnomalies(numeric []float64, nonNullCount, distinctCount int64, sqlType string) models.Anomalies {
	anomalies := models.Anomalies{}

	if len(numeric) > 0 {
		sorted := sortedCopy(numeric)
		q1 := quantile(sorted, 0.25)
		q3 := quantile(sorted, 0.75)
		iqr := q3 - q1
		lower := q1 - 1.5*iqr
		upper := q3 + 1.5*iqr

		for _, v := range numeric {
			if v < lower || v > upper {
				anomalies.OutlierCount++
			}
		}
		anomalies.HasOutliers = anomalies.OutlierCount > 0
	}

	if nonNullCount > 0 {
		anomalies.DuplicateRate = round4(float64(nonNullCount-distinctCount) / float64(nonNullCount))
	}

	if declaredNumeric(sqlType) && nonNullCount > 0 {
		coerced := int64(len(numeric))
		if float64(coerced) < float64(nonNullCount)*0.5 {
			anomalies.TypeMismatch = true
		}
	}

	return anomalies
}

func declaredNumeric(sqlType string) bool {
	lower := strings.ToLower(sqlType)
	for _, hint := range numericTypeHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
