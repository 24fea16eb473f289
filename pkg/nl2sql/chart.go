package nl2sql

import (
	"strings"
	"time"

	"github.com/luminadata/schemagraph/pkg/models"
)

// SuggestChart derives a rendering hint from a two-column result:
// temporal plus numeric suggests a line chart, categorical plus numeric
// a bar chart, and two numerics a scatter plot. Anything else gets no
// suggestion.
func SuggestChart(df *models.DataFrame) *models.ChartSuggestion {
	if df == nil || len(df.Columns) != 2 || len(df.Rows) == 0 {
		return nil
	}

	kinds := [2]columnKind{
		classifyValues(df, df.Columns[0]),
		classifyValues(df, df.Columns[1]),
	}

	switch {
	case kinds[0] == kindTemporal && kinds[1] == kindNumeric:
		return &models.ChartSuggestion{Type: "line", XAxis: df.Columns[0], YAxis: df.Columns[1]}
	case kinds[1] == kindTemporal && kinds[0] == kindNumeric:
		return &models.ChartSuggestion{Type: "line", XAxis: df.Columns[1], YAxis: df.Columns[0]}
	case kinds[0] == kindCategorical && kinds[1] == kindNumeric:
		return &models.ChartSuggestion{Type: "bar", XAxis: df.Columns[0], YAxis: df.Columns[1]}
	case kinds[1] == kindCategorical && kinds[0] == kindNumeric:
		return &models.ChartSuggestion{Type: "bar", XAxis: df.Columns[1], YAxis: df.Columns[0]}
	case kinds[0] == kindNumeric && kinds[1] == kindNumeric:
		return &models.ChartSuggestion{Type: "scatter", XAxis: df.Columns[0], YAxis: df.Columns[1]}
	}
	return nil
}

type columnKind int

const (
	kindUnknown columnKind = iota
	kindNumeric
	kindTemporal
	kindCategorical
)

// classifyValues inspects the first non-null value in a column.
func classifyValues(df *models.DataFrame, col string) columnKind {
	for _, row := range df.Rows {
		v, ok := row[col]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case int, int32, int64, float32, float64:
			return kindNumeric
		case time.Time:
			return kindTemporal
		case string:
			if _, err := time.Parse(time.RFC3339, t); err == nil {
				return kindTemporal
			}
			if _, err := time.Parse("2006-01-02", t); err == nil {
				return kindTemporal
			}
			return kindCategorical
		case bool:
			return kindCategorical
		}
		if strings.Contains(strings.ToLower(col), "date") || strings.Contains(strings.ToLower(col), "time") {
			return kindTemporal
		}
		return kindUnknown
	}
	return kindUnknown
}
