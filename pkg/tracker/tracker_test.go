package tracker

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTracker_CostFromPricingTable(t *testing.T) {
	tr := New("", DefaultPricing(), zap.NewNop())
	tr.Log(Call{
		CallerContext: "enrich:incidents",
		Model:         "llama-3.3-70b-versatile",
		InputTokens:   1_000_000,
		OutputTokens:  1_000_000,
		Latency:       250 * time.Millisecond,
		Success:       true,
	})

	recs := tr.Records()
	require.Len(t, recs, 1)
	assert.InDelta(t, 0.20, recs[0].CostUSD, 1e-9)
	assert.InDelta(t, 250.0, recs[0].LatencyMS, 0.01)
}

func TestTracker_SummaryAggregates(t *testing.T) {
	tr := New("", DefaultPricing(), zap.NewNop())
	tr.Log(Call{Model: "m1", InputTokens: 100, OutputTokens: 50, Success: true})
	tr.Log(Call{Model: "m1", InputTokens: 200, OutputTokens: 80, Success: true})
	tr.Log(Call{Model: "m2", Success: false, Err: errors.New("rate limit")})

	s := tr.Summarize()
	assert.Equal(t, 3, s.TotalCalls)
	assert.Equal(t, 2, s.SuccessCalls)
	assert.InDelta(t, 2.0/3.0, s.SuccessRate, 1e-9)
	assert.Equal(t, 300, s.InputTokens)
	assert.Equal(t, 130, s.OutputTokens)
	assert.Equal(t, 2, s.PerModel["m1"].Calls)
	assert.Equal(t, 1, s.PerModel["m2"].Calls)
}

func TestTracker_PersistsJSONLAndCSV(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir, DefaultPricing(), zap.NewNop())
	tr.Log(Call{CallerContext: "chat", Model: "m1", InputTokens: 10, OutputTokens: 5, Success: true})
	tr.Log(Call{CallerContext: "chat", Model: "m1", InputTokens: 20, OutputTokens: 9, Success: true})

	jsonl, err := os.ReadFile(filepath.Join(dir, "calls.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(jsonl))

	f, err := os.Open(filepath.Join(dir, "calls.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 records
	assert.Equal(t, "timestamp", rows[0][0])
	assert.Equal(t, "chat", rows[1][1])
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
