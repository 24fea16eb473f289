// Package tracker is the append-only API usage recorder observed by
// the enricher and the conversational engine. Records go to a JSONL
// file and a CSV; aggregates are derived from the in-memory records.
// Tracking failures are logged, never propagated.
package tracker

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pricing holds per-million-token prices in USD.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// DefaultPricing matches the Groq llama family price sheet.
func DefaultPricing() Pricing {
	return Pricing{InputPerM: 0.05, OutputPerM: 0.15}
}

// Record is one observed LLM call.
type Record struct {
	Timestamp     string  `json:"timestamp"`
	CallerContext string  `json:"caller_context"`
	Model         string  `json:"model"`
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	LatencyMS     float64 `json:"latency_ms"`
	CostUSD       float64 `json:"cost_usd"`
	Success       bool    `json:"success"`
	Error         string  `json:"error,omitempty"`
}

// ModelStats aggregates per-model usage.
type ModelStats struct {
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Summary is the derived aggregate view of all records.
type Summary struct {
	TotalCalls   int                   `json:"total_calls"`
	SuccessCalls int                   `json:"success_calls"`
	SuccessRate  float64               `json:"success_rate"`
	InputTokens  int                   `json:"input_tokens"`
	OutputTokens int                   `json:"output_tokens"`
	TotalCostUSD float64               `json:"total_cost_usd"`
	AvgLatencyMS float64               `json:"avg_latency_ms"`
	PerModel     map[string]ModelStats `json:"per_model"`
}

// Tracker appends records under a directory: calls.jsonl and calls.csv.
// Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	dir     string
	pricing Pricing
	records []Record
	logger  *zap.Logger
}

// New creates a tracker writing under dir.
func New(dir string, pricing Pricing, logger *zap.Logger) *Tracker {
	return &Tracker{
		dir:     dir,
		pricing: pricing,
		logger:  logger.Named("tracker"),
	}
}

// Call describes one LLM call to record. Cost is computed from the
// pricing table, not supplied.
type Call struct {
	CallerContext string
	Model         string
	InputTokens   int
	OutputTokens  int
	Latency       time.Duration
	Success       bool
	Err           error
}

// Log appends one record. A persistence failure only logs a warning.
func (t *Tracker) Log(call Call) {
	rec := Record{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CallerContext: call.CallerContext,
		Model:         call.Model,
		InputTokens:   call.InputTokens,
		OutputTokens:  call.OutputTokens,
		LatencyMS:     float64(call.Latency.Microseconds()) / 1000,
		CostUSD:       t.cost(call.InputTokens, call.OutputTokens),
		Success:       call.Success,
	}
	if call.Err != nil {
		rec.Error = call.Err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = append(t.records, rec)
	if err := t.persist(rec); err != nil {
		t.logger.Warn("failed to persist usage record", zap.Error(err))
	}
}

func (t *Tracker) cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1e6*t.pricing.InputPerM +
		float64(outputTokens)/1e6*t.pricing.OutputPerM
}

func (t *Tracker) persist(rec Record) error {
	if t.dir == "" {
		return nil
	}
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("create tracker dir: %w", err)
	}

	if err := t.appendJSONL(rec); err != nil {
		return err
	}
	return t.appendCSV(rec)
}

func (t *Tracker) appendJSONL(rec Record) error {
	f, err := os.OpenFile(filepath.Join(t.dir, "calls.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open jsonl: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append jsonl: %w", err)
	}
	return nil
}

func (t *Tracker) appendCSV(rec Record) error {
	path := filepath.Join(t.dir, "calls.csv")
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write([]string{
			"timestamp", "caller_context", "model", "input_tokens",
			"output_tokens", "latency_ms", "cost_usd", "success", "error",
		}); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	if err := w.Write([]string{
		rec.Timestamp,
		rec.CallerContext,
		rec.Model,
		strconv.Itoa(rec.InputTokens),
		strconv.Itoa(rec.OutputTokens),
		strconv.FormatFloat(rec.LatencyMS, 'f', 3, 64),
		strconv.FormatFloat(rec.CostUSD, 'f', 8, 64),
		strconv.FormatBool(rec.Success),
		rec.Error,
	}); err != nil {
		return fmt.Errorf("append csv: %w", err)
	}
	w.Flush()
	return w.Error()
}

// Summarize derives aggregates from all records so far.
func (t *Tracker) Summarize() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{PerModel: make(map[string]ModelStats)}
	var latencySum float64
	for _, rec := range t.records {
		s.TotalCalls++
		if rec.Success {
			s.SuccessCalls++
		}
		s.InputTokens += rec.InputTokens
		s.OutputTokens += rec.OutputTokens
		s.TotalCostUSD += rec.CostUSD
		latencySum += rec.LatencyMS

		m := s.PerModel[rec.Model]
		m.Calls++
		m.InputTokens += rec.InputTokens
		m.OutputTokens += rec.OutputTokens
		m.CostUSD += rec.CostUSD
		s.PerModel[rec.Model] = m
	}
	if s.TotalCalls > 0 {
		s.SuccessRate = float64(s.SuccessCalls) / float64(s.TotalCalls)
		s.AvgLatencyMS = latencySum / float64(s.TotalCalls)
	}
	return s
}

// Records returns a copy of the records seen so far.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}
