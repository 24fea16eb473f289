package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/artifacts"
	"github.com/luminadata/schemagraph/pkg/llm"
	"github.com/luminadata/schemagraph/pkg/models"
	"github.com/luminadata/schemagraph/pkg/tracker"
)

// Enrichment call parameters.
const (
	enrichTemperature = 0.3
	enrichMaxTokens   = 500
)

// Enricher adds natural-language table descriptions to the semantic
// layer, one table at a time, checkpointing the layer after each.
type Enricher struct {
	client  llm.Client
	store   *artifacts.Store
	tracker *tracker.Tracker
	pause   time.Duration
	logger  *zap.Logger
}

// NewEnricher creates the enrichment phase. pause spaces out calls for
// provider rate limits; zero disables pacing.
func NewEnricher(client llm.Client, store *artifacts.Store, tr *tracker.Tracker, pause time.Duration, logger *zap.Logger) *Enricher {
	return &Enricher{
		client:  client,
		store:   store,
		tracker: tr,
		pause:   pause,
		logger:  logger.Named("enrich"),
	}
}

// Enrich describes every table that does not already carry a
// description, rewriting the layer artifact atomically after each so
// interrupted runs resume where they stopped. An LLM failure stores an
// error-marker description and the run continues; the returned count
// is the number of tables that failed.
func (e *Enricher) Enrich(ctx context.Context, layer *models.SemanticLayer) (failed int, err error) {
	names := make([]string, 0, len(layer.Tables))
	for name := range layer.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		table := layer.Tables[name]
		if table.Description != "" && !strings.HasPrefix(table.Description, "[Error generating description:") {
			e.logger.Debug("table already enriched, skipping",
				zap.String("table", name))
			continue
		}

		e.logger.Info("enriching table",
			zap.String("table", name),
			zap.Int("index", i+1),
			zap.Int("total", len(names)))

		description, genErr := e.describeTable(ctx, table)
		if genErr != nil {
			failed++
			description = fmt.Sprintf("[Error generating description: %v]", genErr)
		}

		table.Description = description
		table.DescriptionGeneratedAt = time.Now().UTC().Format(time.RFC3339)
		table.DescriptionSource = e.client.Model()

		if err := e.store.Write(layer.ClientID, artifacts.FileSemanticLayer, layer); err != nil {
			return failed, fmt.Errorf("checkpoint semantic layer after %s: %w", name, err)
		}

		if e.pause > 0 && i < len(names)-1 {
			select {
			case <-time.After(e.pause):
			case <-ctx.Done():
				return failed, ctx.Err()
			}
		}
	}

	return failed, nil
}

// describeTable makes one LLM call and records it in the tracker.
func (e *Enricher) describeTable(ctx context.Context, table *models.SemanticTable) (string, error) {
	prompt := buildDescriptionPrompt(table)

	start := time.Now()
	result, err := e.client.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: enrichTemperature,
		MaxTokens:   enrichMaxTokens,
	})
	latency := time.Since(start)

	call := tracker.Call{
		CallerContext: "enrich:" + table.Name,
		Model:         e.client.Model(),
		Latency:       latency,
		Success:       err == nil,
		Err:           err,
	}
	if result != nil {
		call.InputTokens = result.PromptTokens
		call.OutputTokens = result.CompletionTokens
	}
	e.tracker.Log(call)

	if err != nil {
		e.logger.Error("description generation failed",
			zap.String("table", table.Name),
			zap.Error(err))
		return "", err
	}

	return strings.TrimSpace(result.Content), nil
}

// buildDescriptionPrompt synthesizes the enrichment prompt from table
// name, the first 10 columns with types, row count, primary key, and
// notable value patterns.
func buildDescriptionPrompt(table *models.SemanticTable) string {
	var b strings.Builder

	b.WriteString("You are a domain expert documenting a relational database.\n\n")
	b.WriteString("Generate a concise business definition for this database table:\n\n")
	fmt.Fprintf(&b, "**Table Name:** %s\n\n", table.Name)

	b.WriteString("**Schema (first 10 columns):**\n")
	for i, col := range table.Columns {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&b, "  - %s (%s)\n", col.Name, col.DataType)
	}

	b.WriteString("\nSample Data Statistics:\n")
	fmt.Fprintf(&b, "  - Row count: %d\n", table.RowCount)
	fmt.Fprintf(&b, "  - Primary key: %s\n", strings.Join(table.PrimaryKey, ", "))
	fmt.Fprintf(&b, "  - Notable patterns: %s\n", notablePatterns(table))

	b.WriteString("\nProvide a 2-3 sentence definition that explains:\n")
	b.WriteString("1. What this table represents and its business purpose\n")
	b.WriteString("2. Key entities or relationships it tracks\n")
	b.WriteString("3. How downstream analysis typically uses it\n\n")
	b.WriteString("Keep it concise, technical, and domain-specific.")

	return b.String()
}

func notablePatterns(table *models.SemanticTable) string {
	var notes []string
	if table.Role != models.RoleUnknown {
		notes = append(notes, fmt.Sprintf("role=%s", table.Role))
	}
	if table.HasTemporal {
		notes = append(notes, "temporal columns present")
	}
	if table.HasGeospatial {
		notes = append(notes, "geospatial columns present")
	}
	if table.RiskProfile == models.RiskHigh {
		notes = append(notes, "high-risk comments detected")
	}
	if len(notes) == 0 {
		return "None"
	}
	return strings.Join(notes, "; ")
}
