package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/artifacts"
	"github.com/luminadata/schemagraph/pkg/llm"
	"github.com/luminadata/schemagraph/pkg/models"
	"github.com/luminadata/schemagraph/pkg/tracker"
)

func enrichLayer() *models.SemanticLayer {
	return &models.SemanticLayer{
		Version:  "1.5",
		ClientID: "acme",
		Tables: map[string]*models.SemanticTable{
			"employees": {Name: "employees", RowCount: 100, PrimaryKey: []string{"emp_id"}},
			"incidents": {Name: "incidents", RowCount: 500, PrimaryKey: []string{"incident_id"}, Role: models.RoleHub},
		},
	}
}

func newEnricherFixture(t *testing.T, client llm.Client) (*Enricher, *artifacts.Store, *tracker.Tracker) {
	t.Helper()
	store := artifacts.NewStore(t.TempDir(), zap.NewNop())
	tr := tracker.New(t.TempDir(), tracker.DefaultPricing(), zap.NewNop())
	return NewEnricher(client, store, tr, 0, zap.NewNop()), store, tr
}

func TestEnrich_DescribesAndCheckpointsEveryTable(t *testing.T) {
	client := llm.NewMockClient()
	client.ModelName = "llama-3.3-70b-versatile"
	client.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		return &llm.ChatResult{Content: "  Tracks things.  ", PromptTokens: 120, CompletionTokens: 40}, nil
	}

	enricher, store, tr := newEnricherFixture(t, client)
	layer := enrichLayer()

	failed, err := enricher.Enrich(context.Background(), layer)
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Equal(t, 2, client.ChatCalls)
	assert.Equal(t, 0.3, client.LastRequest.Temperature)
	assert.Equal(t, 500, client.LastRequest.MaxTokens)

	for _, table := range layer.Tables {
		assert.Equal(t, "Tracks things.", table.Description)
		assert.Equal(t, "llama-3.3-70b-versatile", table.DescriptionSource)
		assert.NotEmpty(t, table.DescriptionGeneratedAt)
	}

	// Checkpoint landed on disk.
	var persisted models.SemanticLayer
	require.NoError(t, store.Read("acme", artifacts.FileSemanticLayer, &persisted))
	assert.Equal(t, "Tracks things.", persisted.Tables["incidents"].Description)

	records := tr.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "enrich:employees", records[0].CallerContext)
	assert.Equal(t, 120, records[0].InputTokens)
}

func TestEnrich_FailureStoresErrorMarkerAndContinues(t *testing.T) {
	client := llm.NewMockClient()
	client.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		if client.ChatCalls == 1 {
			return nil, errors.New("rate limited")
		}
		return &llm.ChatResult{Content: "Incident register."}, nil
	}

	enricher, _, _ := newEnricherFixture(t, client)
	layer := enrichLayer()

	failed, err := enricher.Enrich(context.Background(), layer)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	// Sorted order: employees fails, incidents succeeds.
	assert.Equal(t, "[Error generating description: rate limited]", layer.Tables["employees"].Description)
	assert.Equal(t, "Incident register.", layer.Tables["incidents"].Description)
}

func TestEnrich_SkipsAlreadyDescribedTables(t *testing.T) {
	client := llm.NewMockClient()
	client.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		return &llm.ChatResult{Content: "Fresh description."}, nil
	}

	enricher, _, _ := newEnricherFixture(t, client)
	layer := enrichLayer()
	layer.Tables["employees"].Description = "Kept from a previous run."
	layer.Tables["incidents"].Description = "[Error generating description: rate limited]"

	failed, err := enricher.Enrich(context.Background(), layer)
	require.NoError(t, err)
	assert.Zero(t, failed)

	// Only the error-marked table is retried.
	assert.Equal(t, 1, client.ChatCalls)
	assert.Equal(t, "Kept from a previous run.", layer.Tables["employees"].Description)
	assert.Equal(t, "Fresh description.", layer.Tables["incidents"].Description)
}

func TestBuildDescriptionPrompt_CapsColumnsAtTen(t *testing.T) {
	table := &models.SemanticTable{Name: "wide", RowCount: 7, PrimaryKey: []string{"id"}}
	for i := 0; i < 15; i++ {
		table.Columns = append(table.Columns, models.SemanticColumn{
			Name:     string(rune('a' + i)),
			DataType: "text",
		})
	}

	prompt := buildDescriptionPrompt(table)
	assert.Contains(t, prompt, "**Table Name:** wide")
	assert.Contains(t, prompt, "- j (text)")
	assert.NotContains(t, prompt, "- k (text)")
	assert.Contains(t, prompt, "Row count: 7")
}
