package nl2sql

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/apperrors"
	"github.com/luminadata/schemagraph/pkg/cache"
	"github.com/luminadata/schemagraph/pkg/datasource"
	"github.com/luminadata/schemagraph/pkg/llm"
	"github.com/luminadata/schemagraph/pkg/models"
	"github.com/luminadata/schemagraph/pkg/sqlsafe"
	"github.com/luminadata/schemagraph/pkg/tracker"
)

const testSchemaContext = "TABLE incidents:\n  Columns: id (integer), status (text)"

type fakeContexts struct {
	context string
	err     error
}

func (f *fakeContexts) SchemaContext(ctx context.Context, clientID string, agent models.AgentKind) (string, error) {
	return f.context, f.err
}

type fakeReaders struct {
	reader *datasource.MockReader
	err    error
}

func (f *fakeReaders) Open(ctx context.Context, clientID string) (datasource.Reader, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reader, nil
}

type engineFixture struct {
	engine  *Engine
	llm     *llm.MockClient
	reader  *datasource.MockReader
	tracker *tracker.Tracker
}

func newEngineFixture(t *testing.T, resultCache *cache.ResultCache) *engineFixture {
	t.Helper()
	if resultCache == nil {
		resultCache = cache.New(nil, time.Minute, zap.NewNop())
	}
	client := llm.NewMockClient()
	reader := datasource.NewMockReader()
	tr := tracker.New("", tracker.DefaultPricing(), zap.NewNop())

	engine := New(
		client,
		&fakeContexts{context: testSchemaContext},
		&fakeReaders{reader: reader},
		sqlsafe.NewExecutor(0, zap.NewNop()),
		resultCache,
		tr,
		Options{},
		zap.NewNop(),
	)
	return &engineFixture{engine: engine, llm: client, reader: reader, tracker: tr}
}

func planResult(mode, summary, sql string) *llm.ChatResult {
	p := map[string]any{"mode": mode, "summary": summary, "sql": nil}
	if sql != "" {
		p["sql"] = sql
	}
	raw, _ := json.Marshal(p)
	return &llm.ChatResult{Content: string(raw), PromptTokens: 100, CompletionTokens: 20}
}

func TestChat_SummaryOnly(t *testing.T) {
	fx := newEngineFixture(t, nil)
	fx.llm.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		return planResult(models.ModeSummaryOnly, "Hello! Ask me about your data.", ""), nil
	}

	resp := fx.engine.Chat(context.Background(), &models.ChatRequest{
		ClientID:    "acme",
		UserMessage: "hi there",
	})

	assert.Equal(t, models.ModeSummaryOnly, resp.Mode)
	assert.Equal(t, "Hello! Ask me about your data.", resp.Summary)
	assert.Empty(t, resp.Error)
	assert.Nil(t, resp.Dataframe)
	assert.Empty(t, fx.reader.ExecuteCalls)

	// System prompt first, assistant reply last.
	require.NotEmpty(t, resp.FullHistory)
	assert.Equal(t, llm.RoleSystem, resp.FullHistory[0].Role)
	assert.Contains(t, resp.FullHistory[0].Content, "<schema>")
	assert.Contains(t, resp.FullHistory[0].Content, testSchemaContext)
	assert.Equal(t, llm.RoleAssistant, resp.FullHistory[len(resp.FullHistory)-1].Role)
}

func TestChat_SQLAndSummaryFlow(t *testing.T) {
	fx := newEngineFixture(t, nil)
	fx.llm.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		if req.JSONMode {
			return planResult(models.ModeSQLAndSummary, "I will count incidents by status.",
				"SELECT status, COUNT(*) FROM incidents GROUP BY status"), nil
		}
		// Second, data-aware summary call.
		assert.InDelta(t, 0.1, req.Temperature, 1e-9)
		assert.Equal(t, 1000, req.MaxTokens)
		return &llm.ChatResult{Content: "There are 3 open and 1 closed incidents."}, nil
	}
	fx.reader.ExecuteFunc = func(ctx context.Context, query string) (*datasource.QueryResult, error) {
		return &datasource.QueryResult{
			Columns: []string{"status", "count"},
			Rows: []map[string]any{
				{"status": "open", "count": int64(3)},
				{"status": "closed", "count": int64(1)},
			},
		}, nil
	}

	resp := fx.engine.Chat(context.Background(), &models.ChatRequest{
		ClientID:    "acme",
		UserMessage: "incidents by status",
	})

	assert.Equal(t, models.ModeSQLAndSummary, resp.Mode)
	assert.Equal(t, "There are 3 open and 1 closed incidents.", resp.Summary)
	assert.Equal(t, "SELECT status, COUNT(*) FROM incidents GROUP BY status;", resp.SQL)
	require.NotNil(t, resp.Dataframe)
	assert.Len(t, resp.Dataframe.Rows, 2)
	require.NotNil(t, resp.ChartSuggestion)
	assert.Equal(t, "bar", resp.ChartSuggestion.Type)
	assert.Equal(t, "status", resp.ChartSuggestion.XAxis)
	assert.Equal(t, 2, fx.llm.ChatCalls)

	// Both calls are tracked.
	assert.Len(t, fx.tracker.Records(), 2)

	// The planning call runs at temperature zero in JSON mode.
	first := fx.llm.SeenRequests[0]
	assert.True(t, first.JSONMode)
	assert.Zero(t, first.Temperature)
	assert.Equal(t, 1500, first.MaxTokens)
}

func TestChat_NormalizesSummaryOnlyWithSQL(t *testing.T) {
	fx := newEngineFixture(t, nil)
	fx.llm.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		if req.JSONMode {
			return planResult(models.ModeSummaryOnly, "Counting rows.", "SELECT COUNT(*) FROM incidents;"), nil
		}
		return &llm.ChatResult{Content: "There are 4 incidents."}, nil
	}
	fx.reader.ExecuteFunc = func(ctx context.Context, query string) (*datasource.QueryResult, error) {
		return &datasource.QueryResult{
			Columns: []string{"count"},
			Rows:    []map[string]any{{"count": int64(4)}},
		}, nil
	}

	resp := fx.engine.Chat(context.Background(), &models.ChatRequest{
		ClientID:    "acme",
		UserMessage: "how many incidents?",
	})

	assert.Equal(t, models.ModeSQLAndSummary, resp.Mode)
	require.NotNil(t, resp.Dataframe)
}

func TestChat_MalformedPlanReturnsSummaryOnly(t *testing.T) {
	fx := newEngineFixture(t, nil)
	fx.llm.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		return &llm.ChatResult{Content: "sure, here is the answer"}, nil
	}

	resp := fx.engine.Chat(context.Background(), &models.ChatRequest{
		ClientID:    "acme",
		UserMessage: "hello",
	})

	assert.Equal(t, models.ModeSummaryOnly, resp.Mode)
	assert.Equal(t, string(apperrors.KindLLMMalformed), resp.Error)
	assert.Empty(t, fx.reader.ExecuteCalls)
}

func TestChat_MissingModeDefaultsToSummaryOnly(t *testing.T) {
	fx := newEngineFixture(t, nil)
	fx.llm.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		return &llm.ChatResult{Content: `{"summary": "Hi there!", "sql": null}`}, nil
	}

	resp := fx.engine.Chat(context.Background(), &models.ChatRequest{
		ClientID:    "acme",
		UserMessage: "hello",
	})

	assert.Equal(t, models.ModeSummaryOnly, resp.Mode)
	assert.Equal(t, "Hi there!", resp.Summary)
	assert.Empty(t, resp.Error)
}

func TestChat_UnknownModeReturnsMalformed(t *testing.T) {
	fx := newEngineFixture(t, nil)
	fx.llm.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		return &llm.ChatResult{Content: `{"mode": "freeform", "summary": "hi", "sql": null}`}, nil
	}

	resp := fx.engine.Chat(context.Background(), &models.ChatRequest{
		ClientID:    "acme",
		UserMessage: "hello",
	})

	assert.Equal(t, models.ModeSummaryOnly, resp.Mode)
	assert.Equal(t, string(apperrors.KindLLMMalformed), resp.Error)
	assert.Empty(t, fx.reader.ExecuteCalls)
}

func TestChat_LLMFailureNarratesError(t *testing.T) {
	fx := newEngineFixture(t, nil)
	fx.llm.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		return nil, apperrors.New(apperrors.KindLLMUnavailable, "connection refused")
	}

	resp := fx.engine.Chat(context.Background(), &models.ChatRequest{
		ClientID:    "acme",
		UserMessage: "hello",
	})

	assert.Equal(t, models.ModeSummaryOnly, resp.Mode)
	assert.Equal(t, string(apperrors.KindLLMUnavailable), resp.Error)
	assert.Contains(t, resp.Summary, "Sorry, I encountered an error trying to process that request")

	// The error reply is still recorded in the transcript.
	last := resp.FullHistory[len(resp.FullHistory)-1]
	assert.Equal(t, llm.RoleAssistant, last.Role)
	assert.Contains(t, last.Content, "summary_only")
}

func TestChat_UnsafeSQLBlocked(t *testing.T) {
	fx := newEngineFixture(t, nil)
	fx.llm.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		return planResult(models.ModeSQLAndSummary, "Dropping the table.", "DROP TABLE incidents;"), nil
	}

	resp := fx.engine.Chat(context.Background(), &models.ChatRequest{
		ClientID:    "acme",
		UserMessage: "drop the incidents table",
	})

	assert.Equal(t, models.ModeSummaryOnly, resp.Mode)
	assert.Equal(t, string(apperrors.KindSQLUnsafe), resp.Error)
	assert.Equal(t, sqlsafe.SafetyAlert, resp.Summary)
	assert.Equal(t, "DROP TABLE incidents;", resp.SQL)
	assert.Nil(t, resp.Dataframe)
	assert.Empty(t, fx.reader.ExecuteCalls)
	assert.Equal(t, 1, fx.llm.ChatCalls)
}

func TestChat_ExecErrorNarratesFailure(t *testing.T) {
	fx := newEngineFixture(t, nil)
	fx.llm.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		return planResult(models.ModeSQLAndSummary, "Querying.", "SELECT missing FROM incidents;"), nil
	}
	fx.reader.ExecuteFunc = func(ctx context.Context, query string) (*datasource.QueryResult, error) {
		return nil, apperrors.New(apperrors.KindSQLExecFailed, `column "missing" does not exist`)
	}

	resp := fx.engine.Chat(context.Background(), &models.ChatRequest{
		ClientID:    "acme",
		UserMessage: "select missing",
	})

	assert.Equal(t, models.ModeSummaryOnly, resp.Mode)
	assert.Equal(t, string(apperrors.KindSQLExecFailed), resp.Error)
	assert.Contains(t, resp.Summary, "Database error")
	assert.Equal(t, "SELECT missing FROM incidents;", resp.SQL)
	assert.Nil(t, resp.Dataframe)
	// Only the planning call; no data-aware summary after a failure.
	assert.Equal(t, 1, fx.llm.ChatCalls)
}

func TestChat_CacheHitSkipsLLM(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	resultCache := cache.New(rdb, time.Hour, zap.NewNop())

	fx := newEngineFixture(t, resultCache)
	fx.llm.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		if req.JSONMode {
			return planResult(models.ModeSQLAndSummary, "Counting.", "SELECT COUNT(*) FROM incidents;"), nil
		}
		return &llm.ChatResult{Content: "There are 4 incidents."}, nil
	}
	fx.reader.ExecuteFunc = func(ctx context.Context, query string) (*datasource.QueryResult, error) {
		return &datasource.QueryResult{
			Columns: []string{"count"},
			Rows:    []map[string]any{{"count": float64(4)}},
		}, nil
	}

	req := &models.ChatRequest{ClientID: "acme", UserMessage: "How many incidents?"}

	first := fx.engine.Chat(context.Background(), req)
	require.Empty(t, first.Error)
	assert.False(t, first.Cached)
	assert.Equal(t, 2, fx.llm.ChatCalls)

	// Restated question normalizes to the same key.
	second := fx.engine.Chat(context.Background(), &models.ChatRequest{
		ClientID:    "acme",
		UserMessage: "  how many incidents?  ",
	})
	assert.True(t, second.Cached)
	assert.Equal(t, first.Summary, second.Summary)
	require.NotNil(t, second.Dataframe)
	assert.Equal(t, 2, fx.llm.ChatCalls)
	assert.Empty(t, fx.reader.ExecuteCalls[1:])
}

func TestChat_FailedResponsesAreNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	resultCache := cache.New(rdb, time.Hour, zap.NewNop())

	fx := newEngineFixture(t, resultCache)
	fx.llm.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		return planResult(models.ModeSQLAndSummary, "Querying.", "SELECT bad FROM incidents;"), nil
	}
	fx.reader.ExecuteFunc = func(ctx context.Context, query string) (*datasource.QueryResult, error) {
		return nil, apperrors.New(apperrors.KindSQLExecFailed, "boom")
	}

	fx.engine.Chat(context.Background(), &models.ChatRequest{ClientID: "acme", UserMessage: "q"})
	assert.Empty(t, mr.Keys())
}

func TestChat_EngineAgentRawSQL(t *testing.T) {
	fx := newEngineFixture(t, nil)
	fx.llm.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		// The engine agents get a two-message prompt, no JSON mode.
		assert.False(t, req.JSONMode)
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[0].Content, "expert PostgreSQL analyst")
		assert.Contains(t, req.Messages[1].Content, "SCHEMA CONTEXT FOR acme:")
		return &llm.ChatResult{Content: "```sql\nselect status from incidents\n```"}, nil
	}
	fx.reader.ExecuteFunc = func(ctx context.Context, query string) (*datasource.QueryResult, error) {
		return &datasource.QueryResult{
			Columns: []string{"status"},
			Rows:    []map[string]any{{"status": "open"}},
		}, nil
	}

	resp := fx.engine.Chat(context.Background(), &models.ChatRequest{
		ClientID:    "acme",
		UserMessage: "list statuses",
		Agent:       models.AgentNeo4jEngine,
	})

	assert.Equal(t, models.ModeSQLOnly, resp.Mode)
	assert.Equal(t, "select status from incidents;", resp.SQL)
	assert.Equal(t, "Query executed successfully, returning 1 rows.", resp.Summary)
	require.NotNil(t, resp.Dataframe)
	// Raw-SQL agents make exactly one LLM call.
	assert.Equal(t, 1, fx.llm.ChatCalls)
}

func TestChat_ValidatesRequest(t *testing.T) {
	fx := newEngineFixture(t, nil)

	resp := fx.engine.Chat(context.Background(), &models.ChatRequest{UserMessage: "q"})
	assert.Equal(t, string(apperrors.KindConfigMissing), resp.Error)

	resp = fx.engine.Chat(context.Background(), &models.ChatRequest{ClientID: "acme"})
	assert.Equal(t, string(apperrors.KindConfigMissing), resp.Error)

	resp = fx.engine.Chat(context.Background(), &models.ChatRequest{
		ClientID: "acme", UserMessage: "q", Agent: models.AgentKind("Bogus"),
	})
	assert.Equal(t, string(apperrors.KindConfigMissing), resp.Error)
	assert.Zero(t, fx.llm.ChatCalls)
}

func TestChat_GraphStoreDownServesEmptySchema(t *testing.T) {
	client := llm.NewMockClient()
	client.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
		return planResult(models.ModeSummaryOnly, "I can still chat, but I have no schema loaded.", ""), nil
	}
	engine := New(
		client,
		&fakeContexts{err: apperrors.New(apperrors.KindGraphStoreDown, "neo4j down")},
		&fakeReaders{reader: datasource.NewMockReader()},
		sqlsafe.NewExecutor(0, zap.NewNop()),
		cache.New(nil, time.Minute, zap.NewNop()),
		tracker.New("", tracker.DefaultPricing(), zap.NewNop()),
		Options{},
		zap.NewNop(),
	)

	resp := engine.Chat(context.Background(), &models.ChatRequest{
		ClientID:    "acme",
		UserMessage: "hi",
	})

	assert.Empty(t, resp.Error)
	assert.Equal(t, models.ModeSummaryOnly, resp.Mode)
	require.Equal(t, 1, client.ChatCalls)
	require.NotEmpty(t, resp.FullHistory)
	assert.Contains(t, resp.FullHistory[0].Content, "<schema>\n\n</schema>")
}

func TestTrimToBudget(t *testing.T) {
	long := strings.Repeat("x", 4000) // ~1000 tokens
	history := []models.ChatMessage{
		{Role: llm.RoleSystem, Content: long},
		{Role: llm.RoleUser, Content: long},
		{Role: llm.RoleAssistant, Content: long},
		{Role: llm.RoleUser, Content: "latest"},
	}

	trimmed := trimToBudget(history, 2500)

	// System message survives; the oldest non-system turns go first.
	assert.Equal(t, llm.RoleSystem, trimmed[0].Role)
	assert.Equal(t, "latest", trimmed[len(trimmed)-1].Content)
	assert.Len(t, trimmed, 3)

	total := 0
	for _, m := range trimmed {
		total += len(m.Content) / 4
	}
	assert.LessOrEqual(t, total, 2500)
}

func TestTrimToBudget_NeverDropsBelowTwoMessages(t *testing.T) {
	long := strings.Repeat("x", 40000)
	history := []models.ChatMessage{
		{Role: llm.RoleSystem, Content: long},
		{Role: llm.RoleUser, Content: long},
	}
	trimmed := trimToBudget(history, 100)
	assert.Len(t, trimmed, 2)
}
