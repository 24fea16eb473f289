// Package nl2sql is the stateless conversational NL to SQL engine. Each
// request carries its own history; the engine plans with an LLM,
// validates and runs the generated SQL, and narrates the result.
package nl2sql

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/apperrors"
	"github.com/luminadata/schemagraph/pkg/cache"
	"github.com/luminadata/schemagraph/pkg/datasource"
	"github.com/luminadata/schemagraph/pkg/llm"
	"github.com/luminadata/schemagraph/pkg/models"
	"github.com/luminadata/schemagraph/pkg/sqlsafe"
	"github.com/luminadata/schemagraph/pkg/tracker"
)

// defaultTokenBudget bounds the working history sent to the LLM,
// estimated at four characters per token.
const defaultTokenBudget = 6000

// ContextSource materializes the schema context string for one client.
// The agent kind selects the backing graph (queryable store or the
// portable on-disk graph).
type ContextSource interface {
	SchemaContext(ctx context.Context, clientID string, agent models.AgentKind) (string, error)
}

// ReaderSource opens a read-only connection to one client's datasource.
// Callers own the returned reader and must Close it.
type ReaderSource interface {
	Open(ctx context.Context, clientID string) (datasource.Reader, error)
}

// Options tunes the engine.
type Options struct {
	// TokenBudget caps the estimated size of the working history.
	// Non-positive means the 6000-token default.
	TokenBudget int

	// ModelSelector returns a client bound to the named model. Nil, or
	// an empty name, falls back to the default client.
	ModelSelector func(model string) llm.Client
}

// Engine serves chat requests. It keeps no per-session state; identical
// requests are independent.
type Engine struct {
	llm      llm.Client
	contexts ContextSource
	readers  ReaderSource
	executor *sqlsafe.Executor
	cache    *cache.ResultCache
	tracker  *tracker.Tracker
	opts     Options
	logger   *zap.Logger
}

// New builds an Engine.
func New(client llm.Client, contexts ContextSource, readers ReaderSource, executor *sqlsafe.Executor, resultCache *cache.ResultCache, tr *tracker.Tracker, opts Options, logger *zap.Logger) *Engine {
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = defaultTokenBudget
	}
	return &Engine{
		llm:      client,
		contexts: contexts,
		readers:  readers,
		executor: executor,
		cache:    resultCache,
		tracker:  tr,
		opts:     opts,
		logger:   logger.Named("nl2sql"),
	}
}

// Chat answers one request. It never returns a Go error: failures come
// back as a well-formed response with mode summary_only and a stable
// machine tag in the Error field.
func (e *Engine) Chat(ctx context.Context, req *models.ChatRequest) *models.ChatResponse {
	if req.ClientID == "" {
		return errorResponse(apperrors.KindConfigMissing, "A client must be selected before chatting.", req.History)
	}
	if req.UserMessage == "" {
		return errorResponse(apperrors.KindConfigMissing, "Please ask a question.", req.History)
	}

	agent := req.Agent
	if agent == "" {
		agent = models.AgentConversational
	}
	if !agent.Valid() {
		return errorResponse(apperrors.KindConfigMissing, "Unknown agent: "+string(req.Agent), req.History)
	}

	client := e.llm
	if e.opts.ModelSelector != nil && req.ModelName != "" {
		client = e.opts.ModelSelector(req.ModelName)
	}

	schemaCtx, err := e.contexts.SchemaContext(ctx, req.ClientID, agent)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindGraphStoreDown {
			// Serve with an empty schema context when the graph store
			// is down. The agent still answers from history alone.
			e.logger.Warn("graph store unavailable, serving without schema context",
				zap.String("client_id", req.ClientID),
				zap.Error(err))
			schemaCtx = ""
		} else {
			e.logger.Error("schema context unavailable",
				zap.String("client_id", req.ClientID),
				zap.Error(err))
			return errorResponse(kindOr(err, apperrors.KindGraphStoreDown),
				"I could not load the schema for this client. Please try again later.", req.History)
		}
	}

	if agent == models.AgentConversational {
		return e.conversational(ctx, req, client, schemaCtx)
	}
	return e.engineAgent(ctx, req, client, schemaCtx)
}

// trimToBudget drops the oldest non-system messages until the estimated
// token count fits the budget. The system message at index 0 is never
// dropped.
func trimToBudget(history []models.ChatMessage, budget int) []models.ChatMessage {
	tokens := 0
	for _, m := range history {
		tokens += llm.EstimateTokens(m.Content)
	}
	for tokens > budget && len(history) > 2 {
		tokens -= llm.EstimateTokens(history[1].Content)
		history = append(history[:1], history[2:]...)
	}
	return history
}

// errorResponse is the uniform failure envelope.
func errorResponse(kind apperrors.Kind, summary string, history []models.ChatMessage) *models.ChatResponse {
	return &models.ChatResponse{
		Mode:        models.ModeSummaryOnly,
		Summary:     summary,
		Error:       string(kind),
		FullHistory: history,
	}
}

func kindOr(err error, fallback apperrors.Kind) apperrors.Kind {
	if kind := apperrors.KindOf(err); kind != "" {
		return kind
	}
	return fallback
}

// plan is the structured reply the conversational agent asks for.
type plan struct {
	Mode    string  `json:"mode"`
	Summary string  `json:"summary"`
	SQL     *string `json:"sql"`
}

func (p plan) marshal() string {
	raw, _ := json.Marshal(p)
	return string(raw)
}

func toLLMMessages(history []models.ChatMessage) []llm.Message {
	out := make([]llm.Message, len(history))
	for i, m := range history {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
