package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/apperrors"
	"github.com/luminadata/schemagraph/pkg/cache"
	"github.com/luminadata/schemagraph/pkg/llm"
	"github.com/luminadata/schemagraph/pkg/models"
	"github.com/luminadata/schemagraph/pkg/sqlsafe"
	"github.com/luminadata/schemagraph/pkg/tracker"
)

// summaryFallback is returned when the second, data-aware LLM call
// fails after a successful query.
const summaryFallback = "I was able to retrieve the data, but encountered an error while trying to summarize it."

// conversational runs the JSON-planning agent: one planning call, an
// optional execution, and an optional data-aware summary call.
func (e *Engine) conversational(ctx context.Context, req *models.ChatRequest, client llm.Client, schemaCtx string) *models.ChatResponse {
	system := models.ChatMessage{Role: llm.RoleSystem, Content: conversationalSystemPrompt(schemaCtx)}

	working := make([]models.ChatMessage, 0, len(req.History)+2)
	working = append(working, system)
	working = append(working, req.History...)
	working = append(working, models.ChatMessage{Role: llm.RoleUser, Content: req.UserMessage})

	full := make([]models.ChatMessage, len(working))
	copy(full, working)

	key := cache.Key(req.ClientID, req.UserMessage)
	if cached, hit := e.cache.Get(ctx, key); hit {
		e.logger.Info("cache hit", zap.String("client_id", req.ClientID))
		cached.Cached = true
		cached.FullHistory = append(full, models.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: plan{Mode: cached.Mode, Summary: cached.Summary, SQL: strPtrOrNil(cached.SQL)}.marshal(),
		})
		return cached
	}

	working = trimToBudget(working, e.opts.TokenBudget)

	content, callErr := e.planningCall(ctx, req.ClientID, client, working)
	if callErr != nil {
		content = plan{
			Mode:    models.ModeSummaryOnly,
			Summary: fmt.Sprintf("Sorry, I encountered an error trying to process that request: %v", callErr),
		}.marshal()
	}
	full = append(full, models.ChatMessage{Role: llm.RoleAssistant, Content: content})

	p, parseErr := llm.ParseJSONResponse[plan](content)
	if parseErr != nil {
		e.logger.Error("undecodable planning response", zap.String("content", content))
		resp := errorResponse(apperrors.KindLLMMalformed,
			"I had a problem with my own response format. Please try again.", nil)
		resp.FullHistory = full
		return resp
	}
	switch p.Mode {
	case models.ModeSummaryOnly, models.ModeSQLOnly, models.ModeSQLAndSummary:
	case "":
		p.Mode = models.ModeSummaryOnly
	default:
		e.logger.Error("unrecognized planning mode", zap.String("mode", p.Mode))
		resp := errorResponse(apperrors.KindLLMMalformed,
			"I had a problem with my own response format. Please try again.", nil)
		resp.FullHistory = full
		return resp
	}

	resp := &models.ChatResponse{
		Mode:        p.Mode,
		Summary:     p.Summary,
		FullHistory: full,
	}
	if callErr != nil {
		resp.Error = string(kindOr(callErr, apperrors.KindLLMUnavailable))
		return resp
	}
	if p.SQL == nil || strings.TrimSpace(*p.SQL) == "" {
		return resp
	}

	// The model sometimes attaches SQL to a summary_only reply; treat
	// it as a full analytical answer.
	if resp.Mode == models.ModeSummaryOnly {
		resp.Mode = models.ModeSQLAndSummary
	}
	resp.SQL = sqlsafe.Clean(*p.SQL)

	df, execErr := e.runSQL(ctx, req.ClientID, resp.SQL)
	if execErr != nil {
		resp.Mode = models.ModeSummaryOnly
		resp.Error = string(kindOr(execErr, apperrors.KindSQLExecFailed))
		resp.Summary = failureSummary(execErr)
		return resp
	}
	resp.Dataframe = df
	resp.ChartSuggestion = SuggestChart(df)

	if resp.Mode == models.ModeSQLAndSummary {
		resp.Summary = e.dataAwareSummary(ctx, req, client, p.Summary, df)
	}

	e.cache.Set(ctx, key, resp)
	return resp
}

// planningCall issues the JSON-constrained planning completion.
func (e *Engine) planningCall(ctx context.Context, clientID string, client llm.Client, working []models.ChatMessage) (string, error) {
	start := time.Now()
	result, err := client.Chat(ctx, llm.ChatRequest{
		Messages:    toLLMMessages(working),
		Temperature: 0.0,
		MaxTokens:   1500,
		JSONMode:    true,
	})

	call := tracker.Call{
		CallerContext: "chat:" + clientID,
		Model:         client.Model(),
		Latency:       time.Since(start),
		Success:       err == nil,
		Err:           err,
	}
	if result != nil {
		call.InputTokens = result.PromptTokens
		call.OutputTokens = result.CompletionTokens
	}
	e.tracker.Log(call)

	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// dataAwareSummary makes the second LLM call over the retrieved rows.
func (e *Engine) dataAwareSummary(ctx context.Context, req *models.ChatRequest, client llm.Client, initialSummary string, df *models.DataFrame) string {
	prompt := finalSummaryPrompt(req.UserMessage, initialSummary, formatRows(df, 20))

	start := time.Now()
	result, err := client.Chat(ctx, llm.ChatRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: 0.1,
		MaxTokens:   1000,
	})

	call := tracker.Call{
		CallerContext: "summary:" + req.ClientID,
		Model:         client.Model(),
		Latency:       time.Since(start),
		Success:       err == nil,
		Err:           err,
	}
	if result != nil {
		call.InputTokens = result.PromptTokens
		call.OutputTokens = result.CompletionTokens
	}
	e.tracker.Log(call)

	if err != nil {
		e.logger.Error("final summary generation failed", zap.Error(err))
		return summaryFallback
	}
	return strings.TrimSpace(result.Content)
}

// runSQL opens the client's datasource and executes one validated
// statement.
func (e *Engine) runSQL(ctx context.Context, clientID, sql string) (*models.DataFrame, error) {
	reader, err := e.readers.Open(ctx, clientID)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return e.executor.Execute(ctx, reader, sql)
}

// failureSummary turns an execution error into the user-facing
// sentence.
func failureSummary(err error) string {
	if apperrors.Is(err, apperrors.KindSQLUnsafe) {
		return sqlsafe.SafetyAlert
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Msg != "" {
		return "Database error: " + appErr.Msg
	}
	return "Database error: " + sqlsafe.TruncateError(err)
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// formatRows renders up to limit rows as a padded text table for the
// summary prompt.
func formatRows(df *models.DataFrame, limit int) string {
	if df == nil || len(df.Columns) == 0 {
		return "(no rows)"
	}
	rows := df.Rows
	if len(rows) > limit {
		rows = rows[:limit]
	}

	widths := make([]int, len(df.Columns))
	cells := make([][]string, len(rows))
	for i, col := range df.Columns {
		widths[i] = len(col)
	}
	for r, row := range rows {
		cells[r] = make([]string, len(df.Columns))
		for i, col := range df.Columns {
			cell := formatCell(row[col])
			cells[r][i] = cell
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for i, col := range df.Columns {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(pad(col, widths[i]))
	}
	for _, row := range cells {
		b.WriteByte('\n')
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(pad(cell, widths[i]))
		}
	}
	return b.String()
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return t.Format(time.RFC3339)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
