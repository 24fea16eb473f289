package nl2sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/apperrors"
	"github.com/luminadata/schemagraph/pkg/llm"
	"github.com/luminadata/schemagraph/pkg/models"
	"github.com/luminadata/schemagraph/pkg/sqlsafe"
	"github.com/luminadata/schemagraph/pkg/tracker"
)

// engineAgent runs the raw-SQL agents: one generation call, execution,
// and a fixed templated summary. No JSON wrapper, no second LLM call.
func (e *Engine) engineAgent(ctx context.Context, req *models.ChatRequest, client llm.Client, schemaCtx string) *models.ChatResponse {
	userMsg := models.ChatMessage{Role: llm.RoleUser, Content: req.UserMessage}

	start := time.Now()
	result, err := client.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: engineSystemPrompt},
			{Role: llm.RoleUser, Content: engineUserPrompt(req.ClientID, schemaCtx, req.UserMessage)},
		},
		Temperature: 0.0,
		MaxTokens:   1000,
	})

	call := tracker.Call{
		CallerContext: "engine:" + req.ClientID,
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
		e.logger.Error("sql generation failed", zap.Error(err))
		resp := errorResponse(kindOr(err, apperrors.KindLLMUnavailable),
			fmt.Sprintf("Sorry, I encountered an error trying to process that request: %v", err), nil)
		resp.FullHistory = append(req.History, userMsg)
		return resp
	}

	sql := sqlsafe.Clean(result.Content)
	if strings.TrimSuffix(sql, ";") == "" {
		resp := errorResponse(apperrors.KindLLMMalformed,
			"I was unable to generate a query for that question.", nil)
		resp.FullHistory = append(req.History, userMsg)
		return resp
	}

	resp := &models.ChatResponse{
		Mode:        models.ModeSQLOnly,
		SQL:         sql,
		FullHistory: append(req.History, userMsg, models.ChatMessage{Role: llm.RoleAssistant, Content: sql}),
	}

	df, execErr := e.runSQL(ctx, req.ClientID, sql)
	if execErr != nil {
		resp.Mode = models.ModeSummaryOnly
		resp.Error = string(kindOr(execErr, apperrors.KindSQLExecFailed))
		resp.Summary = failureSummary(execErr)
		return resp
	}

	resp.Dataframe = df
	resp.ChartSuggestion = SuggestChart(df)
	resp.Summary = fmt.Sprintf("Query executed successfully, returning %d rows.", len(df.Rows))
	return resp
}
