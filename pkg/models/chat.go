package models

// AgentKind selects which answering strategy serves a chat request.
type AgentKind string

const (
	AgentConversational AgentKind = "Conversational"
	AgentNeo4jEngine    AgentKind = "Neo4jEngine"
	AgentNetworkEngine  AgentKind = "NetworkXEngine"
)

// Valid reports whether k is a recognized agent kind.
func (k AgentKind) Valid() bool {
	switch k {
	case AgentConversational, AgentNeo4jEngine, AgentNetworkEngine:
		return true
	}
	return false
}

// ChatMessage is one turn of conversation history on the wire.
// History is owned by the caller and round-tripped with each request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the stateless input to Engine.Chat. The engine never
// stores state between calls; History carries the prior turns.
type ChatRequest struct {
	ClientID    string        `json:"client_id"`
	UserMessage string        `json:"user_message"`
	History     []ChatMessage `json:"history,omitempty"`
	Agent       AgentKind     `json:"agent_name,omitempty"`
	ModelName   string        `json:"model_name,omitempty"`
}

// ChartSuggestion hints how a result set should be rendered.
type ChartSuggestion struct {
	Type  string `json:"type"`
	XAxis string `json:"x_axis,omitempty"`
	YAxis string `json:"y_axis,omitempty"`
}

// DataFrame is a column-ordered result set. Columns preserves the
// SELECT order of the executed statement.
type DataFrame struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// ChatResponse is the full answer envelope. A failed request is still a
// well-formed response: mode summary_only, a human sentence in Summary,
// and a stable machine tag in Error.
type ChatResponse struct {
	Mode            string           `json:"mode"`
	Summary         string           `json:"summary,omitempty"`
	SQL             string           `json:"sql,omitempty"`
	ChartSuggestion *ChartSuggestion `json:"chart_suggestion,omitempty"`
	Dataframe       *DataFrame       `json:"dataframe,omitempty"`
	Error           string           `json:"error,omitempty"`
	FullHistory     []ChatMessage    `json:"full_history"`
	Cached          bool             `json:"cached,omitempty"`
}

// Response modes.
const (
	ModeSummaryOnly   = "summary_only"
	ModeSQLOnly       = "sql_only"
	ModeSQLAndSummary = "sql_and_summary"
)
