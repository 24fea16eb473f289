// Package llm provides OpenAI-compatible chat completion clients for
// the Groq endpoint used by enrichment and query generation.
package llm

import "context"

// Message is one chat turn sent to the provider.
type Message struct {
	Role    string
	Content string
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest describes one chat completion call.
type ChatRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSONMode asks the provider to return a JSON object response.
	JSONMode bool
}

// ChatResult carries the completion text and token accounting.
type ChatResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is the chat completion interface used by the pipeline and the
// query engine. Implementations must be safe for concurrent use.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResult, error)
	Model() string
}
