package conversation

import (
	"context"
	"fmt"

	"github.com/Kaggle-runa/book-agent/app/client/llm"
	"github.com/Kaggle-runa/book-agent/app/config"
)

// WriterAgent synthesizes the one-page proposal draft from the accumulated
// answers. Each call is a fresh, independent request; the questioning
// exchange is never appended to it.
type WriterAgent struct {
	agentName string

	client llm.Client
}

func NewWriterAgent(cfg *config.Config, client llm.Client) *WriterAgent {
	return &WriterAgent{
		agentName: cfg.Agent.Name,
		client:    client,
	}
}

// Summarize returns the generated draft verbatim.
func (a *WriterAgent) Summarize(ctx context.Context, answerMap map[string]string) (string, error) {
	prompt := buildSummaryPrompt(a.agentName, answerMap)

	draft, err := a.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("summary completion: %w", err)
	}

	return draft, nil
}
