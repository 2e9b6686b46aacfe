package conversation

import (
	"context"
	"fmt"

	"github.com/Kaggle-runa/book-agent/app/client/llm"
	"github.com/Kaggle-runa/book-agent/app/config"
	"github.com/Kaggle-runa/book-agent/app/service/thread"
)

// ChatAgent handles free-form turns outside the proposal-gathering flow,
// feeding the generation service a window of recent thread history.
type ChatAgent struct {
	agentName   string
	historySize int

	client    llm.Client
	threadSvc *thread.Service
}

func NewChatAgent(cfg *config.Config, client llm.Client, threadSvc *thread.Service) *ChatAgent {
	return &ChatAgent{
		agentName:   cfg.Agent.Name,
		historySize: cfg.Agent.ChatHistorySize,
		client:      client,
		threadSvc:   threadSvc,
	}
}

// Reply generates a response from the persona prompt plus the newest
// history window; the history already contains the user's latest message.
func (a *ChatAgent) Reply(ctx context.Context, threadID string) (string, error) {
	history, err := a.threadSvc.Recent(ctx, threadID, a.historySize)
	if err != nil {
		return "", fmt.Errorf("threadSvc.Recent: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: buildChatPrompt(a.agentName),
	})

	for _, msg := range history {
		messages = append(messages, llm.Message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	reply, err := a.client.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	return reply, nil
}
