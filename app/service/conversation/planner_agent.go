package conversation

import (
	"context"
	"fmt"

	"github.com/Kaggle-runa/book-agent/app/client/llm"
	"github.com/Kaggle-runa/book-agent/app/config"
)

// PlannerAgent decides each turn whether to pose another question or move
// to draft synthesis.
type PlannerAgent struct {
	agentName string
	maxRounds int

	client llm.Client
}

func NewPlannerAgent(cfg *config.Config, client llm.Client) *PlannerAgent {
	return &PlannerAgent{
		agentName: cfg.Agent.Name,
		maxRounds: cfg.Agent.MaxRounds,
		client:    client,
	}
}

// Decide submits the planning prompt as a single system instruction and
// resolves the reply. Transport errors surface to the caller; malformed
// replies never do — they degrade to the fallback question.
func (a *PlannerAgent) Decide(ctx context.Context, answerMap map[string]string, askedCount int) (Decision, error) {
	prompt := buildPlannerPrompt(a.agentName, answerMap, askedCount, a.maxRounds)

	reply, err := a.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: prompt},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("planner completion: %w", err)
	}

	return resolveDecision(parseDecision(reply), askedCount, a.maxRounds), nil
}
