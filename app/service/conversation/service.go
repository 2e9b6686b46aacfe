package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Kaggle-runa/book-agent/app/client/llm"
	"github.com/Kaggle-runa/book-agent/app/config"
	"github.com/Kaggle-runa/book-agent/app/service/answers"
	"github.com/Kaggle-runa/book-agent/app/service/thread"

	"github.com/samber/do"
)

var (
	ErrEmptyInput      = errors.New("empty input")
	ErrTurnInFlight    = errors.New("turn already in flight for this thread")
	ErrThreadCompleted = errors.New("proposal already summarized, reset to start over")
)

type TurnKind string

const (
	TurnQuestion TurnKind = "question"
	TurnDraft    TurnKind = "draft"
)

// TurnResult is the outcome of one proposal-gathering turn.
type TurnResult struct {
	Kind    TurnKind        `json:"kind"`
	Message *thread.Message `json:"message"`
}

// Service orchestrates proposal-gathering turns: it accepts user input,
// updates the answer store, invokes the planner and posts the resulting
// question or draft.
type Service struct {
	cfg        *config.Config
	answersSvc *answers.Service
	threadSvc  *thread.Service

	planner *PlannerAgent
	writer  *WriterAgent
	chat    *ChatAgent

	inFlight sync.Map
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	plannerClient := llm.NewOpenAI(cfg.OpenAI.Planner, llm.Options{
		JSONObject:  true,
		MaxTokens:   1000,
		Temperature: 1,
	})
	writerClient := llm.NewOpenAI(cfg.OpenAI.Writer, llm.Options{
		MaxTokens:   4000,
		Temperature: 0.7,
	})

	return NewWithClients(
		cfg,
		do.MustInvoke[*answers.Service](di),
		do.MustInvoke[*thread.Service](di),
		plannerClient,
		writerClient,
	), nil
}

func NewWithClients(
	cfg *config.Config,
	answersSvc *answers.Service,
	threadSvc *thread.Service,
	plannerClient llm.Client,
	writerClient llm.Client,
) *Service {
	return &Service{
		cfg:        cfg,
		answersSvc: answersSvc,
		threadSvc:  threadSvc,
		planner:    NewPlannerAgent(cfg, plannerClient),
		writer:     NewWriterAgent(cfg, writerClient),
		chat:       NewChatAgent(cfg, writerClient, threadSvc),
	}
}

// ProcessTurn handles one user turn of the proposal-gathering flow. The
// user's answer is persisted before any generation call, so a failed
// generation never loses it.
func (s *Service) ProcessTurn(ctx context.Context, threadID, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	if _, loaded := s.inFlight.LoadOrStore(threadID, struct{}{}); loaded {
		return nil, ErrTurnInFlight
	}
	defer s.inFlight.Delete(threadID)

	count, answerMap, err := s.answersSvc.Get(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("answersSvc.Get: %w", err)
	}

	lastAssistant, err := s.threadSvc.LastAssistant(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("threadSvc.LastAssistant: %w", err)
	}

	_, seeded := answerMap[answers.SeedKey]

	// A seeded thread whose last assistant message is not a question has
	// already received its draft.
	if seeded && lastAssistant != "" && pendingQuestion(lastAssistant) == "" {
		return nil, ErrThreadCompleted
	}

	if _, err := s.threadSvc.Append(ctx, threadID, thread.RoleUser, text); err != nil {
		return nil, fmt.Errorf("threadSvc.Append: %w", err)
	}

	if !seeded {
		answerMap[answers.SeedKey] = text
	} else {
		question := pendingQuestion(lastAssistant)
		if question == "" {
			question = answers.UnknownQuestion
		}

		count++
		answerMap[answers.QuestionKey(count)] = answers.EncodeRecord(question, text)
	}

	if err := s.answersSvc.Put(ctx, threadID, count, answerMap); err != nil {
		// The turn continues on in-memory state; the next successful
		// write reconciles the divergence.
		slog.Warn("Failed to persist proposal state",
			"thread_id", threadID,
			"error", err,
		)
	}

	decision, err := s.planner.Decide(ctx, answerMap, count)
	if err != nil {
		return nil, fmt.Errorf("planner.Decide: %w", err)
	}

	if decision.Kind == DecisionSummary {
		return s.finishWithDraft(ctx, threadID, answerMap, count, decision.Reason)
	}

	msg, err := s.threadSvc.Append(ctx, threadID, thread.RoleAssistant, formatQuestionMessage(decision))
	if err != nil {
		return nil, fmt.Errorf("threadSvc.Append: %w", err)
	}

	return &TurnResult{Kind: TurnQuestion, Message: msg}, nil
}

func (s *Service) finishWithDraft(ctx context.Context, threadID string, answerMap map[string]string, count int, reason string) (*TurnResult, error) {
	draft, err := s.writer.Summarize(ctx, answerMap)
	if err != nil {
		return nil, fmt.Errorf("writer.Summarize: %w", err)
	}

	msg, err := s.threadSvc.Append(ctx, threadID, thread.RoleAssistant, draft)
	if err != nil {
		return nil, fmt.Errorf("threadSvc.Append: %w", err)
	}

	slog.Info("Proposal draft generated",
		"thread_id", threadID,
		"rounds", count,
		"reason", reason,
	)

	return &TurnResult{Kind: TurnDraft, Message: msg}, nil
}

// ProcessChat handles one free-form chat turn on a thread, outside the
// proposal-gathering flow.
func (s *Service) ProcessChat(ctx context.Context, threadID, text string) (*thread.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	if _, loaded := s.inFlight.LoadOrStore(threadID, struct{}{}); loaded {
		return nil, ErrTurnInFlight
	}
	defer s.inFlight.Delete(threadID)

	if _, err := s.threadSvc.Append(ctx, threadID, thread.RoleUser, text); err != nil {
		return nil, fmt.Errorf("threadSvc.Append: %w", err)
	}

	reply, err := s.chat.Reply(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("chat.Reply: %w", err)
	}

	msg, err := s.threadSvc.Append(ctx, threadID, thread.RoleAssistant, reply)
	if err != nil {
		return nil, fmt.Errorf("threadSvc.Append: %w", err)
	}

	return msg, nil
}

// Reset clears the answer store and the message log, returning the thread
// to its initial state.
func (s *Service) Reset(ctx context.Context, threadID string) error {
	if err := s.answersSvc.Clear(ctx, threadID); err != nil {
		return fmt.Errorf("answersSvc.Clear: %w", err)
	}

	if err := s.threadSvc.Clear(ctx, threadID); err != nil {
		return fmt.Errorf("threadSvc.Clear: %w", err)
	}

	return nil
}
