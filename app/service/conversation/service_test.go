package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Kaggle-runa/book-agent/app/client/llm"
	"github.com/Kaggle-runa/book-agent/app/config"
	"github.com/Kaggle-runa/book-agent/app/service/answers"
	"github.com/Kaggle-runa/book-agent/app/service/thread"
	"github.com/Kaggle-runa/book-agent/app/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	reply string
	err   error

	calls      int
	lastPrompt string
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message) (string, error) {
	f.calls++
	if len(messages) > 0 {
		f.lastPrompt = messages[len(messages)-1].Content
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// readOnlyDurable loads an empty state but rejects every write.
type readOnlyDurable struct{}

func (readOnlyDurable) Load(context.Context, string) (int, map[string]string, error) {
	return 0, map[string]string{}, nil
}

func (readOnlyDurable) Store(context.Context, string, int, map[string]string) error {
	return errors.New("durable store down")
}

func (readOnlyDurable) Delete(context.Context, string) error {
	return errors.New("durable store down")
}

type testEnv struct {
	svc        *Service
	answersSvc *answers.Service
	threadSvc  *thread.Service
	planner    *fakeLLM
	writer     *fakeLLM
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "conversation_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Agent: config.Agent{
			Name:            "編集者",
			MaxRounds:       12,
			ChatHistorySize: 20,
		},
	}

	answersSvc := answers.NewWithStores(answers.NewSQLiteDurable(db), answers.NoopCache{})
	threadSvc := thread.NewWithDB(db)
	planner := &fakeLLM{}
	writer := &fakeLLM{}

	return &testEnv{
		svc:        NewWithClients(cfg, answersSvc, threadSvc, planner, writer),
		answersSvc: answersSvc,
		threadSvc:  threadSvc,
		planner:    planner,
		writer:     writer,
	}
}

func TestProcessTurn_EmptyInputRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.ProcessTurn(context.Background(), "t1", "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestProcessTurn_InFlightTurnRejected(t *testing.T) {
	env := newTestEnv(t)
	env.svc.inFlight.Store("t1", struct{}{})

	_, err := env.svc.ProcessTurn(context.Background(), "t1", "答えです")
	assert.ErrorIs(t, err, ErrTurnInFlight)
}

// Scenario: the first user message is stored verbatim as the seed pitch and
// the planner's question is posted in the 【質問】 format.
func TestProcessTurn_SeedTurn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.planner.reply = `{"decision":"ask","question":"想定読者は？","followups":[]}`

	result, err := env.svc.ProcessTurn(ctx, "t1", "忙しい人向けの本")
	require.NoError(t, err)
	assert.Equal(t, TurnQuestion, result.Kind)
	assert.Equal(t, "【質問】想定読者は？", result.Message.Content)

	count, answerMap, err := env.answersSvc.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, count, "the seed is not an answered round")
	assert.Equal(t, "忙しい人向けの本", answerMap[answers.SeedKey])

	messages, err := env.threadSvc.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, thread.RoleUser, messages[0].Role)
	assert.Equal(t, thread.RoleAssistant, messages[1].Role)
}

// Scenario: a follow-up answer is labeled with the pending question derived
// from the last posted assistant message.
func TestProcessTurn_AnswerLabeledWithPendingQuestion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.planner.reply = `{"decision":"ask","question":"想定読者は？","followups":[]}`
	_, err := env.svc.ProcessTurn(ctx, "t1", "忙しい人向けの本")
	require.NoError(t, err)

	env.planner.reply = `{"decision":"ask","question":"構成案は？","followups":["章数は？"]}`
	result, err := env.svc.ProcessTurn(ctx, "t1", "経営者です")
	require.NoError(t, err)
	assert.Equal(t, "【質問】構成案は？\n・章数は？", result.Message.Content)

	count, answerMap, err := env.answersSvc.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec := answers.ParseRecord(answerMap[answers.QuestionKey(1)])
	assert.Equal(t, "想定読者は？", rec.Question)
	assert.Equal(t, "経営者です", rec.Answer)
}

// Scenario: at the round cap the decision is forced to summary even though
// the generation service keeps asking.
func TestProcessTurn_RoundCapForcesDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	answerMap := map[string]string{answers.SeedKey: "忙しい人向けの本"}
	for i := 1; i <= 11; i++ {
		answerMap[answers.QuestionKey(i)] = answers.EncodeRecord("質問", "回答")
	}
	require.NoError(t, env.answersSvc.Put(ctx, "t1", 11, answerMap))
	_, err := env.threadSvc.Append(ctx, "t1", thread.RoleAssistant, "【質問】最後の質問は？")
	require.NoError(t, err)

	env.planner.reply = `{"decision":"ask","question":"もう一つだけ？","followups":[]}`
	env.writer.reply = "ここに企画書の下書きが入ります"

	result, err := env.svc.ProcessTurn(ctx, "t1", "十二番目の回答")
	require.NoError(t, err)
	assert.Equal(t, TurnDraft, result.Kind)
	assert.Equal(t, "ここに企画書の下書きが入ります", result.Message.Content)
	assert.Equal(t, 1, env.writer.calls)

	count, _, err := env.answersSvc.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 12, count)
}

// Scenario: a failed draft generation keeps the just-persisted answer but
// posts no assistant message.
func TestProcessTurn_DraftFailureKeepsAnswer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.answersSvc.Put(ctx, "t1", 0, map[string]string{
		answers.SeedKey: "忙しい人向けの本",
	}))
	_, err := env.threadSvc.Append(ctx, "t1", thread.RoleAssistant, "【質問】想定読者は？")
	require.NoError(t, err)

	env.planner.reply = `{"decision":"summary","reason":"十分"}`
	env.writer.err = errors.New("upstream unavailable")

	_, err = env.svc.ProcessTurn(ctx, "t1", "経営者です")
	require.Error(t, err)

	count, answerMap, getErr := env.answersSvc.Get(ctx, "t1")
	require.NoError(t, getErr)
	assert.Equal(t, 1, count)
	rec := answers.ParseRecord(answerMap[answers.QuestionKey(1)])
	assert.Equal(t, "経営者です", rec.Answer)

	lastAssistant, lastErr := env.threadSvc.LastAssistant(ctx, "t1")
	require.NoError(t, lastErr)
	assert.Equal(t, "【質問】想定読者は？", lastAssistant, "no draft message posted")
}

func TestProcessTurn_PlannerTransportErrorSurfaces(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.planner.err = errors.New("connection refused")

	_, err := env.svc.ProcessTurn(ctx, "t1", "忙しい人向けの本")
	require.Error(t, err)

	// The seed survives the failed turn.
	_, answerMap, getErr := env.answersSvc.Get(ctx, "t1")
	require.NoError(t, getErr)
	assert.Equal(t, "忙しい人向けの本", answerMap[answers.SeedKey])
}

func TestProcessTurn_MalformedPlannerReplyAsksFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.planner.reply = "すみません、JSONでは答えられません"

	result, err := env.svc.ProcessTurn(ctx, "t1", "忙しい人向けの本")
	require.NoError(t, err)
	assert.Equal(t, TurnQuestion, result.Kind)
	assert.Equal(t, "【質問】"+FallbackQuestion, result.Message.Content)
}

func TestProcessTurn_CompletedThreadRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.planner.reply = `{"decision":"summary","reason":"十分"}`
	env.writer.reply = "ここに企画書の下書きが入ります"

	_, err := env.svc.ProcessTurn(ctx, "t1", "忙しい人向けの本")
	require.NoError(t, err)

	_, err = env.svc.ProcessTurn(ctx, "t1", "続けたいのですが")
	assert.ErrorIs(t, err, ErrThreadCompleted)
}

func TestProcessTurn_ContinuesWhenPersistenceFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A store that rejects writes must not stall the turn: the planner
	// runs on in-memory state and the question is still posted.
	env.svc.answersSvc = answers.NewWithStores(readOnlyDurable{}, answers.NoopCache{})

	env.planner.reply = `{"decision":"ask","question":"想定読者は？","followups":[]}`

	result, err := env.svc.ProcessTurn(ctx, "t1", "忙しい人向けの本")
	require.NoError(t, err)
	assert.Equal(t, "【質問】想定読者は？", result.Message.Content)
}

func TestReset_ReturnsThreadToInitialState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.planner.reply = `{"decision":"ask","question":"想定読者は？","followups":[]}`
	_, err := env.svc.ProcessTurn(ctx, "t1", "忙しい人向けの本")
	require.NoError(t, err)

	require.NoError(t, env.svc.Reset(ctx, "t1"))

	count, answerMap, err := env.answersSvc.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, answerMap)

	messages, err := env.threadSvc.List(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, messages)

	// The reset thread accepts a fresh seed.
	result, err := env.svc.ProcessTurn(ctx, "t1", "新しい企画です")
	require.NoError(t, err)
	assert.Equal(t, TurnQuestion, result.Kind)
}

func TestProcessChat_UsesHistoryWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.writer.reply = "チャット返信です"

	msg, err := env.svc.ProcessChat(ctx, "chat-1", "タイトル案を相談したい")
	require.NoError(t, err)
	assert.Equal(t, "チャット返信です", msg.Content)

	messages, err := env.threadSvc.List(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, thread.RoleUser, messages[0].Role)
	assert.Equal(t, thread.RoleAssistant, messages[1].Role)
}
