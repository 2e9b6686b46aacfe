package conversation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Kaggle-runa/book-agent/app/service/answers"

	_ "embed"
)

//go:embed planner_prompt_template.txt
var plannerPromptTemplate string

//go:embed summary_prompt_template.txt
var summaryPromptTemplate string

//go:embed chat_prompt_template.txt
var chatPromptTemplate string

const (
	seedPlaceholder       = "（未入力）"
	transcriptPlaceholder = "（まだ質問していません）"

	// Per-item truncation bounds keep the summary prompt size in check.
	maxAnswerRunes = 1000
	maxSeedRunes   = 800
)

// Advisory question topics; coverage is not mandatory.
var topicHints = []string{
	"想定読者とその悩み",
	"本を書こうと思った背景・動機",
	"類書と比べたセールスポイント",
	"章構成・アウトラインの案",
	"著者のプロフィールと実績",
	"読者が読み終えたあとの変化",
}

// buildPlannerPrompt renders the planning instruction. Pure: identical
// inputs always produce the identical string.
func buildPlannerPrompt(agentName string, answerMap map[string]string, askedCount, maxRounds int) string {
	return renderTemplate(plannerPromptTemplate, map[string]string{
		"agent_name":  agentName,
		"seed":        seedText(answerMap, 0),
		"transcript":  transcript(answerMap, 0),
		"asked_count": strconv.Itoa(askedCount),
		"max_rounds":  strconv.Itoa(maxRounds),
		"topic_hints": "- " + strings.Join(topicHints, "\n- "),
	})
}

// buildSummaryPrompt renders the draft-synthesis instruction with bounded
// answer and seed lengths.
func buildSummaryPrompt(agentName string, answerMap map[string]string) string {
	return renderTemplate(summaryPromptTemplate, map[string]string{
		"agent_name": agentName,
		"seed":       seedText(answerMap, maxSeedRunes),
		"transcript": transcript(answerMap, maxAnswerRunes),
	})
}

func buildChatPrompt(agentName string) string {
	return renderTemplate(chatPromptTemplate, map[string]string{
		"agent_name": agentName,
	})
}

func renderTemplate(tmpl string, values map[string]string) string {
	for key, value := range values {
		tmpl = strings.ReplaceAll(tmpl, "{"+key+"}", value)
	}

	return strings.TrimSpace(tmpl)
}

func seedText(answerMap map[string]string, maxRunes int) string {
	seed, ok := answerMap[answers.SeedKey]
	if !ok || strings.TrimSpace(seed) == "" {
		return seedPlaceholder
	}

	return truncateRunes(seed, maxRunes)
}

// transcript renders the q1..qN exchange in key order, skipping the seed
// key. A maxRunes of 0 disables answer truncation.
func transcript(answerMap map[string]string, maxRunes int) string {
	var b strings.Builder

	for i := 1; ; i++ {
		raw, ok := answerMap[answers.QuestionKey(i)]
		if !ok {
			break
		}

		rec := answers.ParseRecord(raw)

		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Q%d. %s\nA%d. %s", i, rec.Question, i, truncateRunes(rec.Answer, maxRunes))
	}

	if b.Len() == 0 {
		return transcriptPlaceholder
	}

	return b.String()
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}

	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n]) + "…"
}
