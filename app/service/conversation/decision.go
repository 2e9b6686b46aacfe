package conversation

import (
	"encoding/json"
	"strings"

	"github.com/elliotchance/pie/v2"
)

type DecisionKind string

const (
	DecisionAsk     DecisionKind = "ask"
	DecisionSummary DecisionKind = "summary"
)

const (
	questionPrefix = "【質問】"
	maxFollowups   = 2

	// FallbackQuestion is posed when the planner reply cannot be parsed.
	FallbackQuestion = "この本で一番伝えたいことは何ですか？"

	roundCapReason = "質問ラウンドの上限に達した"
)

// Decision is the planner's parsed verdict: either ask one more question
// (with up to two follow-ups) or move to draft synthesis.
type Decision struct {
	Kind      DecisionKind
	Question  string
	Followups []string
	Reason    string
}

type decisionReply struct {
	Decision  string `json:"decision"`
	Question  string `json:"question"`
	Followups []any  `json:"followups"`
	Reason    string `json:"reason"`
}

func fallbackDecision() Decision {
	return Decision{Kind: DecisionAsk, Question: FallbackQuestion}
}

// parseDecision turns a raw generation reply into a Decision. Malformed
// input degrades to the fallback question; this never fails.
func parseDecision(raw string) Decision {
	result := strings.TrimSpace(raw)
	result = strings.Trim(result, "`")
	result = strings.TrimSpace(result)
	result = strings.TrimPrefix(result, "json")
	result = strings.TrimSpace(result)

	var reply decisionReply
	if err := json.Unmarshal([]byte(result), &reply); err != nil {
		return fallbackDecision()
	}

	switch reply.Decision {
	case string(DecisionAsk):
		question := strings.TrimSpace(reply.Question)
		if question == "" {
			return fallbackDecision()
		}

		followups := pie.Filter(pie.Map(reply.Followups, func(f any) string {
			s, _ := f.(string)
			return strings.TrimSpace(s)
		}), func(f string) bool {
			return f != ""
		})
		if len(followups) > maxFollowups {
			followups = followups[:maxFollowups]
		}

		return Decision{Kind: DecisionAsk, Question: question, Followups: followups}
	case string(DecisionSummary):
		return Decision{Kind: DecisionSummary, Reason: strings.TrimSpace(reply.Reason)}
	default:
		return fallbackDecision()
	}
}

// resolveDecision applies the client-side round cap, which is authoritative
// over whatever the generation service decided.
func resolveDecision(d Decision, askedCount, maxRounds int) Decision {
	if d.Kind == DecisionSummary {
		return d
	}

	if askedCount >= maxRounds {
		return Decision{Kind: DecisionSummary, Reason: roundCapReason}
	}

	return d
}

// formatQuestionMessage renders an ask decision into the user-facing
// message: a 【質問】 line followed by up to two ・ follow-up lines.
func formatQuestionMessage(d Decision) string {
	var b strings.Builder

	b.WriteString(questionPrefix)
	b.WriteString(d.Question)

	for _, f := range d.Followups {
		b.WriteString("\n・")
		b.WriteString(f)
	}

	return b.String()
}

// pendingQuestion extracts the question text from the most recent assistant
// message, or returns an empty string if it is not in question format.
func pendingQuestion(content string) string {
	first, _, _ := strings.Cut(content, "\n")
	if !strings.HasPrefix(first, questionPrefix) {
		return ""
	}

	return strings.TrimSpace(strings.TrimPrefix(first, questionPrefix))
}
