package answers

import (
	"encoding/json"
	"fmt"
)

// SeedKey is the reserved key holding the author's original free-text pitch.
// It is never treated as a question/answer record.
const SeedKey = "seed"

// UnknownQuestion labels answers whose stored record could not be parsed.
const UnknownQuestion = "(unknown)"

// Record is one question/answer pair stored under a q<N> key.
type Record struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QuestionKey returns the storage key for the n-th answered question.
func QuestionKey(n int) string {
	return fmt.Sprintf("q%d", n)
}

// EncodeRecord serializes a question/answer pair into the stored string form.
func EncodeRecord(question, answer string) string {
	data, err := json.Marshal(Record{Question: question, Answer: answer})
	if err != nil {
		// Marshalling two plain strings cannot fail; keep the answer anyway.
		return answer
	}

	return string(data)
}

// ParseRecord decodes a stored value. Malformed values degrade to a raw
// answer with an unknown-question label; this never fails.
func ParseRecord(raw string) Record {
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.Question == "" || rec.Answer == "" {
		return Record{Question: UnknownQuestion, Answer: raw}
	}

	return rec
}
