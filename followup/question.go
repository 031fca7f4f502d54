// Package followup drives the question-and-answer rounds that complete a
// partially extracted record: planning bounded follow-up questions, merging
// user answers back without clobbering manual edits, and capping the cycle
// at a fixed number of rounds.
package followup

import (
	"sort"
	"strings"

	"github.com/ymiyake/contractintake/form"
)

// DefaultMaxQuestions bounds one round's follow-up questions.
const DefaultMaxQuestions = 5

// Question is one follow-up question shown to the user.
type Question struct {
	Text string `json:"question"`
	// Field is the schema field the question addresses, when known.
	Field    string `json:"field,omitempty"`
	Priority int    `json:"-"`
}

// Answer pairs a question with the user's free-text answer.
// An answer with empty trimmed text is excluded from reconciliation.
type Answer struct {
	Question string `json:"question"`
	Text     string `json:"answer"`
	Field    string `json:"field,omitempty"`
}

// InferField scans question text for field keywords and returns the first
// matching schema field, or "" when nothing matches. Fields are scanned in
// declaration order so the result is deterministic.
func InferField(text string) string {
	for _, def := range form.Fields() {
		for _, kw := range def.Keywords {
			if strings.Contains(text, kw) {
				return def.Name
			}
		}
	}
	return ""
}

// Plan ranks candidate questions and truncates to max (DefaultMaxQuestions
// when max <= 0). Empty and duplicate texts are dropped; each question gets
// a target field (explicit tag wins over keyword inference) and the schema
// priority of that field, detail-heavy fields first. Ties keep input order.
func Plan(candidates []Question, max int) []Question {
	if max <= 0 {
		max = DefaultMaxQuestions
	}

	seen := make(map[string]bool, len(candidates))
	planned := make([]Question, 0, len(candidates))
	for _, q := range candidates {
		q.Text = strings.TrimSpace(q.Text)
		if q.Text == "" || seen[q.Text] {
			continue
		}
		seen[q.Text] = true

		if q.Field == "" {
			q.Field = InferField(q.Text)
		}
		q.Priority = fieldPriority(q.Field)
		planned = append(planned, q)
	}

	sort.SliceStable(planned, func(i, j int) bool {
		return planned[i].Priority < planned[j].Priority
	})

	if len(planned) > max {
		planned = planned[:max]
	}
	return planned
}

// fieldPriority returns the planner rank for a field; questions without a
// recognized target sort last.
func fieldPriority(name string) int {
	if def := form.Lookup(name); def != nil {
		return def.Priority
	}
	return len(form.FieldNames()) + 1
}

// FilterAnswered drops answers whose trimmed text is empty and returns both
// the usable answers and the questions left unanswered, which carry over to
// the next round.
func FilterAnswered(answers []Answer) (answered []Answer, remaining []Question) {
	for _, a := range answers {
		a.Text = strings.TrimSpace(a.Text)
		if a.Text == "" {
			remaining = append(remaining, Question{Text: a.Question, Field: a.Field})
			continue
		}
		answered = append(answered, a)
	}
	return answered, remaining
}
