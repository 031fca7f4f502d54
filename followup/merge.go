package followup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ymiyake/contractintake/form"
	"github.com/ymiyake/contractintake/llm"
	"github.com/ymiyake/contractintake/normalize"
	"github.com/ymiyake/contractintake/outcome"
)

// Action values in a reconciliation decision.
const (
	ActionUpdated   = "updated"
	ActionUnchanged = "unchanged"
)

// Baseline records, per field, the last display value written by the engine
// (never by the user). The merger compares the current display value against
// it to detect hand edits.
type Baseline map[string]string

// Snapshot stores the engine-written display value for a field.
func (b Baseline) Snapshot(rec *form.Record, field string) {
	b[field] = rec.DisplayValue(field)
}

// UserEdited reports whether the user has changed the field since the engine
// last wrote it. A field with no baseline entry counts as edited only when it
// holds text; with an entry, any mismatch counts, so a field the user emptied
// after the engine filled it stays empty.
func (b Baseline) UserEdited(rec *form.Record, field string) bool {
	cur := rec.DisplayValue(field)
	base, ok := b[field]
	if !ok {
		return strings.TrimSpace(cur) != ""
	}
	return cur != base
}

// ProposedUpdate is one field change the engine wants to make. Updates are
// buffered and applied by Apply on the caller's next cycle, never mid-call.
type ProposedUpdate struct {
	Field  string `json:"field"`
	Value  any    `json:"value"`
	Reason string `json:"reason,omitempty"`
}

// FieldDecision mirrors the per-field verdict shown to the user.
type FieldDecision struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// MergeResult carries the merge outcome back to the session.
type MergeResult struct {
	// Proposed field updates, pending until Apply.
	Proposed []ProposedUpdate
	// Explanation per targeted field.
	Explanation map[string]FieldDecision
	// Questions raised by the reconciliation call, not yet planned.
	Questions []Question
	// Remaining carries over questions whose answers were empty.
	Remaining []Question
	// Note annotates a degraded merge (service unavailable etc.); empty on
	// the primary path.
	Note string
	// Answered is the count of usable answers after trimming.
	Answered int
}

// Merger reconciles answered follow-up questions into the record, preferring
// the completion service and degrading to deterministic routing.
type Merger struct {
	provider llm.Provider
	model    string
}

// NewMerger creates a merger. provider may be nil, which forces the
// deterministic fallback path.
func NewMerger(provider llm.Provider, model string) *Merger {
	return &Merger{provider: provider, model: model}
}

// Merge produces proposed updates from answered questions. Empty answers are
// excluded first; with no usable answers the record is left untouched and no
// new questions are raised. Service failures never propagate: the
// deterministic path takes over and the result carries a note.
func (m *Merger) Merge(ctx context.Context, sourceText string, current *form.Record, answers []Answer) *MergeResult {
	answered, remaining := FilterAnswered(answers)
	if len(answered) == 0 {
		return &MergeResult{Remaining: remaining}
	}

	if m.provider == nil {
		res := m.mergeWithRules(sourceText, current, answered)
		res.Remaining = remaining
		res.Note = "設定が無いため回答を簡易的に反映しました。"
		return res
	}

	res, err := m.mergeWithService(ctx, sourceText, current, answered)
	if err != nil {
		slog.Warn("followup: reconciliation call failed, using fallback", "error", err)
		res = m.mergeWithRules(sourceText, current, answered)
		res.Note = "AIによる反映に失敗したため簡易的に反映しました。"
	}
	res.Remaining = remaining
	return res
}

// reconciliationDecision is the wire format of one per-field verdict.
type reconciliationDecision struct {
	Action   string     `json:"action"`
	Value    any        `json:"value,omitempty"`
	Sections [][]string `json:"sections,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

type reconciliationPayload struct {
	Fields            map[string]reconciliationDecision `json:"fields"`
	FollowUpQuestions []string                          `json:"follow_up_questions"`
}

func (m *Merger) mergeWithService(ctx context.Context, sourceText string, current *form.Record, answered []Answer) (*MergeResult, error) {
	prompt := buildReconciliationPrompt(sourceText, current, answered)

	resp, err := m.provider.Chat(ctx, llm.ChatRequest{
		Model: m.model,
		Messages: []llm.Message{
			{Role: "user", Content: prompt},
		},
		Temperature:    0,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, fmt.Errorf("reconciliation request: %w", err)
	}
	if resp.BlockReason != "" {
		return nil, fmt.Errorf("reconciliation prompt blocked: %s", resp.BlockReason)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, fmt.Errorf("reconciliation response was empty")
	}

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("reconciliation response contained no JSON object")
	}
	var payload reconciliationPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decoding reconciliation response: %w", err)
	}
	if payload.Fields == nil {
		return nil, fmt.Errorf("reconciliation response missing 'fields' object")
	}

	res := &MergeResult{
		Explanation: make(map[string]FieldDecision),
		Answered:    len(answered),
	}
	for name, dec := range payload.Fields {
		if form.Lookup(name) == nil {
			continue
		}
		switch dec.Action {
		case ActionUpdated:
			value := dec.Value
			if name == form.FieldDesiredContract && len(dec.Sections) > 0 {
				value = renderSections(dec.Sections)
			}
			if value == nil {
				// An update without a value never clears a field.
				res.Explanation[name] = FieldDecision{Action: ActionUnchanged, Reason: dec.Reason}
				continue
			}
			res.Proposed = append(res.Proposed, ProposedUpdate{Field: name, Value: value, Reason: dec.Reason})
			res.Explanation[name] = FieldDecision{Action: ActionUpdated, Reason: dec.Reason}
		case ActionUnchanged:
			res.Explanation[name] = FieldDecision{Action: ActionUnchanged, Reason: dec.Reason}
		default:
			// Unknown actions are dropped; the service must not guess.
		}
	}
	for _, q := range payload.FollowUpQuestions {
		res.Questions = append(res.Questions, Question{Text: q})
	}
	return res, nil
}

// renderSections rebuilds the four-viewpoint narrative from per-section
// bullets; short payloads leave the tail sections empty (記載なし).
func renderSections(sections [][]string) string {
	var fixed [outcome.NumViewpoints][]string
	for i := 0; i < len(sections) && i < outcome.NumViewpoints; i++ {
		for _, fact := range sections[i] {
			if s := strings.TrimSpace(fact); s != "" {
				fixed[i] = append(fixed[i], s)
			}
		}
	}
	return outcome.Render(fixed)
}

// mergeWithRules routes each answer to a target field deterministically:
// explicit tag, then keyword inference, then the first empty required field.
func (m *Merger) mergeWithRules(sourceText string, current *form.Record, answered []Answer) *MergeResult {
	res := &MergeResult{
		Explanation: make(map[string]FieldDecision),
		Answered:    len(answered),
	}

	taken := make(map[string]bool)
	for _, a := range answered {
		field := a.Field
		if field == "" {
			field = InferField(a.Question)
		}
		if field == "" {
			field = firstEmptyRequired(current, taken)
		}
		if field == "" {
			continue
		}
		taken[field] = true

		value := any(a.Text)
		if field == form.FieldDesiredContract {
			// Whole-narrative rebuild: fold the answer in with the source
			// text and re-collect all four sections.
			narrative, _ := outcome.Summarize(sourceText + "\n" + a.Text)
			value = narrative
		}
		res.Proposed = append(res.Proposed, ProposedUpdate{
			Field:  field,
			Value:  value,
			Reason: "回答内容をそのまま反映しました。",
		})
		res.Explanation[field] = FieldDecision{Action: ActionUpdated, Reason: "回答内容をそのまま反映しました。"}
	}
	return res
}

func firstEmptyRequired(rec *form.Record, taken map[string]bool) string {
	for _, name := range form.RequiredFields() {
		if !taken[name] && rec.IsEmpty(name) {
			return name
		}
	}
	return ""
}

// Apply consumes proposed updates against the record on the caller's next
// cycle. A field is overwritten only when its current value still equals the
// engine's last baseline value; hand-edited fields keep the user's text and
// the update is discarded. Returns the updated record and the fields that
// were skipped in favor of user edits.
func Apply(current *form.Record, baseline Baseline, proposed []ProposedUpdate) (*form.Record, []string) {
	rec := current.Clone()
	var skipped []string

	for _, p := range proposed {
		if form.Lookup(p.Field) == nil {
			continue
		}
		if baseline.UserEdited(rec, p.Field) {
			skipped = append(skipped, p.Field)
			continue
		}

		typed, ok := normalizeValue(p.Field, p.Value)
		if !ok {
			continue
		}
		if err := rec.Set(p.Field, typed); err != nil {
			slog.Warn("followup: dropping unappliable update", "field", p.Field, "error", err)
			continue
		}
		baseline.Snapshot(rec, p.Field)
	}
	return rec, skipped
}

// normalizeValue runs a single field value through the normalizer so applied
// updates obey the same schema coercion as extraction output.
func normalizeValue(field string, value any) (any, bool) {
	rec, err := normalize.Normalize(map[string]any{field: value})
	if err != nil {
		return nil, false
	}
	if rec.IsEmpty(field) {
		return nil, false
	}
	v, _ := rec.Get(field)
	return v, true
}

func buildReconciliationPrompt(sourceText string, current *form.Record, answered []Answer) string {
	var b strings.Builder
	b.WriteString(`あなたは契約申請フォームの回答反映アシスタントです。
出力はJSONのみで、余分な文章やマークダウンを含めないでください。

元テキストと現在のフォーム値、ユーザーの回答を踏まえ、回答が新しい情報を
含むフィールドだけを更新してください。推測は禁止です。回答が空・無関係な
フィールドは "unchanged" としてください。値を消すことはできません。

必須のJSON構造:
{
  "fields": {
    "<field_name>": {"action": "updated", "value": 新しい値, "reason": "判断理由"}
    または {"action": "unchanged", "reason": "判断理由"}
  },
  "follow_up_questions": まだ不足している場合の短い質問（0〜5件）の配列
}

desired_contract を更新する場合は value の代わりに "sections" キーで
4つの観点それぞれの箇条書き配列（配列の配列、必ず4要素）を返してください。

フィールド一覧:
`)
	for _, def := range form.Fields() {
		fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Label)
	}

	b.WriteString("\n元テキスト:\n")
	b.WriteString(strings.TrimSpace(sourceText))
	b.WriteString("\n\n現在のフォーム値:\n")
	for _, name := range form.FieldNames() {
		if current.IsEmpty(name) {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, current.DisplayValue(name))
	}
	b.WriteString("\nユーザーの回答:\n")
	for i, a := range answered {
		fmt.Fprintf(&b, "Q%d. %s\nA%d. %s\n", i+1, a.Question, i+1, a.Text)
	}
	return b.String()
}
