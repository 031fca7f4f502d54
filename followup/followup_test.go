package followup

import (
	"context"
	"strings"
	"testing"

	"github.com/ymiyake/contractintake/form"
	"github.com/ymiyake/contractintake/llm"
)

func TestPlanOrdersByFieldPriority(t *testing.T) {
	qs := Plan([]Question{
		{Text: "契約金額はいくらですか？", Field: form.FieldAmountJPY},
		{Text: "活動内容を具体的に教えてください。", Field: form.FieldActivityDetails},
		{Text: "活動の背景を教えてください。", Field: form.FieldActivityBackground},
	}, 5)

	want := []string{form.FieldActivityDetails, form.FieldActivityBackground, form.FieldAmountJPY}
	if len(qs) != len(want) {
		t.Fatalf("got %d questions, want %d", len(qs), len(want))
	}
	for i, f := range want {
		if qs[i].Field != f {
			t.Errorf("qs[%d].Field = %s, want %s", i, qs[i].Field, f)
		}
	}
}

func TestPlanCapAndDedup(t *testing.T) {
	candidates := []Question{
		{Text: "質問1"}, {Text: "質問1"}, {Text: "  "}, {Text: "質問2"},
		{Text: "質問3"}, {Text: "質問4"}, {Text: "質問5"}, {Text: "質問6"},
	}

	qs := Plan(candidates, 0) // 0 falls back to DefaultMaxQuestions
	if len(qs) != DefaultMaxQuestions {
		t.Fatalf("got %d questions, want %d", len(qs), DefaultMaxQuestions)
	}

	if got := Plan(candidates, 2); len(got) != 2 {
		t.Errorf("cap 2: got %d questions", len(got))
	}
}

func TestPlanInfersField(t *testing.T) {
	qs := Plan([]Question{{Text: "希望納期はいつですか？"}}, 5)
	if len(qs) != 1 || qs[0].Field != form.FieldDesiredDueDate {
		t.Fatalf("inferred field = %v", qs)
	}

	qs = Plan([]Question{{Text: "補足があれば教えてください。"}}, 5)
	if len(qs) != 1 || qs[0].Field != "" {
		t.Fatalf("unroutable question should keep empty field, got %v", qs)
	}
}

func TestRoundsLifecycle(t *testing.T) {
	r := NewRounds(2)
	if r.St != StateIdle {
		t.Fatalf("initial state = %s", r.St)
	}

	r.Begin(0)
	if r.St != StateIdle || r.Current != 0 {
		t.Fatalf("no questions should stay idle: %+v", r)
	}

	r.Begin(3)
	if r.St != StateAwaiting || r.Current != 1 {
		t.Fatalf("questions should open round 1: %+v", r)
	}

	// Usable answers with questions still open: advance to round 2.
	if st := r.Advance(true, 2); st != StateAwaiting || r.Current != 2 {
		t.Fatalf("round 2 expected: %+v", r)
	}

	// Round 2 is the cap; any outcome terminates.
	if st := r.Advance(true, 1); st != StateTerminated {
		t.Fatalf("cap reached, want terminated: %+v", r)
	}
	if !r.Terminated() || r.QuestionsAllowed() {
		t.Error("terminated controller must not allow questions")
	}

	// Sticky: neither Begin nor Advance revives it.
	r.Begin(5)
	if r.St != StateTerminated {
		t.Error("Begin must not revive a terminated controller")
	}
	if st := r.Advance(true, 3); st != StateTerminated {
		t.Error("Advance must not revive a terminated controller")
	}
}

func TestRoundsTerminatesWithoutAnswers(t *testing.T) {
	r := NewRounds(2)
	r.Begin(1)
	if st := r.Advance(false, 1); st != StateTerminated {
		t.Errorf("no usable answers should terminate, got %s", st)
	}
}

func TestRoundsTerminatesWhenNothingRemains(t *testing.T) {
	r := NewRounds(2)
	r.Begin(1)
	if st := r.Advance(true, 0); st != StateTerminated {
		t.Errorf("all questions resolved should terminate, got %s", st)
	}
}

func TestFilterAnswered(t *testing.T) {
	answered, remaining := FilterAnswered([]Answer{
		{Question: "金額は？", Text: " 350万円 ", Field: form.FieldAmountJPY},
		{Question: "納期は？", Text: "   ", Field: form.FieldDesiredDueDate},
	})
	if len(answered) != 1 || answered[0].Text != "350万円" {
		t.Errorf("answered = %v", answered)
	}
	if len(remaining) != 1 || remaining[0].Field != form.FieldDesiredDueDate {
		t.Errorf("remaining = %v", remaining)
	}
}

func TestMergeNoUsableAnswers(t *testing.T) {
	m := NewMerger(nil, "")
	rec := &form.Record{ProjectName: "案件A"}

	res := m.Merge(context.Background(), "元テキスト", rec, []Answer{
		{Question: "金額は？", Text: "  "},
	})

	if len(res.Proposed) != 0 || len(res.Questions) != 0 {
		t.Errorf("empty answers must not touch the record: %+v", res)
	}
	if len(res.Remaining) != 1 {
		t.Errorf("unanswered question should carry over: %v", res.Remaining)
	}
	if rec.ProjectName != "案件A" {
		t.Error("input record must not change")
	}
}

func TestMergeFallbackRouting(t *testing.T) {
	m := NewMerger(nil, "")
	rec := &form.Record{ProjectName: "案件A"}

	res := m.Merge(context.Background(), "", rec, []Answer{
		{Question: "金額は？", Text: "120万円", Field: form.FieldAmountJPY},
		{Question: "希望納期を教えてください", Text: "2026-04-01"}, // routed by keyword
		{Question: "補足は？", Text: "テスト株式会社です"},             // first empty required
	})

	if res.Note == "" {
		t.Error("nil provider merge must carry a degradation note")
	}
	got := make(map[string]any, len(res.Proposed))
	for _, p := range res.Proposed {
		got[p.Field] = p.Value
	}
	if got[form.FieldAmountJPY] != "120万円" {
		t.Errorf("amount answer not routed: %v", got)
	}
	if got[form.FieldDesiredDueDate] != "2026-04-01" {
		t.Errorf("keyword routing failed: %v", got)
	}
	// project_name is filled, so the untagged answer goes to counterparty_name.
	if got[form.FieldCounterpartyName] != "テスト株式会社です" {
		t.Errorf("first-empty-required routing failed: %v", got)
	}
}

func TestMergeFallbackRebuildsNarrative(t *testing.T) {
	m := NewMerger(nil, "")
	rec := &form.Record{}

	res := m.Merge(context.Background(), "既存のメモ", rec, []Answer{
		{Question: "どんな契約にしたいですか", Text: "特許の権利帰属は当社とし、ライセンスは認めない。", Field: form.FieldDesiredContract},
	})

	if len(res.Proposed) != 1 {
		t.Fatalf("proposed = %v", res.Proposed)
	}
	narrative, ok := res.Proposed[0].Value.(string)
	if !ok || !strings.Contains(narrative, "特許の権利帰属は当社とし、ライセンスは認めない") {
		t.Errorf("narrative should quote the answer:\n%v", res.Proposed[0].Value)
	}
	if !strings.Contains(narrative, "4. ") {
		t.Errorf("narrative must keep all four sections:\n%s", narrative)
	}
}

// fakeProvider returns canned completions in order.
type fakeProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	var content string
	if i < len(f.responses) {
		content = f.responses[i]
	}
	return &llm.ChatResponse{Content: content}, nil
}

func TestMergeServicePath(t *testing.T) {
	p := &fakeProvider{responses: []string{`{
		"fields": {
			"amount_jpy": {"action": "updated", "value": "350万円", "reason": "回答より"},
			"project_name": {"action": "unchanged"},
			"received_date": {"action": "updated"},
			"bogus_field": {"action": "updated", "value": "x"},
			"contract_form": {"action": "guess", "value": "当社書式"}
		},
		"follow_up_questions": ["希望納期はいつですか？"]
	}`}}

	m := NewMerger(p, "test-model")
	rec := &form.Record{ProjectName: "案件A"}

	res := m.Merge(context.Background(), "元テキスト", rec, []Answer{
		{Question: "金額は？", Text: "350万円"},
	})

	if res.Note != "" {
		t.Errorf("service path should carry no note, got %q", res.Note)
	}
	if len(res.Proposed) != 1 || res.Proposed[0].Field != form.FieldAmountJPY {
		t.Fatalf("proposed = %v", res.Proposed)
	}
	// An update without a value must not clear the field.
	if d := res.Explanation[form.FieldReceivedDate]; d.Action != ActionUnchanged {
		t.Errorf("valueless update should become unchanged, got %+v", d)
	}
	if _, ok := res.Explanation["bogus_field"]; ok {
		t.Error("unknown fields must be dropped")
	}
	if _, ok := res.Explanation[form.FieldContractForm]; ok {
		t.Error("unknown actions must be dropped")
	}
	if len(res.Questions) != 1 || res.Questions[0].Text != "希望納期はいつですか？" {
		t.Errorf("questions = %v", res.Questions)
	}
}

func TestMergeServiceFailureFallsBack(t *testing.T) {
	p := &fakeProvider{responses: []string{"これはJSONではありません"}}
	m := NewMerger(p, "test-model")
	rec := &form.Record{}

	res := m.Merge(context.Background(), "", rec, []Answer{
		{Question: "金額は？", Text: "100万円", Field: form.FieldAmountJPY},
	})

	if res.Note == "" {
		t.Error("fallback merge must carry a note")
	}
	if len(res.Proposed) != 1 || res.Proposed[0].Field != form.FieldAmountJPY {
		t.Errorf("fallback should still route the answer: %v", res.Proposed)
	}
}

func TestApplyNeverOverwritesUserEdits(t *testing.T) {
	rec := &form.Record{}
	baseline := Baseline{}

	// Engine writes the project name, snapshot taken.
	rec.ProjectName = "AI提案の案件名"
	baseline.Snapshot(rec, form.FieldProjectName)

	// User hand-edits it afterwards.
	rec.ProjectName = "ユーザー編集済みの案件名"

	updated, skipped := Apply(rec, baseline, []ProposedUpdate{
		{Field: form.FieldProjectName, Value: "別のAI提案"},
		{Field: form.FieldCounterpartyName, Value: "テスト株式会社"},
	})

	if updated.ProjectName != "ユーザー編集済みの案件名" {
		t.Errorf("user edit overwritten: %q", updated.ProjectName)
	}
	if len(skipped) != 1 || skipped[0] != form.FieldProjectName {
		t.Errorf("skipped = %v", skipped)
	}
	if updated.CounterpartyName != "テスト株式会社" {
		t.Errorf("untouched field should accept the update: %q", updated.CounterpartyName)
	}
	// Input record stays as-is; Apply works on a clone.
	if rec.CounterpartyName != "" {
		t.Error("Apply must not mutate its input record")
	}
}

func TestApplySkipsClearedFields(t *testing.T) {
	rec := &form.Record{}
	baseline := Baseline{}

	// Engine fills the relationship field, then the user empties it.
	rec.CounterpartyRelationship = "テスト株式会社"
	baseline.Snapshot(rec, form.FieldCounterpartyRelationship)
	rec.CounterpartyRelationship = ""

	updated, skipped := Apply(rec, baseline, []ProposedUpdate{
		{Field: form.FieldCounterpartyRelationship, Value: "また同じ提案"},
	})

	if updated.CounterpartyRelationship != "" {
		t.Errorf("cleared field refilled: %q", updated.CounterpartyRelationship)
	}
	if len(skipped) != 1 || skipped[0] != form.FieldCounterpartyRelationship {
		t.Errorf("skipped = %v", skipped)
	}
}

func TestApplyNormalizesValues(t *testing.T) {
	rec := &form.Record{}
	baseline := Baseline{}

	updated, _ := Apply(rec, baseline, []ProposedUpdate{
		{Field: form.FieldAmountJPY, Value: "350万円"},
		{Field: form.FieldRequestDate, Value: "2026年1月10日"},
		{Field: form.FieldCounterpartyType, Value: "月面基地"}, // outside vocabulary
	})

	if updated.AmountJPY != 3_500_000 {
		t.Errorf("AmountJPY = %d", updated.AmountJPY)
	}
	if updated.RequestDate == nil || updated.RequestDate.Format("2006-01-02") != "2026-01-10" {
		t.Errorf("RequestDate = %v", updated.RequestDate)
	}
	if updated.CounterpartyType != "" {
		t.Errorf("invalid enum should be dropped, got %q", updated.CounterpartyType)
	}
}

func TestApplySnapshotsBaselineForNextCycle(t *testing.T) {
	rec := &form.Record{}
	baseline := Baseline{}

	updated, _ := Apply(rec, baseline, []ProposedUpdate{
		{Field: form.FieldTargetProduct, Value: "センサーモジュール"},
	})

	// The applied value becomes the new baseline, so an identical current
	// value does not look user-edited next cycle.
	if baseline.UserEdited(updated, form.FieldTargetProduct) {
		t.Error("freshly applied value must not register as a user edit")
	}
	updated.TargetProduct = "別の商材"
	if !baseline.UserEdited(updated, form.FieldTargetProduct) {
		t.Error("subsequent hand edit must register")
	}
}
