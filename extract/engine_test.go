package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ymiyake/contractintake/form"
	"github.com/ymiyake/contractintake/llm"
)

const sampleNotes = "案件名: テスト案件\n相手先: テスト株式会社\n金額: 120万円\n"

type fakeProvider struct {
	content string
	err     error
	block   string
	calls   int
	lastReq llm.ChatRequest
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.content, BlockReason: f.block}, nil
}

func TestExtractEmptyInput(t *testing.T) {
	e := New(nil, "", 0)
	res, err := e.Extract(context.Background(), "   \n")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Note != "入力テキストが空です。" {
		t.Errorf("note = %q", res.Note)
	}
	if res.Record == nil {
		t.Fatal("empty input should still return a record")
	}
}

func TestExtractWithoutProvider(t *testing.T) {
	e := New(nil, "", 0)
	res, err := e.Extract(context.Background(), sampleNotes)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if res.Note != NoCredentialNote {
		t.Errorf("note = %q, want %q", res.Note, NoCredentialNote)
	}
	rec := res.Record
	if rec.ProjectName != "テスト案件" {
		t.Errorf("ProjectName = %q", rec.ProjectName)
	}
	if rec.CounterpartyName != "テスト株式会社" {
		t.Errorf("CounterpartyName = %q", rec.CounterpartyName)
	}
	if rec.AmountJPY != 1_200_000 {
		t.Errorf("AmountJPY = %d", rec.AmountJPY)
	}
	if rec.SourceText != sampleNotes {
		t.Error("source text provenance missing")
	}
	if len(res.MissingFields) != 0 {
		t.Errorf("missing = %v", res.MissingFields)
	}
}

func TestExtractReportsMissingRequired(t *testing.T) {
	e := New(nil, "", 0)
	res, err := e.Extract(context.Background(), "案件名: 単独案件\nその他のメモ。")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := map[string]bool{form.FieldCounterpartyName: true, form.FieldAmountJPY: true}
	if len(res.MissingFields) != len(want) {
		t.Fatalf("missing = %v", res.MissingFields)
	}
	for _, f := range res.MissingFields {
		if !want[f] {
			t.Errorf("unexpected missing field %s", f)
		}
	}
}

func TestExtractServicePath(t *testing.T) {
	p := &fakeProvider{content: "```json\n" + `{
		"form": {
			"project_name": "共同開発の件",
			"counterparty_name": "テスト株式会社",
			"amount_jpy": "350万円",
			"counterparty_type": "民間",
			"received_date": "わからない"
		},
		"follow_up_questions": ["希望納期はいつですか？"],
		"desired_contract_sections": [["特許は当社帰属としたい"], [], [], []]
	}` + "\n```"}

	e := New(p, "test-model", 5)
	res, err := e.Extract(context.Background(), "打ち合わせメモ本文")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if res.Note != "" {
		t.Errorf("clean service path should carry no note, got %q", res.Note)
	}
	rec := res.Record
	if rec.AmountJPY != 3_500_000 {
		t.Errorf("AmountJPY = %d", rec.AmountJPY)
	}
	if rec.CounterpartyType != "民間" {
		t.Errorf("CounterpartyType = %q", rec.CounterpartyType)
	}
	if rec.ReceivedDate != nil {
		t.Errorf("unparseable date should be dropped, got %v", rec.ReceivedDate)
	}
	if !strings.Contains(rec.DesiredContract, "- 特許は当社帰属としたい") {
		t.Errorf("desired contract sections not rendered:\n%s", rec.DesiredContract)
	}

	// The model's question survives planning with its field inferred.
	found := false
	for _, q := range res.Questions {
		if q.Text == "希望納期はいつですか？" && q.Field == form.FieldDesiredDueDate {
			found = true
		}
	}
	if !found {
		t.Errorf("model question missing or unrouted: %v", res.Questions)
	}

	if p.lastReq.ResponseFormat != "json_object" {
		t.Errorf("ResponseFormat = %q", p.lastReq.ResponseFormat)
	}
}

func TestExtractServiceErrorFallsBack(t *testing.T) {
	p := &fakeProvider{err: errors.New("503 unavailable")}
	e := New(p, "test-model", 5)

	res, err := e.Extract(context.Background(), sampleNotes)
	if err != nil {
		t.Fatalf("service failure must degrade, not propagate: %v", err)
	}
	if res.Note == "" {
		t.Error("degraded result must carry a note")
	}
	if res.Record.ProjectName != "テスト案件" {
		t.Errorf("fallback extraction missing: %+v", res.Record)
	}
}

func TestExtractBlockedPromptFallsBack(t *testing.T) {
	p := &fakeProvider{block: "SAFETY"}
	e := New(p, "test-model", 5)

	res, err := e.Extract(context.Background(), sampleNotes)
	if err != nil {
		t.Fatalf("blocked prompt must degrade, not propagate: %v", err)
	}
	if res.Note == "" {
		t.Error("degraded result must carry a note")
	}
}

func TestExtractNonJSONResponseFallsBack(t *testing.T) {
	p := &fakeProvider{content: "すみません、できません。"}
	e := New(p, "test-model", 5)

	res, err := e.Extract(context.Background(), sampleNotes)
	if err != nil {
		t.Fatalf("non-JSON response must degrade: %v", err)
	}
	if res.Record.CounterpartyName != "テスト株式会社" {
		t.Errorf("fallback record = %+v", res.Record)
	}
}

func TestExtractQuestionCap(t *testing.T) {
	p := &fakeProvider{content: `{
		"form": {},
		"follow_up_questions": ["Q1", "Q2", "Q3", "Q4", "Q5", "Q6", "Q7"]
	}`}
	e := New(p, "test-model", 5)

	res, err := e.Extract(context.Background(), "メモ")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Questions) > 5 {
		t.Errorf("question cap exceeded: %d", len(res.Questions))
	}
}

func TestExtractNoFactsLeavesNarrativeEmpty(t *testing.T) {
	e := New(nil, "", 0)
	res, err := e.Extract(context.Background(), "案件名: 雑談\n天気の話だけをした。")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Record.DesiredContract != "" {
		t.Errorf("no quoted facts should leave the narrative empty:\n%s", res.Record.DesiredContract)
	}
	// Guidance questions for the empty narrative are still offered.
	found := false
	for _, q := range res.Questions {
		if q.Field == form.FieldDesiredContract {
			found = true
		}
	}
	if !found {
		t.Errorf("guidance questions missing: %v", res.Questions)
	}
}

func TestHealthcheck(t *testing.T) {
	tests := []struct {
		name string
		p    *fakeProvider
		ok   bool
	}{
		{"healthy", &fakeProvider{content: "pong"}, true},
		{"error", &fakeProvider{err: errors.New("timeout")}, false},
		{"blocked", &fakeProvider{block: "SAFETY"}, false},
		{"empty", &fakeProvider{content: "  "}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.p, "test-model", 0)
			ok, msg := e.Healthcheck(context.Background())
			if ok != tt.ok {
				t.Errorf("ok = %v (%s), want %v", ok, msg, tt.ok)
			}
		})
	}

	e := New(nil, "", 0)
	if ok, _ := e.Healthcheck(context.Background()); ok {
		t.Error("nil provider can never be healthy")
	}
}

func TestScanWithRules(t *testing.T) {
	text := "所属: 技術開発部\n対象商材: センサーモジュール\n" +
		"活動内容: 共同評価の実施\n依頼日: 2026/01/10\n希望納期: 2026-03-31\n" +
		"契約書式: 当社書式\n相手方区分: 民間\n"

	raw := scanWithRules(text)
	tests := []struct {
		field string
		want  string
	}{
		{"affiliation", "技術開発部"},
		{"target_product", "センサーモジュール"},
		{"activity_details", "共同評価の実施"},
		{"request_date", "2026/01/10"},
		{"desired_due_date", "2026-03-31"},
		{"contract_form", "当社書式"},
		{"counterparty_type", "民間"},
	}
	for _, tt := range tests {
		if got := raw[tt.field]; got != tt.want {
			t.Errorf("%s = %v, want %q", tt.field, got, tt.want)
		}
	}
}

func TestScanWithRulesFullWidthColon(t *testing.T) {
	raw := scanWithRules("案件名：　全角コロンの案件\n")
	if raw["project_name"] != "全角コロンの案件" {
		t.Errorf("project_name = %v", raw["project_name"])
	}
}

func TestBuildExtractionPromptListsFields(t *testing.T) {
	prompt := buildExtractionPrompt("本文テキスト", 3)
	for _, name := range form.FieldNames() {
		if !strings.Contains(prompt, name) {
			t.Errorf("prompt missing field %s", name)
		}
	}
	if !strings.Contains(prompt, "当社書式 / 相手方書式") {
		t.Error("prompt should list enum choices")
	}
	if !strings.Contains(prompt, "本文テキスト") {
		t.Error("prompt should embed the source text")
	}
}
