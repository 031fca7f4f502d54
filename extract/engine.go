// Package extract turns free-text Japanese meeting notes into a typed,
// partially-filled contract request record. The primary strategy asks the
// completion service for structured JSON; a deterministic pattern-matching
// strategy takes over whenever the service is unconfigured or misbehaves.
// Service failures never propagate to the caller.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ymiyake/contractintake/followup"
	"github.com/ymiyake/contractintake/form"
	"github.com/ymiyake/contractintake/llm"
	"github.com/ymiyake/contractintake/normalize"
	"github.com/ymiyake/contractintake/outcome"
)

// Result is the transient outcome of one extraction call.
type Result struct {
	Record        *form.Record        `json:"record"`
	MissingFields []string            `json:"missing_fields"`
	Questions     []followup.Question `json:"follow_up_questions,omitempty"`
	// Note annotates degraded or rejected extractions (configuration issue,
	// service error, empty input). Empty on the clean primary path.
	Note string `json:"note,omitempty"`
}

// Engine orchestrates the two extraction strategies.
type Engine struct {
	provider     llm.Provider
	model        string
	maxQuestions int
}

// New creates an extraction engine. provider may be nil: every call then
// uses the pattern-matching path with a configuration note.
func New(provider llm.Provider, model string, maxQuestions int) *Engine {
	if maxQuestions <= 0 {
		maxQuestions = followup.DefaultMaxQuestions
	}
	return &Engine{provider: provider, model: model, maxQuestions: maxQuestions}
}

// NoCredentialNote is the informational message attached to fallback results
// when no completion service credential is configured.
const NoCredentialNote = "APIキーが設定されていないため、正規表現ベースの抽出結果を表示しています。"

// degradedNote annotates fallback results after a service failure.
const degradedNote = "AI抽出でエラーが発生したため、正規表現ベースの抽出結果を表示しています。"

// Extract converts source text into a Result. Empty input short-circuits
// without touching the service. The returned error is non-nil only for
// fatal record-construction failures.
func (e *Engine) Extract(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return &Result{Record: &form.Record{}, Note: "入力テキストが空です。"}, nil
	}

	if e.provider == nil {
		res, err := e.extractWithRules(text)
		if err != nil {
			return nil, err
		}
		res.Note = NoCredentialNote
		return res, nil
	}

	res, err := e.extractWithService(ctx, text)
	if err == nil {
		return res, nil
	}
	if isFatal(err) {
		return nil, err
	}

	slog.Warn("extract: service path failed, using pattern fallback", "error", err)
	res, ferr := e.extractWithRules(text)
	if ferr != nil {
		return nil, ferr
	}
	res.Note = degradedNote
	return res, nil
}

// servicePayload is the wire format the prompt demands.
type servicePayload struct {
	Form              map[string]any `json:"form"`
	FollowUpQuestions []string       `json:"follow_up_questions"`
	DesiredSections   [][]string     `json:"desired_contract_sections"`
}

func (e *Engine) extractWithService(ctx context.Context, text string) (*Result, error) {
	prompt := buildExtractionPrompt(text, e.maxQuestions)

	resp, err := e.provider.Chat(ctx, llm.ChatRequest{
		Model: e.model,
		Messages: []llm.Message{
			{Role: "user", Content: prompt},
		},
		Temperature:    0,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, fmt.Errorf("extraction request: %w", err)
	}
	if resp.BlockReason != "" {
		return nil, fmt.Errorf("extraction prompt blocked: %s", resp.BlockReason)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, fmt.Errorf("extraction response was empty")
	}

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("extraction response contained no JSON object")
	}
	var payload servicePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decoding extraction response: %w", err)
	}
	if payload.Form == nil {
		return nil, fmt.Errorf("extraction response did not include a 'form' object")
	}

	rec, err := normalize.Normalize(payload.Form)
	if err != nil {
		// Construction already retried once inside the normalizer; treat a
		// second failure as fatal rather than returning a half-built record.
		return nil, fmt.Errorf("%w: %v", errFatalConstruction, err)
	}

	if rec.IsEmpty(form.FieldDesiredContract) && len(payload.DesiredSections) > 0 {
		if narrative, ok := renderServiceSections(payload.DesiredSections); ok {
			rec.DesiredContract = narrative
		}
	}

	res := e.finish(rec, text)
	var candidates []followup.Question
	for _, q := range payload.FollowUpQuestions {
		candidates = append(candidates, followup.Question{Text: q})
	}
	candidates = append(candidates, res.Questions...)
	res.Questions = followup.Plan(candidates, e.maxQuestions)
	return res, nil
}

func (e *Engine) extractWithRules(text string) (*Result, error) {
	rec, err := normalize.Normalize(scanWithRules(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errFatalConstruction, err)
	}
	res := e.finish(rec, text)
	res.Questions = followup.Plan(res.Questions, e.maxQuestions)
	return res, nil
}

// finish attaches provenance, computes missing required fields, and derives
// the desired-outcome narrative plus its guidance questions. The narrative
// is written only when it contains at least one quoted fact; a gap stays a
// gap instead of becoming an all-placeholder summary.
func (e *Engine) finish(rec *form.Record, text string) *Result {
	rec.SourceText = text
	_, missing := form.Validate(rec)

	res := &Result{Record: rec, MissingFields: missing}

	if rec.IsEmpty(form.FieldDesiredContract) {
		narrative, guidance := outcome.Summarize(text)
		if hasFacts(narrative) {
			rec.DesiredContract = narrative
		}
		for _, q := range guidance {
			res.Questions = append(res.Questions, followup.Question{
				Text:  q,
				Field: form.FieldDesiredContract,
			})
		}
	}
	return res
}

func hasFacts(narrative string) bool {
	for _, line := range strings.Split(narrative, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") && line != "- "+outcome.NotStated {
			return true
		}
	}
	return false
}

func renderServiceSections(sections [][]string) (string, bool) {
	var fixed [outcome.NumViewpoints][]string
	found := false
	for i := 0; i < len(sections) && i < outcome.NumViewpoints; i++ {
		for _, fact := range sections[i] {
			if s := strings.TrimSpace(fact); s != "" {
				fixed[i] = append(fixed[i], s)
				found = true
			}
		}
	}
	if !found {
		return "", false
	}
	return outcome.Render(fixed), true
}

// Healthcheck issues a minimal completion to verify connectivity and model
// availability.
func (e *Engine) Healthcheck(ctx context.Context) (bool, string) {
	if e.provider == nil {
		return false, "provider not configured"
	}
	resp, err := e.provider.Chat(ctx, llm.ChatRequest{
		Model: e.model,
		Messages: []llm.Message{
			{Role: "user", Content: "ping"},
		},
	})
	if err != nil {
		return false, fmt.Sprintf("API error: %v", err)
	}
	if resp.BlockReason != "" {
		return false, fmt.Sprintf("Blocked by safety: %s", resp.BlockReason)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return false, "Empty response"
	}
	return true, "OK"
}

var errFatalConstruction = errors.New("extract: record construction failed")

// isFatal reports whether the error must abort extraction instead of
// degrading to the fallback path.
func isFatal(err error) bool {
	return errors.Is(err, errFatalConstruction)
}

func buildExtractionPrompt(text string, maxQuestions int) string {
	var b strings.Builder
	b.WriteString(`あなたは日本語の打ち合わせメモから契約申請フォームの情報を抽出するアシスタントです。
出力はJSONのみで、余分な文章やマークダウンを含めないでください。
全てのキーを含む "form" オブジェクトを生成し、値が不明な場合は null を設定します。
推測は禁止し、根拠が無ければ null を設定してください。

必須のJSON構造:
{
  "form": { フィールド名をキーとするオブジェクト },
`)
	fmt.Fprintf(&b, "  \"follow_up_questions\": 情報が不足している場合の日本語の短い質問（0〜%d件）の配列,\n", maxQuestions)
	b.WriteString(`  "desired_contract_sections": 4つの観点ごとの引用文の配列（配列の配列、必ず4要素。
    観点: 1.知財活動上の目論見 2.追加の知財上の目論見 3.事業上の実施・許諾の内容 4.知財上のリスク。
    元テキストに記載が無い観点は空配列とし、創作は禁止）
}

フィールドごとの指針:
`)
	for _, def := range form.Fields() {
		fmt.Fprintf(&b, "- %s: %s", def.Name, def.Guidance)
		if len(def.Choices) > 0 {
			fmt.Fprintf(&b, " 選択肢: %s", strings.Join(def.Choices, " / "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n入力テキスト:\n")
	b.WriteString(strings.TrimSpace(text))
	return b.String()
}
