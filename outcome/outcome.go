// Package outcome builds the four-viewpoint "どんな契約にしたいか" narrative
// from meeting notes. Sentences are quoted from the source text; nothing is
// inferred. Viewpoints with no extractable facts are marked 記載なし so the
// four-section structure is always complete.
package outcome

import (
	"regexp"
	"strings"
)

// NumViewpoints is the fixed number of analytical angles in the narrative.
const NumViewpoints = 4

// maxFactsPerViewpoint bounds how many quoted sentences each section keeps.
const maxFactsPerViewpoint = 3

// maxQuestions bounds the guidance questions for missing viewpoints.
const maxQuestions = 3

// NotStated marks a viewpoint without extractable facts.
const NotStated = "記載なし"

var sectionTitles = [NumViewpoints]string{
	"1. 財活動上の目論見（知財創出/権利化/ライセンス/知財売買/知財保証/・・・）",
	"2. 財活動上の目論見（知財創出/権利化/ライセンス/知財売買/知財保証/・・・）",
	"3. 上記2. に関する事業上の実施や許諾の内容（当社製品が実施品/当社と取引後の相手や顧客の製品が実施品/取引の前後に関係なく双方の製品が実施品/・・・）",
	"4. 上記1. および2. から生じ得る上記3. や知財上のリスク（自己実施上の支障/第三者による実施/コンタミによる出願上の支障/第三者からの権利行使/実施料の発生/・・・）",
}

// Viewpoints 1 and 2 intentionally share one keyword table; their facts are
// collected disjointly so the sections do not repeat each other.
var ipKeywords = []string{
	"知財", "特許", "出願", "権利化", "権利帰属", "ライセンス", "実施許諾", "譲渡", "売買", "保証", "表明",
	"補償", "ノウハウ", "著作権", "商標", "秘密", "NDA", "機密保持",
}

var practiceKeywords = []string{
	"実施", "許諾", "サブライセンス", "対象", "範囲", "地域", "期間", "用途", "製品", "当社製品",
	"相手の製品", "顧客", "双方", "第三者", "量産", "販売", "提供",
}

var riskKeywords = []string{
	"リスク", "支障", "障害", "第三者", "権利行使", "侵害", "紛争", "コンタミ", "混入", "実施料",
	"ロイヤリティ", "費用", "損害", "補償", "無効", "抵触", "FTO",
}

var defaultQuestions = [NumViewpoints]string{
	"（どんな契約にしたいか補足）知財の取り扱い方針（創出/権利化/ライセンス/売買/保証）のうち、今回の目標は何ですか？",
	"（どんな契約にしたいか補足）知財面で追加で重視したい事項（例: ノウハウ帰属、譲渡可否、保証範囲）がありますか？",
	"（どんな契約にしたいか補足）実施・許諾の対象と範囲（当社製品/相手製品/双方、地域・期間、サブライセンス可否）を教えてください。",
	"（どんな契約にしたいか補足）想定リスク（自己実施の支障、第三者権利、コンタミ、実施料 等）があれば列挙してください。",
}

// Summarize extracts quoted facts for each viewpoint and renders the full
// narrative. It also returns up to three guidance questions, only for
// viewpoints that had no facts.
func Summarize(text string) (string, []string) {
	sections := Collect(text)

	var questions []string
	for i := range sections {
		if len(sections[i]) == 0 && len(questions) < maxQuestions {
			questions = append(questions, defaultQuestions[i])
		}
	}
	return Render(sections), questions
}

// Collect gathers at most three source sentences per viewpoint.
func Collect(text string) [NumViewpoints][]string {
	sentences := splitSentences(text)

	var sections [NumViewpoints][]string
	sections[0] = collectMatches(sentences, ipKeywords)
	sections[1] = collectMatches(exclude(sentences, sections[0]), ipKeywords)
	sections[2] = collectMatches(sentences, practiceKeywords)
	sections[3] = collectMatches(sentences, riskKeywords)
	return sections
}

// Render rebuilds the whole narrative from per-section bullet lists. All
// four numbered sections are always emitted; empty ones carry 記載なし.
// Partial section replacement is not supported: callers re-render the
// entire narrative on every update.
func Render(sections [NumViewpoints][]string) string {
	parts := make([]string, NumViewpoints)
	for i, title := range sectionTitles {
		facts := sections[i]
		if len(facts) == 0 {
			parts[i] = title + "\n- " + NotStated
			continue
		}
		parts[i] = title + "\n- " + strings.Join(facts, "\n- ")
	}
	return strings.Join(parts, "\n\n")
}

var sentenceSplitPattern = regexp.MustCompile(`[。！？\n]`)

// splitSentences is a lightweight splitter for Japanese text: it cuts on
// 。！？ and newlines and drops empty fragments.
func splitSentences(text string) []string {
	if text == "" {
		return nil
	}
	tmp := strings.NewReplacer("\r", " ", "\t", " ").Replace(text)
	parts := sentenceSplitPattern.Split(tmp, -1)

	var out []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func collectMatches(sentences []string, keywords []string) []string {
	var found []string
	for _, s := range sentences {
		if containsAny(s, keywords) {
			found = append(found, s)
			if len(found) >= maxFactsPerViewpoint {
				break
			}
		}
	}
	return found
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func exclude(sentences, used []string) []string {
	if len(used) == 0 {
		return sentences
	}
	seen := make(map[string]bool, len(used))
	for _, s := range used {
		seen[s] = true
	}
	var out []string
	for _, s := range sentences {
		if !seen[s] {
			out = append(out, s)
		}
	}
	return out
}
