package outcome

import (
	"strings"
	"testing"
)

func TestSummarizeAlwaysFourSections(t *testing.T) {
	narrative, questions := Summarize("")

	for i := 1; i <= NumViewpoints; i++ {
		prefix := string(rune('0'+i)) + ". "
		if !strings.Contains(narrative, prefix) {
			t.Errorf("section %d missing from narrative:\n%s", i, narrative)
		}
	}
	if strings.Count(narrative, NotStated) != NumViewpoints {
		t.Errorf("empty input should mark every section %s:\n%s", NotStated, narrative)
	}
	// Question count is capped even though all four viewpoints are empty.
	if len(questions) != 3 {
		t.Errorf("got %d questions, want 3", len(questions))
	}
}

func TestSummarizeQuotesFacts(t *testing.T) {
	text := "本件では特許の権利帰属を当社単独としたい。\n" +
		"当社製品での実施を前提とし、第三者へのサブライセンスは認めない。\n" +
		"コンタミによる出願上の支障が懸念される。"

	narrative, questions := Summarize(text)

	for _, fact := range []string{
		"本件では特許の権利帰属を当社単独としたい",
		"当社製品での実施を前提とし、第三者へのサブライセンスは認めない",
		"コンタミによる出願上の支障が懸念される",
	} {
		if !strings.Contains(narrative, "- "+fact) {
			t.Errorf("narrative missing quoted fact %q:\n%s", fact, narrative)
		}
	}
	// Viewpoints with facts must not also ask their guidance question.
	for _, q := range questions {
		if strings.Contains(q, "実施・許諾の対象と範囲") {
			t.Errorf("section with facts should not be questioned: %s", q)
		}
	}
}

func TestCollectDisjointFirstTwoSections(t *testing.T) {
	text := "特許Aの出願を行う。ライセンスBを検討する。ノウハウCは秘密とする。NDAを締結済み。商標Dも対象。"
	sections := Collect(text)

	if len(sections[0]) != 3 {
		t.Fatalf("section 1 = %v, want 3 facts", sections[0])
	}
	used := make(map[string]bool)
	for _, s := range sections[0] {
		used[s] = true
	}
	for _, s := range sections[1] {
		if used[s] {
			t.Errorf("sections 1 and 2 both quote %q", s)
		}
	}
	if len(sections[1]) == 0 {
		t.Error("remaining IP sentences should fill section 2")
	}
}

func TestCollectCapsFacts(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("第三者による権利行使のリスクがある。")
	}
	sections := Collect(b.String())
	if len(sections[3]) > 3 {
		t.Errorf("section 4 holds %d facts, cap is 3", len(sections[3]))
	}
}

func TestRenderRoundTrip(t *testing.T) {
	var sections [NumViewpoints][]string
	sections[1] = []string{"事実その一", "事実その二"}

	got := Render(sections)
	if !strings.Contains(got, "- 事実その一\n- 事実その二") {
		t.Errorf("facts not rendered as bullets:\n%s", got)
	}
	if strings.Count(got, NotStated) != 3 {
		t.Errorf("three empty sections expected:\n%s", got)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("一文目。二文目！\n三文目？\r\n  ")
	want := []string{"一文目", "二文目", "三文目"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
