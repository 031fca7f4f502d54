package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// pptxSlide is the subset of the slide XML we care about: shape tree text
// bodies, paragraphs, runs.
type pptxSlide struct {
	CSld struct {
		SpTree struct {
			SPs []pptxShape `xml:"sp"`
		} `xml:"spTree"`
	} `xml:"cSld"`
}

type pptxShape struct {
	TxBody *pptxTxBody `xml:"txBody"`
}

type pptxTxBody struct {
	Paras []pptxPara `xml:"p"`
}

type pptxPara struct {
	Runs []pptxRun `xml:"r"`
}

type pptxRun struct {
	Text string `xml:"t"`
}

// extractPPTX pulls text from every slide in presentation order. Each slide
// becomes a "[スライド N]" block so the reader can tell where a note came
// from. Duplicate lines within one slide are dropped.
func extractPPTX(data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.New("PPTXの読み込みに失敗しました。ファイルが破損していないか確認してください。")
	}

	slideFiles := make(map[int]*zip.File)
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			if num := slideNumber(f.Name); num > 0 {
				slideFiles[num] = f
			}
		}
	}

	nums := make([]int, 0, len(slideFiles))
	for n := range slideFiles {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var blocks []string
	for _, num := range nums {
		rc, err := slideFiles[num].Open()
		if err != nil {
			continue
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}

		lines := slideLines(raw)
		if len(lines) == 0 {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[スライド %d]\n%s", num, strings.Join(lines, "\n")))
	}

	if len(blocks) == 0 {
		return "", errors.New("PPTXからテキストを抽出できませんでした。")
	}
	return strings.Join(blocks, "\n\n"), nil
}

// slideLines decodes one slide's XML into non-empty text lines, preserving
// order and dropping duplicates within the slide.
func slideLines(raw []byte) []string {
	var slide pptxSlide
	if err := xml.Unmarshal(raw, &slide); err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var lines []string
	for _, sp := range slide.CSld.SpTree.SPs {
		if sp.TxBody == nil {
			continue
		}
		for _, para := range sp.TxBody.Paras {
			var b strings.Builder
			for _, run := range para.Runs {
				b.WriteString(run.Text)
			}
			line := strings.TrimSpace(b.String())
			if line == "" || seen[line] {
				continue
			}
			seen[line] = true
			lines = append(lines, line)
		}
	}
	return lines
}

func slideNumber(name string) int {
	name = strings.TrimPrefix(name, "ppt/slides/slide")
	name = strings.TrimSuffix(name, ".xml")
	var num int
	fmt.Sscanf(name, "%d", &num)
	return num
}
