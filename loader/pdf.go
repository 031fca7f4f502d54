package loader

import (
	"bytes"
	"errors"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF pulls plain text from every page of a PDF payload. Pages that
// fail to decode are skipped; the load fails only when nothing is readable.
func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.New("PDFの読み込みに失敗しました。ファイルが破損していないか確認してください。")
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	if len(pages) == 0 {
		return "", errors.New("PDFからテキストを抽出できませんでした。画像のみのPDFの可能性があります。")
	}
	return strings.Join(pages, "\n\n"), nil
}
