// Package loader extracts plain text from uploaded meeting-note files.
// Supported formats: .txt/.md/.markdown, .pdf, .pptx. Failures carry
// descriptive Japanese messages the UI shows verbatim.
package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrEmptyFile is returned for zero-length payloads.
	ErrEmptyFile = errors.New("ファイルの内容が空です。")

	// ErrUnsupportedFormat is wrapped with the offending extension.
	ErrUnsupportedFormat = errors.New("サポートされていないファイル形式です")
)

var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// SupportedExtensions lists the accepted file extensions.
func SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown", ".pdf", ".pptx"}
}

// FromBytes extracts text content from raw file bytes. The filename is used
// only for extension detection.
func FromBytes(data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyFile
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case textExtensions[ext]:
		return decodeText(data)
	case ext == ".pdf":
		return extractPDF(data)
	case ext == ".pptx":
		return extractPPTX(data)
	}

	label := ext
	if label == "" {
		label = "不明"
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, label)
}

// decodeText reads a plain-text payload, dropping invalid UTF-8 bytes.
func decodeText(data []byte) (string, error) {
	text := strings.TrimSpace(strings.ToValidUTF8(string(data), ""))
	if text == "" {
		return "", errors.New("テキストファイルから内容を取得できませんでした。")
	}
	return text, nil
}
