package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ymiyake/contractintake/form"
)

// auditEntry is the on-disk audit record. The source text appears only as
// its SHA-256 hash.
type auditEntry struct {
	Timestamp      string       `json:"timestamp"`
	Form           *form.Record `json:"form"`
	SourceTextHash string       `json:"source_text_hash,omitempty"`
	OutputPath     string       `json:"output_path"`
}

// HashText returns the hex SHA-256 of the source text, or "" for empty text.
func HashText(text string) string {
	if text == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// WriteAuditLog writes audit_YYYYMMDD_HHMMSS.json under outDir and returns
// its path. The record is written without the embedded source text.
func WriteAuditLog(rec *form.Record, sourceText, outputPath, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	redacted := rec.Clone()
	redacted.SourceText = ""

	ts := time.Now().Format("20060102_150405")
	entry := auditEntry{
		Timestamp:      ts,
		Form:           redacted,
		SourceTextHash: HashText(sourceText),
		OutputPath:     outputPath,
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding audit entry: %w", err)
	}

	path := filepath.Join(outDir, fmt.Sprintf("audit_%s.json", ts))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing audit log: %w", err)
	}
	return path, nil
}
