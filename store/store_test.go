package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ymiyake/contractintake/form"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord() *form.Record {
	return &form.Record{
		ProjectName:      "共同開発の件",
		CounterpartyName: "テスト株式会社",
		AmountJPY:        1_200_000,
		SourceText:       "元の打ち合わせメモ",
	}
}

func TestSaveAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, testRecord(), HashText("元の打ち合わせメモ"), "/outputs/contract_x.csv")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id == "" {
		t.Fatal("Save returned empty ID")
	}

	sub, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sub.Record.ProjectName != "共同開発の件" {
		t.Errorf("record round-trip: %+v", sub.Record)
	}
	if sub.OutputPath != "/outputs/contract_x.csv" {
		t.Errorf("OutputPath = %s", sub.OutputPath)
	}
	if sub.SourceHash != HashText("元の打ち合わせメモ") {
		t.Errorf("SourceHash = %s", sub.SourceHash)
	}
}

func TestGetNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.Get(context.Background(), "no-such-id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Save(ctx, testRecord(), "", "")
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		ids = append(ids, id)
	}

	subs, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("limit ignored, got %d rows", len(subs))
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d rows, want 3", len(all))
	}
	seen := make(map[string]bool)
	for _, sub := range all {
		seen[sub.ID] = true
	}
	for _, id := range ids {
		if !seen[id] {
			t.Errorf("submission %s missing from List", id)
		}
	}
}

func TestClosedGuard(t *testing.T) {
	s := testStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}

	ctx := context.Background()
	if _, err := s.Save(ctx, testRecord(), "", ""); !errors.Is(err, ErrClosed) {
		t.Errorf("Save after close: %v", err)
	}
	if _, err := s.List(ctx, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("List after close: %v", err)
	}
	if _, err := s.Get(ctx, "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after close: %v", err)
	}
}

func TestHashText(t *testing.T) {
	if HashText("") != "" {
		t.Error("empty text should hash to empty string")
	}
	h := HashText("秘密のメモ")
	if len(h) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h))
	}
	if h != HashText("秘密のメモ") {
		t.Error("hash must be deterministic")
	}
}

func TestWriteAuditLog(t *testing.T) {
	outDir := t.TempDir()
	source := "ここに秘密の打ち合わせメモ"

	path, err := WriteAuditLog(testRecord(), source, "/outputs/contract_x.csv", outDir)
	if err != nil {
		t.Fatalf("WriteAuditLog: %v", err)
	}

	base := filepath.Base(path)
	if !strings.HasPrefix(base, "audit_") || !strings.HasSuffix(base, ".json") {
		t.Errorf("unexpected filename %s", base)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	if strings.Contains(string(data), source) {
		t.Error("audit log must never contain the source text")
	}

	var entry struct {
		Timestamp      string       `json:"timestamp"`
		Form           *form.Record `json:"form"`
		SourceTextHash string       `json:"source_text_hash"`
		OutputPath     string       `json:"output_path"`
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("decoding audit log: %v", err)
	}
	if entry.SourceTextHash != HashText(source) {
		t.Errorf("hash = %s", entry.SourceTextHash)
	}
	if entry.Form.SourceText != "" {
		t.Error("record source text must be redacted in the audit log")
	}
	if entry.Form.ProjectName != "共同開発の件" {
		t.Errorf("form = %+v", entry.Form)
	}
}
