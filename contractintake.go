// Package contractintake assists Japanese contract-request intake: it
// extracts form fields from free-text meeting notes, asks bounded follow-up
// questions, merges answers without clobbering manual edits, and exports the
// completed form as CSV or Excel with an audit trail.
package contractintake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ymiyake/contractintake/export"
	"github.com/ymiyake/contractintake/extract"
	"github.com/ymiyake/contractintake/followup"
	"github.com/ymiyake/contractintake/form"
	"github.com/ymiyake/contractintake/llm"
	"github.com/ymiyake/contractintake/loader"
	"github.com/ymiyake/contractintake/normalize"
	"github.com/ymiyake/contractintake/store"
)

// Engine is the main entry point for the intake assistant.
type Engine interface {
	// StartSession opens a fresh workflow and returns its snapshot.
	StartSession() *SessionView

	// Extract runs extraction over source text into the session's record.
	Extract(ctx context.Context, sessionID, text string) (*SessionView, error)

	// LoadFile extracts plain text from an uploaded file for Extract.
	LoadFile(data []byte, filename string) (string, error)

	// SubmitAnswers merges one round of answers. Proposed updates are
	// buffered on the session and folded in on the next Apply.
	SubmitAnswers(ctx context.Context, sessionID string, answers []followup.Answer) (*AnswerOutcome, error)

	// Apply folds the session's buffered updates into its record and
	// returns the fields skipped in favor of user edits.
	Apply(sessionID string) (*SessionView, []string, error)

	// SetField records a manual user edit on one field.
	SetField(sessionID, field, value string) (*SessionView, error)

	// Export validates, writes the requested format plus the audit log,
	// records the submission, and returns the output path.
	Export(ctx context.Context, sessionID, format string) (string, error)

	// Session returns a snapshot of one session.
	Session(sessionID string) (*SessionView, error)

	// History lists recent submissions, newest first.
	History(ctx context.Context, limit int) ([]store.Submission, error)

	// Healthcheck verifies completion service connectivity.
	Healthcheck(ctx context.Context) (bool, string)

	// Close releases the submission history database.
	Close() error
}

// AnswerOutcome reports one merge round back to the caller.
type AnswerOutcome struct {
	Session     *SessionView                      `json:"session"`
	Proposed    []followup.ProposedUpdate         `json:"proposed_updates"`
	Explanation map[string]followup.FieldDecision `json:"explanation,omitempty"`
	Note        string                            `json:"note,omitempty"`
}

type engine struct {
	cfg       Config
	provider  llm.Provider
	extractor *extract.Engine
	merger    *followup.Merger
	history   *store.Store

	mu       sync.Mutex
	sessions map[string]*Session
}

var (
	providerOnce sync.Once
	providerInst llm.Provider
	providerErr  error
)

// sharedProvider memoizes the completion service client so every engine in
// the process reuses one HTTP client. A gemini provider without an API key
// resolves to nil, which selects the pattern-matching fallback everywhere.
func sharedProvider(cfg llm.Config) (llm.Provider, error) {
	providerOnce.Do(func() {
		if cfg.Provider == "" || (cfg.Provider == "gemini" && cfg.APIKey == "") {
			slog.Info("completion service not configured, extraction uses pattern fallback")
			return
		}
		providerInst, providerErr = llm.NewProvider(cfg)
	})
	return providerInst, providerErr
}

// ResetProviderForTesting clears the memoized provider.
// Not thread-safe; tests only.
func ResetProviderForTesting() {
	providerOnce = sync.Once{}
	providerInst = nil
	providerErr = nil
}

// New creates an intake engine from configuration.
func New(cfg Config) (Engine, error) {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = followup.DefaultMaxRounds
	}
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = followup.DefaultMaxQuestions
	}

	provider, err := sharedProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("creating completion provider: %w", err)
	}

	history, err := store.Open(cfg.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}

	return &engine{
		cfg:       cfg,
		provider:  provider,
		extractor: extract.New(provider, cfg.LLM.Model, cfg.MaxQuestions),
		merger:    followup.NewMerger(provider, cfg.LLM.Model),
		history:   history,
		sessions:  make(map[string]*Session),
	}, nil
}

func (e *engine) StartSession() *SessionView {
	s := newSession(uuid.NewString(), e.cfg.MaxRounds)
	e.mu.Lock()
	e.sessions[s.ID] = s
	e.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (e *engine) session(id string) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (e *engine) LoadFile(data []byte, filename string) (string, error) {
	return loader.FromBytes(data, filename)
}

func (e *engine) Extract(ctx context.Context, sessionID, text string) (*SessionView, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	s, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}

	res, err := e.extractor.Extract(ctx, text)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sourceText = text
	s.record = res.Record
	s.note = res.Note
	s.pendingUpdates = nil
	s.baseline = followup.Baseline{}
	s.snapshotAll()

	s.rounds.Begin(len(res.Questions))
	if s.rounds.QuestionsAllowed() {
		s.pendingQuestions = res.Questions
	} else {
		s.pendingQuestions = nil
	}

	slog.Info("extraction finished",
		"session", s.ID,
		"missing", len(res.MissingFields),
		"questions", len(s.pendingQuestions),
		"degraded", res.Note != "")
	return s.view(), nil
}

func (e *engine) SubmitAnswers(ctx context.Context, sessionID string, answers []followup.Answer) (*AnswerOutcome, error) {
	s, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rounds.Terminated() {
		return nil, ErrSessionTerminated
	}

	res := e.merger.Merge(ctx, s.sourceText, s.record, answers)

	// Buffer the proposals; they land on the record at the next Apply.
	s.pendingUpdates = append(s.pendingUpdates, res.Proposed...)

	next := followup.Plan(append(res.Questions, res.Remaining...), e.cfg.MaxQuestions)
	state := s.rounds.Advance(res.Answered > 0, len(next))
	if state == followup.StateTerminated {
		next = nil
	}
	s.pendingQuestions = next

	slog.Info("answers merged",
		"session", s.ID,
		"answered", res.Answered,
		"proposed", len(res.Proposed),
		"state", state)
	return &AnswerOutcome{
		Session:     s.view(),
		Proposed:    res.Proposed,
		Explanation: res.Explanation,
		Note:        res.Note,
	}, nil
}

func (e *engine) Apply(sessionID string) (*SessionView, []string, error) {
	s, err := e.session(sessionID)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	skipped := s.applyPending()
	if len(skipped) > 0 {
		slog.Info("updates skipped for user edits", "session", s.ID, "fields", skipped)
	}
	return s.view(), skipped, nil
}

func (e *engine) SetField(sessionID, field, value string) (*SessionView, error) {
	s, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}
	if form.Lookup(field) == nil {
		return nil, fmt.Errorf("contractintake: unknown field %q", field)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(value) == "" {
		// Emptying the field is an explicit clear. Keeping the pre-clear
		// value in the baseline marks the mismatch, so buffered updates
		// cannot refill the field.
		s.baseline[field] = s.record.DisplayValue(field)
		s.record.Clear(field)
		return s.view(), nil
	}

	rec, err := normalize.Normalize(map[string]any{field: value})
	if err != nil {
		return nil, err
	}
	if rec.IsEmpty(field) {
		// Unparseable edits leave the record as-is but still count as the
		// user touching the field.
		delete(s.baseline, field)
		return s.view(), nil
	}

	v, _ := rec.Get(field)
	if err := s.record.Set(field, v); err != nil {
		return nil, err
	}
	// Dropping the baseline entry marks the field user-owned: buffered
	// updates will no longer overwrite it.
	delete(s.baseline, field)
	return s.view(), nil
}

func (e *engine) Export(ctx context.Context, sessionID, format string) (string, error) {
	s, err := e.session(sessionID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyPending()

	var outPath string
	switch format {
	case "csv", "":
		outPath, err = export.WriteCSV(s.record, e.cfg.CSVMappingPath, e.cfg.OutputDir)
	case "xlsx", "excel":
		if e.cfg.ExcelMappingPath == "" || e.cfg.ExcelTemplatePath == "" {
			return "", fmt.Errorf("%w: %s", ErrExportUnavailable, format)
		}
		outPath, err = export.FillTemplate(s.record, e.cfg.ExcelMappingPath, e.cfg.ExcelTemplatePath, e.cfg.OutputDir)
	default:
		return "", fmt.Errorf("%w: %s", ErrExportUnavailable, format)
	}
	if err != nil {
		return "", err
	}

	if _, err := store.WriteAuditLog(s.record, s.sourceText, outPath, e.cfg.OutputDir); err != nil {
		return "", fmt.Errorf("writing audit log: %w", err)
	}
	if _, err := e.history.Save(ctx, s.record, store.HashText(s.sourceText), outPath); err != nil {
		return "", fmt.Errorf("recording submission: %w", err)
	}

	slog.Info("exported", "session", s.ID, "format", format, "path", outPath)
	return outPath, nil
}

func (e *engine) Session(sessionID string) (*SessionView, error) {
	s, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

func (e *engine) History(ctx context.Context, limit int) ([]store.Submission, error) {
	return e.history.List(ctx, limit)
}

func (e *engine) Healthcheck(ctx context.Context) (bool, string) {
	return e.extractor.Healthcheck(ctx)
}

func (e *engine) Close() error {
	return e.history.Close()
}
