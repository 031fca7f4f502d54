package contractintake

import (
	"sync"
	"time"

	"github.com/ymiyake/contractintake/followup"
	"github.com/ymiyake/contractintake/form"
)

// Session is one user's form-filling workflow: the evolving record, the
// engine-written baseline used to protect hand edits, the round controller,
// and the buffered question/update queues.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	mu sync.Mutex

	record   *form.Record
	baseline followup.Baseline
	rounds   *followup.Rounds

	// pendingQuestions are the questions currently shown to the user.
	pendingQuestions []followup.Question
	// pendingUpdates is the buffered merge output, applied on the next
	// Apply call rather than mid-merge.
	pendingUpdates []followup.ProposedUpdate

	sourceText string
	note       string
}

// SessionView is an immutable snapshot for API responses.
type SessionView struct {
	ID            string              `json:"id"`
	CreatedAt     time.Time           `json:"created_at"`
	Record        *form.Record        `json:"record"`
	MissingFields []string            `json:"missing_fields"`
	Questions     []followup.Question `json:"follow_up_questions,omitempty"`
	// PendingUpdates not yet folded into the record.
	PendingUpdates []followup.ProposedUpdate `json:"pending_updates,omitempty"`
	Round          int                       `json:"round"`
	MaxRounds      int                       `json:"max_rounds"`
	State          followup.State            `json:"state"`
	Note           string                    `json:"note,omitempty"`
}

func newSession(id string, maxRounds int) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		record:    &form.Record{},
		baseline:  followup.Baseline{},
		rounds:    followup.NewRounds(maxRounds),
	}
}

// view builds a snapshot. Caller holds s.mu.
func (s *Session) view() *SessionView {
	_, missing := form.Validate(s.record)
	return &SessionView{
		ID:             s.ID,
		CreatedAt:      s.CreatedAt,
		Record:         s.record.Clone(),
		MissingFields:  missing,
		Questions:      append([]followup.Question(nil), s.pendingQuestions...),
		PendingUpdates: append([]followup.ProposedUpdate(nil), s.pendingUpdates...),
		Round:          s.rounds.Current,
		MaxRounds:      s.rounds.Max,
		State:          s.rounds.St,
		Note:           s.note,
	}
}

// snapshotAll records the engine-written display value of every non-empty
// field. Caller holds s.mu.
func (s *Session) snapshotAll() {
	for _, name := range form.FieldNames() {
		if !s.record.IsEmpty(name) {
			s.baseline.Snapshot(s.record, name)
		}
	}
}

// applyPending folds the buffered updates into the record, honoring user
// edits, and clears the queue. Caller holds s.mu.
func (s *Session) applyPending() []string {
	if len(s.pendingUpdates) == 0 {
		return nil
	}
	rec, skipped := followup.Apply(s.record, s.baseline, s.pendingUpdates)
	s.record = rec
	s.pendingUpdates = nil
	return skipped
}
