package followup

// DefaultMaxRounds caps the extraction-question-answer cycle.
const DefaultMaxRounds = 2

// State names the round controller's position in the cycle.
type State string

const (
	// StateIdle: extraction has not produced questions yet.
	StateIdle State = "idle"
	// StateAwaiting: questions are outstanding for the current round.
	StateAwaiting State = "awaiting_answers"
	// StateTerminated: no further rounds will be offered. Sticky.
	StateTerminated State = "terminated"
)

// Rounds is the small state machine bounding the follow-up cycle.
// The zero value is unusable; construct with NewRounds.
type Rounds struct {
	Max     int   `json:"max_rounds"`
	Current int   `json:"current_round"`
	St      State `json:"state"`
}

// NewRounds creates a controller with the given cap (DefaultMaxRounds when
// max <= 0).
func NewRounds(max int) *Rounds {
	if max <= 0 {
		max = DefaultMaxRounds
	}
	return &Rounds{Max: max, St: StateIdle}
}

// Begin records the outcome of the initial extraction. With at least one
// follow-up question the controller enters round 1; with none it stays idle
// so a later extraction may still start the cycle.
func (r *Rounds) Begin(questionCount int) {
	if r.St == StateTerminated {
		return
	}
	if questionCount > 0 {
		r.Current = 1
		r.St = StateAwaiting
		return
	}
	r.Current = 0
	r.St = StateIdle
}

// Advance records the outcome of one answer-merge cycle. hadAnswers is false
// when the user submitted nothing usable; remaining is the number of
// questions still open after the merge. Terminal state is sticky.
func (r *Rounds) Advance(hadAnswers bool, remaining int) State {
	if r.St == StateTerminated {
		return r.St
	}
	if !hadAnswers || remaining == 0 || r.Current >= r.Max {
		r.St = StateTerminated
		return r.St
	}
	r.Current++
	r.St = StateAwaiting
	return r.St
}

// Terminated reports whether further rounds are shut off.
func (r *Rounds) Terminated() bool {
	return r.St == StateTerminated
}

// QuestionsAllowed reports whether the controller still permits offering
// questions. After termination the record's remaining gaps surface as an
// export-time validation error, not as more questions.
func (r *Rounds) QuestionsAllowed() bool {
	return r.St != StateTerminated && r.Current <= r.Max
}
