package snapshots

import (
	"github.com/google/uuid"

	"github.com/blackwell-systems/simsnap/internal/snaperr"
)

// Op names a snapshot operation.
type Op string

const (
	OpTake      Op = "take"
	OpRestore   Op = "restore"
	OpDelete    Op = "delete"
	OpDeleteAll Op = "delete_all"
)

// State is a step of an operation.
//
//	idle -> preparing -> executing -> validating -> success
//	                                            \-> rolling_back -> failed
type State string

const (
	StateIdle        State = "idle"
	StatePreparing   State = "preparing"
	StateExecuting   State = "executing"
	StateValidating  State = "validating"
	StateRollingBack State = "rolling_back"
	StateSuccess     State = "success"
	StateFailed      State = "failed"
)

// Terminal reports whether s ends an operation.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// Progress is one event of a running operation. Fraction never decreases
// within an operation.
type Progress struct {
	OpID     string
	Op       Op
	State    State
	Fraction float64 // 0..1
	Phase    string  // short label, e.g. "Copying documents"
	Message  string  // set on terminal states
	Attempt  int     // restore attempt, 1-based; 0 otherwise
	Err      error
}

// tracker emits the events of one operation.
type tracker struct {
	report   func(Progress)
	id       string
	op       Op
	fraction float64
	attempt  int
}

func (m *Manager) track(op Op) *tracker {
	return &tracker{report: m.report, id: uuid.NewString(), op: op}
}

func (t *tracker) emit(state State, fraction float64, phase string) {
	if fraction < t.fraction {
		fraction = t.fraction
	}
	if fraction > 1 {
		fraction = 1
	}
	t.fraction = fraction
	t.report(Progress{
		OpID:     t.id,
		Op:       t.op,
		State:    state,
		Fraction: fraction,
		Phase:    phase,
		Attempt:  t.attempt,
	})
}

func (t *tracker) succeed(msg string) {
	t.fraction = 1
	t.report(Progress{
		OpID:     t.id,
		Op:       t.op,
		State:    StateSuccess,
		Fraction: 1,
		Phase:    "Done",
		Message:  msg,
		Attempt:  t.attempt,
	})
}

// fail emits the failed state and returns err for convenience.
func (t *tracker) fail(err error) error {
	t.report(Progress{
		OpID:     t.id,
		Op:       t.op,
		State:    StateFailed,
		Fraction: t.fraction,
		Phase:    "Failed",
		Message:  snaperr.Message(err),
		Attempt:  t.attempt,
		Err:      err,
	})
	return err
}
