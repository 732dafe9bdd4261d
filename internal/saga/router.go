package saga

import "fmt"

// State is the saga state derived from (step index, event status). It is
// never stored: any consumer can recompute it from the envelope plus the
// fixed definition.
type State int

const (
	RunningForward State = iota
	Compensating
	TerminalSuccess
	TerminalFailed
)

func (s State) String() string {
	switch s {
	case RunningForward:
		return "RUNNING_FORWARD"
	case Compensating:
		return "COMPENSATING"
	case TerminalSuccess:
		return "TERMINAL_SUCCESS"
	case TerminalFailed:
		return "TERMINAL_FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Hop is one edge traversal of the saga state machine: the topic that must
// receive the envelope next and the state the saga is in after the publish.
type Hop struct {
	Topic string
	State State
}

// Terminal reports whether the saga is exhausted in either direction.
func (h Hop) Terminal() bool {
	return h.State == TerminalSuccess || h.State == TerminalFailed
}

// Router is the pure next-hop function. It holds no mutable state, only the
// injected definition, so the same (source, status) pair always yields the
// same hop and it is safe for any consumer to recompute at any time.
type Router struct {
	def *Definition
}

// NewRouter builds a router over the given saga definition.
func NewRouter(def *Definition) *Router {
	return &Router{def: def}
}

// NextHop decides where the envelope goes after the step named in ev.Source
// reported ev.Status:
//
//   - SUCCESS at the last step        -> notify-ending, TERMINAL_SUCCESS
//   - SUCCESS elsewhere               -> execute topic of step i+1
//   - ROLLBACK_PENDING with i-1 >= 0  -> compensate topic of step i-1
//   - ROLLBACK_PENDING at step 0      -> notify-ending, TERMINAL_FAILED
//   - FAIL with i-1 >= 0              -> compensate topic of step i-1
//   - FAIL at step 0                  -> notify-ending, TERMINAL_FAILED
//
// A source missing from the definition means the topic wiring is broken and
// yields ErrUnknownSource.
func (r *Router) NextHop(ev Event) (Hop, error) {
	i, err := r.def.IndexOf(ev.Source)
	if err != nil {
		return Hop{}, err
	}

	switch ev.Status {
	case StatusSuccess:
		if i == r.def.Len()-1 {
			return Hop{Topic: r.def.EndingTopic, State: TerminalSuccess}, nil
		}
		return Hop{Topic: r.def.Step(i + 1).ExecuteTopic, State: RunningForward}, nil

	case StatusRollbackPending, StatusFail:
		// The failing step never committed its own mutation, so in both cases
		// compensation continues at the previous step.
		if i-1 >= 0 {
			return Hop{Topic: r.def.Step(i - 1).CompensateTopic, State: Compensating}, nil
		}
		return Hop{Topic: r.def.EndingTopic, State: TerminalFailed}, nil

	default:
		return Hop{}, fmt.Errorf("no hop defined for status %s at source %s", ev.Status, ev.Source)
	}
}
