package stream

import "fmt"

// State is the lifecycle state of one forwarding session.
type State int

const (
	StateOpen State = iota
	StateClosedNormally
	StateClosedError
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosedNormally:
		return "closed-normally"
	case StateClosedError:
		return "closed-error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result summarizes a finished session.
type Result struct {
	State          State
	BytesForwarded int64
	Matched        bool
	// OverrideFired is true when the override request was dispatched. Its
	// outcome is not part of the result.
	OverrideFired bool
}

type session struct {
	id      string
	state   State
	matcher Matcher
	bytes   int64
}

func (s *session) close(state State) {
	if s.state != StateOpen {
		return
	}
	s.state = state
	// Nothing is scanned after close.
	if sc, ok := s.matcher.(*Scanner); ok {
		sc.Reset()
	}
}

func (s *session) result(fired bool) Result {
	return Result{
		State:          s.state,
		BytesForwarded: s.bytes,
		Matched:        s.matcher.Matched(),
		OverrideFired:  fired,
	}
}
