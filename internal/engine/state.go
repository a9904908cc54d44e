package engine

import "fmt"

// A turn is an explicit state machine with one owner (the turn goroutine).
// Transitions happen only in the listed order; anything else is a
// programming error surfaced as a turn failure.
type phase int

const (
	phaseStreaming phase = iota
	phaseToolPending
	phaseToolExecuting
	phaseContinuing
	phaseComplete
	phaseFailed
)

func (p phase) String() string {
	switch p {
	case phaseStreaming:
		return "streaming"
	case phaseToolPending:
		return "tool-pending"
	case phaseToolExecuting:
		return "tool-executing"
	case phaseContinuing:
		return "continuing"
	case phaseComplete:
		return "complete"
	case phaseFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

var transitions = map[phase][]phase{
	phaseStreaming:     {phaseToolPending, phaseComplete, phaseFailed},
	phaseToolPending:   {phaseToolExecuting, phaseFailed},
	phaseToolExecuting: {phaseContinuing, phaseFailed},
	phaseContinuing:    {phaseComplete, phaseFailed},
}

type turnState struct {
	phase phase
}

func (s *turnState) to(next phase) error {
	for _, allowed := range transitions[s.phase] {
		if allowed == next {
			s.phase = next
			return nil
		}
	}
	return fmt.Errorf("illegal turn transition %s -> %s", s.phase, next)
}
