package engine

import "testing"

func TestTurnState_OrderedTransitions(t *testing.T) {
	s := &turnState{}
	for _, next := range []phase{phaseToolPending, phaseToolExecuting, phaseContinuing, phaseComplete} {
		if err := s.to(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
}

func TestTurnState_SkipToCompleteWithoutTool(t *testing.T) {
	s := &turnState{}
	if err := s.to(phaseComplete); err != nil {
		t.Fatalf("zero-tool turn completes straight from streaming: %v", err)
	}
}

func TestTurnState_IllegalTransitions(t *testing.T) {
	cases := []struct {
		from, to phase
	}{
		// must pass through tool-pending
		{phaseStreaming, phaseToolExecuting},
		{phaseStreaming, phaseContinuing},
		// a pending tool must execute
		{phaseToolPending, phaseComplete},
		// terminal states are terminal
		{phaseComplete, phaseFailed},
		{phaseComplete, phaseStreaming},
		{phaseFailed, phaseComplete},
	}
	for _, c := range cases {
		s := &turnState{phase: c.from}
		if err := s.to(c.to); err == nil {
			t.Fatalf("transition %s -> %s must be rejected", c.from, c.to)
		}
	}
}

func TestTurnState_AnyActivePhaseMayFail(t *testing.T) {
	for _, from := range []phase{phaseStreaming, phaseToolPending, phaseToolExecuting, phaseContinuing} {
		s := &turnState{phase: from}
		if err := s.to(phaseFailed); err != nil {
			t.Fatalf("%s must be allowed to fail: %v", from, err)
		}
	}
}
