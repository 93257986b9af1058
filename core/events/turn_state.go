package events

const (
	// KindResetTurn identifies the end-of-turn reset boundary.
	KindResetTurn Kind = "turn_state.reset"
	// KindTick identifies a dispatcher-synthesized clock event.
	KindTick Kind = "clock.tick"
	// KindPhaseTransitionRequested identifies a phase graph transition.
	KindPhaseTransitionRequested Kind = "phase.transition_requested"
)

// TurnOutcome is what the processing worker learned about the finished turn.
// It rides on ResetTurn so the reducer can record it before clearing
// turn-scoped state; the worker itself never touches state.
type TurnOutcome struct {
	FinalTranscript string
	AITranscript    string

	TranscriptionMs float64
	GenerationMs    float64
	TotalLatencyMs  float64
	Confidence      float64

	// EmittedSignals are the signal names the response carried; the
	// dispatcher consults them for phase transitions after the reset.
	EmittedSignals []string
}

// ResetTurn closes out the current turn and clears turn-scoped state.
type ResetTurn struct {
	Base
	Outcome *TurnOutcome
}

func (e ResetTurn) String() string { return "reset turn" }

func NewResetTurn(outcome *TurnOutcome, opts ...BaseOption) ResetTurn {
	return ResetTurn{Base: NewBase(KindResetTurn, opts...), Outcome: outcome}
}

// Tick drives time-based transitions when no producer events arrive.
type Tick struct{ Base }

func (e Tick) String() string { return "tick" }

func NewTick(opts ...BaseOption) Tick {
	return Tick{Base: NewBase(KindTick, opts...)}
}

// PhaseTransitionRequested asks the reducer to apply the target phase's
// configuration wholesale.
type PhaseTransitionRequested struct {
	Base
	ToPhase string
}

func (e PhaseTransitionRequested) String() string { return "phase transition requested" }

func NewPhaseTransitionRequested(toPhase string, opts ...BaseOption) PhaseTransitionRequested {
	return PhaseTransitionRequested{Base: NewBase(KindPhaseTransitionRequested, opts...), ToPhase: toPhase}
}
