package orchestration

// ActionKind discriminates the side effects reduce can request. Actions are
// descriptions only; reduce itself never performs I/O.
type ActionKind string

const (
	ActionKindLog             ActionKind = "log"
	ActionKindInterruptAI     ActionKind = "interrupt_ai"
	ActionKindProcessTurn     ActionKind = "process_turn"
	ActionKindPlayAck         ActionKind = "play_ack"
	ActionKindSpeakSentence   ActionKind = "speak_sentence"
	ActionKindLogTurn         ActionKind = "log_turn"
	ActionKindTransitionPhase ActionKind = "transition_phase"
)

type Action interface {
	Kind() ActionKind
}

type LogAction struct {
	Message string
}

func (a LogAction) Kind() ActionKind { return ActionKindLog }

type InterruptAIAction struct {
	Reason string
}

func (a InterruptAIAction) Kind() ActionKind { return ActionKindInterruptAI }

// ProcessTurnAction hands the buffered turn to the turn worker. Frames and
// Partial are copies taken at emission time so the live buffer can be cleared
// immediately afterwards without racing the worker.
type ProcessTurnAction struct {
	Reason  string
	Frames  [][]byte
	Partial string
}

func (a ProcessTurnAction) Kind() ActionKind { return ActionKindProcessTurn }

type PlayAckAction struct {
	Reason string
}

func (a PlayAckAction) Kind() ActionKind { return ActionKindPlayAck }

type SpeakSentenceAction struct {
	Text string
}

func (a SpeakSentenceAction) Kind() ActionKind { return ActionKindSpeakSentence }

type LogTurnAction struct {
	Metrics TurnMetrics
}

func (a LogTurnAction) Kind() ActionKind { return ActionKindLogTurn }

type TransitionPhaseAction struct {
	FromPhase string
	ToPhase   string
}

func (a TransitionPhaseAction) Kind() ActionKind { return ActionKindTransitionPhase }
