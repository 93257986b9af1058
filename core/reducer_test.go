package orchestration

import (
	"testing"
	"time"

	"github.com/voxloop/duplex-core/core/events"
	"github.com/voxloop/duplex-core/core/phases"
	"github.com/voxloop/duplex-core/internal/utils"
)

var testBase = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func at(ms int) events.BaseOption {
	return events.WithTimestamp(testBase.Add(time.Duration(ms) * time.Millisecond))
}

func newTestReducer(t *testing.T, tuning phases.Tuning) (reducer, *SystemState) {
	t.Helper()

	profile := phases.SingleProfile(phases.Phase{ID: "main", Name: "main", Tuning: tuning})
	state, err := newSystemState(profile)
	if err != nil {
		t.Fatalf("failed to construct state: %v", err)
	}
	return reducer{profile: profile}, state
}

func actionsOfKind(actions []Action, kind ActionKind) []Action {
	var matched []Action
	for _, action := range actions {
		if action.Kind() == kind {
			matched = append(matched, action)
		}
	}
	return matched
}

func TestSilenceWalksSpeakingThroughPausingToProcessedTurn(t *testing.T) {
	tuning := phases.DefaultTuning()
	r, state := newTestReducer(t, tuning)

	r.reduce(state, events.NewSpeechStart(at(0)))
	if state.Machine != MachineSpeaking {
		t.Fatalf("expected machine speaking after speech start, got %s", state.Machine)
	}
	if !state.IsHumanSpeaking {
		t.Fatalf("expected human speaking flag set")
	}

	r.reduce(state, events.NewSpeechStop(at(600)))
	actions := r.reduce(state, events.NewTick(at(1300)))
	if state.Machine != MachinePausing {
		t.Fatalf("expected machine pausing after %dms silence, got %s", 1300, state.Machine)
	}
	if len(actionsOfKind(actions, ActionKindProcessTurn)) != 0 {
		t.Fatalf("expected no turn processing while pausing")
	}

	actions = r.reduce(state, events.NewTick(at(2000)))
	if state.Machine != MachineIdle {
		t.Fatalf("expected machine idle after end silence, got %s", state.Machine)
	}
	processed := actionsOfKind(actions, ActionKindProcessTurn)
	if len(processed) != 1 {
		t.Fatalf("expected exactly one process turn action, got %d", len(processed))
	}
	if reason := processed[0].(ProcessTurnAction).Reason; reason != "silence" {
		t.Fatalf("expected end reason silence, got %q", reason)
	}
}

func TestSpeechResumeReturnsPausingToSpeaking(t *testing.T) {
	r, state := newTestReducer(t, phases.DefaultTuning())

	r.reduce(state, events.NewSpeechStart(at(0)))
	r.reduce(state, events.NewSpeechStop(at(300)))
	r.reduce(state, events.NewTick(at(1000)))
	if state.Machine != MachinePausing {
		t.Fatalf("expected pausing, got %s", state.Machine)
	}

	r.reduce(state, events.NewSpeechStart(at(1100)))
	if state.Machine != MachineSpeaking {
		t.Fatalf("expected resumed speaking, got %s", state.Machine)
	}
	if state.TurnStartTime != testBase {
		t.Fatalf("expected turn start time to survive the resume")
	}
}

func TestMicMuteBlocksHumanSpeechWhileAssistantHoldsFloor(t *testing.T) {
	tuning := phases.DefaultTuning()
	tuning.Authority = phases.AuthorityAI
	r, state := newTestReducer(t, tuning)
	state.IsAISpeaking = true

	bufferBefore := len(state.TurnAudioBuffer)
	voiceBefore := state.LastVoiceTime

	actions := r.reduce(state, events.NewAudioFrame([]byte{1, 2}, true, at(100)))
	if len(actionsOfKind(actions, ActionKindInterruptAI)) != 0 {
		t.Fatalf("expected no interruption under assistant authority")
	}
	if len(state.TurnAudioBuffer) != bufferBefore {
		t.Fatalf("expected audio buffer untouched while mic muted")
	}
	if state.LastVoiceTime != voiceBefore {
		t.Fatalf("expected last voice time untouched while mic muted")
	}

	r.reduce(state, events.NewSpeechStart(at(150)))
	if state.IsHumanSpeaking {
		t.Fatalf("expected speech start to be ignored while mic muted")
	}
	if state.Machine != MachineIdle {
		t.Fatalf("expected machine to stay idle while mic muted, got %s", state.Machine)
	}
}

func TestHumanAuthorityInterruptsOnEnergyAlone(t *testing.T) {
	r, state := newTestReducer(t, phases.DefaultTuning())
	state.IsAISpeaking = true
	state.AISpeechQueue = []string{"queued sentence"}
	state.PartialTranscript = ""

	actions := r.reduce(state, events.NewAudioFrame([]byte{1}, true, at(1000)))
	if len(actionsOfKind(actions, ActionKindInterruptAI)) != 1 {
		t.Fatalf("expected an interruption from energy alone under human authority")
	}
	if state.IsAISpeaking {
		t.Fatalf("expected assistant speech flag cleared on interrupt")
	}
	if len(state.AISpeechQueue) != 0 {
		t.Fatalf("expected speech queue cleared on interrupt, got %d entries", len(state.AISpeechQueue))
	}
	if state.InterruptsAccepted != 1 || state.InterruptAttempts != 1 {
		t.Fatalf("expected 1 attempt and 1 accept, got %d/%d", state.InterruptAttempts, state.InterruptsAccepted)
	}
}

func TestInterruptDebounceRejectsRapidRetrigger(t *testing.T) {
	tuning := phases.DefaultTuning()
	tuning.Authority = phases.AuthorityDefault
	tuning.InterruptionSensitivity = 1.0
	r, state := newTestReducer(t, tuning)
	state.IsAISpeaking = true

	actions := r.reduce(state, events.NewAudioFrame([]byte{1}, true, at(1000)))
	if len(actionsOfKind(actions, ActionKindInterruptAI)) != 1 {
		t.Fatalf("expected first frame to interrupt at full sensitivity")
	}

	// Assistant resumes with a fresh sentence inside the debounce window.
	r.reduce(state, events.NewSentenceReady("again", at(1050)))
	actions = r.reduce(state, events.NewAudioFrame([]byte{1}, true, at(1100)))
	if len(actionsOfKind(actions, ActionKindInterruptAI)) != 0 {
		t.Fatalf("expected debounce to reject a retrigger within 250ms")
	}
	if state.InterruptAttempts != 2 || state.InterruptsAccepted != 1 {
		t.Fatalf("expected 2 attempts and 1 accept, got %d/%d", state.InterruptAttempts, state.InterruptsAccepted)
	}

	actions = r.reduce(state, events.NewAudioFrame([]byte{1}, true, at(1300)))
	if len(actionsOfKind(actions, ActionKindInterruptAI)) != 1 {
		t.Fatalf("expected interruption once the debounce window passed")
	}
	if len(state.InterruptTriggerReasons) != 3 {
		t.Fatalf("expected every qualifying trigger to record a reason, got %v", state.InterruptTriggerReasons)
	}
}

func TestSilentFramesWhileAssistantSpeaksAreNotInterruptAttempts(t *testing.T) {
	tuning := phases.DefaultTuning()
	tuning.Authority = phases.AuthorityDefault
	tuning.InterruptionSensitivity = 0.5
	r, state := newTestReducer(t, tuning)
	state.IsAISpeaking = true
	state.PartialTranscript = ""

	for i := range 10 {
		actions := r.reduce(state, events.NewAudioFrame([]byte{1}, false, at(1000+i*50)))
		if len(actionsOfKind(actions, ActionKindInterruptAI)) != 0 {
			t.Fatalf("expected no interruption from silent frame %d", i)
		}
	}

	if state.InterruptAttempts != 0 || state.InterruptsAccepted != 0 {
		t.Fatalf("expected silent frames to record no attempts, got %d/%d",
			state.InterruptAttempts, state.InterruptsAccepted)
	}
	if len(state.InterruptTriggerReasons) != 0 {
		t.Fatalf("expected no trigger reasons from silent frames, got %v", state.InterruptTriggerReasons)
	}
}

func TestSensitivityGradingBlendsEnergyAndWords(t *testing.T) {
	cases := []struct {
		name        string
		sensitivity float64
		partial     string
		energy      bool
		interrupted bool
	}{
		{"energy only at full sensitivity", 1.0, "", true, true},
		{"no energy at full sensitivity", 1.0, "well actually", false, false},
		{"two words at minimal sensitivity", 0.1, "hold on", false, true},
		{"energy only at minimal sensitivity", 0.1, "", true, false},
		{"energy and two words mid sensitivity", 0.5, "hold on", true, true},
		{"energy and one word at low-mid sensitivity", 0.3, "hold", true, false},
		{"energy alone above half sensitivity", 0.6, "", true, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tuning := phases.DefaultTuning()
			tuning.Authority = phases.AuthorityDefault
			tuning.InterruptionSensitivity = tc.sensitivity
			r, state := newTestReducer(t, tuning)
			state.IsAISpeaking = true
			state.PartialTranscript = tc.partial

			actions := r.reduce(state, events.NewAudioFrame([]byte{1}, tc.energy, at(1000)))
			got := len(actionsOfKind(actions, ActionKindInterruptAI)) == 1
			if got != tc.interrupted {
				t.Fatalf("expected interrupted=%t, got %t", tc.interrupted, got)
			}
		})
	}
}

func TestSafetyTimeoutForcesTurnEndOutsideHumanAuthority(t *testing.T) {
	tuning := phases.DefaultTuning()
	tuning.Authority = phases.AuthorityDefault
	r, state := newTestReducer(t, tuning)

	r.reduce(state, events.NewSpeechStart(at(0)))
	r.reduce(state, events.NewSpeechStop(at(100)))
	r.reduce(state, events.NewTick(at(700)))
	if state.Machine != MachinePausing {
		t.Fatalf("expected pausing, got %s", state.Machine)
	}

	// Safety timeout outranks the normal end threshold when both elapsed.
	actions := r.reduce(state, events.NewTick(at(2600)))
	processed := actionsOfKind(actions, ActionKindProcessTurn)
	if len(processed) != 1 {
		t.Fatalf("expected one process turn action, got %d", len(processed))
	}
	if reason := processed[0].(ProcessTurnAction).Reason; reason != "safety_timeout" {
		t.Fatalf("expected safety_timeout, got %q", reason)
	}
	if !state.ForceEnded {
		t.Fatalf("expected force-ended flag")
	}

	r.reduce(state, events.NewAudioFrame([]byte{9}, true, at(2700)))
	if len(state.TurnAudioBuffer) != 0 {
		t.Fatalf("expected no buffering after force end, got %d frames", len(state.TurnAudioBuffer))
	}
}

func TestSpeakingLimitAcknowledgesAndCutsOffOnPause(t *testing.T) {
	tuning := phases.DefaultTuning()
	tuning.HumanSpeakingLimitSec = utils.Ptr(5)
	r, state := newTestReducer(t, tuning)

	r.reduce(state, events.NewSpeechStart(at(0)))
	actions := r.reduce(state, events.NewTick(at(6000)))

	if len(actionsOfKind(actions, ActionKindPlayAck)) != 1 {
		t.Fatalf("expected acknowledgment once the limit elapsed")
	}
	if !state.HumanLimitAckSent {
		t.Fatalf("expected ack flag set")
	}
	// Still speaking, so the turn keeps going until the next pause.
	processed := actionsOfKind(actions, ActionKindProcessTurn)
	if state.Machine == MachinePausing && len(processed) != 1 {
		t.Fatalf("expected limit cutoff while pausing")
	}

	actions = r.reduce(state, events.NewTick(at(6100)))
	if len(actionsOfKind(actions, ActionKindPlayAck)) != 0 {
		t.Fatalf("expected acknowledgment to be sent at most once per turn")
	}

	// Once the human pauses, the pending ack ends the turn immediately.
	r.reduce(state, events.NewSpeechStop(at(6200)))
	r.reduce(state, events.NewTick(at(6900)))
	actions = r.reduce(state, events.NewTick(at(7000)))
	processed = actionsOfKind(actions, ActionKindProcessTurn)
	if len(processed) != 1 {
		t.Fatalf("expected one process turn action after the pause, got %d", len(processed))
	}
	if reason := processed[0].(ProcessTurnAction).Reason; reason != "limit_exceeded" {
		t.Fatalf("expected limit_exceeded, got %q", reason)
	}
}

func TestSpeakingLimitWhilePausingCutsOffImmediately(t *testing.T) {
	tuning := phases.DefaultTuning()
	tuning.HumanSpeakingLimitSec = utils.Ptr(5)
	r, state := newTestReducer(t, tuning)

	r.reduce(state, events.NewSpeechStart(at(0)))
	r.reduce(state, events.NewSpeechStop(at(4200)))
	r.reduce(state, events.NewTick(at(4800)))
	if state.Machine != MachinePausing {
		t.Fatalf("expected pausing before the limit fires, got %s", state.Machine)
	}

	actions := r.reduce(state, events.NewTick(at(5100)))
	if len(actionsOfKind(actions, ActionKindPlayAck)) != 1 {
		t.Fatalf("expected acknowledgment")
	}
	processed := actionsOfKind(actions, ActionKindProcessTurn)
	if len(processed) != 1 {
		t.Fatalf("expected immediate cutoff while pausing, got %d process actions", len(processed))
	}
	if reason := processed[0].(ProcessTurnAction).Reason; reason != "limit_exceeded" {
		t.Fatalf("expected limit_exceeded, got %q", reason)
	}
	if state.Machine != MachineIdle {
		t.Fatalf("expected machine idle after cutoff, got %s", state.Machine)
	}
}

func TestSentenceQueueHoldsPendingSentencesWhileSpeaking(t *testing.T) {
	r, state := newTestReducer(t, phases.DefaultTuning())

	actions := r.reduce(state, events.NewSentenceReady("First.", at(0)))
	if len(actionsOfKind(actions, ActionKindSpeakSentence)) != 1 {
		t.Fatalf("expected first sentence spoken immediately")
	}
	if !state.IsAISpeaking {
		t.Fatalf("expected assistant speaking flag set")
	}

	r.reduce(state, events.NewSentenceReady("Second.", at(10)))
	r.reduce(state, events.NewSentenceReady("Third.", at(20)))
	if len(state.AISpeechQueue) != 2 {
		t.Fatalf("expected 2 queued sentences, got %d", len(state.AISpeechQueue))
	}

	actions = r.reduce(state, events.NewSpeechFinished(at(30)))
	spoken := actionsOfKind(actions, ActionKindSpeakSentence)
	if len(spoken) != 1 || spoken[0].(SpeakSentenceAction).Text != "Second." {
		t.Fatalf("expected second sentence to play next, got %#v", spoken)
	}

	r.reduce(state, events.NewSpeechFinished(at(40)))
	r.reduce(state, events.NewSpeechFinished(at(50)))
	if state.IsAISpeaking {
		t.Fatalf("expected assistant quiet after the queue drained")
	}
	if len(state.AISpeechQueue) != 0 {
		t.Fatalf("expected empty queue, got %d", len(state.AISpeechQueue))
	}
	if state.ActiveSpeaker != SpeakerSilence {
		t.Fatalf("expected silence speaker label, got %s", state.ActiveSpeaker)
	}
}

func TestResetTurnClearsTurnScopedStateIdempotently(t *testing.T) {
	r, state := newTestReducer(t, phases.DefaultTuning())

	r.reduce(state, events.NewSpeechStart(at(0)))
	r.reduce(state, events.NewAudioFrame([]byte{1, 2}, true, at(100)))
	r.reduce(state, events.NewPartialTranscript("hello", at(200)))

	outcome := &events.TurnOutcome{FinalTranscript: "hello there", AITranscript: "Hi."}
	actions := r.reduce(state, events.NewResetTurn(outcome, at(2000)))
	if len(actionsOfKind(actions, ActionKindLogTurn)) != 1 {
		t.Fatalf("expected turn metrics logged for a turn with content")
	}

	after := *state
	if after.TurnID != 1 {
		t.Fatalf("expected turn id 1, got %d", after.TurnID)
	}
	if len(after.TurnAudioBuffer) != 0 || after.PartialTranscript != "" || after.FinalTranscript != "" {
		t.Fatalf("expected turn-scoped fields cleared")
	}
	if !after.TurnStartTime.IsZero() || !after.LastVoiceTime.IsZero() {
		t.Fatalf("expected timers cleared")
	}

	actions = r.reduce(state, events.NewResetTurn(nil, at(2100)))
	if len(actions) != 0 {
		t.Fatalf("expected a repeated reset to be a no-op, got %d actions", len(actions))
	}
	if state.TurnID != 1 {
		t.Fatalf("expected turn id unchanged by repeated reset, got %d", state.TurnID)
	}
}

func TestTurnIDGrowsByOnePerCompletedTurn(t *testing.T) {
	r, state := newTestReducer(t, phases.DefaultTuning())

	const turns = 4
	for i := 0; i < turns; i++ {
		base := i * 10000
		r.reduce(state, events.NewSpeechStart(at(base)))
		r.reduce(state, events.NewAudioFrame([]byte{1}, true, at(base+100)))
		outcome := &events.TurnOutcome{FinalTranscript: "words"}
		r.reduce(state, events.NewResetTurn(outcome, at(base+2000)))
	}

	if state.TurnID != turns {
		t.Fatalf("expected turn id %d after %d completed turns, got %d", turns, turns, state.TurnID)
	}
}

func TestPhaseTransitionReplacesTuningWholesale(t *testing.T) {
	profile := &phases.Profile{
		Name:         "exam",
		InitialPhase: "greeting",
		Phases: []phases.Phase{
			{ID: "greeting", Tuning: phases.DefaultTuning()},
			{ID: "part1", Tuning: phases.Tuning{
				Authority:               phases.AuthorityAI,
				PauseMs:                 400,
				EndMs:                   900,
				SafetyTimeoutMs:         2000,
				InterruptionSensitivity: 0.2,
				HumanSpeakingLimitSec:   utils.Ptr(30),
			}},
		},
		Transitions: []phases.Transition{
			{FromPhase: "greeting", ToPhase: "part1", TriggerSignals: []string{"done"}},
		},
	}
	state, err := newSystemState(profile)
	if err != nil {
		t.Fatalf("failed to construct state: %v", err)
	}
	r := reducer{profile: profile}

	transition, ok := profile.FindTransition("greeting", []string{"done"})
	if !ok || transition.ToPhase != "part1" {
		t.Fatalf("expected evaluator to select part1, got %#v (ok=%t)", transition, ok)
	}

	actions := r.reduce(state, events.NewPhaseTransitionRequested(transition.ToPhase, at(0)))
	if len(actionsOfKind(actions, ActionKindTransitionPhase)) != 1 {
		t.Fatalf("expected a transition action")
	}
	if state.ActivePhaseID != "part1" {
		t.Fatalf("expected active phase part1, got %q", state.ActivePhaseID)
	}
	if state.Tuning.Authority != phases.AuthorityAI || state.Tuning.PauseMs != 400 ||
		state.Tuning.EndMs != 900 || state.Tuning.SafetyTimeoutMs != 2000 ||
		state.Tuning.InterruptionSensitivity != 0.2 {
		t.Fatalf("expected tuning replaced wholesale, got %+v", state.Tuning)
	}
	if state.Tuning.HumanSpeakingLimitSec == nil || *state.Tuning.HumanSpeakingLimitSec != 30 {
		t.Fatalf("expected speaking limit carried over from part1")
	}
	if state.PhasesCompleted != 1 || state.PhaseIndex != 1 {
		t.Fatalf("expected phase bookkeeping updated, got completed=%d index=%d", state.PhasesCompleted, state.PhaseIndex)
	}
}

func TestUnknownEventsStillRunTimeDrivenChecks(t *testing.T) {
	r, state := newTestReducer(t, phases.DefaultTuning())

	r.reduce(state, events.NewSpeechStart(at(0)))
	r.reduce(state, events.NewSpeechStop(at(100)))

	// A partial transcript long after the pause threshold must still move
	// the machine along.
	r.reduce(state, events.NewPartialTranscript("hello", at(900)))
	if state.Machine != MachinePausing {
		t.Fatalf("expected pausing via a non-tick event, got %s", state.Machine)
	}
}
