package orchestration

import (
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"github.com/voxloop/duplex-core/core/events"
	"github.com/voxloop/duplex-core/core/phases"
)

// interruptDebounce is the minimum spacing between two accepted
// interruptions.
const interruptDebounce = 250 * time.Millisecond

// reducer is the deterministic turn-taking core. reduce is total over every
// event kind and machine state, performs no I/O, and is the only code allowed
// to mutate SystemState.
type reducer struct {
	profile *phases.Profile
}

func (r reducer) reduce(state *SystemState, event events.Event) []Action {
	var actions []Action

	switch e := event.(type) {
	case events.SpeechStart:
		if state.micMuted() {
			return actions
		}

		state.IsHumanSpeaking = true
		state.setSpeaker(SpeakerHuman)
		state.LastVoiceTime = e.Timestamp()
		if state.TurnStartTime.IsZero() {
			state.TurnStartTime = e.Timestamp()
		}

		switch state.Machine {
		case MachineIdle:
			state.Machine = MachineSpeaking
			actions = append(actions, LogAction{Message: "speech started"})
		case MachinePausing:
			state.Machine = MachineSpeaking
			actions = append(actions, LogAction{Message: "speech resumed"})
		}

	case events.SpeechStop:
		if state.micMuted() {
			return actions
		}
		state.IsHumanSpeaking = false
		// Voice was present up to this moment; silence math anchors here.
		state.LastVoiceTime = e.Timestamp()

	case events.AudioFrame:
		if !state.micMuted() && !state.ForceEnded {
			state.TurnAudioBuffer = append(state.TurnAudioBuffer, e.Audio)
			if e.IsSpeech {
				state.LastVoiceTime = e.Timestamp()
			}

			if state.IsAISpeaking {
				if triggered, reason := r.checkInterruption(state, e); triggered {
					state.InterruptAttempts++
					state.InterruptTriggerReasons = append(state.InterruptTriggerReasons, reason)

					debounced := !state.LastInterruptTime.IsZero() &&
						e.Timestamp().Sub(state.LastInterruptTime) <= interruptDebounce
					if !debounced {
						state.LastInterruptTime = e.Timestamp()
						state.IsAISpeaking = false
						state.AISpeechQueue = nil
						state.InterruptsAccepted++
						state.setSpeaker(SpeakerHuman)
						actions = append(actions,
							InterruptAIAction{Reason: reason},
							LogAction{Message: "interrupt: " + reason},
						)
					}
				}
			}
		}

	case events.PartialTranscript:
		if state.micMuted() {
			return actions
		}

		state.PartialTranscript = e.Text
		if e.Text != "" {
			state.PartialTranscriptLengths = append(state.PartialTranscriptLengths, len(e.Text))
			actions = append(actions, LogAction{Message: "partial transcript: " + e.Text})
		}

	case events.SentenceReady:
		if e.Text != "" {
			actions = append(actions, LogAction{Message: "assistant sentence ready"})
			if !state.IsAISpeaking {
				state.IsAISpeaking = true
				state.setSpeaker(SpeakerAI)
				actions = append(actions, SpeakSentenceAction{Text: e.Text})
			} else {
				state.AISpeechQueue = append(state.AISpeechQueue, e.Text)
			}
		}

	case events.SpeechFinished:
		if len(state.AISpeechQueue) > 0 {
			next := state.AISpeechQueue[0]
			state.AISpeechQueue = state.AISpeechQueue[1:]
			actions = append(actions,
				LogAction{Message: fmt.Sprintf("assistant speaking next sentence (%d queued)", len(state.AISpeechQueue))},
				SpeakSentenceAction{Text: next},
			)
		} else {
			state.IsAISpeaking = false
			state.setSpeaker(SpeakerSilence)
			actions = append(actions, LogAction{Message: "assistant finished speaking"})
		}

	case events.ResetTurn:
		if e.Outcome != nil {
			state.FinalTranscript = e.Outcome.FinalTranscript
			state.AITranscript = e.Outcome.AITranscript
			state.TranscriptionMs = e.Outcome.TranscriptionMs
			state.GenerationMs = e.Outcome.GenerationMs
			state.TotalLatencyMs = e.Outcome.TotalLatencyMs
			state.Confidence = e.Outcome.Confidence
		}

		if !state.TurnStartTime.IsZero() && state.FinalTranscript != "" {
			actions = append(actions, LogTurnAction{Metrics: state.turnMetrics(e.Timestamp())})
		}
		if !state.TurnStartTime.IsZero() || len(state.TurnAudioBuffer) > 0 || state.FinalTranscript != "" {
			actions = append(actions, LogAction{Message: "resetting for next turn"})
			state.clearTurn()
			state.TurnID++
		}

	case events.PhaseTransitionRequested:
		actions = append(actions, r.applyPhase(state, e.ToPhase)...)

	case events.Tick:
		// Time-driven transitions below are the whole point of a tick.
	}

	// State machine transitions that depend only on elapsed time. These run
	// for every event so silence thresholds fire even between ticks.
	now := event.Timestamp()
	switch state.Machine {
	case MachineSpeaking:
		if !state.IsHumanSpeaking {
			if elapsed := silenceSince(state, now); elapsed >= int64(state.Tuning.PauseMs) {
				state.Machine = MachinePausing
				actions = append(actions, LogAction{Message: fmt.Sprintf("pause after %d ms", elapsed)})
			}
		}

	case MachinePausing:
		elapsed := silenceSince(state, now)
		switch {
		case state.HumanLimitAckSent:
			// The acknowledgment already went out; end the turn on this
			// pause instead of waiting out the normal silence threshold.
			actions = append(actions, r.endTurn(state, "limit_exceeded")...)

		case state.Tuning.Authority != phases.AuthorityHuman && elapsed >= int64(state.Tuning.SafetyTimeoutMs):
			state.ForceEnded = true
			actions = append(actions, r.endTurn(state, "safety_timeout")...)

		case elapsed >= int64(state.Tuning.EndMs):
			actions = append(actions, r.endTurn(state, "silence")...)
		}
	}

	// Human speaking limit.
	if !state.TurnStartTime.IsZero() && state.Tuning.HumanSpeakingLimitSec != nil && !state.HumanLimitAckSent {
		limit := time.Duration(*state.Tuning.HumanSpeakingLimitSec) * time.Second
		if now.Sub(state.TurnStartTime) > limit {
			state.HumanLimitAckSent = true
			actions = append(actions, PlayAckAction{Reason: "limit_exceeded"})
			if state.Machine == MachinePausing {
				actions = append(actions, r.endTurn(state, "limit_exceeded")...)
			}
		}
	}

	return actions
}

// endTurn emits the turn-processing side effects and parks the machine back
// in Idle. The frame and partial snapshots ride on the action so the live
// buffer can be cleared by a later reset without racing the worker.
func (r reducer) endTurn(state *SystemState, reason string) []Action {
	frames := make([][]byte, len(state.TurnAudioBuffer))
	copy(frames, state.TurnAudioBuffer)

	state.EndReason = reason
	state.Machine = MachineIdle

	return []Action{
		LogAction{Message: "processing turn (reason: " + reason + ")"},
		ProcessTurnAction{Reason: reason, Frames: frames, Partial: state.PartialTranscript},
	}
}

// silenceSince reports elapsed milliseconds since the last voiced input, or
// zero when the turn has no voice yet.
func silenceSince(state *SystemState, now time.Time) int64 {
	if state.LastVoiceTime.IsZero() {
		return 0
	}
	return now.Sub(state.LastVoiceTime).Milliseconds()
}

// checkInterruption grades whether an audio frame qualifies as an interrupt
// trigger. Debounce is applied by the caller; only called while IsAISpeaking.
func (r reducer) checkInterruption(state *SystemState, e events.AudioFrame) (bool, string) {
	if state.Tuning.Authority == phases.AuthorityAI {
		return false, "authority is ai"
	}

	wordCount := len(strings.Fields(state.PartialTranscript))
	energy := e.IsSpeech

	// Human authority is the most permissive; the user always wins.
	if state.Tuning.Authority == phases.AuthorityHuman {
		if wordCount >= 1 {
			return true, "speech: " + state.PartialTranscript
		}
		if energy {
			return true, "energy trigger"
		}
	}

	switch sensitivity := state.Tuning.InterruptionSensitivity; {
	case sensitivity >= 0.9:
		if energy {
			return true, "energy spike"
		}
	case sensitivity <= 0.1:
		if wordCount >= 2 {
			return true, "speech: " + state.PartialTranscript
		}
	default:
		if energy && (wordCount >= 2 || sensitivity > 0.5) {
			return true, "hybrid trigger"
		}
	}

	return false, ""
}

// applyPhase replaces the tuning configuration wholesale and bumps the phase
// bookkeeping fields.
func (r reducer) applyPhase(state *SystemState, toPhase string) []Action {
	phase, ok := r.profile.Phase(toPhase)
	if !ok {
		return []Action{LogAction{Message: "ignoring transition to unknown phase " + toPhase}}
	}

	fromPhase := state.ActivePhaseID
	if err := copier.Copy(&state.Tuning, &phase.Tuning); err != nil {
		return []Action{LogAction{Message: "failed to apply tuning for phase " + toPhase + ": " + err.Error()}}
	}

	state.ActivePhaseID = phase.ID
	state.PhaseIndex, state.TotalPhases = r.profile.Index(phase.ID)
	state.PhasesCompleted++

	return []Action{
		TransitionPhaseAction{FromPhase: fromPhase, ToPhase: phase.ID},
		LogAction{Message: "phase transition " + fromPhase + " -> " + phase.ID},
	}
}
