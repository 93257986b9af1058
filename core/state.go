package orchestration

import (
	"fmt"
	"time"

	"github.com/jinzhu/copier"
	"github.com/voxloop/duplex-core/core/phases"
)

// MachineState is the turn-taking machine position. The machine cycles per
// turn; there is no terminal state.
type MachineState string

const (
	MachineIdle     MachineState = "idle"
	MachineSpeaking MachineState = "speaking"
	MachinePausing  MachineState = "pausing"
)

// Speaker labels who currently holds the floor.
type Speaker string

const (
	SpeakerHuman   Speaker = "human"
	SpeakerAI      Speaker = "ai"
	SpeakerSilence Speaker = "silence"
)

// SystemState is the single source of truth for a conversation session. It is
// owned exclusively by the dispatcher goroutine and mutated only inside
// reduce; everything else sees copies or snapshots.
type SystemState struct {
	IsAISpeaking    bool
	IsHumanSpeaking bool
	ActiveSpeaker   Speaker
	PreviousSpeaker Speaker

	// AISpeechQueue holds pending sentences; non-empty only while
	// IsAISpeaking.
	AISpeechQueue []string

	// Timing. Zero values mean unset.
	TurnStartTime     time.Time
	LastVoiceTime     time.Time
	LastInterruptTime time.Time

	// Audio and transcription for the in-progress turn.
	TurnAudioBuffer          [][]byte
	PartialTranscript        string
	PartialTranscriptLengths []int
	FinalTranscript          string
	AITranscript             string

	// Tuning comes from the active phase and is replaced wholesale on phase
	// transitions.
	Tuning phases.Tuning

	HumanLimitAckSent bool
	ForceEnded        bool

	TurnID                  int
	InterruptAttempts       int
	InterruptsAccepted      int
	InterruptTriggerReasons []string
	TranscriptionMs         float64
	GenerationMs            float64
	TotalLatencyMs          float64
	Confidence              float64
	EndReason               string

	Machine MachineState

	ActivePhaseID   string
	PhaseIndex      int
	TotalPhases     int
	PhasesCompleted int
	ProfileName     string
}

// newSystemState builds session state from the profile's initial phase.
// Failure here is the only fatal condition of session startup.
func newSystemState(profile *phases.Profile) (*SystemState, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid phase profile: %w", err)
	}

	phase, ok := profile.Phase(profile.InitialPhase)
	if !ok {
		return nil, fmt.Errorf("initial phase %q not found in profile %q", profile.InitialPhase, profile.Name)
	}

	index, total := profile.Index(phase.ID)
	state := &SystemState{
		ActiveSpeaker:   SpeakerSilence,
		PreviousSpeaker: SpeakerSilence,
		Machine:         MachineIdle,
		ActivePhaseID:   phase.ID,
		PhaseIndex:      index,
		TotalPhases:     total,
		ProfileName:     profile.Name,
	}
	if err := copier.Copy(&state.Tuning, &phase.Tuning); err != nil {
		return nil, fmt.Errorf("failed to apply initial phase tuning: %w", err)
	}

	return state, nil
}

func (s *SystemState) micMuted() bool {
	return s.Tuning.Authority == phases.AuthorityAI && s.IsAISpeaking
}

func (s *SystemState) setSpeaker(speaker Speaker) {
	if s.ActiveSpeaker == speaker {
		return
	}
	s.PreviousSpeaker = s.ActiveSpeaker
	s.ActiveSpeaker = speaker
}

// turnMetrics bundles the completed turn's analytics fields. Called from
// reduce right before turn-scoped fields are cleared.
func (s *SystemState) turnMetrics(now time.Time) TurnMetrics {
	var speechDuration float64
	if !s.TurnStartTime.IsZero() && !s.LastVoiceTime.IsZero() {
		speechDuration = s.LastVoiceTime.Sub(s.TurnStartTime).Seconds()
	}
	var silenceMs float64
	if !s.LastVoiceTime.IsZero() {
		silenceMs = float64(now.Sub(s.LastVoiceTime).Milliseconds())
	}

	return TurnMetrics{
		TurnID:                   s.TurnID,
		Timestamp:                float64(now.UnixMilli()) / 1000,
		ProfileName:              s.ProfileName,
		PhaseID:                  s.ActivePhaseID,
		HumanSpeechDurationSec:   speechDuration,
		SilenceBeforeEndMs:       silenceMs,
		InterruptAttempts:        s.InterruptAttempts,
		InterruptsAccepted:       s.InterruptsAccepted,
		InterruptsBlocked:        s.InterruptAttempts - s.InterruptsAccepted,
		InterruptTriggerReasons:  append([]string(nil), s.InterruptTriggerReasons...),
		EndReason:                s.EndReason,
		AuthorityMode:            string(s.Tuning.Authority),
		SensitivityValue:         s.Tuning.InterruptionSensitivity,
		PartialTranscriptLengths: append([]int(nil), s.PartialTranscriptLengths...),
		FinalTranscriptLength:    len(s.FinalTranscript),
		ConfidenceScoreAtCutoff:  s.Confidence,
		TranscriptionMs:          s.TranscriptionMs,
		GenerationMs:             s.GenerationMs,
		TotalLatencyMs:           s.TotalLatencyMs,
		HumanTranscript:          s.FinalTranscript,
		AITranscript:             s.AITranscript,
	}
}

// clearTurn resets every turn-scoped field atomically. Configuration, phase
// fields and the interruption debounce clock survive across turns.
func (s *SystemState) clearTurn() {
	s.TurnAudioBuffer = nil
	s.PartialTranscript = ""
	s.PartialTranscriptLengths = nil
	s.FinalTranscript = ""
	s.AITranscript = ""
	s.TurnStartTime = time.Time{}
	s.LastVoiceTime = time.Time{}
	s.HumanLimitAckSent = false
	s.ForceEnded = false
	s.InterruptAttempts = 0
	s.InterruptsAccepted = 0
	s.InterruptTriggerReasons = nil
	s.TranscriptionMs = 0
	s.GenerationMs = 0
	s.TotalLatencyMs = 0
	s.Confidence = 0
	s.EndReason = ""
}
