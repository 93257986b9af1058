package orchestration

import (
	"time"

	"github.com/voxloop/duplex-core/core/phases"
	"github.com/voxloop/duplex-core/core/signals"
)

type EngineOption func(*Engine)

// WithProfile sets the phase profile driving turn-taking configuration and
// phase transitions. Without it the engine runs a single default phase.
func WithProfile(profile *phases.Profile) EngineOption {
	return func(e *Engine) { e.profile = profile }
}

// WithAudioDevice wires the duplex capture/playback endpoint. Without one the
// engine runs headless: events come only from Enqueue and the transcriber.
func WithAudioDevice(device AudioDevice) EngineOption {
	return func(e *Engine) { e.audioDevice = device }
}

func WithTranscriber(transcriber Transcriber) EngineOption {
	return func(e *Engine) { e.transcriber = transcriber }
}

func WithLLM(llm LLM) EngineOption {
	return func(e *Engine) { e.llm = llm }
}

func WithSpeechSynthesizer(synthesizer SpeechSynthesizer) EngineOption {
	return func(e *Engine) { e.synthesizer = synthesizer }
}

// WithSignalBus injects a session-scoped observability bus. The engine never
// depends on listeners for correctness.
func WithSignalBus(bus *signals.Bus) EngineOption {
	return func(e *Engine) { e.bus = bus }
}

// WithAnalytics attaches an append-only turn metrics sink; absent, LogTurn
// actions are observability-only.
func WithAnalytics(analytics *SessionAnalytics) EngineOption {
	return func(e *Engine) { e.analytics = analytics }
}

// WithTickInterval overrides the queue-idle timeout after which the
// dispatcher synthesizes a Tick.
func WithTickInterval(interval time.Duration) EngineOption {
	return func(e *Engine) {
		if interval > 0 {
			e.tickInterval = interval
		}
	}
}
