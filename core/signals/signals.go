// Package signals implements the observability side-channel of the engine.
//
// A Signal is a named, structured observation about what just happened.
// Signals describe, they never act: they do not mutate engine state and they
// do not cause side effects inside the core. The engine emits them; listeners
// decide what to do. The system works identically if nobody listens.
package signals

import (
	"fmt"
	"sync"
	"time"
)

// Canonical signal names emitted by the engine. Consumers may also emit their
// own under the "custom." prefix; the phase evaluator treats both alike.
const (
	ConversationTurnComplete  = "conversation.turn_complete"
	ConversationInterrupted   = "conversation.interrupted"
	ConversationLimitExceeded = "conversation.speaking_limit_exceeded"
	ConversationSpeakerChange = "conversation.speaker_changed"

	VADSpeechStarted = "vad.speech_started"
	VADSpeechEnded   = "vad.speech_ended"

	TTSSpeakingStarted = "tts.speaking_started"
	TTSSpeakingEnded   = "tts.speaking_ended"

	TurnStarted   = "turn.started"
	TurnCompleted = "turn.completed"

	LLMGenerationStart    = "llm.generation_start"
	LLMGenerationComplete = "llm.generation_complete"
	LLMGenerationError    = "llm.generation_error"
	LLMSignalReceived     = "llm.signal_received"

	AnalyticsTurnMetrics    = "analytics.turn_metrics_updated"
	AnalyticsSessionSummary = "analytics.session_summary"

	PhaseTransitionTriggered = "phase.transition_triggered"
	PhaseTransitionComplete  = "phase.transition_complete"
	SessionCompleted         = "phase.session_completed"

	CustomPrefix = "custom."
)

// Signal is an immutable observation.
type Signal struct {
	Name      string
	Payload   map[string]any
	Context   map[string]any
	Timestamp time.Time
}

func New(name string, payload map[string]any) Signal {
	return Signal{Name: name, Payload: payload, Timestamp: time.Now()}
}

// Listener receives signals. Listener failures are contained at the bus
// boundary and never reach the dispatcher.
type Listener func(Signal)

// Bus fans signals out to registered listeners. Its lifecycle is scoped to a
// session: construct one per engine, close it with the engine.
type Bus struct {
	mu              sync.RWMutex
	listeners       map[string][]Listener
	globalListeners []Listener
}

func NewBus() *Bus {
	return &Bus{listeners: map[string][]Listener{}}
}

// Register subscribes a listener to one signal name.
func (b *Bus) Register(name string, listener Listener) {
	if b == nil || listener == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = append(b.listeners[name], listener)
}

// RegisterAll subscribes a listener to every signal. Useful for analytics
// exporters and live UI streamers that want the whole feed.
func (b *Bus) RegisterAll(listener Listener) {
	if b == nil || listener == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.globalListeners = append(b.globalListeners, listener)
}

// Emit broadcasts the signal to global listeners first, then name-specific
// ones, in registration order. Fire-and-forget: errors and panics inside a
// listener are logged and swallowed.
func (b *Bus) Emit(signal Signal) {
	if b == nil {
		return
	}

	if signal.Timestamp.IsZero() {
		signal.Timestamp = time.Now()
	}

	b.mu.RLock()
	global := make([]Listener, len(b.globalListeners))
	copy(global, b.globalListeners)
	named := make([]Listener, len(b.listeners[signal.Name]))
	copy(named, b.listeners[signal.Name])
	b.mu.RUnlock()

	for _, listener := range global {
		b.invoke(signal, listener)
	}
	for _, listener := range named {
		b.invoke(signal, listener)
	}
}

func (b *Bus) invoke(signal Signal, listener Listener) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Warn("signal listener failed",
				"signal", signal.Name,
				"error", fmt.Sprintf("%v", recovered),
			)
		}
	}()

	listener(signal)
}

// ListenerCount reports registered listeners for one name, or the total when
// name is empty.
func (b *Bus) ListenerCount(name string) int {
	if b == nil {
		return 0
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if name != "" {
		return len(b.listeners[name])
	}

	total := len(b.globalListeners)
	for _, listeners := range b.listeners {
		total += len(listeners)
	}
	return total
}

// Clear drops all listeners.
func (b *Bus) Clear() {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = map[string][]Listener{}
	b.globalListeners = nil
}
