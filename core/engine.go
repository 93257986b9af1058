// Package orchestration drives a real-time spoken conversation between a
// human and an assistant: a single dispatcher goroutine owns the session
// state, reduces inbound events into side-effect actions, and hands slow
// actions to background workers that report back only by enqueuing events.
package orchestration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jinzhu/copier"
	"github.com/voxloop/duplex-core/core/audio"
	"github.com/voxloop/duplex-core/core/events"
	"github.com/voxloop/duplex-core/core/phases"
	"github.com/voxloop/duplex-core/core/signals"
	"github.com/voxloop/duplex-core/core/speechtotext"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	eventQueueCapacity = 256

	// defaultTickInterval is how long the dispatcher waits on an empty queue
	// before synthesizing a Tick, so silence thresholds fire without input.
	defaultTickInterval = 50 * time.Millisecond
)

type Engine struct {
	profile *phases.Profile

	// state is owned by the dispatcher goroutine; everything else reads the
	// mirrors or Snapshot.
	state   *SystemState
	reducer reducer

	audioDevice AudioDevice
	transcriber Transcriber
	llm         LLM
	synthesizer SpeechSynthesizer

	bus       *signals.Bus
	analytics *SessionAnalytics
	memory    conversationMemory

	queue     chan events.Event
	closeCh   chan struct{}
	done      chan struct{}
	completed chan struct{}

	startOnce    sync.Once
	endOnce      sync.Once
	completeOnce sync.Once
	started      atomic.Bool
	workers      sync.WaitGroup

	// Reducer-owned flags mirrored for the turn worker's mic-mute double
	// checks; written only by the dispatcher.
	aiSpeakingMirror atomic.Bool
	authorityMirror  atomic.Value

	// Dispatcher-owned action bookkeeping.
	generationCancel context.CancelFunc
	speechCancel     context.CancelFunc
	pendingAck       string

	snapshotMu sync.RWMutex
	snapshot   SystemState

	tickInterval time.Duration
	baseContext  context.Context
	runCtx       context.Context
	runCancel    context.CancelFunc
}

// NewEngine constructs a session engine. A profile that fails validation is
// the only fatal condition; missing backends degrade to a headless engine
// driven purely through Enqueue.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		bus:          signals.NewBus(),
		queue:        make(chan events.Event, eventQueueCapacity),
		closeCh:      make(chan struct{}),
		done:         make(chan struct{}),
		completed:    make(chan struct{}),
		tickInterval: defaultTickInterval,
		baseContext:  context.Background(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.profile == nil {
		e.profile = phases.SingleProfile(phases.Phase{
			ID:     "conversation",
			Name:   "conversation",
			Tuning: phases.DefaultTuning(),
		})
	}

	state, err := newSystemState(e.profile)
	if err != nil {
		return nil, fmt.Errorf("failed to construct session state: %w", err)
	}

	e.state = state
	e.reducer = reducer{profile: e.profile}
	e.aiSpeakingMirror.Store(false)
	e.authorityMirror.Store(state.Tuning.Authority)
	e.snapshot = snapshotOf(state)

	return e, nil
}

// Run starts the dispatcher and wires the configured producers. Call at most
// once per engine; it returns immediately.
func (e *Engine) Run(ctx context.Context) {
	e.startOnce.Do(func() {
		e.started.Store(true)
		e.baseContext = ctx
		e.runCtx, e.runCancel = context.WithCancel(ctx)

		go e.dispatchLoop()
		go func() {
			select {
			case <-ctx.Done():
			case <-e.completed:
			case <-e.closeCh:
			}
			e.Close()
		}()

		e.startProducers()
		e.maybeGreet()
	})
}

func (e *Engine) startProducers() {
	if e.transcriber != nil {
		err := e.transcriber.Transcribe(
			e.runCtx,
			speechtotext.WithEncodingInfo(audio.GetDefaultEncodingInfo()),
			speechtotext.WithSpeechStartedCallback(func() {
				e.Enqueue(events.NewSpeechStart(events.WithSource("stt")))
			}),
			speechtotext.WithSpeechEndedCallback(func() {
				e.Enqueue(events.NewSpeechStop(events.WithSource("stt")))
			}),
			speechtotext.WithInterimTranscriptionCallback(func(transcript string) {
				e.Enqueue(events.NewPartialTranscript(transcript, events.WithSource("stt")))
			}),
		)
		if err != nil {
			recordedErr := fmt.Errorf("failed to start live transcription: %w", err)
			span := trace.SpanFromContext(e.baseContext)
			span.RecordError(recordedErr)
			span.SetStatus(codes.Error, recordedErr.Error())
			logger.Warn("live transcription unavailable", "error", err)
		}
	}

	if e.audioDevice != nil {
		e.workers.Add(1)
		go func() {
			defer e.workers.Done()

			err := e.audioDevice.Frames(e.runCtx, func(frame audio.Frame) {
				if e.transcriber != nil {
					if err := e.transcriber.SendAudio(frame.Audio); err != nil {
						logger.Warn("failed to forward audio to transcriber", "error", err)
					}
				}
				e.Enqueue(events.NewAudioFrame(frame.Audio, frame.IsSpeech, events.WithSource("audio")))
			})
			if err != nil && e.runCtx.Err() == nil {
				logger.Warn("audio capture stopped", "error", err)
			}
		}()
	}
}

// Enqueue submits an event for dispatch. Returns false once the session is
// closed. Events are processed strictly in arrival order.
func (e *Engine) Enqueue(event events.Event) bool {
	if e.isClosed() {
		return false
	}

	select {
	case <-e.closeCh:
		return false
	case e.queue <- event:
		return true
	}
}

// Snapshot returns a point-in-time deep copy of session state.
func (e *Engine) Snapshot() SystemState {
	e.snapshotMu.RLock()
	defer e.snapshotMu.RUnlock()
	return e.snapshot
}

// Signals exposes the session-scoped observability bus.
func (e *Engine) Signals() *signals.Bus { return e.bus }

// SessionDone is closed when a terminal phase emits its completion signal.
func (e *Engine) SessionDone() <-chan struct{} { return e.completed }

// Close shuts the session down: stops the dispatcher, cancels in-flight
// workers, closes backends and flushes analytics. Safe to call more than
// once.
func (e *Engine) Close() {
	e.endOnce.Do(func() {
		close(e.closeCh)
		if e.runCancel != nil {
			e.runCancel()
		}

		if e.transcriber != nil {
			if err := e.transcriber.Close(e.baseContext); err != nil {
				logger.Warn("failed to close transcriber", "error", err)
			}
		}
		if e.audioDevice != nil {
			if err := e.audioDevice.Close(); err != nil {
				logger.Warn("failed to close audio device", "error", err)
			}
		}

		if e.started.Load() {
			<-e.done
		}
		e.workers.Wait()

		if err := e.analytics.Close(); err != nil {
			logger.Warn("failed to flush session analytics", "error", err)
		}
	})
}

// AwaitCompletion blocks until the dispatcher has exited.
func (e *Engine) AwaitCompletion() {
	if e.started.Load() {
		<-e.done
	}
}

func (e *Engine) isClosed() bool {
	select {
	case <-e.closeCh:
		return true
	default:
		return false
	}
}

// micMutedNow is the worker-side mirror of the reducer's mic-mute rule.
// Turn workers re-check it around transcription, which runs off the
// dispatcher thread.
func (e *Engine) micMutedNow() bool {
	authority, _ := e.authorityMirror.Load().(phases.Authority)
	return authority == phases.AuthorityAI && e.aiSpeakingMirror.Load()
}

func snapshotOf(state *SystemState) SystemState {
	var snapshot SystemState
	if err := copier.CopyWithOption(&snapshot, state, copier.Option{DeepCopy: true}); err != nil {
		// Fall back to a shallow copy; slices may alias live state.
		snapshot = *state
	}
	return snapshot
}
