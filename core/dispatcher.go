package orchestration

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/voxloop/duplex-core/core/events"
	"github.com/voxloop/duplex-core/core/phases"
	"github.com/voxloop/duplex-core/core/signals"
)

// dispatchLoop is the single writer of SystemState. It drains the event
// queue in strict arrival order and synthesizes a Tick whenever the queue
// stays idle for a tick interval.
func (e *Engine) dispatchLoop() {
	defer close(e.done)

	for {
		select {
		case <-e.closeCh:
			return
		case event := <-e.queue:
			e.dispatch(event)
		case <-time.After(e.tickInterval):
			e.dispatch(events.NewTick())
		}
	}
}

func (e *Engine) dispatch(event events.Event) {
	actions := e.reducer.reduce(e.state, event)

	e.aiSpeakingMirror.Store(e.state.IsAISpeaking)
	e.authorityMirror.Store(e.state.Tuning.Authority)

	e.publishEventSignal(event)
	for _, action := range actions {
		e.execute(action)
	}

	e.snapshotMu.Lock()
	e.snapshot = snapshotOf(e.state)
	e.snapshotMu.Unlock()

	// Phase evaluation happens between turns, outside reduce, using the
	// signals the model emitted during the completed turn.
	if reset, ok := event.(events.ResetTurn); ok && reset.Outcome != nil {
		e.evaluatePhase(reset.Outcome.EmittedSignals)
	}
}

// execute runs one action. Cheap actions run inline; anything implying slow
// I/O is handed to a worker immediately so the loop never blocks.
func (e *Engine) execute(action Action) {
	switch a := action.(type) {
	case LogAction:
		logger.Info(a.Message, "turn_id", e.state.TurnID, "machine", string(e.state.Machine))

	case InterruptAIAction:
		e.executeInterrupt(a)

	case ProcessTurnAction:
		e.executeProcessTurn(a)

	case PlayAckAction:
		e.executePlayAck(a)

	case SpeakSentenceAction:
		e.executeSpeakSentence(a)

	case LogTurnAction:
		e.analytics.LogTurn(a.Metrics)
		e.bus.Emit(signals.New(signals.AnalyticsTurnMetrics, map[string]any{
			"turn_id":    a.Metrics.TurnID,
			"end_reason": a.Metrics.EndReason,
		}))

	case TransitionPhaseAction:
		e.bus.Emit(signals.New(signals.PhaseTransitionComplete, map[string]any{
			"from_phase": a.FromPhase,
			"to_phase":   a.ToPhase,
		}))
	}
}

// executeInterrupt propagates an accepted interruption as a cancel signal.
// Human authority cuts playback immediately; other modes only stop
// generation and let the current sentence finish, the queue having already
// been cleared by the reducer.
func (e *Engine) executeInterrupt(a InterruptAIAction) {
	e.bus.Emit(signals.New(signals.ConversationInterrupted, map[string]any{
		"interruption_id": uuid.NewString(),
		"reason":          a.Reason,
	}))

	if e.generationCancel != nil {
		e.generationCancel()
		e.generationCancel = nil
	}

	if e.state.Tuning.Authority == phases.AuthorityHuman {
		if e.speechCancel != nil {
			e.speechCancel()
			e.speechCancel = nil
		}
		if e.audioDevice != nil {
			e.audioDevice.FlushPlayback()
		}
	}
}

// executePlayAck picks a random acknowledgment phrase from the active phase
// and speaks it outside the sentence queue; the phrase is also remembered so
// the turn worker can prepend it to the transcript.
func (e *Engine) executePlayAck(a PlayAckAction) {
	ack := "Thank you."
	if phase, ok := e.profile.Phase(e.state.ActivePhaseID); ok && len(phase.Acknowledgments) > 0 {
		ack = phase.Acknowledgments[rand.IntN(len(phase.Acknowledgments))]
	}
	e.pendingAck = ack

	e.bus.Emit(signals.New(signals.ConversationLimitExceeded, map[string]any{
		"turn_id": e.state.TurnID,
		"reason":  a.Reason,
	}))

	if e.synthesizer == nil {
		return
	}

	voice := e.activeVoice()
	ctx := e.runCtx
	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		if err := e.speak(ctx, ack, voice); err != nil && ctx.Err() == nil {
			logger.Warn("failed to play acknowledgment", "error", err)
		}
	}()
}

// evaluatePhase runs the declarative transition matching for the active
// phase. A terminal phase completing ends the session; a matched edge raises
// PhaseTransitionRequested back through the queue.
func (e *Engine) evaluatePhase(emitted []string) {
	if len(emitted) == 0 {
		return
	}

	if e.profile.IsSessionComplete(e.state.ActivePhaseID, emitted) {
		e.bus.Emit(signals.New(signals.SessionCompleted, map[string]any{
			"phase_id": e.state.ActivePhaseID,
		}))
		e.completeOnce.Do(func() { close(e.completed) })
		return
	}

	transition, ok := e.profile.FindTransition(e.state.ActivePhaseID, emitted)
	if !ok {
		return
	}

	e.bus.Emit(signals.New(signals.PhaseTransitionTriggered, map[string]any{
		"from_phase": transition.FromPhase,
		"to_phase":   transition.ToPhase,
	}))

	event := events.NewPhaseTransitionRequested(transition.ToPhase, events.WithSource("dispatcher"))
	select {
	case e.queue <- event:
	default:
		// Queue full; apply inline rather than block the dispatcher.
		e.dispatch(event)
	}
}

func (e *Engine) publishEventSignal(event events.Event) {
	switch event.(type) {
	case events.SpeechStart:
		e.bus.Emit(signals.New(signals.VADSpeechStarted, nil))
	case events.SpeechStop:
		e.bus.Emit(signals.New(signals.VADSpeechEnded, nil))
	}
}

func (e *Engine) activeVoice() string {
	if phase, ok := e.profile.Phase(e.state.ActivePhaseID); ok {
		return phase.Voice
	}
	return ""
}

// newWorkerContext derives a cancellable context for a background worker,
// guarding against Run not having been called yet.
func (e *Engine) newWorkerContext() (context.Context, context.CancelFunc) {
	base := e.runCtx
	if base == nil {
		base = e.baseContext
	}
	return context.WithCancel(base)
}
