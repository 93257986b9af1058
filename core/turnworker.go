package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/voxloop/duplex-core/core/audio"
	"github.com/voxloop/duplex-core/core/events"
	"github.com/voxloop/duplex-core/core/llms"
	"github.com/voxloop/duplex-core/core/phases"
	"github.com/voxloop/duplex-core/core/signals"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const sentenceBoundaries = ".!?"

// turnRequest is the immutable snapshot a turn worker operates on; it is
// assembled by the dispatcher so the worker never touches live state.
type turnRequest struct {
	reason       string
	frames       [][]byte
	partial      string
	ack          string
	turnID       int
	phase        phases.Phase
	systemPrompt string
	speechEnded  time.Time
}

// executeProcessTurn snapshots the turn and hands it to a background worker.
// The worker's context doubles as the generation cancel signal.
func (e *Engine) executeProcessTurn(a ProcessTurnAction) {
	phase, _ := e.profile.Phase(e.state.ActivePhaseID)
	request := turnRequest{
		reason:       a.Reason,
		frames:       a.Frames,
		partial:      a.Partial,
		ack:          e.pendingAck,
		turnID:       e.state.TurnID,
		phase:        phase,
		systemPrompt: e.profile.SystemPrompt(phase.ID),
		speechEnded:  time.Now(),
	}
	e.pendingAck = ""

	if e.generationCancel != nil {
		e.generationCancel()
	}
	ctx, cancel := e.newWorkerContext()
	e.generationCancel = cancel

	e.workers.Add(1)
	go func() {
		defer e.workers.Done()

		run := panicSafeNamedWorker("turn processing", func(ctx context.Context) error {
			return e.processTurn(ctx, request)
		})
		if err := run(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("turn abandoned", "turn_id", request.turnID, "error", err)
		}
	}()
}

// processTurn transcribes the buffered audio, streams a model response into
// per-sentence events, and finishes by enqueuing ResetTurn. The reset is
// unconditional so the state machine re-enters Idle even when the turn is
// dropped or a backend fails.
func (e *Engine) processTurn(ctx context.Context, request turnRequest) error {
	ctx, span := tracer.Start(ctx, "process turn")
	defer span.End()
	span.SetAttributes(
		attribute.Int("turn.id", request.turnID),
		attribute.String("turn.end_reason", request.reason),
	)

	var outcome *events.TurnOutcome
	defer func() {
		e.Enqueue(events.NewResetTurn(outcome, events.WithSource("turn worker")))
	}()

	if e.micMutedNow() {
		span.AddEvent("rejected: assistant holds the floor")
		return nil
	}
	if len(request.frames) == 0 {
		span.AddEvent("rejected: no audio captured")
		return nil
	}

	buffer := concatFrames(request.frames)
	if len(buffer) == 0 {
		return nil
	}

	transcribeStart := time.Now()
	transcript := request.partial
	if e.transcriber != nil {
		var err error
		transcript, err = e.transcriber.TranscribeBuffer(ctx, buffer, audio.GetDefaultEncodingInfo())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("transcription failed: %w", err)
		}
	}
	transcriptionMs := float64(time.Since(transcribeStart).Milliseconds())
	transcript = strings.TrimSpace(transcript)

	// Re-check after the slow call; the assistant may have taken the floor
	// while transcription was in flight.
	if e.micMutedNow() {
		span.AddEvent("discarded post-transcription: assistant holds the floor")
		return nil
	}

	if countSpokenWords(transcript) == 0 {
		span.AddEvent("rejected: no spoken words")
		return nil
	}

	if request.ack != "" {
		transcript = strings.TrimSpace(request.ack + " " + transcript)
	}

	// An interruption that landed during transcription abandons the turn;
	// shared authority yields the floor back to the user explicitly.
	if ctx.Err() != nil {
		if request.phase.Tuning.Authority == phases.AuthorityDefault {
			e.Enqueue(events.NewSentenceReady("Go ahead.", events.WithSource("turn worker")))
		}
		return nil
	}

	e.memory.add(llms.UserMessage(transcript))
	e.bus.Emit(signals.New(signals.TurnStarted, map[string]any{
		"turn_id":    request.turnID,
		"transcript": transcript,
	}))

	generationStart := time.Now()
	response, err := e.streamResponse(ctx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	spoken := strings.TrimSpace(llms.StripSignals(response))
	if spoken != "" {
		e.memory.add(llms.AssistantMessage(spoken))
	}

	emitted := llms.SignalNames(response)
	for _, name := range emitted {
		e.bus.Emit(signals.New(signals.LLMSignalReceived, map[string]any{"name": name}))
	}

	outcome = &events.TurnOutcome{
		FinalTranscript: transcript,
		AITranscript:    spoken,
		TranscriptionMs: transcriptionMs,
		GenerationMs:    float64(time.Since(generationStart).Milliseconds()),
		TotalLatencyMs:  float64(time.Since(request.speechEnded).Milliseconds()),
		Confidence:      1.0,
		EmittedSignals:  emitted,
	}

	e.bus.Emit(signals.New(signals.TurnCompleted, map[string]any{
		"turn_id": request.turnID,
		"signals": emitted,
	}))

	return nil
}

// streamResponse consumes the model token stream, flushing sentences at
// boundary punctuation. Once a signal block opens, flushing stops so markup
// never reaches the voice; cancellation is re-checked right before every
// flush so post-cancel sentences stay suppressed.
func (e *Engine) streamResponse(ctx context.Context, request turnRequest) (string, error) {
	if e.llm == nil {
		return "", fmt.Errorf("no language model configured")
	}

	opts := []llms.PromptOption{
		llms.WithInstructions(request.systemPrompt),
		llms.WithHistory(e.memory.history()),
	}
	if request.phase.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(request.phase.MaxTokens))
	}
	if request.phase.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(request.phase.Temperature))
	}

	var response, sentence string
	stream := e.llm.PromptWithStream(ctx, opts...)
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			return response, fmt.Errorf("model stream failed: %w", err)
		}
		if ctx.Err() != nil {
			return response, nil
		}

		content, ok := chunk.(llms.StreamContentChunk)
		if !ok {
			continue
		}
		token := content.Content()
		if token == "" {
			continue
		}

		response += token
		sentence += token

		if strings.Contains(strings.ToLower(sentence), "<signals") {
			continue
		}
		if strings.ContainsAny(token, sentenceBoundaries) {
			if flush := strings.TrimSpace(sentence); flush != "" && ctx.Err() == nil {
				e.Enqueue(events.NewSentenceReady(flush, events.WithSource("turn worker")))
			}
			sentence = ""
		}
	}

	if remainder := strings.TrimSpace(llms.StripSignals(sentence)); remainder != "" && ctx.Err() == nil {
		e.Enqueue(events.NewSentenceReady(remainder, events.WithSource("turn worker")))
	}

	return response, nil
}

// maybeGreet opens the conversation with a generated greeting when the
// initial phase declares an assistant start. It runs alongside the dispatcher,
// so it keys off the profile's initial phase rather than live state.
func (e *Engine) maybeGreet() {
	phase, ok := e.profile.Phase(e.profile.InitialPhase)
	if !ok || phase.Start != "ai" || e.llm == nil {
		return
	}

	request := turnRequest{
		phase:        phase,
		systemPrompt: e.profile.SystemPrompt(phase.ID) + "\n\nOpen the conversation with a short greeting.",
	}

	// The greeting is cancelled only by session shutdown; it never races a
	// turn, so it does not claim the generation cancel slot.
	ctx := e.runCtx

	e.workers.Add(1)
	go func() {
		defer e.workers.Done()

		run := panicSafeNamedWorker("greeting", func(ctx context.Context) error {
			response, err := e.streamResponse(ctx, request)
			if err != nil {
				return err
			}
			if greeting := strings.TrimSpace(llms.StripSignals(response)); greeting != "" {
				e.memory.add(llms.AssistantMessage(greeting))
			}
			return nil
		})
		if err := run(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("failed to generate greeting", "error", err)
		}
	}()
}

func concatFrames(frames [][]byte) []byte {
	size := 0
	for _, frame := range frames {
		size += len(frame)
	}

	buffer := make([]byte, 0, size)
	for _, frame := range frames {
		buffer = append(buffer, frame...)
	}
	return buffer
}

// countSpokenWords counts words containing at least one letter, so that
// punctuation-only transcription artifacts don't trigger a response.
func countSpokenWords(text string) int {
	count := 0
	for _, word := range strings.Fields(text) {
		if strings.ContainsFunc(word, unicode.IsLetter) {
			count++
		}
	}
	return count
}
