package orchestration

import (
	"context"
	"errors"

	"github.com/voxloop/duplex-core/core/events"
	"github.com/voxloop/duplex-core/core/signals"
	"github.com/voxloop/duplex-core/core/texttospeech"
	"go.opentelemetry.io/otel/codes"
)

// executeSpeakSentence plays one sentence on a worker and reports back with
// a SpeechFinished event so the reducer can advance the sentence queue. By
// the time a new SpeakSentence action arrives the previous utterance has
// already reported finished, so its context only needs releasing.
func (e *Engine) executeSpeakSentence(a SpeakSentenceAction) {
	if e.synthesizer == nil {
		e.Enqueue(events.NewSpeechFinished(events.WithSource("speech worker")))
		return
	}

	if e.speechCancel != nil {
		e.speechCancel()
	}
	ctx, cancel := e.newWorkerContext()
	e.speechCancel = cancel

	e.bus.Emit(signals.New(signals.TTSSpeakingStarted, map[string]any{"text": a.Text}))
	voice := e.activeVoice()

	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		defer e.Enqueue(events.NewSpeechFinished(events.WithSource("speech worker")))

		run := panicSafeNamedWorker("speech playback", func(ctx context.Context) error {
			return e.speak(ctx, a.Text, voice)
		})
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
			_, span := tracer.Start(ctx, "speak sentence")
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			logger.Warn("speech playback failed", "error", err)
		}

		e.bus.Emit(signals.New(signals.TTSSpeakingEnded, nil))
	}()
}

// speak synthesizes text and forwards the audio to the playback device.
func (e *Engine) speak(ctx context.Context, text, voice string) error {
	opts := []texttospeech.SpeechOption{
		texttospeech.WithSpeechAudioCallback(func(chunk []byte) {
			if e.audioDevice == nil {
				return
			}
			if err := e.audioDevice.SendAudio(chunk); err != nil {
				logger.Warn("failed to forward synthesized audio", "error", err)
			}
		}),
	}
	if voice != "" {
		opts = append(opts, texttospeech.WithVoice(voice))
	}

	return e.synthesizer.Speak(ctx, text, opts...)
}
