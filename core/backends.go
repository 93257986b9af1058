package orchestration

import (
	"context"

	"github.com/voxloop/duplex-core/core/audio"
	"github.com/voxloop/duplex-core/core/llms"
	"github.com/voxloop/duplex-core/core/speechtotext"
	"github.com/voxloop/duplex-core/core/texttospeech"
)

// AudioDevice is a duplex capture/playback endpoint. Capture frames arrive
// VAD-tagged at a fixed cadence; playback is fire-and-forget with a flush
// escape hatch for interruptions.
type AudioDevice interface {
	Frames(ctx context.Context, onFrame func(frame audio.Frame)) error
	SendAudio(audio []byte) error
	FlushPlayback()
	Close() error
}

// Transcriber is the speech-to-text backend: a live session delivering
// partial transcripts through its callbacks plus a turn-final buffer
// transcription.
type Transcriber interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
	TranscribeBuffer(ctx context.Context, buffer []byte, encodingInfo audio.EncodingInfo) (string, error)
	Close(ctx context.Context) error
}

// LLM produces a token stream for a prompt; the turn worker consumes it
// entirely within its own goroutine.
type LLM interface {
	PromptWithStream(ctx context.Context, opts ...llms.PromptOption) llms.Stream
}

// SpeechSynthesizer turns one sentence into audio. Speak blocks until the
// utterance is delivered and must honor ctx cancellation promptly.
type SpeechSynthesizer interface {
	Speak(ctx context.Context, text string, opts ...texttospeech.SpeechOption) error
}
