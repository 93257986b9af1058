package events

const (
	// KindSpeechStart identifies the start of user speech activity.
	KindSpeechStart Kind = "user_input.speech_start"
	// KindSpeechStop identifies the end of user speech activity.
	KindSpeechStop Kind = "user_input.speech_stop"
	// KindAudioFrame identifies a raw capture frame with its VAD tag.
	KindAudioFrame Kind = "user_input.audio_frame"
	// KindPartialTranscript identifies a mutable interim transcript snapshot.
	KindPartialTranscript Kind = "user_input.transcript_partial"
)

// SpeechStart marks when voice activity begins.
type SpeechStart struct{ Base }

func (e SpeechStart) String() string { return "speech start" }

func NewSpeechStart(opts ...BaseOption) SpeechStart {
	return SpeechStart{Base: NewBase(KindSpeechStart, opts...)}
}

// SpeechStop marks when voice activity ends.
type SpeechStop struct{ Base }

func (e SpeechStop) String() string { return "speech stop" }

func NewSpeechStop(opts ...BaseOption) SpeechStop {
	return SpeechStop{Base: NewBase(KindSpeechStop, opts...)}
}

// AudioFrame carries one capture-cadence chunk of input audio.
type AudioFrame struct {
	Base
	Audio    []byte
	IsSpeech bool
}

func (e AudioFrame) String() string { return "audio frame" }

func NewAudioFrame(audio []byte, isSpeech bool, opts ...BaseOption) AudioFrame {
	return AudioFrame{Base: NewBase(KindAudioFrame, opts...), Audio: audio, IsSpeech: isSpeech}
}

// PartialTranscript carries the current interim transcript snapshot.
type PartialTranscript struct {
	Base
	Text string
}

func (e PartialTranscript) String() string { return e.Text + "..." }

func NewPartialTranscript(text string, opts ...BaseOption) PartialTranscript {
	return PartialTranscript{Base: NewBase(KindPartialTranscript, opts...), Text: text}
}
