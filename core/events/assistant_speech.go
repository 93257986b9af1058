package events

const (
	// KindSentenceReady identifies a generated sentence ready for playback.
	KindSentenceReady Kind = "assistant_speech.sentence_ready"
	// KindSpeechFinished identifies completion of one playback call.
	KindSpeechFinished Kind = "assistant_speech.finished"
)

// SentenceReady carries one sentence produced by the generation worker.
type SentenceReady struct {
	Base
	Text string
}

func (e SentenceReady) String() string { return "sentence ready" }

func NewSentenceReady(text string, opts ...BaseOption) SentenceReady {
	return SentenceReady{Base: NewBase(KindSentenceReady, opts...), Text: text}
}

// SpeechFinished marks that the playback worker finished one sentence.
type SpeechFinished struct{ Base }

func (e SpeechFinished) String() string { return "speech finished" }

func NewSpeechFinished(opts ...BaseOption) SpeechFinished {
	return SpeechFinished{Base: NewBase(KindSpeechFinished, opts...)}
}
