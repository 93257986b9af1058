// Package texttospeech defines the speech synthesis contract consumed by the
// engine's playback worker.
package texttospeech

import "github.com/voxloop/duplex-core/core/audio"

type SpeechOptions struct {
	// SpeechAudioCallback receives synthesized audio chunks as they arrive.
	SpeechAudioCallback func(audio []byte)

	Voice        string
	EncodingInfo audio.EncodingInfo
}

type SpeechOption func(*SpeechOptions)

func WithSpeechAudioCallback(callback func([]byte)) SpeechOption {
	return func(o *SpeechOptions) { o.SpeechAudioCallback = callback }
}

func WithVoice(voice string) SpeechOption {
	return func(o *SpeechOptions) { o.Voice = voice }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SpeechOption {
	return func(o *SpeechOptions) {
		if encodingInfo.IsZero() {
			return
		}

		o.EncodingInfo = encodingInfo
	}
}
