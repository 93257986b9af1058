package deepgram

import (
	"testing"

	"github.com/voxloop/duplex-core/core/audio"
)

func TestListenParamsCarriesTheSharedDefaults(t *testing.T) {
	params, err := listenParams(audio.GetDefaultEncodingInfo())
	if err != nil {
		t.Fatalf("expected the default encoding to be accepted, got %v", err)
	}

	want := map[string]string{
		"encoding":     "linear16",
		"sample_rate":  "16000",
		"channels":     "1",
		"model":        "nova-3",
		"language":     "en-US",
		"smart_format": "true",
	}
	for key, value := range want {
		if got := params.Get(key); got != value {
			t.Fatalf("expected %s=%q, got %q", key, value, got)
		}
	}
}

func TestListenParamsRejectsUnservableEncodings(t *testing.T) {
	cases := []struct {
		name     string
		encoding audio.EncodingInfo
	}{
		{
			name:     "unsupported sample rate",
			encoding: audio.EncodingInfo{SampleRate: 44100, Format: audio.EncodingLinear16},
		},
		{
			name:     "mulaw above 8kHz",
			encoding: audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingMulaw},
		},
		{
			name:     "alaw above 8kHz",
			encoding: audio.EncodingInfo{SampleRate: 48000, Format: audio.EncodingALaw},
		},
		{
			name:     "unknown format",
			encoding: audio.EncodingInfo{SampleRate: 16000},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := listenParams(tc.encoding); err == nil {
				t.Fatalf("expected %s to be rejected", tc.name)
			}
		})
	}
}

func TestListenParamsAllowsTelephonyEncodingsAt8kHz(t *testing.T) {
	for _, format := range []audio.EncodingInfo{
		{SampleRate: 8000, Format: audio.EncodingMulaw},
		{SampleRate: 8000, Format: audio.EncodingALaw},
	} {
		params, err := listenParams(format)
		if err != nil {
			t.Fatalf("expected %s at 8kHz to be accepted, got %v", format.Format.Name(), err)
		}
		if got := params.Get("sample_rate"); got != "8000" {
			t.Fatalf("expected sample_rate=8000, got %q", got)
		}
	}
}
