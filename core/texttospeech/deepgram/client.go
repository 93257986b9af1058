// Package deepgram implements the texttospeech contract over Deepgram's
// speak websocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/voxloop/duplex-core/core/audio"
	"github.com/voxloop/duplex-core/core/texttospeech"
)

const defaultVoice = "aura-2-thalia-en"

// cancelPollInterval bounds how stale an unnoticed cancellation can get
// while a synthesis call is in flight.
const cancelPollInterval = 100 * time.Millisecond

type SpeechClient struct {
	apiKey string
	voice  string
}

type SpeechClientOption func(*SpeechClient)

func WithVoice(voice string) SpeechClientOption {
	return func(c *SpeechClient) { c.voice = voice }
}

func NewSpeechClient(opts ...SpeechClientOption) (*SpeechClient, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	client := &SpeechClient{apiKey: apiKey, voice: defaultVoice}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Speak synthesizes one utterance, delivering audio chunks through the
// configured callback, and blocks until synthesis completes or ctx is
// cancelled. Cancellation is observed within cancelPollInterval.
func (c *SpeechClient) Speak(ctx context.Context, text string, opts ...texttospeech.SpeechOption) error {
	options := texttospeech.SpeechOptions{
		SpeechAudioCallback: func([]byte) {},
		Voice:               c.voice,
		EncodingInfo:        audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	conn, err := c.connectWebsocket(options)
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: "Speak", Text: text}); err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}
	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: "Flush"}); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.readSpeech(conn, options) }()

	ticker := time.NewTicker(cancelPollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			if ctx.Err() != nil {
				// Closing the connection unblocks the reader; the abort is
				// reported as the context error, not a read failure.
				conn.Close()
				<-done
				return ctx.Err()
			}
		}
	}
}

func (c *SpeechClient) readSpeech(conn *websocket.Conn, options texttospeech.SpeechOptions) error {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read speech message: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			options.SpeechAudioCallback(msg)
		case websocket.TextMessage:
			var parsedMsg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				continue
			}
			if parsedMsg.Type == "Flushed" {
				return nil
			}
		}
	}
}

func (c *SpeechClient) connectWebsocket(options texttospeech.SpeechOptions) (*websocket.Conn, error) {
	urlValues := url.Values{}
	urlValues.Set("encoding", options.EncodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	urlValues.Set("model", options.Voice)
	urlValues.Set("container", "none")

	conn, _, err := websocket.DefaultDialer.Dial(
		(&url.URL{
			Scheme: "wss",
			Host:   "api.deepgram.com", Path: "/v1/speak",
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}
