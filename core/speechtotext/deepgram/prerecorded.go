package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/voxloop/duplex-core/core/audio"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

// TranscribeBuffer runs turn-final transcription of a complete audio buffer
// through the prerecorded endpoint. Unlike the live stream this is a single
// request/response call; the engine's turn worker uses it to produce the
// final transcript before resetting the turn.
func (s *TranscriptionClient) TranscribeBuffer(ctx context.Context, buffer []byte, encodingInfo audio.EncodingInfo) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe buffer")
	defer span.End()
	span.SetAttributes(attribute.Int("request.audio_bytes", len(buffer)))

	params, err := listenParams(encodingInfo)
	if err != nil {
		return "", fmt.Errorf("invalid encoding: %w", err)
	}

	listenURL, _ := url.Parse("https://api.deepgram.com/v1/listen")
	listenURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", listenURL.String(), bytes.NewReader(buffer))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Authorization", "Token "+s.apiKey)

	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		return "", fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}

	var parsed struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}

	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}

	return strings.TrimSpace(parsed.Results.Channels[0].Alternatives[0].Transcript), nil
}
