//go:build cgo

// Package portaudio provides capture and playback over the default
// portaudio devices, tagging captured frames with an energy-based
// voice-activity classification.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/voxloop/duplex-core/core/audio"
)

const defaultBufferSize = 512

type Client struct {
	stream *portaudio.Stream

	in  []int16
	out []int16

	detector *audio.EnergyDetector

	mu        sync.Mutex
	assembled []byte

	playbackMu  sync.Mutex
	playbackBuf []byte

	closed bool
}

func NewClient() (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	client := &Client{
		in:       make([]int16, defaultBufferSize),
		out:      make([]int16, defaultBufferSize),
		detector: audio.NewEnergyDetector(0),
	}

	stream, err := portaudio.OpenDefaultStream(
		1, 1,
		float64(audio.DefaultSampleRate),
		defaultBufferSize,
		client.in, client.out,
	)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open default stream: %w", err)
	}
	client.stream = stream

	return client, nil
}

// Frames streams VAD-tagged frames until ctx is cancelled. Playback of
// queued audio is interleaved on the same duplex stream.
func (c *Client) Frames(ctx context.Context, onFrame func(frame audio.Frame)) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}

	encodingInfo := audio.GetDefaultEncodingInfo()
	frameBytes := encodingInfo.FrameBytes(audio.DefaultFrameDurationMs)

	for ctx.Err() == nil {
		if err := c.stream.Read(); err != nil {
			return fmt.Errorf("failed to read from stream: %w", err)
		}

		buf := new(bytes.Buffer)
		if err := binary.Write(buf, binary.LittleEndian, c.in); err != nil {
			return fmt.Errorf("failed to encode captured audio: %w", err)
		}

		for _, frame := range c.assemble(buf.Bytes(), frameBytes) {
			onFrame(frame)
		}

		c.fillOutput()
		if err := c.stream.Write(); err != nil {
			// Output underflows are routine when nothing is queued.
			continue
		}
	}

	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop stream: %w", err)
	}
	return ctx.Err()
}

func (c *Client) assemble(chunk []byte, frameBytes int) []audio.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.assembled = append(c.assembled, chunk...)

	var frames []audio.Frame
	for len(c.assembled) >= frameBytes {
		frame := make([]byte, frameBytes)
		copy(frame, c.assembled[:frameBytes])
		c.assembled = c.assembled[frameBytes:]
		frames = append(frames, audio.Frame{
			Audio:    frame,
			IsSpeech: c.detector.Classify(frame),
		})
	}
	return frames
}

func (c *Client) fillOutput() {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()

	for i := range c.out {
		if len(c.playbackBuf) >= 2 {
			c.out[i] = int16(binary.LittleEndian.Uint16(c.playbackBuf[:2]))
			c.playbackBuf = c.playbackBuf[2:]
		} else {
			c.out[i] = 0
		}
	}
}

// SendAudio queues synthesized audio for playback.
func (c *Client) SendAudio(audio []byte) error {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()

	c.playbackBuf = append(c.playbackBuf, audio...)
	return nil
}

// FlushPlayback drops any queued-but-unplayed audio.
func (c *Client) FlushPlayback() {
	c.playbackMu.Lock()
	c.playbackBuf = nil
	c.playbackMu.Unlock()
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate portaudio: %w", err)
	}
	return nil
}
