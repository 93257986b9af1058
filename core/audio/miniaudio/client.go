//go:build cgo

// Package miniaudio provides capture and playback through malgo, tagging
// captured frames with an energy-based voice-activity classification.
package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/voxloop/duplex-core/core/audio"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	captureDevice  *malgo.Device
	playbackDevice *malgo.Device

	detector *audio.EnergyDetector

	mu        sync.Mutex
	assembled []byte
	onFrame   func(frame audio.Frame)

	playbackMu  sync.Mutex
	playbackBuf []byte

	closed bool
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("malgo InitContext failed: %w", err)
	}

	client := &Client{
		audioContext: audioCtx,
		detector:     audio.NewEnergyDetector(0),
	}

	if err := client.initCapture(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	if err := client.initPlayback(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return client, nil
}

func (c *Client) initCapture() error {
	encodingInfo := audio.GetDefaultEncodingInfo()
	frameBytes := encodingInfo.FrameBytes(audio.DefaultFrameDurationMs)

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(encodingInfo.SampleRate)
	config.Capture.Format = malgo.FormatS16
	config.Capture.Channels = 1
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency

	device, err := malgo.InitDevice(c.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			if len(pInput) == 0 {
				return
			}
			c.assembleFrames(pInput, frameBytes)
		},
	})
	if err != nil {
		return err
	}

	c.captureDevice = device
	return nil
}

// assembleFrames regroups device-sized chunks into fixed capture-cadence
// frames before classification, so VAD sees a stable window length.
func (c *Client) assembleFrames(chunk []byte, frameBytes int) {
	c.mu.Lock()
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
	onFrame := c.onFrame
	c.mu.Unlock()

	if onFrame == nil {
		return
	}
	for _, frame := range frames {
		onFrame(frame)
	}
}

// Frames streams VAD-tagged frames until ctx is cancelled.
func (c *Client) Frames(ctx context.Context, onFrame func(frame audio.Frame)) error {
	c.mu.Lock()
	if c.captureDevice == nil {
		c.mu.Unlock()
		return fmt.Errorf("capture device not initialized")
	}
	c.onFrame = onFrame
	c.mu.Unlock()

	if err := c.captureDevice.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	<-ctx.Done()

	c.mu.Lock()
	c.onFrame = nil
	c.mu.Unlock()

	if err := c.captureDevice.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (c *Client) initPlayback() error {
	encodingInfo := audio.GetDefaultEncodingInfo()

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(encodingInfo.SampleRate)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(c.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			c.playbackMu.Lock()
			n := copy(pOutput, c.playbackBuf)
			c.playbackBuf = c.playbackBuf[n:]
			c.playbackMu.Unlock()

			for i := n; i < len(pOutput); i++ {
				pOutput[i] = encodingInfo.SilenceValue()
			}
		},
	})
	if err != nil {
		return err
	}

	c.playbackDevice = device
	return device.Start()
}

// SendAudio queues synthesized audio for playback.
func (c *Client) SendAudio(audio []byte) error {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()

	if c.playbackDevice == nil {
		return fmt.Errorf("playback device not initialized")
	}

	c.playbackBuf = append(c.playbackBuf, audio...)
	return nil
}

// FlushPlayback drops any queued-but-unplayed audio. The playback worker
// calls this when an interruption cuts the current utterance.
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

	if c.captureDevice != nil {
		c.captureDevice.Uninit()
		c.captureDevice = nil
	}
	if c.playbackDevice != nil {
		c.playbackDevice.Uninit()
		c.playbackDevice = nil
	}
	if c.audioContext != nil {
		if err := c.audioContext.Uninit(); err != nil {
			return fmt.Errorf("failed to uninit audio context: %w", err)
		}
		c.audioContext.Free()
		c.audioContext = nil
	}

	return nil
}
