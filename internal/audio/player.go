package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// Speaker plays buffers on the default output device.
type Speaker struct {
	ctx *malgo.AllocatedContext
	mu  sync.Mutex // one playback at a time
}

// NewSpeaker initializes the audio backend. Call Close() when done.
func NewSpeaker() (*Speaker, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	return &Speaker{ctx: ctx}, nil
}

// Play blocks until buf has been played or ctx is cancelled.
func (s *Speaker) Play(ctx context.Context, buf *Buffer) error {
	if buf == nil || buf.Len() == 0 {
		return ErrEmptyAudio
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	channels := buf.NumChannels()
	deviceCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceCfg.Playback.Format = malgo.FormatF32
	deviceCfg.Playback.Channels = uint32(channels)
	deviceCfg.SampleRate = uint32(buf.SampleRate)

	done := make(chan struct{})
	var once sync.Once
	pos := 0
	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			n := fillFloat32(pOutput, buf, pos, int(frameCount))
			pos += n
			if pos >= buf.Len() {
				once.Do(func() { close(done) })
			}
		},
	}

	device, err := malgo.InitDevice(s.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return fmt.Errorf("initializing playback device: %w", err)
	}
	defer device.Uninit()
	if err := device.Start(); err != nil {
		return fmt.Errorf("starting playback device: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the audio context.
func (s *Speaker) Close() error {
	if s.ctx != nil {
		if err := s.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		s.ctx.Free()
		s.ctx = nil
	}
	return nil
}

// fillFloat32 writes up to frames interleaved frames of buf starting at
// offset into out as little-endian float32, zero-filling past the end.
// It returns the number of source frames consumed.
func fillFloat32(out []byte, buf *Buffer, offset, frames int) int {
	channels := buf.NumChannels()
	n := 0
	for i := 0; i < frames; i++ {
		src := offset + i
		for c := 0; c < channels; c++ {
			at := (i*channels + c) * 4
			if at+4 > len(out) {
				return n
			}
			var v float32
			if src < buf.Len() {
				v = buf.Channels[c][src]
			}
			binary.LittleEndian.PutUint32(out[at:at+4], math.Float32bits(v))
		}
		if src < buf.Len() {
			n++
		}
	}
	return n
}
