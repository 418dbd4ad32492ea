// Package audio holds the in-memory audio representation used by the capture
// pipeline, the PCM16 WAV codec, the offline resampler, and the malgo-backed
// microphone.
package audio

import (
	"errors"
	"time"
)

var (
	// ErrEmptyAudio is returned when an absent or zero-length buffer is encoded.
	ErrEmptyAudio = errors.New("audio: empty audio")
	// ErrInvalidBuffer is returned when an absent or zero-length buffer is resampled.
	ErrInvalidBuffer = errors.New("audio: invalid buffer: no audio data available")
)

// Buffer is a multi-channel block of float samples in [-1, 1].
// Pipeline stages never modify a Buffer they receive; transforms return a new one.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// NewBufferInterleaved splits interleaved frames into per-channel slices.
// A trailing partial frame is dropped.
func NewBufferInterleaved(samples []float32, channels, sampleRate int) *Buffer {
	if channels <= 0 {
		channels = 1
	}
	frames := len(samples) / channels
	b := &Buffer{
		Channels:   make([][]float32, channels),
		SampleRate: sampleRate,
	}
	for c := range b.Channels {
		b.Channels[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			b.Channels[c][i] = samples[i*channels+c]
		}
	}
	return b
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	if b == nil {
		return 0
	}
	return len(b.Channels)
}

// Len returns the number of frames (samples per channel).
func (b *Buffer) Len() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Seconds returns the buffer length in seconds.
func (b *Buffer) Seconds() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Len()) / float64(b.SampleRate)
}

// Duration returns the buffer length as a time.Duration.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.Seconds() * float64(time.Second))
}

// Mono averages all channels into one slice. A mono buffer returns a copy.
func (b *Buffer) Mono() []float32 {
	n := b.Len()
	out := make([]float32, n)
	if n == 0 {
		return out
	}
	if len(b.Channels) == 1 {
		copy(out, b.Channels[0])
		return out
	}
	scale := 1 / float32(len(b.Channels))
	for _, ch := range b.Channels {
		for i, s := range ch {
			out[i] += s * scale
		}
	}
	return out
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	c := &Buffer{
		Channels:   make([][]float32, len(b.Channels)),
		SampleRate: b.SampleRate,
	}
	for i, ch := range b.Channels {
		c.Channels[i] = append([]float32(nil), ch...)
	}
	return c
}
