package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// ErrPermissionDenied is returned when the capture device cannot be opened,
// which on desktop systems is almost always a denied microphone permission.
var ErrPermissionDenied = errors.New("audio: microphone access denied")

// Microphone opens float32 capture streams on the default input device.
type Microphone struct {
	ctx        *malgo.AllocatedContext
	sampleRate uint32
	channels   uint32
}

// NewMicrophone initializes the audio backend. Call Close() when done.
func NewMicrophone(sampleRate, channels uint32) (*Microphone, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	return &Microphone{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// SampleRate returns the requested capture rate in Hz.
func (m *Microphone) SampleRate() int { return int(m.sampleRate) }

// Channels returns the requested capture channel count.
func (m *Microphone) Channels() int { return int(m.channels) }

// Open starts a capture stream. onData receives interleaved float32 frames
// from the device thread; the slice is owned by the callee.
func (m *Microphone) Open(onData func(samples []float32)) (io.Closer, error) {
	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = m.channels
	deviceCfg.SampleRate = m.sampleRate

	channels := m.channels
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pSample []byte, frameCount uint32) {
			onData(bytesToFloat32(pSample, frameCount*channels))
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: initializing capture device: %v", ErrPermissionDenied, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("%w: starting capture device: %v", ErrPermissionDenied, err)
	}
	return &captureStream{device: device}, nil
}

// Close releases the audio context.
func (m *Microphone) Close() error {
	if m.ctx != nil {
		if err := m.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		m.ctx.Free()
		m.ctx = nil
	}
	return nil
}

type captureStream struct {
	once   sync.Once
	device *malgo.Device
}

func (s *captureStream) Close() error {
	s.once.Do(func() {
		s.device.Uninit()
	})
	return nil
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
