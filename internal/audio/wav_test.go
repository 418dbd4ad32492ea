package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/go-audio/wav"
)

func TestEncodeWAVHeader(t *testing.T) {
	tests := []struct {
		name       string
		channels   int
		sampleRate int
		frames     int
	}{
		{name: "mono_44100", channels: 1, sampleRate: 44100, frames: 441},
		{name: "mono_24000", channels: 1, sampleRate: 24000, frames: 100},
		{name: "stereo_48000", channels: 2, sampleRate: 48000, frames: 480},
		{name: "stereo_8000", channels: 2, sampleRate: 8000, frames: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &Buffer{Channels: make([][]float32, tt.channels), SampleRate: tt.sampleRate}
			for c := range buf.Channels {
				buf.Channels[c] = make([]float32, tt.frames)
			}

			data, err := EncodeWAV(buf)
			if err != nil {
				t.Fatalf("EncodeWAV() error = %v", err)
			}

			dataSize := tt.frames * tt.channels * 2
			if len(data) != 44+dataSize {
				t.Fatalf("len = %d, want %d", len(data), 44+dataSize)
			}
			le := binary.LittleEndian
			checks := []struct {
				field string
				got   any
				want  any
			}{
				{"riff id", string(data[0:4]), "RIFF"},
				{"riff size", le.Uint32(data[4:8]), uint32(36 + dataSize)},
				{"wave id", string(data[8:12]), "WAVE"},
				{"fmt id", string(data[12:16]), "fmt "},
				{"fmt size", le.Uint32(data[16:20]), uint32(16)},
				{"format tag", le.Uint16(data[20:22]), uint16(1)},
				{"channels", le.Uint16(data[22:24]), uint16(tt.channels)},
				{"sample rate", le.Uint32(data[24:28]), uint32(tt.sampleRate)},
				{"byte rate", le.Uint32(data[28:32]), uint32(tt.sampleRate * tt.channels * 2)},
				{"block align", le.Uint16(data[32:34]), uint16(tt.channels * 2)},
				{"bits per sample", le.Uint16(data[34:36]), uint16(16)},
				{"data id", string(data[36:40]), "data"},
				{"data size", le.Uint32(data[40:44]), uint32(dataSize)},
			}
			for _, c := range checks {
				if c.got != c.want {
					t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
				}
			}
		})
	}
}

func TestEncodeWAVQuantization(t *testing.T) {
	buf := &Buffer{
		Channels:   [][]float32{{-1.0, 1.0, 0, -2.5, 3.0, 0.5, -0.5}},
		SampleRate: 16000,
	}
	data, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}

	want := []int16{-32768, 32767, 0, -32768, 32767, 16383, -16384}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(data[44+i*2:]))
		if got != w {
			t.Errorf("sample[%d] = %d, want %d", i, got, w)
		}
	}
}

func TestEncodeWAVInterleavesChannels(t *testing.T) {
	buf := &Buffer{
		Channels:   [][]float32{{1, 0}, {-1, 0.5}},
		SampleRate: 8000,
	}
	data, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	want := []int16{32767, -32768, 0, 16383}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(data[44+i*2:]))
		if got != w {
			t.Errorf("frame value[%d] = %d, want %d", i, got, w)
		}
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	tests := []struct {
		name string
		buf  *Buffer
	}{
		{name: "nil", buf: nil},
		{name: "no_channels", buf: &Buffer{SampleRate: 44100}},
		{name: "zero_length", buf: &Buffer{Channels: [][]float32{{}}, SampleRate: 44100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeWAV(tt.buf)
			if !errors.Is(err, ErrEmptyAudio) {
				t.Errorf("EncodeWAV() error = %v, want ErrEmptyAudio", err)
			}
		})
	}
}

func TestWAVRoundTrip(t *testing.T) {
	for _, channels := range []int{1, 2} {
		for _, rate := range []int{22050, 44100, 48000} {
			src := &Buffer{Channels: make([][]float32, channels), SampleRate: rate}
			for c := range src.Channels {
				src.Channels[c] = make([]float32, 1000)
				for i := range src.Channels[c] {
					src.Channels[c][i] = float32(math.Sin(float64(i+c*7) * 0.05))
				}
			}

			data, err := EncodeWAV(src)
			if err != nil {
				t.Fatalf("EncodeWAV() error = %v", err)
			}
			got, err := DecodeWAV(data)
			if err != nil {
				t.Fatalf("DecodeWAV() error = %v", err)
			}

			if got.SampleRate != rate || got.NumChannels() != channels || got.Len() != src.Len() {
				t.Fatalf("decoded %dHz %dch %d frames, want %dHz %dch %d frames",
					got.SampleRate, got.NumChannels(), got.Len(), rate, channels, src.Len())
			}
			const tolerance = 1.0/32768 + 1e-6
			for c := range src.Channels {
				for i, want := range src.Channels[c] {
					if d := math.Abs(float64(got.Channels[c][i] - want)); d > tolerance {
						t.Fatalf("%dch %dHz sample[%d][%d] off by %g", channels, rate, c, i, d)
					}
				}
			}
		}
	}
}

func TestEncodeWAVReadableByGoAudio(t *testing.T) {
	buf := &Buffer{Channels: [][]float32{make([]float32, 2400)}, SampleRate: 24000}
	data, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer() error = %v", err)
	}
	if len(pcm.Data) != 2400 {
		t.Errorf("decoded %d samples, want 2400", len(pcm.Data))
	}
	if dec.SampleRate != 24000 {
		t.Errorf("SampleRate = %d, want 24000", dec.SampleRate)
	}
}

func TestDecodeWAVGarbage(t *testing.T) {
	if _, err := DecodeWAV([]byte("definitely not a wav file")); err == nil {
		t.Error("DecodeWAV() should fail on garbage input")
	}
}
