package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavHeaderSize  = 44
	wavBitDepth    = 16
	wavFormatPCM   = 1
	pcmNegativeMax = 32768
	pcmPositiveMax = 32767
)

// EncodeWAV encodes buf as a canonical 44-byte-header PCM16 WAV stream with
// interleaved little-endian frames.
func EncodeWAV(buf *Buffer) ([]byte, error) {
	if buf == nil || buf.Len() == 0 || buf.NumChannels() == 0 {
		return nil, ErrEmptyAudio
	}
	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: encode wav: sample rate must be positive, got %d", buf.SampleRate)
	}

	channels := buf.NumChannels()
	frames := buf.Len()
	data := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			data[i*channels+c] = quantize(buf.Channels[c][i])
		}
	}

	ws := &seekBuffer{buf: make([]byte, 0, wavHeaderSize+len(data)*2)}
	enc := wav.NewEncoder(ws, buf.SampleRate, wavBitDepth, channels, wavFormatPCM)
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(ib); err != nil {
		return nil, fmt.Errorf("audio: encode wav: write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: encode wav: finalize header: %w", err)
	}
	return ws.Bytes(), nil
}

// quantize clamps s to [-1, 1] and scales negatives by 32768 and
// non-negatives by 32767, truncating toward zero.
func quantize(s float32) int {
	v := float64(s)
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v < 0 {
		return int(v * pcmNegativeMax)
	}
	return int(v * pcmPositiveMax)
}

// DecodeWAV reads a PCM16 WAV stream back into a Buffer.
func DecodeWAV(data []byte) (*Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("audio: decode wav: not a valid wav stream")
	}
	ib, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode wav: %w", err)
	}
	if dec.BitDepth != wavBitDepth {
		return nil, fmt.Errorf("audio: decode wav: unsupported bit depth %d", dec.BitDepth)
	}

	channels := ib.Format.NumChannels
	samples := make([]float32, len(ib.Data))
	for i, v := range ib.Data {
		if v < 0 {
			samples[i] = float32(v) / pcmNegativeMax
		} else {
			samples[i] = float32(v) / pcmPositiveMax
		}
	}
	return NewBufferInterleaved(samples, channels, ib.Format.SampleRate), nil
}

// seekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		if end > cap(s.buf) {
			grown := make([]byte, len(s.buf), 2*end)
			copy(grown, s.buf)
			s.buf = grown
		}
		s.buf = s.buf[:end]
	}
	copy(s.buf[s.pos:], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(s.pos) + offset
	case io.SeekEnd:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("seek: negative position")
	}
	s.pos = int(abs)
	return abs, nil
}

func (s *seekBuffer) Bytes() []byte { return s.buf }
