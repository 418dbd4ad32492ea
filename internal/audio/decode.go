package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// mp3Channels is the channel count go-mp3 always decodes to.
const mp3Channels = 2

// Decode reads a WAV or MP3 stream, chosen by the RIFF magic.
func Decode(data []byte) (*Buffer, error) {
	if bytes.HasPrefix(data, []byte("RIFF")) {
		return DecodeWAV(data)
	}
	return DecodeMP3(data)
}

// DecodeMP3 decodes an MP3 stream into a stereo Buffer at the stream's rate.
func DecodeMP3(data []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("audio: decode mp3: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("audio: decode mp3: %w", err)
	}
	buf := pcm16ToBuffer(pcm, mp3Channels, dec.SampleRate())
	if buf.Len() == 0 {
		return nil, ErrEmptyAudio
	}
	return buf, nil
}

// pcm16ToBuffer converts interleaved little-endian int16 frames.
func pcm16ToBuffer(pcm []byte, channels, sampleRate int) *Buffer {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		if v < 0 {
			samples[i] = float32(v) / pcmNegativeMax
		} else {
			samples[i] = float32(v) / pcmPositiveMax
		}
	}
	return NewBufferInterleaved(samples, channels, sampleRate)
}
