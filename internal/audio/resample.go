package audio

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/window"
)

const (
	// sincZeroCrossings is the one-sided kernel width in zero crossings of the
	// lowpass sinc.
	sincZeroCrossings = 16
	// sincTableHalf is the half-length of the precomputed window table.
	sincTableHalf = 4096
)

// Resample renders buf at targetRate using a Blackman-windowed sinc lowpass
// interpolator. The output length is ceil(duration * targetRate). Resampling
// to the buffer's own rate returns an equivalent copy.
func Resample(buf *Buffer, targetRate int) (*Buffer, error) {
	if buf == nil || buf.Len() == 0 || buf.SampleRate <= 0 {
		return nil, ErrInvalidBuffer
	}
	if targetRate <= 0 {
		return nil, fmt.Errorf("audio: resample: target rate must be positive, got %d", targetRate)
	}
	if targetRate == buf.SampleRate {
		return buf.Clone(), nil
	}

	n := ResampledLength(buf.Len(), buf.SampleRate, targetRate)
	k := newSincKernel(buf.SampleRate, targetRate)
	out := &Buffer{
		Channels:   make([][]float32, buf.NumChannels()),
		SampleRate: targetRate,
	}
	for c, in := range buf.Channels {
		out.Channels[c] = k.render(in, n)
	}
	return out, nil
}

// ResampledLength returns ceil(frames / srcRate * dstRate) without floating
// point rounding error.
func ResampledLength(frames, srcRate, dstRate int) int {
	num := int64(frames) * int64(dstRate)
	return int((num + int64(srcRate) - 1) / int64(srcRate))
}

type sincKernel struct {
	step      float64 // input samples advanced per output sample
	cutoff    float64 // lowpass cutoff relative to the input Nyquist
	halfWidth float64 // kernel half-width in input samples
	window    []float64
}

func newSincKernel(srcRate, dstRate int) *sincKernel {
	cutoff := math.Min(1, float64(dstRate)/float64(srcRate))
	return &sincKernel{
		step:      float64(srcRate) / float64(dstRate),
		cutoff:    cutoff,
		halfWidth: sincZeroCrossings / cutoff,
		window:    window.Blackman(2*sincTableHalf + 1),
	}
}

func (k *sincKernel) weight(d float64) float64 {
	if math.Abs(d) >= k.halfWidth {
		return 0
	}
	idx := int(math.Round((d/k.halfWidth + 1) * sincTableHalf))
	return k.cutoff * sinc(k.cutoff*d) * k.window[idx]
}

func (k *sincKernel) render(in []float32, n int) []float32 {
	out := make([]float32, n)
	last := len(in) - 1
	for i := range out {
		t := float64(i) * k.step
		lo := int(math.Ceil(t - k.halfWidth))
		hi := int(math.Floor(t + k.halfWidth))
		if lo < 0 {
			lo = 0
		}
		if hi > last {
			hi = last
		}
		var acc float64
		for j := lo; j <= hi; j++ {
			acc += float64(in[j]) * k.weight(t-float64(j))
		}
		out[i] = float32(acc)
	}
	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}
