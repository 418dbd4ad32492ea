// Package waveform reduces audio to a per-column min/max envelope and
// rasterizes it, both for the live preview and for the persisted thumbnail.
package waveform

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"strconv"
	"strings"

	"golang.org/x/image/vector"
)

// Default thumbnail geometry and stroke.
const (
	DefaultWidth     = 1000
	DefaultHeight    = 50
	DefaultColor     = "#007bff"
	DefaultLineWidth = 2.0
	jpegQuality      = 92
)

// Column is the amplitude range of one pixel column.
type Column struct {
	Min, Max float32
}

// Envelope is a fixed-width min/max reduction of a sample sequence.
type Envelope []Column

// Options controls rendering.
type Options struct {
	Width     int
	Height    int
	Color     string // #rrggbb
	LineWidth float64
}

// DefaultOptions returns the 1000x50 blue thumbnail settings.
func DefaultOptions() Options {
	return Options{
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		Color:     DefaultColor,
		LineWidth: DefaultLineWidth,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.Height <= 0 {
		o.Height = d.Height
	}
	if o.Color == "" {
		o.Color = d.Color
	}
	if o.LineWidth <= 0 {
		o.LineWidth = d.LineWidth
	}
	return o
}

// Reduce splits samples into width slices of ceil(len/width) samples and
// returns each slice's min and max. Columns past the end of the data are
// omitted, so the result may be shorter than width.
func Reduce(samples []float32, width int) Envelope {
	if len(samples) == 0 || width <= 0 {
		return nil
	}
	step := (len(samples) + width - 1) / width
	env := make(Envelope, 0, width)
	for i := 0; i < width; i++ {
		start := i * step
		if start >= len(samples) {
			break
		}
		end := min(start+step, len(samples))
		col := Column{Min: samples[start], Max: samples[start]}
		for _, s := range samples[start+1 : end] {
			if s < col.Min {
				col.Min = s
			}
			if s > col.Max {
				col.Max = s
			}
		}
		env = append(env, col)
	}
	return env
}

// Rasterize draws env on a white background. Column x spans from
// amp - amp*max to amp - amp*min, amp being half the height, widened by the
// stroke width.
func Rasterize(env Envelope, opts Options) (*image.RGBA, error) {
	opts = opts.withDefaults()
	stroke, err := ParseHexColor(opts.Color)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	if len(env) == 0 {
		return img, nil
	}

	amp := float32(opts.Height) / 2
	half := float32(opts.LineWidth) / 2
	r := vector.NewRasterizer(opts.Width, opts.Height)
	for x, col := range env {
		if x >= opts.Width {
			break
		}
		top := amp - amp*col.Max - half
		bottom := amp - amp*col.Min + half
		left := float32(x) - half + 0.5
		right := float32(x) + half + 0.5
		r.MoveTo(left, top)
		r.LineTo(right, top)
		r.LineTo(right, bottom)
		r.LineTo(left, bottom)
		r.ClosePath()
	}
	r.Draw(img, img.Bounds(), image.NewUniform(stroke), image.Point{})
	return img, nil
}

// Render reduces samples to opts.Width columns and encodes the result as JPEG.
// No samples renders a blank background.
func Render(samples []float32, opts Options) ([]byte, error) {
	opts = opts.withDefaults()
	img, err := Rasterize(Reduce(samples, opts.Width), opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("waveform: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseHexColor parses #rgb or #rrggbb.
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("waveform: invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("waveform: invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
