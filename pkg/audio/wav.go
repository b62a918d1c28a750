package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
	"gorgonia.org/gorgonia"
)

// Clip is decoded PCM audio, one slice of samples in [-1, 1] per channel.
type Clip struct {
	Samples    [][]float64
	SampleRate int
}

func (c *Clip) Channels() int { return len(c.Samples) }

func (c *Clip) Len() int {
	if len(c.Samples) == 0 {
		return 0
	}
	return len(c.Samples[0])
}

// Truncate shortens every channel to at most n samples.
func (c *Clip) Truncate(n int) {
	for i := range c.Samples {
		if len(c.Samples[i]) > n {
			c.Samples[i] = c.Samples[i][:n]
		}
	}
}

// Signal binds the clip to g as a single batch item.
func (c *Clip) Signal(g *gorgonia.ExprGraph, name string) (*Signal, error) {
	data := make([]float64, 0, c.Channels()*c.Len())
	for _, ch := range c.Samples {
		data = append(data, ch...)
	}
	return FromData(g, name, c.SampleRate, 1, c.Channels(), data)
}

// ChannelSignal binds the clip to g with every channel as its own batch item,
// shaped (channels, 1, samples).
func (c *Clip) ChannelSignal(g *gorgonia.ExprGraph, name string) (*Signal, error) {
	data := make([]float64, 0, c.Channels()*c.Len())
	for _, ch := range c.Samples {
		data = append(data, ch...)
	}
	return FromData(g, name, c.SampleRate, c.Channels(), 1, data)
}

func LoadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	clip, err := ReadWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return clip, nil
}

func ReadWAV(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read pcm buffer: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("wav file has no channels")
	}

	channels := buf.Format.NumChannels
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	scale := 1 / float64(int64(1)<<(bitDepth-1))

	frames := len(buf.Data) / channels
	clip := &Clip{
		Samples:    make([][]float64, channels),
		SampleRate: buf.Format.SampleRate,
	}
	for c := range clip.Samples {
		clip.Samples[c] = make([]float64, frames)
	}
	for i := 0; i < frames*channels; i++ {
		clip.Samples[i%channels][i/channels] = float64(buf.Data[i]) * scale
	}
	return clip, nil
}
