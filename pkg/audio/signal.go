package audio

import (
	"fmt"

	"github.com/grexie/audioloss/pkg/ops"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const (
	AttrAudioData = "audio_data"
	AttrMagnitude = "magnitude"
)

type melKey struct {
	params STFTParams
	nMels  int
	fmin   float64
	fmax   float64
}

// Signal is a batch of waveforms living in an expression graph, shaped
// (batch, channels, samples). Spectral views are built on demand and cached
// per parameter set, so a Signal must not be shared between goroutines.
type Signal struct {
	Waveform   *gorgonia.Node
	SampleRate int
	STFTParams STFTParams

	spectra map[STFTParams]*gorgonia.Node
	mels    map[melKey]*gorgonia.Node
}

func NewSignal(waveform *gorgonia.Node, sampleRate int) (*Signal, error) {
	if waveform == nil {
		return nil, fmt.Errorf("waveform node is nil")
	}
	if waveform.Dims() != 3 {
		return nil, fmt.Errorf("waveform must be shaped (batch, channels, samples), got %v", waveform.Shape())
	}
	if waveform.Dtype() != tensor.Float64 {
		return nil, fmt.Errorf("waveform must be %v, got %v", tensor.Float64, waveform.Dtype())
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	return &Signal{
		Waveform:   waveform,
		SampleRate: sampleRate,
		STFTParams: DefaultSTFTParams(sampleRate),
	}, nil
}

// FromData binds batch*channels*samples values to a new graph input.
func FromData(g *gorgonia.ExprGraph, name string, sampleRate, batch, channels int, data []float64) (*Signal, error) {
	if batch <= 0 || channels <= 0 || len(data) == 0 || len(data)%(batch*channels) != 0 {
		return nil, fmt.Errorf("cannot shape %d values into %d batches of %d channels", len(data), batch, channels)
	}
	samples := len(data) / (batch * channels)

	waveform := gorgonia.NewTensor(g, tensor.Float64, 3,
		gorgonia.WithShape(batch, channels, samples),
		gorgonia.WithName(name),
		gorgonia.WithValue(tensor.New(tensor.WithShape(batch, channels, samples), tensor.WithBacking(data))))

	return NewSignal(waveform, sampleRate)
}

func (s *Signal) Batch() int    { return s.Waveform.Shape()[0] }
func (s *Signal) Channels() int { return s.Waveform.Shape()[1] }
func (s *Signal) Samples() int  { return s.Waveform.Shape()[2] }

// Attribute returns a named view of the signal.
func (s *Signal) Attribute(name string) (*gorgonia.Node, error) {
	switch name {
	case AttrAudioData:
		return s.Waveform, nil
	case AttrMagnitude:
		return s.Magnitude(s.STFTParams)
	default:
		return nil, fmt.Errorf("signal has no attribute %q", name)
	}
}

// Detach returns a signal with the same waveform value through which no
// gradient flows back.
func (s *Signal) Detach() (*Signal, error) {
	waveform, err := ops.StopGradient(s.Waveform)
	if err != nil {
		return nil, fmt.Errorf("failed to detach waveform: %w", err)
	}
	return &Signal{
		Waveform:   waveform,
		SampleRate: s.SampleRate,
		STFTParams: s.STFTParams,
	}, nil
}

// Magnitude returns the STFT magnitude, shaped (batch, channels, bins, frames).
func (s *Signal) Magnitude(p STFTParams) (*gorgonia.Node, error) {
	flat, err := s.spectrum(p)
	if err != nil {
		return nil, err
	}
	return ops.Reshape(flat, s.spectralShape(flat))
}

// MelSpectrogram returns the mel-scaled magnitude, shaped (batch, channels,
// nMels, frames). A non-positive fmax selects the Nyquist frequency.
func (s *Signal) MelSpectrogram(nMels int, fmin, fmax float64, p STFTParams) (*gorgonia.Node, error) {
	key := melKey{params: p, nMels: nMels, fmin: fmin, fmax: fmax}
	if mel, ok := s.mels[key]; ok {
		return mel, nil
	}

	flat, err := s.spectrum(p)
	if err != nil {
		return nil, err
	}

	mel, err := melProject(flat, s.SampleRate, p, nMels, fmin, fmax)
	if err != nil {
		return nil, err
	}
	if mel, err = ops.Reshape(mel, s.spectralShape(mel)); err != nil {
		return nil, fmt.Errorf("failed to reshape mel spectrogram: %w", err)
	}

	if s.mels == nil {
		s.mels = map[melKey]*gorgonia.Node{}
	}
	s.mels[key] = mel
	return mel, nil
}

// spectrum returns the cached (batch*channels, bins, 1, frames) magnitude.
func (s *Signal) spectrum(p STFTParams) (*gorgonia.Node, error) {
	if mag, ok := s.spectra[p]; ok {
		return mag, nil
	}

	mag, err := stft(s.Waveform, p)
	if err != nil {
		return nil, fmt.Errorf("stft %d/%d: %w", p.WindowLength, p.HopLength, err)
	}

	if s.spectra == nil {
		s.spectra = map[STFTParams]*gorgonia.Node{}
	}
	s.spectra[p] = mag
	return mag, nil
}

func (s *Signal) spectralShape(flat *gorgonia.Node) tensor.Shape {
	shape := flat.Shape()
	return tensor.Shape{s.Batch(), s.Channels(), shape[1], shape[3]}
}
