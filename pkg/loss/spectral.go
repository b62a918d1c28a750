package loss

import (
	"fmt"

	"github.com/grexie/audioloss/pkg/audio"
	"github.com/grexie/audioloss/pkg/ops"
	"gorgonia.org/gorgonia"
)

var (
	DefaultSTFTWindows = []int{2048, 512}
	DefaultMelWindows  = []int{32, 64, 128, 256, 512, 1024, 2048}
	DefaultMelBands    = []int{5, 10, 20, 40, 80, 160, 320}
)

// spectralDistance is the per-scale term shared by the spectral losses:
//
//	LogWeight * LossFn(log10(clamp(x, ClampEps)^Pow), log10(clamp(y, ClampEps)^Pow))
//	  + MagWeight * LossFn(x, y)
type spectralDistance struct {
	LossFn    Comparator
	ClampEps  float64
	MagWeight float64
	LogWeight float64
	Pow       float64
}

func (d spectralDistance) compare(x, y *gorgonia.Node) (*gorgonia.Node, error) {
	lossFn := d.LossFn
	if lossFn == nil {
		lossFn = L1
	}

	var total *gorgonia.Node
	if d.LogWeight != 0 {
		lx, err := d.logMagnitude(x)
		if err != nil {
			return nil, err
		}
		ly, err := d.logMagnitude(y)
		if err != nil {
			return nil, err
		}
		term, err := lossFn(lx, ly)
		if err != nil {
			return nil, fmt.Errorf("failed to compare log magnitudes: %w", err)
		}
		if term, err = scale(d.LogWeight, term); err != nil {
			return nil, err
		}
		if total, err = accumulate(total, term); err != nil {
			return nil, err
		}
	}

	if d.MagWeight != 0 {
		term, err := lossFn(x, y)
		if err != nil {
			return nil, fmt.Errorf("failed to compare magnitudes: %w", err)
		}
		if term, err = scale(d.MagWeight, term); err != nil {
			return nil, err
		}
		if total, err = accumulate(total, term); err != nil {
			return nil, err
		}
	}

	if total == nil {
		return gorgonia.NewConstant(0.0), nil
	}
	return total, nil
}

// logMagnitude computes log10(clamp(x, eps)^pow) as pow*log10(clamp(x, eps)).
func (d spectralDistance) logMagnitude(x *gorgonia.Node) (*gorgonia.Node, error) {
	clamped, err := ops.Clamp(x, d.ClampEps)
	if err != nil {
		return nil, fmt.Errorf("failed to clamp magnitude: %w", err)
	}
	logMag, err := ops.Log10(clamped)
	if err != nil {
		return nil, err
	}
	return scale(d.Pow, logMag)
}

// MultiScaleSTFTLoss compares STFT magnitudes at several resolutions and sums
// the per-resolution distances.
type MultiScaleSTFTLoss struct {
	STFTParams []audio.STFTParams
	LossFn     Comparator
	ClampEps   float64
	MagWeight  float64
	LogWeight  float64
	Pow        float64
	Weight     float64
}

func NewMultiScaleSTFTLoss(windowLengths []int, windowType audio.WindowType, matchStride bool) *MultiScaleSTFTLoss {
	params := make([]audio.STFTParams, len(windowLengths))
	for i, w := range windowLengths {
		params[i] = audio.NewSTFTParams(w, windowType, matchStride)
	}

	return &MultiScaleSTFTLoss{
		STFTParams: params,
		LossFn:     L1,
		ClampEps:   1e-5,
		MagWeight:  1,
		LogWeight:  1,
		Pow:        2,
		Weight:     1,
	}
}

func DefaultMultiScaleSTFTLoss() *MultiScaleSTFTLoss {
	return NewMultiScaleSTFTLoss(DefaultSTFTWindows, audio.WindowHann, false)
}

func (l *MultiScaleSTFTLoss) distance() spectralDistance {
	return spectralDistance{
		LossFn:    l.LossFn,
		ClampEps:  l.ClampEps,
		MagWeight: l.MagWeight,
		LogWeight: l.LogWeight,
		Pow:       l.Pow,
	}
}

func (l *MultiScaleSTFTLoss) Forward(x, y *audio.Signal) (*gorgonia.Node, error) {
	if len(l.STFTParams) == 0 {
		return nil, fmt.Errorf("multi-scale stft loss: no scales configured")
	}
	if err := alignedSignals(x, y); err != nil {
		return nil, fmt.Errorf("multi-scale stft loss: %w", err)
	}

	d := l.distance()
	var total *gorgonia.Node
	for _, p := range l.STFTParams {
		xm, err := x.Magnitude(p)
		if err != nil {
			return nil, fmt.Errorf("estimate: %w", err)
		}
		ym, err := y.Magnitude(p)
		if err != nil {
			return nil, fmt.Errorf("reference: %w", err)
		}

		term, err := d.compare(xm, ym)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", p.WindowLength, err)
		}
		if total, err = accumulate(total, term); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// MelSpectrogramLoss compares mel spectrograms at several resolutions. Each
// scale has its own filterbank size and frequency range; a zero MelFmax
// selects the Nyquist frequency.
type MelSpectrogramLoss struct {
	STFTParams []audio.STFTParams
	NMels      []int
	MelFmin    []float64
	MelFmax    []float64
	LossFn     Comparator
	ClampEps   float64
	MagWeight  float64
	LogWeight  float64
	Pow        float64
	Weight     float64
}

func NewMelSpectrogramLoss(nMels, windowLengths []int, windowType audio.WindowType, matchStride bool) *MelSpectrogramLoss {
	params := make([]audio.STFTParams, len(windowLengths))
	for i, w := range windowLengths {
		params[i] = audio.NewSTFTParams(w, windowType, matchStride)
	}

	return &MelSpectrogramLoss{
		STFTParams: params,
		NMels:      nMels,
		MelFmin:    make([]float64, len(nMels)),
		MelFmax:    make([]float64, len(nMels)),
		LossFn:     L1,
		ClampEps:   1e-5,
		MagWeight:  0,
		LogWeight:  1,
		Pow:        1,
		Weight:     1,
	}
}

func DefaultMelSpectrogramLoss() *MelSpectrogramLoss {
	return NewMelSpectrogramLoss(DefaultMelBands, DefaultMelWindows, audio.WindowHann, false)
}

func (l *MelSpectrogramLoss) distance() spectralDistance {
	return spectralDistance{
		LossFn:    l.LossFn,
		ClampEps:  l.ClampEps,
		MagWeight: l.MagWeight,
		LogWeight: l.LogWeight,
		Pow:       l.Pow,
	}
}

func (l *MelSpectrogramLoss) Forward(x, y *audio.Signal) (*gorgonia.Node, error) {
	scales := len(l.STFTParams)
	if scales == 0 {
		return nil, fmt.Errorf("mel spectrogram loss: no scales configured")
	}
	if len(l.NMels) != scales {
		return nil, fmt.Errorf("mel spectrogram loss: %d mel band counts for %d scales", len(l.NMels), scales)
	}
	if l.MelFmin != nil && len(l.MelFmin) != scales {
		return nil, fmt.Errorf("mel spectrogram loss: %d minimum frequencies for %d scales", len(l.MelFmin), scales)
	}
	if l.MelFmax != nil && len(l.MelFmax) != scales {
		return nil, fmt.Errorf("mel spectrogram loss: %d maximum frequencies for %d scales", len(l.MelFmax), scales)
	}
	if err := alignedSignals(x, y); err != nil {
		return nil, fmt.Errorf("mel spectrogram loss: %w", err)
	}

	d := l.distance()
	var total *gorgonia.Node
	for i, p := range l.STFTParams {
		var fmin, fmax float64
		if l.MelFmin != nil {
			fmin = l.MelFmin[i]
		}
		if l.MelFmax != nil {
			fmax = l.MelFmax[i]
		}

		xm, err := x.MelSpectrogram(l.NMels[i], fmin, fmax, p)
		if err != nil {
			return nil, fmt.Errorf("estimate: %w", err)
		}
		ym, err := y.MelSpectrogram(l.NMels[i], fmin, fmax, p)
		if err != nil {
			return nil, fmt.Errorf("reference: %w", err)
		}

		term, err := d.compare(xm, ym)
		if err != nil {
			return nil, fmt.Errorf("window %d, %d mels: %w", p.WindowLength, l.NMels[i], err)
		}
		if total, err = accumulate(total, term); err != nil {
			return nil, err
		}
	}
	return total, nil
}

func alignedSignals(x, y *audio.Signal) error {
	if x.SampleRate != y.SampleRate {
		return fmt.Errorf("sample rate mismatch: %d vs %d", x.SampleRate, y.SampleRate)
	}
	return sameShape(x.Waveform, y.Waveform)
}
