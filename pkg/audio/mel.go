package audio

import (
	"fmt"
	"math"
)

// Slaney mel scale: linear below 1kHz, logarithmic above.
const (
	melLinearStep = 200.0 / 3
	melLogMinHz   = 1000.0
	melLogMin     = melLogMinHz / melLinearStep
)

var melLogStep = math.Log(6.4) / 27.0

func HzToMel(hz float64) float64 {
	if hz < melLogMinHz {
		return hz / melLinearStep
	}
	return melLogMin + math.Log(hz/melLogMinHz)/melLogStep
}

func MelToHz(mel float64) float64 {
	if mel < melLogMin {
		return mel * melLinearStep
	}
	return melLogMinHz * math.Exp(melLogStep*(mel-melLogMin))
}

// MelFilterbank builds an nMels x (nFFT/2+1) matrix of triangular filters
// spaced evenly on the Slaney mel scale between fmin and fmax, each normalised
// to unit area. A non-positive fmax selects the Nyquist frequency.
func MelFilterbank(sampleRate, nFFT, nMels int, fmin, fmax float64) ([][]float64, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if nMels <= 0 {
		return nil, fmt.Errorf("mel band count must be positive, got %d", nMels)
	}
	if nFFT < 2 {
		return nil, fmt.Errorf("fft size must be at least 2, got %d", nFFT)
	}
	if fmax <= 0 {
		fmax = float64(sampleRate) / 2
	}
	if fmin < 0 || fmin >= fmax {
		return nil, fmt.Errorf("invalid mel frequency range [%v, %v]", fmin, fmax)
	}

	bins := nFFT/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(nFFT)
	}

	melMin, melMax := HzToMel(fmin), HzToMel(fmax)
	edges := make([]float64, nMels+2)
	for i := range edges {
		edges[i] = MelToHz(melMin + (melMax-melMin)*float64(i)/float64(nMels+1))
	}

	filters := make([][]float64, nMels)
	for m := range filters {
		filters[m] = make([]float64, bins)
		lowerWidth := edges[m+1] - edges[m]
		upperWidth := edges[m+2] - edges[m+1]
		norm := 2 / (edges[m+2] - edges[m])

		for k, f := range fftFreqs {
			lower := (f - edges[m]) / lowerWidth
			upper := (edges[m+2] - f) / upperWidth
			filters[m][k] = math.Max(0, math.Min(lower, upper)) * norm
		}
	}
	return filters, nil
}
