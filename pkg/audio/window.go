package audio

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/window"
)

type WindowType string

const (
	WindowHann        WindowType = "hann"
	WindowSqrtHann    WindowType = "sqrt_hann"
	WindowHamming     WindowType = "hamming"
	WindowBlackman    WindowType = "blackman"
	WindowAverage     WindowType = "average"
	WindowRectangular WindowType = "rectangular"
)

// Window returns n coefficients of the named analysis window. Tapered windows
// are periodic (DFT-even): the symmetric window of length n+1 without its
// last sample.
func Window(t WindowType, n int) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("window length must be positive, got %d", n)
	}

	switch t {
	case "", WindowHann:
		return periodic(window.Hann, n), nil
	case WindowSqrtHann:
		w := periodic(window.Hann, n)
		for i := range w {
			w[i] = math.Sqrt(w[i])
		}
		return w, nil
	case WindowHamming:
		return periodic(window.Hamming, n), nil
	case WindowBlackman:
		return periodic(window.Blackman, n), nil
	case WindowAverage:
		w := make([]float64, n)
		for i := range w {
			w[i] = 1 / float64(n)
		}
		return w, nil
	case WindowRectangular:
		return window.Rectangular(ones(n)), nil
	default:
		return nil, fmt.Errorf("unknown window type %q", t)
	}
}

func periodic(fn func([]float64) []float64, n int) []float64 {
	return fn(ones(n + 1))[:n]
}

func ones(n int) []float64 {
	seq := make([]float64, n)
	for i := range seq {
		seq[i] = 1
	}
	return seq
}
