package audio

import (
	"fmt"
	"math"
)

// STFTParams describes one spectral analysis configuration.
type STFTParams struct {
	WindowLength int
	HopLength    int
	WindowType   WindowType
	MatchStride  bool
}

// DefaultSTFTParams returns a ~32ms window rounded up to a power of two, with
// a quarter window hop.
func DefaultSTFTParams(sampleRate int) STFTParams {
	w := int(math.Pow(2, math.Ceil(math.Log2(0.032*float64(sampleRate)))))
	return STFTParams{
		WindowLength: w,
		HopLength:    w / 4,
		WindowType:   WindowHann,
	}
}

// NewSTFTParams builds the params used by multi-scale losses: hop is a
// quarter of the window.
func NewSTFTParams(windowLength int, windowType WindowType, matchStride bool) STFTParams {
	return STFTParams{
		WindowLength: windowLength,
		HopLength:    windowLength / 4,
		WindowType:   windowType,
		MatchStride:  matchStride,
	}
}

func (p STFTParams) Bins() int {
	return p.WindowLength/2 + 1
}

func (p STFTParams) Validate() error {
	if p.WindowLength < 2 {
		return fmt.Errorf("window length must be at least 2, got %d", p.WindowLength)
	}
	if p.HopLength <= 0 {
		return fmt.Errorf("hop length must be positive, got %d", p.HopLength)
	}
	if p.MatchStride && p.HopLength != p.WindowLength/4 {
		return fmt.Errorf("match stride requires hop length %d to be a quarter of window length %d", p.HopLength, p.WindowLength)
	}
	return nil
}

func reflect(i, n int) int {
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*(n-1) - i
	}
	return i
}

// reflectPad extends src by left and right positions mirrored about its first
// and last element, which are not repeated.
func reflectPad(src []int, left, right int) ([]int, error) {
	n := len(src)
	if left >= n || right >= n {
		return nil, fmt.Errorf("reflect padding of %d+%d needs more than %d samples", left, right, n)
	}
	out := make([]int, 0, n+left+right)
	for i := -left; i < n+right; i++ {
		out = append(out, src[reflect(i, n)])
	}
	return out, nil
}

// padIndices returns, for each sample the analysis windows read, the position
// in the signal it is taken from. The signal is reflect padded by half a
// window on both sides so frame i is centred on sample i*hop. With
// MatchStride the signal is first reflect padded up to a whole number of hops
// plus (window-hop)/2 either side, and the two outermost frames at each end
// are dropped.
func (p STFTParams) padIndices(samples int) ([]int, error) {
	src := make([]int, samples)
	for i := range src {
		src[i] = i
	}

	var err error
	if p.MatchStride {
		right := (samples+p.HopLength-1)/p.HopLength*p.HopLength - samples
		pad := (p.WindowLength - p.HopLength) / 2
		if src, err = reflectPad(src, pad, pad+right); err != nil {
			return nil, err
		}
	}

	half := p.WindowLength / 2
	if src, err = reflectPad(src, half, half); err != nil {
		return nil, err
	}

	if p.MatchStride {
		frames := (len(src)-p.WindowLength)/p.HopLength + 1
		if frames <= 4 {
			return nil, fmt.Errorf("%d samples yield no frames once the outer frames are dropped", samples)
		}
		start := 2 * p.HopLength
		src = src[start : start+(frames-5)*p.HopLength+p.WindowLength]
	}
	return src, nil
}

// Frames returns the number of STFT frames for a signal of the given length.
func (p STFTParams) Frames(samples int) int {
	padded := samples
	if p.MatchStride {
		padded = (samples+p.HopLength-1)/p.HopLength*p.HopLength + 2*((p.WindowLength-p.HopLength)/2)
	}
	frames := (padded+2*(p.WindowLength/2)-p.WindowLength)/p.HopLength + 1
	if p.MatchStride {
		frames -= 4
	}
	return frames
}
