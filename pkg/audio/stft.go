package audio

import (
	"fmt"
	"math"
	"sync"

	"github.com/grexie/audioloss/pkg/ops"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type kernelKey struct {
	windowType WindowType
	length     int
}

type fourierKernels struct {
	cos []float64
	sin []float64
}

var (
	kernelsMu sync.Mutex
	kernels   = map[kernelKey]fourierKernels{}
)

// windowedFourierKernels returns the real and imaginary DFT bases of the
// one-sided spectrum, premultiplied by the analysis window, laid out as
// (bins, 1, 1, length) convolution filters.
func windowedFourierKernels(t WindowType, length int) (fourierKernels, error) {
	key := kernelKey{t, length}

	kernelsMu.Lock()
	defer kernelsMu.Unlock()
	if k, ok := kernels[key]; ok {
		return k, nil
	}

	w, err := Window(t, length)
	if err != nil {
		return fourierKernels{}, err
	}

	bins := length/2 + 1
	k := fourierKernels{
		cos: make([]float64, bins*length),
		sin: make([]float64, bins*length),
	}
	for b := 0; b < bins; b++ {
		for n := 0; n < length; n++ {
			phase := 2 * math.Pi * float64((b*n)%length) / float64(length)
			k.cos[b*length+n] = w[n] * math.Cos(phase)
			k.sin[b*length+n] = -w[n] * math.Sin(phase)
		}
	}
	kernels[key] = k
	return k, nil
}

// stft computes the magnitude spectrogram of x, shaped (batch, channels,
// samples), as a pair of strided convolutions over the reflect padded signal
// so the result stays differentiable with respect to x. The result is shaped
// (batch*channels, bins, 1, frames).
func stft(x *gorgonia.Node, p STFTParams) (*gorgonia.Node, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	g := x.Graph()
	shape := x.Shape()
	n, samples := shape[0]*shape[1], shape[2]
	bins := p.Bins()

	k, err := windowedFourierKernels(p.WindowType, p.WindowLength)
	if err != nil {
		return nil, err
	}

	indices, err := p.padIndices(samples)
	if err != nil {
		return nil, err
	}
	padded, err := ops.Gather(x, indices)
	if err != nil {
		return nil, fmt.Errorf("failed to pad signal: %w", err)
	}
	if padded, err = ops.Reshape(padded, tensor.Shape{n, 1, 1, len(indices)}); err != nil {
		return nil, fmt.Errorf("failed to reshape signal: %w", err)
	}

	kernel := func(name string, data []float64) *gorgonia.Node {
		return gorgonia.NewTensor(g, tensor.Float64, 4,
			gorgonia.WithShape(bins, 1, 1, p.WindowLength),
			gorgonia.WithName(fmt.Sprintf("stft_%s_%s_%d", name, p.WindowType, p.WindowLength)),
			gorgonia.WithValue(tensor.New(tensor.WithShape(bins, 1, 1, p.WindowLength), tensor.WithBacking(data))))
	}

	kernelShape := tensor.Shape{1, p.WindowLength}
	pad := []int{0, 0}
	stride := []int{1, p.HopLength}
	dilation := []int{1, 1}

	re, err := gorgonia.Conv2d(padded, kernel("cos", k.cos), kernelShape, pad, stride, dilation)
	if err != nil {
		return nil, fmt.Errorf("failed to compute real part: %w", err)
	}
	im, err := gorgonia.Conv2d(padded, kernel("sin", k.sin), kernelShape, pad, stride, dilation)
	if err != nil {
		return nil, fmt.Errorf("failed to compute imaginary part: %w", err)
	}

	mag, err := ops.Magnitude(re, im)
	if err != nil {
		return nil, fmt.Errorf("failed to compute magnitude: %w", err)
	}
	return mag, nil
}

// melProject maps a (n, bins, 1, frames) magnitude onto nMels bands with a
// 1x1 convolution over the frequency channels.
func melProject(mag *gorgonia.Node, sampleRate int, p STFTParams, nMels int, fmin, fmax float64) (*gorgonia.Node, error) {
	bins := p.Bins()
	fb, err := MelFilterbank(sampleRate, p.WindowLength, nMels, fmin, fmax)
	if err != nil {
		return nil, err
	}

	backing := make([]float64, 0, nMels*bins)
	for _, row := range fb {
		backing = append(backing, row...)
	}

	filter := gorgonia.NewTensor(mag.Graph(), tensor.Float64, 4,
		gorgonia.WithShape(nMels, bins, 1, 1),
		gorgonia.WithName(fmt.Sprintf("mel_%d_%d_%d_%g_%g", sampleRate, p.WindowLength, nMels, fmin, fmax)),
		gorgonia.WithValue(tensor.New(tensor.WithShape(nMels, bins, 1, 1), tensor.WithBacking(backing))))

	mel, err := gorgonia.Conv2d(mag, filter, tensor.Shape{1, 1}, []int{0, 0}, []int{1, 1}, []int{1, 1})
	if err != nil {
		return nil, fmt.Errorf("failed to apply mel filterbank: %w", err)
	}
	return mel, nil
}
