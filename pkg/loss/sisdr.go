package loss

import (
	"fmt"

	"github.com/grexie/audioloss/pkg/audio"
	"github.com/grexie/audioloss/pkg/ops"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const sisdrEps = 1e-8

// SISDRLoss is the negated scale-invariant signal-to-distortion ratio in dB,
// computed per batch item. With Scaling disabled it is the negated SNR.
//
// ClipMin, when set, bounds the loss from below so that examples which are
// already reconstructed well stop contributing gradient.
type SISDRLoss struct {
	Scaling   bool
	Reduction Reduction
	ZeroMean  bool
	ClipMin   *float64
	Weight    float64
}

func NewSISDRLoss() *SISDRLoss {
	return &SISDRLoss{
		Scaling:   true,
		Reduction: ReductionMean,
		ZeroMean:  true,
		Weight:    1,
	}
}

// Forward scores the waveform of y against the waveform of x, which is taken
// as the reference.
func (l *SISDRLoss) Forward(x, y *audio.Signal) (*gorgonia.Node, error) {
	return l.ForwardNodes(x.Waveform, y.Waveform)
}

// ForwardNodes scores estimates against references, both shaped
// (batch, ...). Any reduction other than mean or sum returns the per-batch
// scores.
func (l *SISDRLoss) ForwardNodes(references, estimates *gorgonia.Node) (*gorgonia.Node, error) {
	if err := sameShape(references, estimates); err != nil {
		return nil, fmt.Errorf("si-sdr loss: %w", err)
	}
	if references.Dims() < 2 {
		return nil, fmt.Errorf("si-sdr loss: expected a batch dimension, got shape %v", references.Shape())
	}

	shape := references.Shape()
	nb := shape[0]
	flat := tensor.Shape{nb, shape.TotalSize() / nb}

	r, err := ops.Reshape(references, flat)
	if err != nil {
		return nil, fmt.Errorf("failed to flatten references: %w", err)
	}
	e, err := ops.Reshape(estimates, flat)
	if err != nil {
		return nil, fmt.Errorf("failed to flatten estimates: %w", err)
	}

	if l.ZeroMean {
		if r, err = center(r); err != nil {
			return nil, fmt.Errorf("failed to center references: %w", err)
		}
		if e, err = center(e); err != nil {
			return nil, fmt.Errorf("failed to center estimates: %w", err)
		}
	}

	eTrue := r
	if l.Scaling {
		refEnergy, err := energy(r)
		if err != nil {
			return nil, err
		}
		if refEnergy, err = gorgonia.Add(refEnergy, gorgonia.NewConstant(sisdrEps)); err != nil {
			return nil, fmt.Errorf("failed to stabilize reference energy: %w", err)
		}

		prod, err := gorgonia.HadamardProd(e, r)
		if err != nil {
			return nil, fmt.Errorf("failed to project estimates: %w", err)
		}
		projection, err := gorgonia.Sum(prod, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to project estimates: %w", err)
		}
		if projection, err = gorgonia.Add(projection, gorgonia.NewConstant(sisdrEps)); err != nil {
			return nil, fmt.Errorf("failed to stabilize projection: %w", err)
		}

		scale, err := gorgonia.HadamardDiv(projection, refEnergy)
		if err != nil {
			return nil, fmt.Errorf("failed to compute scale: %w", err)
		}
		if scale, err = ops.Reshape(scale, tensor.Shape{nb, 1}); err != nil {
			return nil, fmt.Errorf("failed to reshape scale: %w", err)
		}
		if eTrue, err = gorgonia.BroadcastHadamardProd(r, scale, nil, []byte{1}); err != nil {
			return nil, fmt.Errorf("failed to scale references: %w", err)
		}
	}

	eRes, err := gorgonia.Sub(e, eTrue)
	if err != nil {
		return nil, fmt.Errorf("failed to compute residual: %w", err)
	}

	signal, err := energy(eTrue)
	if err != nil {
		return nil, err
	}
	noise, err := energy(eRes)
	if err != nil {
		return nil, err
	}

	ratio, err := gorgonia.HadamardDiv(signal, noise)
	if err != nil {
		return nil, fmt.Errorf("failed to compute signal to noise ratio: %w", err)
	}
	if ratio, err = gorgonia.Add(ratio, gorgonia.NewConstant(sisdrEps)); err != nil {
		return nil, fmt.Errorf("failed to stabilize ratio: %w", err)
	}

	db, err := ops.Log10(ratio)
	if err != nil {
		return nil, err
	}
	sdr, err := gorgonia.Mul(db, gorgonia.NewConstant(-10.0))
	if err != nil {
		return nil, fmt.Errorf("failed to convert to decibels: %w", err)
	}

	if l.ClipMin != nil {
		if sdr, err = ops.Clamp(sdr, *l.ClipMin); err != nil {
			return nil, fmt.Errorf("failed to clip loss: %w", err)
		}
	}

	switch l.Reduction {
	case ReductionMean:
		return gorgonia.Mean(sdr)
	case ReductionSum:
		return gorgonia.Sum(sdr)
	default:
		return sdr, nil
	}
}

// center subtracts the mean of each row of a (batch, samples) matrix.
func center(x *gorgonia.Node) (*gorgonia.Node, error) {
	mean, err := gorgonia.Mean(x, 1)
	if err != nil {
		return nil, err
	}
	if mean, err = ops.Reshape(mean, tensor.Shape{x.Shape()[0], 1}); err != nil {
		return nil, err
	}
	return gorgonia.BroadcastSub(x, mean, nil, []byte{1})
}

// energy sums the squares of each row of a (batch, samples) matrix.
func energy(x *gorgonia.Node) (*gorgonia.Node, error) {
	sq, err := gorgonia.Square(x)
	if err != nil {
		return nil, fmt.Errorf("failed to square: %w", err)
	}
	sum, err := gorgonia.Sum(sq, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to sum energy: %w", err)
	}
	return sum, nil
}
