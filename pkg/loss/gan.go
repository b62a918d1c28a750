package loss

import (
	"fmt"

	"github.com/grexie/audioloss/pkg/audio"
	"github.com/grexie/audioloss/pkg/ops"
	"gorgonia.org/gorgonia"
)

// Discriminator scores a waveform. The result holds one entry per
// sub-network, each an ordered list of feature maps whose last element is the
// realness score.
type Discriminator interface {
	Discriminate(waveform *gorgonia.Node) ([][]*gorgonia.Node, error)
}

type DiscriminatorFunc func(waveform *gorgonia.Node) ([][]*gorgonia.Node, error)

func (f DiscriminatorFunc) Discriminate(waveform *gorgonia.Node) ([][]*gorgonia.Node, error) {
	return f(waveform)
}

// GANLoss computes least-squares adversarial losses and a feature matching
// loss from an external discriminator.
type GANLoss struct {
	Discriminator Discriminator
}

func NewGANLoss(d Discriminator) *GANLoss {
	return &GANLoss{Discriminator: d}
}

// Forward runs the discriminator on both signals.
func (l *GANLoss) Forward(fake, real *audio.Signal) ([][]*gorgonia.Node, [][]*gorgonia.Node, error) {
	dFake, err := l.discriminate(fake)
	if err != nil {
		return nil, nil, fmt.Errorf("fake: %w", err)
	}
	dReal, err := l.discriminate(real)
	if err != nil {
		return nil, nil, fmt.Errorf("real: %w", err)
	}
	if err := sameStructure(dFake, dReal); err != nil {
		return nil, nil, err
	}
	return dFake, dReal, nil
}

// DiscriminatorLoss is sum_i mean(fake_i^2) + mean((1 - real_i)^2) over the
// sub-network scores. fake is detached first, so this loss never reaches the
// generator.
func (l *GANLoss) DiscriminatorLoss(fake, real *audio.Signal) (*gorgonia.Node, error) {
	detached, err := fake.Detach()
	if err != nil {
		return nil, err
	}

	dFake, dReal, err := l.Forward(detached, real)
	if err != nil {
		return nil, err
	}

	var total *gorgonia.Node
	for i := range dFake {
		fakeScore, err := meanSquare(last(dFake[i]))
		if err != nil {
			return nil, fmt.Errorf("sub-network %d: %w", i, err)
		}
		realScore, err := meanSquaredDistanceFromOne(last(dReal[i]))
		if err != nil {
			return nil, fmt.Errorf("sub-network %d: %w", i, err)
		}
		if total, err = accumulate(total, fakeScore); err != nil {
			return nil, err
		}
		if total, err = accumulate(total, realScore); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// GeneratorLoss returns the adversarial term sum_i mean((1 - fake_i)^2) and
// the feature matching term, the L1 distance between every intermediate
// feature map of fake and the detached feature map of real.
func (l *GANLoss) GeneratorLoss(fake, real *audio.Signal) (adv, feat *gorgonia.Node, err error) {
	dFake, dReal, err := l.Forward(fake, real)
	if err != nil {
		return nil, nil, err
	}

	for i := range dFake {
		score, err := meanSquaredDistanceFromOne(last(dFake[i]))
		if err != nil {
			return nil, nil, fmt.Errorf("sub-network %d: %w", i, err)
		}
		if adv, err = accumulate(adv, score); err != nil {
			return nil, nil, err
		}
	}

	for i := range dFake {
		for j := 0; j < len(dFake[i])-1; j++ {
			target, err := ops.StopGradient(dReal[i][j])
			if err != nil {
				return nil, nil, err
			}
			distance, err := L1(dFake[i][j], target)
			if err != nil {
				return nil, nil, fmt.Errorf("sub-network %d layer %d: %w", i, j, err)
			}
			if feat, err = accumulate(feat, distance); err != nil {
				return nil, nil, err
			}
		}
	}
	if feat == nil {
		feat = gorgonia.NewConstant(0.0)
	}

	return adv, feat, nil
}

func (l *GANLoss) discriminate(s *audio.Signal) ([][]*gorgonia.Node, error) {
	if l.Discriminator == nil {
		return nil, fmt.Errorf("gan loss: no discriminator configured")
	}

	out, err := l.Discriminator.Discriminate(s.Waveform)
	if err != nil {
		return nil, fmt.Errorf("discriminator failed: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("discriminator returned no sub-networks")
	}
	for i, features := range out {
		if len(features) == 0 {
			return nil, fmt.Errorf("discriminator sub-network %d returned no outputs", i)
		}
		for j, n := range features {
			if n == nil {
				return nil, fmt.Errorf("discriminator sub-network %d returned nil output %d", i, j)
			}
		}
	}
	return out, nil
}

func sameStructure(a, b [][]*gorgonia.Node) error {
	if len(a) != len(b) {
		return fmt.Errorf("discriminator returned %d sub-networks for fake and %d for real", len(a), len(b))
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return fmt.Errorf("discriminator sub-network %d returned %d outputs for fake and %d for real", i, len(a[i]), len(b[i]))
		}
		for j := range a[i] {
			if err := sameShape(a[i][j], b[i][j]); err != nil {
				return fmt.Errorf("discriminator sub-network %d output %d: %w", i, j, err)
			}
		}
	}
	return nil
}

func last(features []*gorgonia.Node) *gorgonia.Node {
	return features[len(features)-1]
}

func meanSquare(x *gorgonia.Node) (*gorgonia.Node, error) {
	sq, err := gorgonia.Square(x)
	if err != nil {
		return nil, err
	}
	return gorgonia.Mean(sq)
}

func meanSquaredDistanceFromOne(x *gorgonia.Node) (*gorgonia.Node, error) {
	d, err := gorgonia.Sub(gorgonia.NewConstant(1.0), x)
	if err != nil {
		return nil, err
	}
	return meanSquare(d)
}
