package loss

import (
	"fmt"

	"gorgonia.org/gorgonia"
)

// KL is the divergence of the diagonal Gaussian N(m, exp(logs)) from the
// standard normal:
//
//	0.5 * (m^2 + exp(logs) - logs - 1)
//
// summed over axis 1 and averaged over every other axis.
func KL(logs, m *gorgonia.Node) (*gorgonia.Node, error) {
	if err := sameShape(logs, m); err != nil {
		return nil, fmt.Errorf("kl loss: %w", err)
	}
	if logs.Dims() < 2 {
		return nil, fmt.Errorf("kl loss: expected at least 2 dimensions, got shape %v", logs.Shape())
	}

	m2, err := gorgonia.Square(m)
	if err != nil {
		return nil, err
	}
	variance, err := gorgonia.Exp(logs)
	if err != nil {
		return nil, err
	}

	kl, err := gorgonia.Add(m2, variance)
	if err != nil {
		return nil, err
	}
	if kl, err = gorgonia.Sub(kl, logs); err != nil {
		return nil, err
	}
	if kl, err = gorgonia.Sub(kl, gorgonia.NewConstant(1.0)); err != nil {
		return nil, err
	}
	if kl, err = gorgonia.Mul(kl, gorgonia.NewConstant(0.5)); err != nil {
		return nil, err
	}

	if kl, err = gorgonia.Sum(kl, 1); err != nil {
		return nil, fmt.Errorf("failed to sum over features: %w", err)
	}
	return gorgonia.Mean(kl)
}
