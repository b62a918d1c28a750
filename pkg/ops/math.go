package ops

import (
	"fmt"
	"math"

	"gorgonia.org/gorgonia"
)

// Log10 computes the base 10 logarithm of x.
func Log10(x *gorgonia.Node) (*gorgonia.Node, error) {
	ln, err := gorgonia.Log(x)
	if err != nil {
		return nil, fmt.Errorf("failed to compute log: %w", err)
	}

	retVal, err := gorgonia.Mul(ln, gorgonia.NewConstant(1/math.Ln10))
	if err != nil {
		return nil, fmt.Errorf("failed to change log base: %w", err)
	}
	return retVal, nil
}

// MeanAbsoluteError reduces |x - y| to its mean over every element.
func MeanAbsoluteError(x, y *gorgonia.Node) (*gorgonia.Node, error) {
	diff, err := gorgonia.Sub(x, y)
	if err != nil {
		return nil, fmt.Errorf("failed to compute difference: %w", err)
	}

	abs, err := gorgonia.Abs(diff)
	if err != nil {
		return nil, fmt.Errorf("failed to compute abs: %w", err)
	}

	mean, err := gorgonia.Mean(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to compute mean: %w", err)
	}
	return mean, nil
}

// MeanSquaredError reduces (x - y)^2 to its mean over every element.
func MeanSquaredError(x, y *gorgonia.Node) (*gorgonia.Node, error) {
	diff, err := gorgonia.Sub(x, y)
	if err != nil {
		return nil, fmt.Errorf("failed to compute difference: %w", err)
	}

	sq, err := gorgonia.Square(diff)
	if err != nil {
		return nil, fmt.Errorf("failed to compute square: %w", err)
	}

	mean, err := gorgonia.Mean(sq)
	if err != nil {
		return nil, fmt.Errorf("failed to compute mean: %w", err)
	}
	return mean, nil
}
