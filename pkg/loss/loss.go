package loss

import (
	"fmt"

	"github.com/grexie/audioloss/pkg/audio"
	"github.com/grexie/audioloss/pkg/ops"
	"gorgonia.org/gorgonia"
)

// Loss compares an estimate signal to a reference signal.
type Loss interface {
	Forward(x, y *audio.Signal) (*gorgonia.Node, error)
}

// Comparator reduces two equally shaped nodes to a scalar distance.
type Comparator func(x, y *gorgonia.Node) (*gorgonia.Node, error)

var (
	L1  Comparator = ops.MeanAbsoluteError
	MSE Comparator = ops.MeanSquaredError
)

type Reduction string

const (
	ReductionMean Reduction = "mean"
	ReductionSum  Reduction = "sum"
	ReductionNone Reduction = "none"
)

// accumulate adds term to total, treating a nil total as zero.
func accumulate(total, term *gorgonia.Node) (*gorgonia.Node, error) {
	if total == nil {
		return term, nil
	}
	sum, err := gorgonia.Add(total, term)
	if err != nil {
		return nil, fmt.Errorf("failed to accumulate loss: %w", err)
	}
	return sum, nil
}

func scale(weight float64, n *gorgonia.Node) (*gorgonia.Node, error) {
	if weight == 1 {
		return n, nil
	}
	scaled, err := gorgonia.Mul(gorgonia.NewConstant(weight), n)
	if err != nil {
		return nil, fmt.Errorf("failed to weight loss: %w", err)
	}
	return scaled, nil
}

func sameShape(x, y *gorgonia.Node) error {
	if !x.Shape().Eq(y.Shape()) {
		return fmt.Errorf("shape mismatch: %v vs %v", x.Shape(), y.Shape())
	}
	return nil
}
