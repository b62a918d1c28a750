package ops

import (
	"fmt"

	"gorgonia.org/gorgonia"
)

// Evaluate executes g once on a tape machine and reads back the value of
// each of nodes, flattened in row-major order.
func Evaluate(g *gorgonia.ExprGraph, nodes ...*gorgonia.Node) ([][]float64, error) {
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()

	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("forward pass failed: %w", err)
	}

	out := make([][]float64, len(nodes))
	for i, n := range nodes {
		values, err := Values(n)
		if err != nil {
			return nil, err
		}
		out[i] = values
	}
	return out, nil
}

// EvaluateScalar executes g and returns the single number held by n.
func EvaluateScalar(g *gorgonia.ExprGraph, n *gorgonia.Node) (float64, error) {
	out, err := Evaluate(g, n)
	if err != nil {
		return 0, err
	}
	if len(out[0]) != 1 {
		return 0, fmt.Errorf("node %v holds %d values, expected 1", n.Name(), len(out[0]))
	}
	return out[0][0], nil
}

// Values reads the current value of a node.
func Values(n *gorgonia.Node) ([]float64, error) {
	v := n.Value()
	if v == nil {
		return nil, fmt.Errorf("node %v has nil value", n.Name())
	}

	switch data := v.Data().(type) {
	case float64:
		return []float64{data}, nil
	case float32:
		return []float64{float64(data)}, nil
	case []float64:
		return append([]float64(nil), data...), nil
	case []float32:
		out := make([]float64, len(data))
		for i, x := range data {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("node %v holds unsupported data %T", n.Name(), data)
	}
}
