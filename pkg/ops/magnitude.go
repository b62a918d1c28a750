package ops

import (
	"errors"
	"fmt"
	"hash"
	"hash/fnv"
	"math"

	"github.com/chewxy/hm"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var errMagnitudeGrad = errors.New("magnitude gradient is not differentiable")

type magnitudeOp struct{}

// magnitudeGradOp maps (x, |z|) to x/|z|, taking 0 where |z| is 0.
type magnitudeGradOp struct{}

// Magnitude computes sqrt(re² + im²) elementwise. Where both parts are zero
// the gradient is zero rather than undefined, so silent input yields finite
// gradients.
func Magnitude(re, im *gorgonia.Node) (*gorgonia.Node, error) {
	if re == nil || im == nil {
		return nil, fmt.Errorf("magnitude: input node is nil")
	}
	return gorgonia.ApplyOp(magnitudeOp{}, re, im)
}

func zipWith(name string, values []gorgonia.Value, f func(a, b float64) float64) (gorgonia.Value, error) {
	if len(values) != 2 {
		return nil, fmt.Errorf("%s: expected 2 inputs, got %d", name, len(values))
	}
	switch a := values[0].(type) {
	case tensor.Tensor:
		b, ok := values[1].(tensor.Tensor)
		if !ok || !a.Shape().Eq(b.Shape()) {
			return nil, fmt.Errorf("%s: mismatched inputs %v and %v", name, values[0].Shape(), values[1].Shape())
		}
		switch x := a.Data().(type) {
		case []float64:
			y, ok := b.Data().([]float64)
			if !ok {
				return nil, fmt.Errorf("%s: mismatched dtypes %v and %v", name, a.Dtype(), b.Dtype())
			}
			out := make([]float64, len(x))
			for i := range x {
				out[i] = f(x[i], y[i])
			}
			return tensor.New(tensor.WithShape(a.Shape().Clone()...), tensor.WithBacking(out)), nil
		case []float32:
			y, ok := b.Data().([]float32)
			if !ok {
				return nil, fmt.Errorf("%s: mismatched dtypes %v and %v", name, a.Dtype(), b.Dtype())
			}
			out := make([]float32, len(x))
			for i := range x {
				out[i] = float32(f(float64(x[i]), float64(y[i])))
			}
			return tensor.New(tensor.WithShape(a.Shape().Clone()...), tensor.WithBacking(out)), nil
		default:
			return nil, fmt.Errorf("%s: unsupported dtype %v", name, a.Dtype())
		}
	case *gorgonia.F64:
		b, ok := values[1].(*gorgonia.F64)
		if !ok {
			return nil, fmt.Errorf("%s: mismatched inputs %T and %T", name, values[0], values[1])
		}
		return gorgonia.NewF64(f(float64(*a), float64(*b))), nil
	case *gorgonia.F32:
		b, ok := values[1].(*gorgonia.F32)
		if !ok {
			return nil, fmt.Errorf("%s: mismatched inputs %T and %T", name, values[0], values[1])
		}
		return gorgonia.NewF32(float32(f(float64(*a), float64(*b)))), nil
	default:
		return nil, fmt.Errorf("%s: unsupported value %T", name, values[0])
	}
}

func (op magnitudeOp) Arity() int { return 2 }

func (op magnitudeOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a, a)
}

func (op magnitudeOp) InferShape(inputs ...gorgonia.DimSizer) (tensor.Shape, error) {
	return sameShape(inputs...)
}

func (op magnitudeOp) Do(values ...gorgonia.Value) (gorgonia.Value, error) {
	return zipWith("magnitude", values, math.Hypot)
}

func (op magnitudeOp) ReturnsPtr() bool     { return false }
func (op magnitudeOp) CallsExtern() bool    { return false }
func (op magnitudeOp) OverwritesInput() int { return -1 }

func (op magnitudeOp) WriteHash(h hash.Hash) { fmt.Fprint(h, "magnitude") }

func (op magnitudeOp) Hashcode() uint32 {
	h := fnv.New32a()
	op.WriteHash(h)
	return h.Sum32()
}

func (op magnitudeOp) String() string { return "Magnitude" }

func (op magnitudeOp) DiffWRT(inputs int) []bool { return []bool{true, true} }

func (op magnitudeOp) SymDiff(inputs gorgonia.Nodes, output, grad *gorgonia.Node) (gorgonia.Nodes, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("magnitude: expected 2 inputs, got %d", len(inputs))
	}

	retVal := make(gorgonia.Nodes, 2)
	for i, x := range inputs {
		ratio, err := gorgonia.ApplyOp(magnitudeGradOp{}, x, output)
		if err != nil {
			return nil, fmt.Errorf("magnitude: ratio: %w", err)
		}
		if retVal[i], err = gorgonia.HadamardProd(grad, ratio); err != nil {
			return nil, fmt.Errorf("magnitude: gradient: %w", err)
		}
	}
	return retVal, nil
}

func (op magnitudeGradOp) Arity() int { return 2 }

func (op magnitudeGradOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a, a)
}

func (op magnitudeGradOp) InferShape(inputs ...gorgonia.DimSizer) (tensor.Shape, error) {
	return sameShape(inputs...)
}

func (op magnitudeGradOp) Do(values ...gorgonia.Value) (gorgonia.Value, error) {
	return zipWith("magnitude gradient", values, func(x, m float64) float64 {
		if m == 0 {
			return 0
		}
		return x / m
	})
}

func (op magnitudeGradOp) ReturnsPtr() bool     { return false }
func (op magnitudeGradOp) CallsExtern() bool    { return false }
func (op magnitudeGradOp) OverwritesInput() int { return -1 }

func (op magnitudeGradOp) WriteHash(h hash.Hash) { fmt.Fprint(h, "magnitudegrad") }

func (op magnitudeGradOp) Hashcode() uint32 {
	h := fnv.New32a()
	op.WriteHash(h)
	return h.Sum32()
}

func (op magnitudeGradOp) String() string { return "MagnitudeGrad" }

func (op magnitudeGradOp) DiffWRT(inputs int) []bool { return make([]bool, inputs) }

func (op magnitudeGradOp) SymDiff(inputs gorgonia.Nodes, output, grad *gorgonia.Node) (gorgonia.Nodes, error) {
	return nil, errMagnitudeGrad
}
