package ops

import (
	"fmt"
	"hash"
	"hash/fnv"
	"math"

	"github.com/chewxy/hm"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type clampOp struct {
	min float64
	max float64
}

// Clamp limits every element of x to be at least min.
func Clamp(x *gorgonia.Node, min float64) (*gorgonia.Node, error) {
	return ClampRange(x, min, math.Inf(1))
}

// ClampRange limits every element of x to [min, max]. The gradient is passed
// through where min <= x <= max and is zero elsewhere.
func ClampRange(x *gorgonia.Node, min, max float64) (*gorgonia.Node, error) {
	if x == nil {
		return nil, fmt.Errorf("clamp: input node is nil")
	}
	if min > max {
		return nil, fmt.Errorf("clamp: min %v greater than max %v", min, max)
	}
	return gorgonia.ApplyOp(clampOp{min: min, max: max}, x)
}

func (op clampOp) apply(v float64) float64 {
	if v < op.min {
		return op.min
	}
	if v > op.max {
		return op.max
	}
	return v
}

func (op clampOp) Arity() int { return 1 }

func (op clampOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a)
}

func (op clampOp) InferShape(inputs ...gorgonia.DimSizer) (tensor.Shape, error) {
	return sameShape(inputs...)
}

func (op clampOp) Do(values ...gorgonia.Value) (gorgonia.Value, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("clamp: expected 1 input, got %d", len(values))
	}

	switch v := values[0].(type) {
	case tensor.Tensor:
		out, ok := v.Clone().(tensor.Tensor)
		if !ok {
			return nil, fmt.Errorf("clamp: failed to clone %T", v)
		}
		switch data := out.Data().(type) {
		case []float64:
			for i, x := range data {
				data[i] = op.apply(x)
			}
		case []float32:
			for i, x := range data {
				data[i] = float32(op.apply(float64(x)))
			}
		default:
			return nil, fmt.Errorf("clamp: unsupported dtype %v", out.Dtype())
		}
		return out, nil
	case *gorgonia.F64:
		return gorgonia.NewF64(op.apply(float64(*v))), nil
	case *gorgonia.F32:
		return gorgonia.NewF32(float32(op.apply(float64(*v)))), nil
	default:
		return nil, fmt.Errorf("clamp: unsupported value %T", v)
	}
}

func (op clampOp) ReturnsPtr() bool     { return false }
func (op clampOp) CallsExtern() bool    { return false }
func (op clampOp) OverwritesInput() int { return -1 }

func (op clampOp) WriteHash(h hash.Hash) {
	fmt.Fprintf(h, "clamp{%v,%v}", op.min, op.max)
}

func (op clampOp) Hashcode() uint32 {
	h := fnv.New32a()
	op.WriteHash(h)
	return h.Sum32()
}

func (op clampOp) String() string {
	return fmt.Sprintf("Clamp{%v, %v}", op.min, op.max)
}

func (op clampOp) DiffWRT(inputs int) []bool { return []bool{true} }

func (op clampOp) SymDiff(inputs gorgonia.Nodes, output, grad *gorgonia.Node) (gorgonia.Nodes, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("clamp: expected 1 input, got %d", len(inputs))
	}
	x := inputs[0]

	mask, err := gorgonia.Gte(x, gorgonia.NewConstant(op.min), true)
	if err != nil {
		return nil, fmt.Errorf("clamp: lower mask: %w", err)
	}
	if !math.IsInf(op.max, 1) {
		upper, err := gorgonia.Lte(x, gorgonia.NewConstant(op.max), true)
		if err != nil {
			return nil, fmt.Errorf("clamp: upper mask: %w", err)
		}
		if mask, err = gorgonia.HadamardProd(mask, upper); err != nil {
			return nil, fmt.Errorf("clamp: combine masks: %w", err)
		}
	}

	dx, err := gorgonia.HadamardProd(grad, mask)
	if err != nil {
		return nil, fmt.Errorf("clamp: gradient: %w", err)
	}
	return gorgonia.Nodes{dx}, nil
}

func sameShape(inputs ...gorgonia.DimSizer) (tensor.Shape, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("expected at least 1 input shape")
	}
	s, ok := inputs[0].(tensor.Shape)
	if !ok {
		return nil, fmt.Errorf("expected tensor.Shape, got %T", inputs[0])
	}
	for _, in := range inputs[1:] {
		o, ok := in.(tensor.Shape)
		if !ok {
			return nil, fmt.Errorf("expected tensor.Shape, got %T", in)
		}
		if !s.Eq(o) {
			return nil, fmt.Errorf("shape mismatch: %v and %v", s, o)
		}
	}
	return s.Clone(), nil
}
