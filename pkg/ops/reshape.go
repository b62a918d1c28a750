package ops

import (
	"fmt"
	"hash"
	"hash/fnv"

	"github.com/chewxy/hm"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type reshapeOp struct {
	from tensor.Shape
	to   tensor.Shape
}

// Reshape returns a copy of x laid out as shape. Unlike gorgonia.Reshape the
// result never shares its backing with x, so ops that overwrite their inputs
// downstream of it cannot reach the data of x.
func Reshape(x *gorgonia.Node, shape tensor.Shape) (*gorgonia.Node, error) {
	if x == nil {
		return nil, fmt.Errorf("reshape: input node is nil")
	}
	from := x.Shape().Clone()
	if from.TotalSize() != shape.TotalSize() {
		return nil, fmt.Errorf("reshape: cannot reshape %v into %v", from, shape)
	}
	return gorgonia.ApplyOp(reshapeOp{from: from, to: shape.Clone()}, x)
}

func shapeType(dims int, a hm.TypeVariable) hm.Type {
	if dims == 0 {
		return a
	}
	return gorgonia.TensorType{Dims: dims, Of: a}
}

func (op reshapeOp) Arity() int { return 1 }

func (op reshapeOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(shapeType(op.from.Dims(), a), shapeType(op.to.Dims(), a))
}

func (op reshapeOp) InferShape(inputs ...gorgonia.DimSizer) (tensor.Shape, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("reshape: expected 1 input shape, got %d", len(inputs))
	}
	return op.to.Clone(), nil
}

func (op reshapeOp) Do(values ...gorgonia.Value) (gorgonia.Value, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("reshape: expected 1 input, got %d", len(values))
	}

	switch data := values[0].Data().(type) {
	case []float64:
		return op.wrap(tensor.Float64, append([]float64(nil), data...))
	case []float32:
		return op.wrap(tensor.Float32, append([]float32(nil), data...))
	case float64:
		return op.wrap(tensor.Float64, []float64{data})
	case float32:
		return op.wrap(tensor.Float32, []float32{data})
	default:
		return nil, fmt.Errorf("reshape: unsupported data %T", data)
	}
}

func (op reshapeOp) wrap(dt tensor.Dtype, backing interface{}) (gorgonia.Value, error) {
	if op.to.IsScalar() {
		switch b := backing.(type) {
		case []float64:
			return gorgonia.NewF64(b[0]), nil
		case []float32:
			return gorgonia.NewF32(b[0]), nil
		}
	}
	return tensor.New(tensor.Of(dt), tensor.WithShape(op.to.Clone()...), tensor.WithBacking(backing)), nil
}

func (op reshapeOp) ReturnsPtr() bool     { return false }
func (op reshapeOp) CallsExtern() bool    { return false }
func (op reshapeOp) OverwritesInput() int { return -1 }

func (op reshapeOp) WriteHash(h hash.Hash) {
	fmt.Fprintf(h, "reshape{%v->%v}", op.from, op.to)
}

func (op reshapeOp) Hashcode() uint32 {
	h := fnv.New32a()
	op.WriteHash(h)
	return h.Sum32()
}

func (op reshapeOp) String() string {
	return fmt.Sprintf("Reshape%v", op.to)
}

func (op reshapeOp) DiffWRT(inputs int) []bool { return []bool{true} }

func (op reshapeOp) SymDiff(inputs gorgonia.Nodes, output, grad *gorgonia.Node) (gorgonia.Nodes, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("reshape: expected 1 input, got %d", len(inputs))
	}
	dx, err := gorgonia.ApplyOp(reshapeOp{from: op.to.Clone(), to: op.from.Clone()}, grad)
	if err != nil {
		return nil, fmt.Errorf("reshape: gradient: %w", err)
	}
	return gorgonia.Nodes{dx}, nil
}
