package ops

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/fnv"

	"github.com/chewxy/hm"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// gatherOp selects positions of the last axis: out[..., i] = x[..., indices[i]].
type gatherOp struct {
	indices []int
	length  int
}

// scatterOp is the adjoint of gatherOp: out[..., indices[i]] += x[..., i].
type scatterOp struct {
	indices []int
	length  int
}

// Gather builds a tensor whose last axis holds x[..., indices[i]]. Indices may
// repeat, which is how reflect padding is expressed. The gradient is
// scattered back and summed onto the gathered positions.
func Gather(x *gorgonia.Node, indices []int) (*gorgonia.Node, error) {
	if x == nil {
		return nil, fmt.Errorf("gather: input node is nil")
	}
	s := x.Shape()
	if s.Dims() == 0 {
		return nil, fmt.Errorf("gather: input must have at least one axis")
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("gather: no indices")
	}
	length := s[s.Dims()-1]
	for _, i := range indices {
		if i < 0 || i >= length {
			return nil, fmt.Errorf("gather: index %d out of range [0, %d)", i, length)
		}
	}
	return gorgonia.ApplyOp(gatherOp{indices: append([]int(nil), indices...), length: length}, x)
}

func lastAxis(inputs []gorgonia.DimSizer, want, to int) (tensor.Shape, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("expected 1 input shape, got %d", len(inputs))
	}
	s, ok := inputs[0].(tensor.Shape)
	if !ok {
		return nil, fmt.Errorf("expected tensor.Shape, got %T", inputs[0])
	}
	if s.Dims() == 0 || s[s.Dims()-1] != want {
		return nil, fmt.Errorf("expected last axis of %d, got shape %v", want, s)
	}
	out := s.Clone()
	out[out.Dims()-1] = to
	return out, nil
}

func writeIndices(h hash.Hash, name string, length int, indices []int) {
	fmt.Fprintf(h, "%s{%d,%d}", name, length, len(indices))
	buf := make([]byte, 8)
	for _, i := range indices {
		binary.LittleEndian.PutUint64(buf, uint64(i))
		h.Write(buf)
	}
}

func (op gatherOp) Arity() int { return 1 }

func (op gatherOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a)
}

func (op gatherOp) InferShape(inputs ...gorgonia.DimSizer) (tensor.Shape, error) {
	return lastAxis(inputs, op.length, len(op.indices))
}

func (op gatherOp) Do(values ...gorgonia.Value) (gorgonia.Value, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("gather: expected 1 input, got %d", len(values))
	}
	t, ok := values[0].(tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("gather: unsupported value %T", values[0])
	}
	shape, err := lastAxis([]gorgonia.DimSizer{t.Shape()}, op.length, len(op.indices))
	if err != nil {
		return nil, fmt.Errorf("gather: %w", err)
	}
	rows := t.Shape().TotalSize() / op.length

	switch data := t.Data().(type) {
	case []float64:
		out := make([]float64, rows*len(op.indices))
		for r := 0; r < rows; r++ {
			src, dst := data[r*op.length:(r+1)*op.length], out[r*len(op.indices):]
			for i, j := range op.indices {
				dst[i] = src[j]
			}
		}
		return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(out)), nil
	case []float32:
		out := make([]float32, rows*len(op.indices))
		for r := 0; r < rows; r++ {
			src, dst := data[r*op.length:(r+1)*op.length], out[r*len(op.indices):]
			for i, j := range op.indices {
				dst[i] = src[j]
			}
		}
		return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(out)), nil
	default:
		return nil, fmt.Errorf("gather: unsupported dtype %v", t.Dtype())
	}
}

func (op gatherOp) ReturnsPtr() bool     { return false }
func (op gatherOp) CallsExtern() bool    { return false }
func (op gatherOp) OverwritesInput() int { return -1 }

func (op gatherOp) WriteHash(h hash.Hash) { writeIndices(h, "gather", op.length, op.indices) }

func (op gatherOp) Hashcode() uint32 {
	h := fnv.New32a()
	op.WriteHash(h)
	return h.Sum32()
}

func (op gatherOp) String() string {
	return fmt.Sprintf("Gather{%d->%d}", op.length, len(op.indices))
}

func (op gatherOp) DiffWRT(inputs int) []bool { return []bool{true} }

func (op gatherOp) SymDiff(inputs gorgonia.Nodes, output, grad *gorgonia.Node) (gorgonia.Nodes, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("gather: expected 1 input, got %d", len(inputs))
	}
	dx, err := gorgonia.ApplyOp(scatterOp(op), grad)
	if err != nil {
		return nil, fmt.Errorf("gather: gradient: %w", err)
	}
	return gorgonia.Nodes{dx}, nil
}

func (op scatterOp) Arity() int { return 1 }

func (op scatterOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a)
}

func (op scatterOp) InferShape(inputs ...gorgonia.DimSizer) (tensor.Shape, error) {
	return lastAxis(inputs, len(op.indices), op.length)
}

func (op scatterOp) Do(values ...gorgonia.Value) (gorgonia.Value, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("scatter: expected 1 input, got %d", len(values))
	}
	t, ok := values[0].(tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("scatter: unsupported value %T", values[0])
	}
	shape, err := lastAxis([]gorgonia.DimSizer{t.Shape()}, len(op.indices), op.length)
	if err != nil {
		return nil, fmt.Errorf("scatter: %w", err)
	}
	rows := t.Shape().TotalSize() / len(op.indices)

	switch data := t.Data().(type) {
	case []float64:
		out := make([]float64, rows*op.length)
		for r := 0; r < rows; r++ {
			src, dst := data[r*len(op.indices):(r+1)*len(op.indices)], out[r*op.length:]
			for i, j := range op.indices {
				dst[j] += src[i]
			}
		}
		return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(out)), nil
	case []float32:
		out := make([]float32, rows*op.length)
		for r := 0; r < rows; r++ {
			src, dst := data[r*len(op.indices):(r+1)*len(op.indices)], out[r*op.length:]
			for i, j := range op.indices {
				dst[j] += src[i]
			}
		}
		return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(out)), nil
	default:
		return nil, fmt.Errorf("scatter: unsupported dtype %v", t.Dtype())
	}
}

func (op scatterOp) ReturnsPtr() bool     { return false }
func (op scatterOp) CallsExtern() bool    { return false }
func (op scatterOp) OverwritesInput() int { return -1 }

func (op scatterOp) WriteHash(h hash.Hash) { writeIndices(h, "scatter", op.length, op.indices) }

func (op scatterOp) Hashcode() uint32 {
	h := fnv.New32a()
	op.WriteHash(h)
	return h.Sum32()
}

func (op scatterOp) String() string {
	return fmt.Sprintf("Scatter{%d->%d}", len(op.indices), op.length)
}

func (op scatterOp) DiffWRT(inputs int) []bool { return []bool{true} }

func (op scatterOp) SymDiff(inputs gorgonia.Nodes, output, grad *gorgonia.Node) (gorgonia.Nodes, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("scatter: expected 1 input, got %d", len(inputs))
	}
	dx, err := gorgonia.ApplyOp(gatherOp(op), grad)
	if err != nil {
		return nil, fmt.Errorf("scatter: gradient: %w", err)
	}
	return gorgonia.Nodes{dx}, nil
}
