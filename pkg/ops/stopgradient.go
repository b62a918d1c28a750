package ops

import (
	"errors"
	"fmt"
	"hash"
	"hash/fnv"

	"github.com/chewxy/hm"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var errStopGradient = errors.New("stop gradient has no derivative")

type stopGradientOp struct{}

// StopGradient returns a node carrying the value of x that the backward pass
// treats as a constant: gradients never reach x or anything upstream of it
// through this node.
func StopGradient(x *gorgonia.Node) (*gorgonia.Node, error) {
	if x == nil {
		return nil, fmt.Errorf("stop gradient: input node is nil")
	}
	return gorgonia.ApplyOp(stopGradientOp{}, x)
}

func (op stopGradientOp) Arity() int { return 1 }

func (op stopGradientOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a)
}

func (op stopGradientOp) InferShape(inputs ...gorgonia.DimSizer) (tensor.Shape, error) {
	return sameShape(inputs...)
}

func (op stopGradientOp) Do(values ...gorgonia.Value) (gorgonia.Value, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("stop gradient: expected 1 input, got %d", len(values))
	}
	return gorgonia.CloneValue(values[0])
}

func (op stopGradientOp) ReturnsPtr() bool     { return false }
func (op stopGradientOp) CallsExtern() bool    { return false }
func (op stopGradientOp) OverwritesInput() int { return -1 }

func (op stopGradientOp) WriteHash(h hash.Hash) {
	fmt.Fprint(h, "stopgradient")
}

func (op stopGradientOp) Hashcode() uint32 {
	h := fnv.New32a()
	op.WriteHash(h)
	return h.Sum32()
}

func (op stopGradientOp) String() string { return "StopGradient" }

func (op stopGradientOp) DiffWRT(inputs int) []bool { return make([]bool, inputs) }

func (op stopGradientOp) SymDiff(inputs gorgonia.Nodes, output, grad *gorgonia.Node) (gorgonia.Nodes, error) {
	return nil, errStopGradient
}
