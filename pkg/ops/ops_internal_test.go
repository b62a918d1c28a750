package ops

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var (
	_ gorgonia.SDOp = clampOp{}
	_ gorgonia.SDOp = stopGradientOp{}
	_ gorgonia.SDOp = reshapeOp{}
	_ gorgonia.SDOp = gatherOp{}
	_ gorgonia.SDOp = scatterOp{}
	_ gorgonia.SDOp = magnitudeOp{}
	_ gorgonia.SDOp = magnitudeGradOp{}
)

func TestHashcodeDistinguishesParameters(t *testing.T) {
	assert.Equal(t, clampOp{min: 0, max: 1}.Hashcode(), clampOp{min: 0, max: 1}.Hashcode())
	assert.NotEqual(t, clampOp{min: 0, max: 1}.Hashcode(), clampOp{min: 0, max: math.Inf(1)}.Hashcode())

	assert.NotEqual(t,
		reshapeOp{from: tensor.Shape{4}, to: tensor.Shape{2, 2}}.Hashcode(),
		reshapeOp{from: tensor.Shape{4}, to: tensor.Shape{4, 1}}.Hashcode())

	assert.NotEqual(t,
		gatherOp{indices: []int{1, 0, 1}, length: 2}.Hashcode(),
		gatherOp{indices: []int{0, 1, 0}, length: 2}.Hashcode())
	assert.NotEqual(t,
		gatherOp{indices: []int{1, 0}, length: 2}.Hashcode(),
		scatterOp{indices: []int{1, 0}, length: 2}.Hashcode())

	assert.NotEqual(t, magnitudeOp{}.Hashcode(), magnitudeGradOp{}.Hashcode())
	assert.NotEqual(t, stopGradientOp{}.Hashcode(), magnitudeOp{}.Hashcode())
}
