package ops_test

import (
	"math"
	"testing"

	"github.com/grexie/audioloss/pkg/ops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func vector(g *gorgonia.ExprGraph, name string, data ...float64) *gorgonia.Node {
	return gorgonia.NewVector(g, tensor.Float64,
		gorgonia.WithShape(len(data)),
		gorgonia.WithName(name),
		gorgonia.WithValue(tensor.New(tensor.WithShape(len(data)), tensor.WithBacking(data))))
}

func TestClampHandlesNegativeInfinity(t *testing.T) {
	g := gorgonia.NewGraph()
	x := vector(g, "x", math.Inf(-1), -50, -10, 3)

	y, err := ops.Clamp(x, -30)
	require.NoError(t, err)

	out, err := ops.Evaluate(g, y)
	require.NoError(t, err)
	assert.Equal(t, []float64{-30, -30, -10, 3}, out[0])
}

func TestClampRange(t *testing.T) {
	g := gorgonia.NewGraph()
	x := vector(g, "x", -2, 0.5, 7)

	y, err := ops.ClampRange(x, 0, 1)
	require.NoError(t, err)

	out, err := ops.Evaluate(g, y)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1}, out[0])

	_, err = ops.ClampRange(x, 1, 0)
	assert.Error(t, err)
}

func TestClampGradientMasksClampedElements(t *testing.T) {
	g := gorgonia.NewGraph()
	x := vector(g, "x", -1, 2, 0.5, 4)

	y, err := ops.ClampRange(x, 0, 3)
	require.NoError(t, err)
	cost, err := gorgonia.Sum(y)
	require.NoError(t, err)

	grads, err := gorgonia.Grad(cost, x)
	require.NoError(t, err)

	out, err := ops.Evaluate(g, cost, grads[0])
	require.NoError(t, err)
	assert.InDelta(t, 2.5+3, out[0][0], 1e-12)
	assert.Equal(t, []float64{0, 1, 1, 0}, out[1])
}

func TestStopGradientKeepsValue(t *testing.T) {
	g := gorgonia.NewGraph()
	x := vector(g, "x", 1, 2, 3)

	y, err := ops.StopGradient(x)
	require.NoError(t, err)

	out, err := ops.Evaluate(g, y)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, out[0])
}

// detachedGraph builds sum(StopGradient(x*w) * v) with w = 2, v = 3 and
// x = [1 2 3].
func detachedGraph(t *testing.T) (g *gorgonia.ExprGraph, cost, w, v *gorgonia.Node) {
	t.Helper()

	g = gorgonia.NewGraph()
	w = gorgonia.NewScalar(g, tensor.Float64, gorgonia.WithName("w"), gorgonia.WithValue(2.0))
	v = gorgonia.NewScalar(g, tensor.Float64, gorgonia.WithName("v"), gorgonia.WithValue(3.0))
	x := vector(g, "x", 1, 2, 3)

	upstream, err := gorgonia.Mul(x, w)
	require.NoError(t, err)
	detached, err := ops.StopGradient(upstream)
	require.NoError(t, err)
	downstream, err := gorgonia.Mul(detached, v)
	require.NoError(t, err)
	cost, err = gorgonia.Sum(downstream)
	require.NoError(t, err)
	return g, cost, w, v
}

func TestStopGradientBlocksBackward(t *testing.T) {
	_, cost, w, _ := detachedGraph(t)

	_, err := gorgonia.Grad(cost, w)
	assert.Error(t, err, "gradient must not reach nodes upstream of StopGradient")
}

func TestStopGradientKeepsDownstreamGradient(t *testing.T) {
	g, cost, _, v := detachedGraph(t)

	grads, err := gorgonia.Grad(cost, v)
	require.NoError(t, err)

	out, err := ops.Evaluate(g, cost, grads[0])
	require.NoError(t, err)
	assert.InDelta(t, 36, out[0][0], 1e-12)
	assert.InDelta(t, 12, out[1][0], 1e-12)
}

func TestLog10(t *testing.T) {
	g := gorgonia.NewGraph()
	x := vector(g, "x", 1, 10, 1000)

	y, err := ops.Log10(x)
	require.NoError(t, err)

	out, err := ops.Evaluate(g, y)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 1, 3}, out[0], 1e-12)
}

func TestComparators(t *testing.T) {
	g := gorgonia.NewGraph()
	x := vector(g, "x", 1, 2, 3)
	y := vector(g, "y", 2, 2, 5)

	mae, err := ops.MeanAbsoluteError(x, y)
	require.NoError(t, err)
	mse, err := ops.MeanSquaredError(x, y)
	require.NoError(t, err)

	out, err := ops.Evaluate(g, mae, mse)
	require.NoError(t, err)
	assert.InDelta(t, 1, out[0][0], 1e-12)
	assert.InDelta(t, 5.0/3, out[1][0], 1e-12)
}

func matrix(g *gorgonia.ExprGraph, name string, rows, cols int, data ...float64) *gorgonia.Node {
	return gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(rows, cols),
		gorgonia.WithName(name),
		gorgonia.WithValue(tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(data))))
}

func TestReshapeLeavesInputUntouched(t *testing.T) {
	g := gorgonia.NewGraph()
	data := []float64{1, 2, 3, 4, 5, 6}
	x := vector(g, "x", data...)

	r, err := ops.Reshape(x, tensor.Shape{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, []int(r.Shape()))

	doubled, err := gorgonia.Mul(r, gorgonia.NewConstant(2.0))
	require.NoError(t, err)
	shifted, err := gorgonia.Add(doubled, gorgonia.NewConstant(1.0))
	require.NoError(t, err)

	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	for run := 0; run < 2; run++ {
		require.NoError(t, vm.RunAll())
		out, err := ops.Values(shifted)
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 5, 7, 9, 11, 13}, out, "run %d", run)
		assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, data, "run %d", run)
		vm.Reset()
	}
}

func TestReshapeGradient(t *testing.T) {
	g := gorgonia.NewGraph()
	x := vector(g, "x", 1, 2, 3, 4)
	w := matrix(g, "w", 2, 2, 10, 20, 30, 40)

	r, err := ops.Reshape(x, tensor.Shape{2, 2})
	require.NoError(t, err)
	prod, err := gorgonia.HadamardProd(r, w)
	require.NoError(t, err)
	cost, err := gorgonia.Sum(prod)
	require.NoError(t, err)

	grads, err := gorgonia.Grad(cost, x)
	require.NoError(t, err)

	out, err := ops.Evaluate(g, cost, grads[0])
	require.NoError(t, err)
	assert.InDelta(t, 300, out[0][0], 1e-12)
	assert.Equal(t, []float64{10, 20, 30, 40}, out[1])
}

func TestReshapeRejectsSizeChange(t *testing.T) {
	g := gorgonia.NewGraph()
	_, err := ops.Reshape(vector(g, "x", 1, 2, 3), tensor.Shape{2, 2})
	assert.Error(t, err)
}

func TestGather(t *testing.T) {
	g := gorgonia.NewGraph()
	x := matrix(g, "x", 2, 4, 0, 1, 2, 3, 10, 11, 12, 13)

	// reflect pad by two on either side
	y, err := ops.Gather(x, []int{2, 1, 0, 1, 2, 3, 2, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 8}, []int(y.Shape()))

	cost, err := gorgonia.Sum(y)
	require.NoError(t, err)
	grads, err := gorgonia.Grad(cost, x)
	require.NoError(t, err)

	out, err := ops.Evaluate(g, y, grads[0])
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1, 0, 1, 2, 3, 2, 1, 12, 11, 10, 11, 12, 13, 12, 11}, out[0])
	assert.Equal(t, []float64{1, 3, 3, 1, 1, 3, 3, 1}, out[1])
}

func TestGatherRejectsOutOfRange(t *testing.T) {
	g := gorgonia.NewGraph()
	x := vector(g, "x", 1, 2, 3)

	_, err := ops.Gather(x, []int{0, 3})
	assert.Error(t, err)
	_, err = ops.Gather(x, []int{-1})
	assert.Error(t, err)
	_, err = ops.Gather(x, nil)
	assert.Error(t, err)
}

func TestMagnitude(t *testing.T) {
	g := gorgonia.NewGraph()
	re := vector(g, "re", 3, 0, -1)
	im := vector(g, "im", 4, 0, 0)

	mag, err := ops.Magnitude(re, im)
	require.NoError(t, err)
	cost, err := gorgonia.Sum(mag)
	require.NoError(t, err)

	grads, err := gorgonia.Grad(cost, re, im)
	require.NoError(t, err)

	out, err := ops.Evaluate(g, mag, grads[0], grads[1])
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{5, 0, 1}, out[0], 1e-12)
	assert.InDeltaSlice(t, []float64{0.6, 0, -1}, out[1], 1e-12)
	assert.InDeltaSlice(t, []float64{0.8, 0, 0}, out[2], 1e-12)
	for _, v := range append(out[1], out[2]...) {
		assert.False(t, math.IsNaN(v))
	}
}
