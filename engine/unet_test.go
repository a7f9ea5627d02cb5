package engine

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallArchitecture(width, height int) Architecture {
	return Architecture{
		Width:      width,
		Height:     height,
		Filters:    []int{4, 8},
		Bottleneck: 8,
	}
}

func randomize(r *rand.Rand, net *Network, scale float32) {
	for _, p := range net.Params() {
		for i := range p.Data {
			p.Data[i] = (r.Float32()*2 - 1) * scale
		}
	}
	// keep the variance of batch normalizations positive
	for _, p := range net.Params() {
		if strings.HasSuffix(p.Name, "/moving_variance") {
			for i := range p.Data {
				p.Data[i] = 0.5 + r.Float32()
			}
		}
	}
}

func TestDefaultArchitecture_Params(t *testing.T) {
	net, err := DefaultArchitecture(8, 8).Build()
	require.NoError(t, err)

	assert.Equal(t, 1884035, net.NumParams())
	assert.Len(t, net.Params(), 11*2+2*4)

	for _, name := range []string{
		"conv2d/kernel", "conv2d/bias",
		"batch_normalization/gamma", "batch_normalization/moving_variance",
		"batch_normalization_1/beta", "batch_normalization_1/moving_mean",
		"conv2d_10/kernel", "conv2d_10/bias",
	} {
		_, ok := net.Param(name)
		assert.True(t, ok, name)
	}
	head, _ := net.Param("conv2d_10/kernel")
	assert.Equal(t, []int{1, 1, 64, 3}, head.Dims)
	dec, _ := net.Param("conv2d_6/kernel")
	assert.Equal(t, []int{3, 3, 256 + 128, 128}, dec.Dims)
}

func TestArchitecture_ShapePreserving(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	sizes := []struct{ w, h int }{{4, 4}, {8, 8}, {16, 12}, {12, 20}}
	for _, s := range sizes {
		net, err := smallArchitecture(s.w, s.h).Build()
		require.NoError(t, err, "%dx%d", s.w, s.h)
		randomize(r, net, 0.5)
		x := randomTensor(r, Shape{N: 1, H: s.h, W: s.w, C: 3}, 0, 1)
		out, err := net.Forward(context.Background(), x, ExecOptions{Parallel: 2})
		require.NoError(t, err)
		assert.Equal(t, x.Shape, out.Shape)
		assert.Equal(t, net.InputShape(), net.OutputShape())
	}
}

func TestArchitecture_OutputIsClipped(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	net, err := smallArchitecture(8, 8).Build()
	require.NoError(t, err)
	randomize(r, net, 3)
	x := randomTensor(r, net.InputShape(), -5, 5)
	out, err := net.Forward(context.Background(), x, ExecOptions{})
	require.NoError(t, err)
	for i, v := range out.Data {
		if v < 0 || v > 1 {
			t.Fatalf("out[%d]=%v is out of [0, 1]", i, v)
		}
	}
}

func TestArchitecture_Deterministic(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	net, err := smallArchitecture(8, 16).Build()
	require.NoError(t, err)
	randomize(r, net, 0.3)
	x := randomTensor(r, net.InputShape(), 0, 1)
	before := x.Clone()

	first, err := net.Forward(context.Background(), x, ExecOptions{Parallel: 1})
	require.NoError(t, err)
	second, err := net.Forward(context.Background(), x, ExecOptions{Parallel: 4})
	require.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, before.Data, x.Data, "input must not be modified")
}

func TestArchitecture_InitialWeightsAreIdentity(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	net, err := smallArchitecture(8, 8).Build()
	require.NoError(t, err)
	x := randomTensor(r, net.InputShape(), -0.5, 1.5)
	out, err := net.Forward(context.Background(), x, ExecOptions{})
	require.NoError(t, err)
	for i, v := range x.Data {
		want := min(max(v, 0), 1)
		require.Equal(t, want, out.Data[i], "index %d", i)
	}
}

func TestArchitecture_ZeroImage(t *testing.T) {
	if testing.Short() {
		t.Skip("full size forward pass")
	}
	net, err := DefaultArchitecture(256, 256).Build()
	require.NoError(t, err)
	out, err := net.Forward(context.Background(), NewTensor(net.InputShape()), ExecOptions{Parallel: 8})
	require.NoError(t, err)
	assert.Equal(t, Shape{N: 1, H: 256, W: 256, C: 3}, out.Shape)
	for i, v := range out.Data {
		if v != 0 {
			t.Fatalf("out[%d]=%v, want 0", i, v)
		}
	}
}

func TestArchitecture_IndivisibleSize(t *testing.T) {
	for _, s := range []struct{ w, h int }{{6, 8}, {8, 10}, {2, 2}} {
		net, err := smallArchitecture(s.w, s.h).Build()
		assert.Nil(t, net)
		var se *ShapeError
		assert.True(t, errors.As(err, &se), "%dx%d: %v", s.w, s.h, err)
		assert.ErrorContains(t, err, "must be divisible by 4")
	}
}

func TestArchitecture_NonPositiveSize(t *testing.T) {
	for _, s := range []struct{ w, h int }{{0, 8}, {8, -4}} {
		net, err := smallArchitecture(s.w, s.h).Build()
		assert.Nil(t, net)
		var se *ShapeError
		require.True(t, errors.As(err, &se), "%dx%d: %v", s.w, s.h, err)
		assert.Equal(t, "input_layer", se.Stage)
		assert.NotContains(t, err.Error(), "divisible")
	}
}

func TestDecoderBlock_SkipMismatch(t *testing.T) {
	b := NewBuilder(Shape{N: 1, H: 8, W: 8, C: 3})
	x := b.Input()
	_, p1 := EncoderBlock(b, x, 4) // 4x4
	_, p2 := EncoderBlock(b, p1, 4) // 2x2
	require.NoError(t, b.Err())

	// the upsampled 4x4 map is joined with the full size input instead of the 4x4 skip
	out := DecoderBlock(b, p2, x, 4)
	assert.Nil(t, out)

	var se *ShapeError
	require.True(t, errors.As(b.Err(), &se), "got %v", b.Err())
	assert.Equal(t, "concatenate", se.Stage)
	assert.Equal(t, Shape{N: 1, H: 8, W: 8, C: 3}, se.Got)

	// the builder stays failed
	assert.Nil(t, b.Conv2D(p2, 4, 3, ReLU))
	_, err := b.Build("broken", p2)
	assert.Error(t, err)
}

func TestNetwork_ForwardRejectsWrongShape(t *testing.T) {
	net, err := smallArchitecture(8, 8).Build()
	require.NoError(t, err)
	_, err = net.Forward(context.Background(), NewTensor(Shape{N: 1, H: 4, W: 8, C: 3}), ExecOptions{})
	var se *ShapeError
	assert.True(t, errors.As(err, &se))
}

func TestNetwork_Summary(t *testing.T) {
	net, err := smallArchitecture(8, 8).Build()
	require.NoError(t, err)
	rows := net.Summary()
	require.Len(t, rows, len(net.Nodes()))

	first, last := rows[0], rows[len(rows)-1]
	assert.Equal(t, "input_layer", first.Name)
	assert.Equal(t, "clip", last.Name)
	assert.Equal(t, []string{"add"}, last.Inputs)

	var total int
	for _, r := range rows {
		total += r.Params
		if r.Kind == "Concatenate" {
			assert.Len(t, r.Inputs, 2)
		}
	}
	assert.Equal(t, net.NumParams(), total)
}
