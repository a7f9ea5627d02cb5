package engine

import (
	"context"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewDeblurrer(t *testing.T) {
	net, err := smallArchitecture(8, 8).Build()
	require.NoError(t, err)

	t.Run("nil network", func(t *testing.T) {
		_, err := NewDeblurrer(nil)
		assert.Error(t, err)
	})
	t.Run("invalid parallel", func(t *testing.T) {
		_, err := NewDeblurrer(net, Parallel(0))
		assert.Error(t, err)
	})
	t.Run("nil logger", func(t *testing.T) {
		_, err := NewDeblurrer(net, Logger(nil))
		assert.Error(t, err)
	})
	t.Run("ok", func(t *testing.T) {
		d, err := NewDeblurrer(net, Parallel(3), Logger(zap.NewNop()))
		require.NoError(t, err)
		assert.Same(t, net, d.Network())
	})
}

func TestDeblurrer_Deblur(t *testing.T) {
	net, err := smallArchitecture(8, 8).Build()
	require.NoError(t, err)
	core, logs := observer.New(zap.DebugLevel)
	d, err := NewDeblurrer(net, Parallel(2), Logger(zap.New(core)))
	require.NoError(t, err)

	r := rand.New(rand.NewSource(4))
	img := NewImage(8, 8)
	for i := range img.Pix {
		img.Pix[i] = r.Float32()
	}
	before := img.Clone()

	// the network starts with zero weights, so the residual path returns the input
	out, err := d.Deblur(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, out.Pix)
	assert.Equal(t, before.Pix, img.Pix, "input must not be modified")
	assert.NotSame(t, img, out)
	assert.NotZero(t, logs.FilterMessage("forward pass").Len())
}

func TestDeblurrer_Deblur_TrainedRange(t *testing.T) {
	net, err := smallArchitecture(8, 8).Build()
	require.NoError(t, err)
	randomize(rand.New(rand.NewSource(8)), net, 2)
	d, err := NewDeblurrer(net)
	require.NoError(t, err)

	out, err := d.Deblur(context.Background(), NewImage(8, 8))
	require.NoError(t, err)
	assert.Zero(t, out.OutOfRange())
}

func TestDeblurrer_Deblur_WrongSize(t *testing.T) {
	net, err := smallArchitecture(8, 8).Build()
	require.NoError(t, err)
	d, err := NewDeblurrer(net)
	require.NoError(t, err)

	out, err := d.Deblur(context.Background(), NewImage(16, 8))
	assert.Nil(t, out)
	var se *ShapeError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, "deblur", se.Stage)
	assert.Equal(t, Shape{N: 1, H: 8, W: 16, C: 3}, se.Got)
}

func TestDeblurrer_Deblur_Canceled(t *testing.T) {
	net, err := smallArchitecture(8, 8).Build()
	require.NoError(t, err)
	d, err := NewDeblurrer(net)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Deblur(ctx, NewImage(8, 8))
	assert.ErrorIs(t, err, context.Canceled)
}
