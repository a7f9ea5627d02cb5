package engine

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// Option represents an option of the deblurrer.
type Option func(d *Deblurrer) error

// Parallel sets the option that specifies the limit number of concurrency.
func Parallel(p int) Option {
	return func(d *Deblurrer) error {
		if p < 1 {
			return fmt.Errorf("parallel must be an integer value greater than 0, got %d", p)
		}
		d.parallel = p
		return nil
	}
}

// Logger sets the logger.
func Logger(l *zap.Logger) Option {
	return func(d *Deblurrer) error {
		if l == nil {
			return fmt.Errorf("logger is nil")
		}
		d.logger = l
		return nil
	}
}

// Deblurrer runs single image inference with a deblurring network.
type Deblurrer struct {
	net      *Network
	parallel int
	logger   *zap.Logger
}

// NewDeblurrer creates a Deblurrer for a loaded network.
func NewDeblurrer(net *Network, opts ...Option) (*Deblurrer, error) {
	if net == nil {
		return nil, fmt.Errorf("network is nil")
	}
	ret := &Deblurrer{
		net:      net,
		parallel: runtime.GOMAXPROCS(0),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(ret); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// Network returns the network of the deblurrer.
func (d *Deblurrer) Network() *Network {
	return d.net
}

// Deblur returns the deblurred version of img as a new image of the same size.
// The network's final clip stage is the only place values are clamped;
// a result outside [0, 1] is reported as an error.
func (d *Deblurrer) Deblur(ctx context.Context, img *Image) (*Image, error) {
	if img.Shape() != d.net.InputShape() {
		return nil, &ShapeError{Stage: "deblur", Want: d.net.InputShape(), Got: img.Shape()}
	}
	d.logger.Debug("forward pass",
		zap.Stringer("input", img.Shape()),
		zap.Int("parallel", d.parallel))
	start := time.Now()
	out, err := d.net.Forward(ctx, img.Batch(), ExecOptions{
		Parallel: d.parallel,
		Logger:   d.logger,
	})
	if err != nil {
		return nil, err
	}
	ret, err := Unbatch(out, 0)
	if err != nil {
		return nil, err
	}
	if n := ret.OutOfRange(); n > 0 {
		return nil, fmt.Errorf("network output has %d values outside [0, 1]", n)
	}
	d.logger.Debug("forward pass done", zap.Duration("elapsed", time.Since(start)))
	return ret, nil
}
