package engine

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// BatchNormEpsilon is the variance epsilon of batch normalization stages.
const BatchNormEpsilon = 1e-3

// Activation is the non-linearity applied to the output of a convolution.
type Activation int

const (
	// Linear is the identity activation.
	Linear Activation = iota
	// ReLU is max(0, x).
	ReLU
)

// String returns string representation of an activation.
func (a Activation) String() string {
	switch a {
	case Linear:
		return "linear"
	case ReLU:
		return "relu"
	}
	return fmt.Sprintf("unknown activation=%d", a)
}

// ExecOptions are the runtime settings of a forward pass.
type ExecOptions struct {
	// Parallel is the limit number of goroutines used by a stage, values < 1 mean 1.
	Parallel int
	// Logger receives per-stage debug logs. Nil disables logging.
	Logger *zap.Logger
}

func (o ExecOptions) parallel() int {
	if o.Parallel < 1 {
		return 1
	}
	return o.Parallel
}

// Op is a typed transformation stage of a network.
// OutputShape states the shape contract of the stage, Forward computes it.
type Op interface {
	Kind() string
	OutputShape(in []Shape) (Shape, error)
	Forward(ctx context.Context, opt ExecOptions, in []*Tensor) (*Tensor, error)
	Params() []*Param
}

// Param is a named learned parameter tensor.
type Param struct {
	Name string
	Dims []int
	Data []float32
}

func newParam(name string, fill float32, dims ...int) *Param {
	n := 1
	for _, d := range dims {
		n *= d
	}
	p := &Param{
		Name: name,
		Dims: dims,
		Data: make([]float32, n),
	}
	if fill != 0 {
		for i := range p.Data {
			p.Data[i] = fill
		}
	}
	return p
}

// Len returns the number of elements of the parameter.
func (p *Param) Len() int {
	return len(p.Data)
}

func single(in []Shape) (Shape, error) {
	if len(in) != 1 {
		return Shape{}, fmt.Errorf("expected 1 input, got %d", len(in))
	}
	return in[0], nil
}

type inputOp struct{}

func (inputOp) Kind() string { return "InputLayer" }

func (inputOp) OutputShape(in []Shape) (Shape, error) { return single(in) }

func (inputOp) Forward(_ context.Context, _ ExecOptions, in []*Tensor) (*Tensor, error) {
	return in[0], nil
}

func (inputOp) Params() []*Param { return nil }

type batchNorm struct {
	gamma, beta, mean, variance *Param
}

func newBatchNorm(name string, channels int) *batchNorm {
	return &batchNorm{
		gamma:    newParam(name+"/gamma", 1, channels),
		beta:     newParam(name+"/beta", 0, channels),
		mean:     newParam(name+"/moving_mean", 0, channels),
		variance: newParam(name+"/moving_variance", 1, channels),
	}
}

func (l *batchNorm) Kind() string { return "BatchNormalization" }

func (l *batchNorm) OutputShape(in []Shape) (Shape, error) {
	s, err := single(in)
	if err != nil {
		return Shape{}, err
	}
	if s.C != l.gamma.Len() {
		return Shape{}, &ShapeError{Want: Shape{N: s.N, H: s.H, W: s.W, C: l.gamma.Len()}, Got: s}
	}
	return s, nil
}

func (l *batchNorm) Forward(_ context.Context, _ ExecOptions, in []*Tensor) (*Tensor, error) {
	x := in[0]
	c := x.Shape.C
	scale := make([]float32, c)
	shift := make([]float32, c)
	for i := 0; i < c; i++ {
		scale[i] = l.gamma.Data[i] / float32(math.Sqrt(float64(l.variance.Data[i])+BatchNormEpsilon))
		shift[i] = l.beta.Data[i] - l.mean.Data[i]*scale[i]
	}
	out := NewTensor(x.Shape)
	for i, v := range x.Data {
		ch := i % c
		out.Data[i] = v*scale[ch] + shift[ch]
	}
	return out, nil
}

func (l *batchNorm) Params() []*Param {
	return []*Param{l.gamma, l.beta, l.mean, l.variance}
}

// maxPool2D is a 2x2 max pooling with stride 2 and valid padding.
type maxPool2D struct{}

func (maxPool2D) Kind() string { return "MaxPooling2D" }

func (maxPool2D) OutputShape(in []Shape) (Shape, error) {
	s, err := single(in)
	if err != nil {
		return Shape{}, err
	}
	if s.H < 2 || s.W < 2 {
		return Shape{}, &ShapeError{Want: Shape{N: s.N, H: 2, W: 2, C: s.C}, Got: s, Msg: "pooling window larger than input"}
	}
	return Shape{N: s.N, H: s.H / 2, W: s.W / 2, C: s.C}, nil
}

func (p maxPool2D) Forward(_ context.Context, _ ExecOptions, in []*Tensor) (*Tensor, error) {
	x := in[0]
	s, err := p.OutputShape([]Shape{x.Shape})
	if err != nil {
		return nil, err
	}
	out := NewTensor(s)
	for n := 0; n < s.N; n++ {
		for y := 0; y < s.H; y++ {
			for xx := 0; xx < s.W; xx++ {
				dst := out.Pixel(n, y, xx)
				a := x.Pixel(n, 2*y, 2*xx)
				b := x.Pixel(n, 2*y, 2*xx+1)
				c := x.Pixel(n, 2*y+1, 2*xx)
				d := x.Pixel(n, 2*y+1, 2*xx+1)
				for ch := range dst {
					dst[ch] = max(a[ch], b[ch], c[ch], d[ch])
				}
			}
		}
	}
	return out, nil
}

func (maxPool2D) Params() []*Param { return nil }

// upSample2D is a 2x2 nearest neighbor upsampling.
type upSample2D struct{}

func (upSample2D) Kind() string { return "UpSampling2D" }

func (upSample2D) OutputShape(in []Shape) (Shape, error) {
	s, err := single(in)
	if err != nil {
		return Shape{}, err
	}
	return Shape{N: s.N, H: s.H * 2, W: s.W * 2, C: s.C}, nil
}

func (upSample2D) Forward(_ context.Context, _ ExecOptions, in []*Tensor) (*Tensor, error) {
	x := in[0]
	s := x.Shape
	out := NewTensor(Shape{N: s.N, H: s.H * 2, W: s.W * 2, C: s.C})
	for n := 0; n < out.Shape.N; n++ {
		for y := 0; y < out.Shape.H; y++ {
			for xx := 0; xx < out.Shape.W; xx++ {
				copy(out.Pixel(n, y, xx), x.Pixel(n, y/2, xx/2))
			}
		}
	}
	return out, nil
}

func (upSample2D) Params() []*Param { return nil }

// concat joins its inputs along the channel axis, in input order.
type concat struct{}

func (concat) Kind() string { return "Concatenate" }

func (concat) OutputShape(in []Shape) (Shape, error) {
	if len(in) < 2 {
		return Shape{}, fmt.Errorf("expected at least 2 inputs, got %d", len(in))
	}
	ret := in[0]
	for _, s := range in[1:] {
		if !s.SameSpatial(in[0]) {
			return Shape{}, &ShapeError{
				Want: Shape{N: in[0].N, H: in[0].H, W: in[0].W, C: s.C},
				Got:  s,
				Msg:  "concatenation requires matching spatial size",
			}
		}
		ret.C += s.C
	}
	return ret, nil
}

func (c concat) Forward(_ context.Context, _ ExecOptions, in []*Tensor) (*Tensor, error) {
	shapes := make([]Shape, len(in))
	for i, t := range in {
		shapes[i] = t.Shape
	}
	s, err := c.OutputShape(shapes)
	if err != nil {
		return nil, err
	}
	out := NewTensor(s)
	for n := 0; n < s.N; n++ {
		for y := 0; y < s.H; y++ {
			for x := 0; x < s.W; x++ {
				dst := out.Pixel(n, y, x)
				off := 0
				for _, t := range in {
					off += copy(dst[off:], t.Pixel(n, y, x))
				}
			}
		}
	}
	return out, nil
}

func (concat) Params() []*Param { return nil }

// add sums its inputs element-wise.
type add struct{}

func (add) Kind() string { return "Add" }

func (add) OutputShape(in []Shape) (Shape, error) {
	if len(in) < 2 {
		return Shape{}, fmt.Errorf("expected at least 2 inputs, got %d", len(in))
	}
	for _, s := range in[1:] {
		if s != in[0] {
			return Shape{}, &ShapeError{Want: in[0], Got: s, Msg: "addition requires identical shapes"}
		}
	}
	return in[0], nil
}

func (a add) Forward(_ context.Context, _ ExecOptions, in []*Tensor) (*Tensor, error) {
	for _, t := range in[1:] {
		if t.Shape != in[0].Shape {
			return nil, &ShapeError{Want: in[0].Shape, Got: t.Shape, Msg: "addition requires identical shapes"}
		}
	}
	out := in[0].Clone()
	for _, t := range in[1:] {
		for i, v := range t.Data {
			out.Data[i] += v
		}
	}
	return out, nil
}

func (add) Params() []*Param { return nil }

// clip clamps every element to [lo, hi]. NaN is mapped to lo.
type clip struct {
	lo, hi float32
}

func (clip) Kind() string { return "Clip" }

func (clip) OutputShape(in []Shape) (Shape, error) { return single(in) }

func (c clip) Forward(_ context.Context, _ ExecOptions, in []*Tensor) (*Tensor, error) {
	out := NewTensor(in[0].Shape)
	for i, v := range in[0].Data {
		switch {
		case v >= c.hi:
			v = c.hi
		case v >= c.lo:
		default:
			v = c.lo
		}
		out.Data[i] = v
	}
	return out, nil
}

func (clip) Params() []*Param { return nil }
