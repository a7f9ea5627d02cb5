package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// conv2D is a stride 1 convolution with same padding.
// The kernel is stored as (KH, KW, C_in, C_out), the bias as (C_out).
type conv2D struct {
	size       int
	filters    int
	activation Activation
	kernel     *Param
	bias       *Param
}

func newConv2D(name string, in, filters, size int, act Activation) *conv2D {
	return &conv2D{
		size:       size,
		filters:    filters,
		activation: act,
		kernel:     newParam(name+"/kernel", 0, size, size, in, filters),
		bias:       newParam(name+"/bias", 0, filters),
	}
}

func (l *conv2D) Kind() string { return "Conv2D" }

func (l *conv2D) inChannels() int {
	return l.kernel.Dims[2]
}

func (l *conv2D) OutputShape(in []Shape) (Shape, error) {
	s, err := single(in)
	if err != nil {
		return Shape{}, err
	}
	if s.C != l.inChannels() {
		return Shape{}, &ShapeError{
			Want: Shape{N: s.N, H: s.H, W: s.W, C: l.inChannels()},
			Got:  s,
			Msg:  "input channels differ from kernel",
		}
	}
	return Shape{N: s.N, H: s.H, W: s.W, C: l.filters}, nil
}

// Forward computes the convolution row by row: every output row is an
// im2col patch matrix (W, KH*KW*C_in) multiplied by the kernel matrix
// (KH*KW*C_in, C_out). Rows are distributed over at most opt.Parallel
// goroutines; each output element is computed by exactly one of them.
func (l *conv2D) Forward(ctx context.Context, opt ExecOptions, in []*Tensor) (*Tensor, error) {
	x := in[0]
	s, err := l.OutputShape([]Shape{x.Shape})
	if err != nil {
		return nil, err
	}
	out := NewTensor(s)
	cols := l.size * l.size * x.Shape.C
	kernel := blas32.General{Rows: cols, Cols: l.filters, Stride: l.filters, Data: l.kernel.Data}

	rows := s.N * s.H
	workers := min(opt.parallel(), rows)
	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		eg.Go(func() error {
			patch := make([]float32, x.Shape.W*cols)
			for r := w; r < rows; r += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				n, y := r/s.H, r%s.H
				l.im2row(patch, x, n, y)
				dst := out.Row(n, y)
				for i := 0; i < s.W; i++ {
					copy(dst[i*l.filters:(i+1)*l.filters], l.bias.Data)
				}
				blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
					blas32.General{Rows: s.W, Cols: cols, Stride: cols, Data: patch},
					kernel,
					1,
					blas32.General{Rows: s.W, Cols: l.filters, Stride: l.filters, Data: dst},
				)
				if l.activation == ReLU {
					for i, v := range dst {
						if v < 0 {
							dst[i] = 0
						}
					}
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// im2row fills patch with the receptive fields of output row y of batch n.
// Each patch row is laid out as (ky, kx, c) to match the kernel layout;
// positions outside the input are zero.
func (l *conv2D) im2row(patch []float32, x *Tensor, n, y int) {
	s := x.Shape
	pad := (l.size - 1) / 2
	i := 0
	for xx := 0; xx < s.W; xx++ {
		for ky := 0; ky < l.size; ky++ {
			sy := y + ky - pad
			for kx := 0; kx < l.size; kx++ {
				sx := xx + kx - pad
				dst := patch[i : i+s.C]
				if sy < 0 || sy >= s.H || sx < 0 || sx >= s.W {
					for j := range dst {
						dst[j] = 0
					}
				} else {
					copy(dst, x.Pixel(n, sy, sx))
				}
				i += s.C
			}
		}
	}
}

func (l *conv2D) Params() []*Param {
	return []*Param{l.kernel, l.bias}
}
