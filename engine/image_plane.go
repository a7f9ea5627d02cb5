package engine

import (
	"fmt"
)

// Channels is the number of color channels of an Image.
const Channels = 3

// Image represents an RGB image in which each pixel has a continuous value in [0, 1].
// Pixels are stored row-major and channel-interleaved, i.e. shape (H, W, 3).
type Image struct {
	Width  int
	Height int
	Pix    []float32
}

// NewImage returns a black image of specific width and height.
func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]float32, width*height*Channels),
	}
}

// NewNormalizedImage creates a normalized image from a channel image.
func NewNormalizedImage(c ChannelImage) (*Image, error) {
	img := NewImage(c.Width, c.Height)
	if len(c.Buffer) != len(img.Pix) {
		return nil, fmt.Errorf("invalid channel image: width*height*3=%d <> len(buffer)=%d", len(img.Pix), len(c.Buffer))
	}
	for i, v := range c.Buffer {
		img.Pix[i] = float32(v) / 255.0
	}
	return img, nil
}

// Index returns the buffer position of the red component at (x, y).
func (p *Image) Index(x, y int) int {
	return (x + y*p.Width) * Channels
}

// At returns the RGB components at (x, y).
func (p *Image) At(x, y int) (r, g, b float32) {
	i := p.Index(x, y)
	if i < 0 || i+2 >= len(p.Pix) {
		panic(fmt.Errorf("x %d, y %d, index %d, len(pix) %d", x, y, i, len(p.Pix)))
	}
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2]
}

// SetAt sets the RGB components at (x, y).
func (p *Image) SetAt(x, y int, r, g, b float32) {
	i := p.Index(x, y)
	p.Pix[i], p.Pix[i+1], p.Pix[i+2] = r, g, b
}

// Shape returns the batched tensor shape of the image.
func (p *Image) Shape() Shape {
	return Shape{N: 1, H: p.Height, W: p.Width, C: Channels}
}

// Clone returns a deep copy of the image.
func (p *Image) Clone() *Image {
	ret := NewImage(p.Width, p.Height)
	copy(ret.Pix, p.Pix)
	return ret
}

// Batch returns a new tensor holding the image with a leading batch axis of size 1.
func (p *Image) Batch() *Tensor {
	t := NewTensor(p.Shape())
	copy(t.Data, p.Pix)
	return t
}

// Unbatch returns the n-th element of a batched 3 channel tensor as a new image.
func Unbatch(t *Tensor, n int) (*Image, error) {
	if t.Shape.C != Channels || n < 0 || n >= t.Shape.N {
		return nil, &ShapeError{
			Stage: "unbatch",
			Want:  Shape{N: n + 1, H: t.Shape.H, W: t.Shape.W, C: Channels},
			Got:   t.Shape,
		}
	}
	img := NewImage(t.Shape.W, t.Shape.H)
	off := t.Index(n, 0, 0, 0)
	copy(img.Pix, t.Data[off:off+len(img.Pix)])
	return img, nil
}

// OutOfRange returns the number of components outside [0, 1] (NaN included).
func (p *Image) OutOfRange() int {
	var n int
	for _, v := range p.Pix {
		if !(v >= 0 && v <= 1) {
			n++
		}
	}
	return n
}
