package engine

import (
	"image"
	"image/color"
	"math"
)

// ChannelImage represents a discrete RGB image, 3 bytes per pixel.
type ChannelImage struct {
	Width  int
	Height int
	Buffer []uint8
}

// NewChannelImageWidthHeight returns a channel image of specific width and height.
func NewChannelImageWidthHeight(width, height int) ChannelImage {
	return ChannelImage{
		Width:  width,
		Height: height,
		Buffer: make([]uint8, width*height*Channels),
	}
}

// NewChannelImage returns a channel image corresponding to the specified image.
// The alpha channel is dropped, color values are taken as stored (not premultiplied).
func NewChannelImage(img image.Image) ChannelImage {
	r := img.Bounds()
	c := NewChannelImageWidthHeight(r.Dx(), r.Dy())
	switch t := img.(type) {
	case *image.NRGBA:
		for y := 0; y < r.Dy(); y++ {
			o := t.PixOffset(r.Min.X, r.Min.Y+y)
			row := t.Pix[o : o+r.Dx()*4]
			for x := 0; x < r.Dx(); x++ {
				i := (x + y*c.Width) * Channels
				c.Buffer[i], c.Buffer[i+1], c.Buffer[i+2] = row[x*4], row[x*4+1], row[x*4+2]
			}
		}
	default:
		for y := 0; y < r.Dy(); y++ {
			for x := 0; x < r.Dx(); x++ {
				n := color.NRGBAModel.Convert(img.At(r.Min.X+x, r.Min.Y+y)).(color.NRGBA)
				i := (x + y*c.Width) * Channels
				c.Buffer[i], c.Buffer[i+1], c.Buffer[i+2] = n.R, n.G, n.B
			}
		}
	}
	return c
}

// NewDenormalizedChannelImage returns a channel image corresponding to the image.
func NewDenormalizedChannelImage(p *Image) ChannelImage {
	img := NewChannelImageWidthHeight(p.Width, p.Height)
	for i, f := range p.Pix {
		v := int(math.Round(float64(f) * 255.0))
		if v < 0 {
			v = 0
		} else if v > 255 {
			v = 255
		}
		img.Buffer[i] = uint8(v)
	}
	return img
}

// ImageRGBA converts the channel image to an opaque image.RGBA and return it.
func (c ChannelImage) ImageRGBA() *image.RGBA {
	ret := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	for i := 0; i < c.Width*c.Height; i++ {
		ret.Pix[i*4] = c.Buffer[i*Channels]
		ret.Pix[i*4+1] = c.Buffer[i*Channels+1]
		ret.Pix[i*4+2] = c.Buffer[i*Channels+2]
		ret.Pix[i*4+3] = 0xff
	}
	return ret
}

// RGBA denormalizes the image into an opaque image.RGBA.
func (p *Image) RGBA() *image.RGBA {
	return NewDenormalizedChannelImage(p).ImageRGBA()
}
