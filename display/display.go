// Package display presents an original and a deblurred image side by side.
package display

import (
	"image"
	"image/draw"
	"image/png"
	"os"

	"github.com/ikawaha/deblur.go/engine"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// Titles of the compared images.
const (
	OriginalTitle  = "Original (Blurred)"
	DeblurredTitle = "Deblurred"
)

// Displayer shows a pair of images.
type Displayer interface {
	Show(original, deblurred *engine.Image) error
}

// Multi shows the pair on every displayer in order and stops at the first error.
type Multi []Displayer

// Show implements Displayer.
func (m Multi) Show(original, deblurred *engine.Image) error {
	for _, d := range m {
		if err := d.Show(original, deblurred); err != nil {
			return err
		}
	}
	return nil
}

// IsTerminal reports whether f is a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// PNGFile writes the pair side by side into a PNG file.
type PNGFile struct {
	Path string
	// Gap is the number of white pixel columns between the images.
	Gap int
}

// Show implements Displayer.
func (p PNGFile) Show(original, deblurred *engine.Image) error {
	img := SideBySide(original.RGBA(), deblurred.RGBA(), p.Gap)
	fp, err := os.Create(p.Path)
	if err != nil {
		return errors.Wrap(err, "output file")
	}
	if err := png.Encode(fp, img); err != nil {
		fp.Close()
		return errors.Wrap(err, "output error")
	}
	return fp.Close()
}

// SideBySide composes left and right horizontally on a white background,
// separated by gap pixels and top aligned.
func SideBySide(left, right image.Image, gap int) *image.RGBA {
	lb, rb := left.Bounds(), right.Bounds()
	h := max(lb.Dy(), rb.Dy())
	ret := image.NewRGBA(image.Rect(0, 0, lb.Dx()+gap+rb.Dx(), h))
	draw.Draw(ret, ret.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(ret, image.Rect(0, 0, lb.Dx(), lb.Dy()), left, lb.Min, draw.Src)
	draw.Draw(ret, image.Rect(lb.Dx()+gap, 0, lb.Dx()+gap+rb.Dx(), rb.Dy()), right, rb.Min, draw.Src)
	return ret
}
