package display

import (
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/ikawaha/deblur.go/engine"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/termenv"
)

// DefaultColumns is the default width of each rendered image in terminal cells.
const DefaultColumns = 48

// upperHalfBlock renders two vertically stacked pixels in one cell:
// the foreground colors the upper one, the background the lower one.
const upperHalfBlock = "▀"

// Terminal renders the pair with 24-bit colored half blocks.
type Terminal struct {
	w       io.Writer
	out     *termenv.Output
	columns int
}

// NewTerminal returns a terminal displayer writing to w with each image
// columns cells wide. The color profile is detected from w unless given.
func NewTerminal(w io.Writer, columns int, opts ...termenv.OutputOption) *Terminal {
	if columns <= 0 {
		columns = DefaultColumns
	}
	return &Terminal{
		w:       w,
		out:     termenv.NewOutput(w, opts...),
		columns: columns,
	}
}

// Show implements Displayer.
func (t *Terminal) Show(original, deblurred *engine.Image) error {
	for _, img := range []*engine.Image{original, deblurred} {
		if img == nil || img.Width <= 0 || img.Height <= 0 {
			return fmt.Errorf("cannot render an empty image")
		}
	}
	left := t.fit(original)
	right := t.fit(deblurred)
	cols := left.Bounds().Dx()
	const gap = "  "

	var b strings.Builder
	fmt.Fprintf(&b, "%s%s%s\n", pad(OriginalTitle, cols), gap, pad(DeblurredTitle, right.Bounds().Dx()))
	rows := max(left.Bounds().Dy(), right.Bounds().Dy())
	for y := 0; y < rows; y += 2 {
		t.writeRow(&b, left, y)
		b.WriteString(gap)
		t.writeRow(&b, right, y)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(t.w, b.String())
	return err
}

// fit downsamples the image to the column budget, keeping the aspect
// ratio of square pixels (each cell holds two rows).
func (t *Terminal) fit(img *engine.Image) *image.NRGBA {
	cols := min(t.columns, img.Width)
	rows := max(1, (img.Height*cols+img.Width/2)/img.Width)
	if rows%2 == 1 {
		rows++
	}
	return engine.Resize(img.RGBA(), cols, rows)
}

func (t *Terminal) writeRow(b *strings.Builder, img *image.NRGBA, y int) {
	r := img.Bounds()
	for x := 0; x < r.Dx(); x++ {
		top := t.color(img, x, y)
		bottom := top
		if y+1 < r.Dy() {
			bottom = t.color(img, x, y+1)
		}
		b.WriteString(t.out.String(upperHalfBlock).Foreground(top).Background(bottom).String())
	}
}

func (t *Terminal) color(img *image.NRGBA, x, y int) termenv.Color {
	c := img.NRGBAAt(x, y)
	cf := colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}
	return t.out.Color(cf.Clamped().Hex())
}

func pad(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return string([]rune(s)[:width])
	}
	return s + strings.Repeat(" ", width-n)
}
