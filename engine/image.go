package engine

import (
	"image"
	_ "image/gif"  // register gif decoder
	_ "image/jpeg" // register jpeg decoder
	_ "image/png"  // register png decoder
	"io"
	"os"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"  // register bmp decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register tiff decoder
	_ "golang.org/x/image/webp" // register webp decoder
)

// LoadImage reads the image file named by path, resizes it to width x height
// and returns it normalized to [0, 1].
func LoadImage(path string, width, height int) (*Image, error) {
	fp, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrInputNotFound, path)
		}
		return nil, errors.Wrapf(err, "open image %s", path)
	}
	defer fp.Close()
	img, err := DecodeImage(fp, width, height)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Path = path
		}
		return nil, err
	}
	return img, nil
}

// DecodeImage decodes an image from r, resizes it to width x height with
// bilinear interpolation and returns it normalized to [0, 1].
func DecodeImage(r io.Reader, width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid image size %dx%d", width, height)
	}
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return NewNormalizedImage(NewChannelImage(Resize(src, width, height)))
}

// Resize returns a resized copy of the image.
func Resize(src image.Image, width, height int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		draw.Copy(dst, image.Point{}, src, src.Bounds(), draw.Src, nil)
		return dst
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
