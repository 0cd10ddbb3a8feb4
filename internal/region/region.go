// Package region crops and prepares percentage-addressed regions of a
// screenshot for OCR.
package region

import (
	"image"
	"image/color"
	"io"
	"math"

	"github.com/disintegration/imaging"
	"github.com/rotisserie/eris"

	"github.com/sells-group/loomtrack/internal/model"
)

// ErrEmptyRegion is returned when a box covers no pixels of the image.
var ErrEmptyRegion = eris.New("region: empty crop rectangle")

// contrastBoost is the contrast increase, in percent, applied before
// reading digits.
const contrastBoost = 30

// PixelRect converts a percentage box to a pixel rectangle of a w×h image.
// Each coordinate is rounded to the nearest pixel and the result is clipped
// to the image.
func PixelRect(box model.Box, w, h int) image.Rectangle {
	box = box.Clamp()
	x := int(math.Round(box.X / 100 * float64(w)))
	y := int(math.Round(box.Y / 100 * float64(h)))
	rw := int(math.Round(box.Width / 100 * float64(w)))
	rh := int(math.Round(box.Height / 100 * float64(h)))
	return image.Rect(x, y, x+rw, y+rh).Intersect(image.Rect(0, 0, w, h))
}

// Prepare crops box out of img and applies the preprocessing selected by
// hint. Number and time regions get a contrast boost before normalization.
// The result is always grayscale.
func Prepare(img image.Image, box model.Box, hint model.Hint) (*image.NRGBA, error) {
	b := img.Bounds()
	rect := PixelRect(box, b.Dx(), b.Dy()).Add(b.Min)
	if rect.Empty() {
		return nil, eris.Wrapf(ErrEmptyRegion, "box %+v on %dx%d image", box, b.Dx(), b.Dy())
	}

	out := imaging.Crop(img, rect)
	if hint == model.HintNumber || hint == model.HintTime {
		out = imaging.AdjustContrast(out, contrastBoost)
	}
	out = Normalize(out)
	return imaging.Grayscale(out), nil
}

// Normalize stretches each color channel so its darkest value maps to 0 and
// its brightest to 255. Flat channels are left unchanged.
func Normalize(img *image.NRGBA) *image.NRGBA {
	var lo, hi [3]uint8
	lo = [3]uint8{255, 255, 255}
	for i := 0; i+3 < len(img.Pix); i += 4 {
		for c := range 3 {
			v := img.Pix[i+c]
			lo[c] = min(lo[c], v)
			hi[c] = max(hi[c], v)
		}
	}

	var lut [3][256]uint8
	for c := range 3 {
		span := float64(hi[c]) - float64(lo[c])
		for v := range 256 {
			if span <= 0 {
				lut[c][v] = uint8(v)
				continue
			}
			s := (float64(v) - float64(lo[c])) * 255 / span
			lut[c][v] = uint8(math.Round(math.Max(0, math.Min(255, s))))
		}
	}

	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[0][c.R], G: lut[1][c.G], B: lut[2][c.B], A: c.A}
	})
}

// Decode reads an uploaded image in any of the accepted formats (jpeg, png,
// gif, bmp), honoring EXIF orientation.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, eris.Wrap(err, "region: decode image")
	}
	return img, nil
}

// Open decodes the image stored at path.
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, eris.Wrapf(err, "region: open %s", path)
	}
	return img, nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		return eris.Wrap(err, "region: encode png")
	}
	return nil
}
