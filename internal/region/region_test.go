package region

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/sells-group/loomtrack/internal/model"
)

func TestPixelRect(t *testing.T) {
	tests := []struct {
		name string
		box  model.Box
		w, h int
		want image.Rectangle
	}{
		{"quarter", model.Box{X: 0, Y: 0, Width: 50, Height: 50}, 200, 100, image.Rect(0, 0, 100, 50)},
		{"rounded", model.Box{X: 10.4, Y: 33.3, Width: 20, Height: 10}, 101, 99, image.Rect(11, 33, 31, 43)},
		{"clipped", model.Box{X: 80, Y: 80, Width: 50, Height: 50}, 100, 100, image.Rect(80, 80, 100, 100)},
		{"out of range clamps", model.Box{X: -5, Y: 0, Width: 150, Height: 100}, 10, 10, image.Rect(0, 0, 10, 10)},
		{"zero size", model.Box{X: 10, Y: 10}, 100, 100, image.Rectangle{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PixelRect(tt.box, tt.w, tt.h)
			if tt.want.Empty() {
				assert.True(t, got.Empty())
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := uint8(100 + x*50/w)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v / 2, B: 200, A: 255})
		}
	}
	return img
}

func TestPrepare_CropsAndGrays(t *testing.T) {
	img := gradient(200, 100)
	out, err := Prepare(img, model.Box{X: 25, Y: 10, Width: 50, Height: 20}, model.HintText)
	require.NoError(t, err)
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 20, out.Bounds().Dy())

	for _, p := range []image.Point{{0, 0}, {50, 10}, {99, 19}} {
		c := out.NRGBAAt(p.X, p.Y)
		assert.Equal(t, c.R, c.G)
		assert.Equal(t, c.G, c.B)
	}
}

func TestPrepare_NumberHintDiffersFromText(t *testing.T) {
	img := gradient(100, 100)
	box := model.Box{X: 0, Y: 0, Width: 100, Height: 100}
	text, err := Prepare(img, box, model.HintText)
	require.NoError(t, err)
	number, err := Prepare(img, box, model.HintNumber)
	require.NoError(t, err)
	assert.Equal(t, text.Bounds(), number.Bounds())
	assert.NotEqual(t, text.Pix, number.Pix)
}

func TestPrepare_EmptyRegion(t *testing.T) {
	_, err := Prepare(gradient(10, 10), model.Box{X: 100, Y: 100, Width: 10, Height: 10}, model.HintText)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyRegion)
}

func TestPrepare_OffsetBounds(t *testing.T) {
	src := gradient(40, 40)
	sub := src.SubImage(image.Rect(20, 20, 40, 40))
	out, err := Prepare(sub, model.Box{X: 0, Y: 0, Width: 50, Height: 50}, model.HintMixed)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 10), out.Bounds())
}

func TestNormalize_StretchesChannels(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 100, G: 50, B: 7, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 150, G: 60, B: 7, A: 255})

	out := Normalize(img)
	assert.Equal(t, color.NRGBA{R: 0, G: 0, B: 7, A: 255}, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 7, A: 255}, out.NRGBAAt(1, 0))
}

func TestDecode_PNGAndBMP(t *testing.T) {
	src := gradient(8, 4)

	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, src))
	img, err := Decode(&pngBuf)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	var bmpBuf bytes.Buffer
	require.NoError(t, bmp.Encode(&bmpBuf, src))
	img, err = Decode(&bmpBuf)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dy())
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not an image")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region: decode image")
}

func TestEncodePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, gradient(4, 4)))
	_, format, err := image.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}
