package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/fathima-sithara/mailbox-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.NRGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestValidate(t *testing.T) {
	data := pngBytes(t, 4, 4)
	assert.NoError(t, Validate("image/png", data))
	assert.NoError(t, Validate("", data))
	assert.ErrorIs(t, Validate("video/mp4", data), domain.ErrValidation)
	assert.ErrorIs(t, Validate("image/png", nil), domain.ErrValidation)
}

func TestNormalizeShrinksLargeImages(t *testing.T) {
	out, err := Normalize(pngBytes(t, 400, 200), 100)
	require.NoError(t, err)

	img, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestNormalizeKeepsSmallImages(t *testing.T) {
	out, err := Normalize(pngBytes(t, 30, 20), 100)
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dx())
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := Normalize([]byte("not an image"), 100)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
