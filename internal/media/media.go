package media

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/fathima-sithara/mailbox-service/internal/domain"
)

const MaxUploadBytes = 10 * 1024 * 1024

var allowedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/gif":  true,
}

// Validate checks size and content type before anything is decoded. An empty
// declared type falls back to sniffing the bytes.
func Validate(contentType string, data []byte) error {
	if len(data) == 0 || len(data) > MaxUploadBytes {
		return fmt.Errorf("%w: image size not allowed", domain.ErrValidation)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !allowedTypes[contentType] {
		return fmt.Errorf("%w: content type %q not allowed", domain.ErrValidation, contentType)
	}
	return nil
}

// Normalize decodes an image, applies EXIF orientation, shrinks it to fit in
// maxDim x maxDim and re-encodes it as JPEG.
func Normalize(data []byte, maxDim int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decode image: %v", domain.ErrValidation, err)
	}
	b := img.Bounds()
	if maxDim > 0 && (b.Dx() > maxDim || b.Dy() > maxDim) {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
