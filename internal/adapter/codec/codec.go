// Package codec decodes tile payloads into images.
//
// Inline payloads are PostGIS raster WKB; server-encoded payloads are
// ordinary image files (PNG or JPEG).
package codec

import (
	"bytes"
	"image"
	_ "image/jpeg" // register JPEG for server-encoded tiles
	_ "image/png"  // register PNG for server-encoded tiles

	"github.com/juju/errors"

	"go.ngs.io/raster-pyramid/internal/domain"
)

// Decode turns one tile payload into an image according to how the level
// stores its pixels.
func Decode(payload []byte, mode domain.StorageMode) (image.Image, error) {
	if len(payload) == 0 {
		return nil, errors.NotValidf("empty tile payload")
	}
	switch mode {
	case domain.StorageInline:
		r, err := DecodeRaster(payload)
		if err != nil {
			return nil, errors.Annotate(err, "decode raster WKB")
		}
		return r.Image(), nil
	case domain.StorageEncoded:
		img, format, err := image.Decode(bytes.NewReader(payload))
		if err != nil {
			return nil, errors.Annotate(err, "decode encoded tile")
		}
		logger.Tracef("decoded %s tile %v", format, img.Bounds())
		return img, nil
	default:
		return nil, errors.NotSupportedf("storage mode %s", mode)
	}
}
