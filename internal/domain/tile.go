package domain

import (
	"fmt"
	"image"
)

// PixelDimension is the size of the requested output image.
type PixelDimension struct {
	Width  int
	Height int
}

// TileQuery carries everything one tile query needs.
// It is created per call and not retained afterwards.
type TileQuery struct {
	Envelope Envelope
	Pixels   PixelDimension
	Level    PyramidLevel
}

// Validate checks the query before any database access.
func (q TileQuery) Validate() error {
	if err := q.Envelope.Validate(); err != nil {
		return fmt.Errorf("invalid request envelope: %w", err)
	}
	if q.Pixels.Width <= 0 || q.Pixels.Height <= 0 {
		return fmt.Errorf("pixel dimension must be positive (got %dx%d)", q.Pixels.Width, q.Pixels.Height)
	}
	if q.Level.TileTable == "" {
		return fmt.Errorf("query has no resolved level")
	}
	return nil
}

// DecodedTile is one decoded, georeferenced image tile.
type DecodedTile struct {
	CoverageName string
	Image        image.Image
	Envelope     Envelope
}
