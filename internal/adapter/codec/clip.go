package codec

import (
	"image"
	"math"

	"github.com/juju/loggo/v2"

	"go.ngs.io/raster-pyramid/internal/domain"
)

var logger = loggo.GetLogger("pyramid.codec")

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Clip crops img, whose pixels cover footprint, to the part inside window.
// The crop is widened to whole pixels; the returned envelope is the exact
// georeferencing of the returned pixels. It reports false when footprint
// and window do not overlap.
func Clip(img image.Image, footprint, window domain.Envelope) (image.Image, domain.Envelope, bool) {
	overlap, ok := footprint.Intersection(window)
	if !ok {
		return nil, domain.Envelope{}, false
	}

	b := img.Bounds()
	if b.Empty() {
		return nil, domain.Envelope{}, false
	}
	sx := float64(b.Dx()) / footprint.Width()
	sy := float64(b.Dy()) / footprint.Height()

	// Rows count downwards from the northern edge.
	x0 := clampInt(int(math.Floor((overlap.MinX()-footprint.MinX())*sx+1e-9)), 0, b.Dx())
	x1 := clampInt(int(math.Ceil((overlap.MaxX()-footprint.MinX())*sx-1e-9)), 0, b.Dx())
	y0 := clampInt(int(math.Floor((footprint.MaxY()-overlap.MaxY())*sy+1e-9)), 0, b.Dy())
	y1 := clampInt(int(math.Ceil((footprint.MaxY()-overlap.MinY())*sy-1e-9)), 0, b.Dy())
	if x1 <= x0 || y1 <= y0 {
		return nil, domain.Envelope{}, false
	}

	env := domain.NewEnvelope(
		footprint.MinX()+float64(x0)/sx,
		footprint.MaxY()-float64(y1)/sy,
		footprint.MinX()+float64(x1)/sx,
		footprint.MaxY()-float64(y0)/sy,
		footprint.CRS,
	)

	if x0 == 0 && y0 == 0 && x1 == b.Dx() && y1 == b.Dy() {
		return img, env, true
	}
	si, ok := img.(subImager)
	if !ok {
		logger.Debugf("%T cannot be cropped, keeping the whole tile", img)
		return img, footprint, true
	}
	rect := image.Rect(b.Min.X+x0, b.Min.Y+y0, b.Min.X+x1, b.Min.Y+y1)
	return si.SubImage(rect), env, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
