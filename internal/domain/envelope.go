package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// CRS identifies a coordinate reference system by authority code.
type CRS struct {
	Code      string // Full code, e.g. "EPSG:4326".
	Authority string // Authority name, e.g. "EPSG".
	SRID      int    // Numeric identifier used by spatial databases.
}

// IsZero reports whether the CRS is unset.
func (c CRS) IsZero() bool {
	return c.Code == "" && c.SRID == 0
}

func (c CRS) String() string {
	if c.Code != "" {
		return c.Code
	}
	if c.SRID != 0 {
		return "SRID:" + strconv.Itoa(c.SRID)
	}
	return "<unset>"
}

// Envelope is an axis-aligned rectangle in world coordinates.
type Envelope struct {
	Bound orb.Bound
	CRS   CRS
}

// NewEnvelope builds an envelope from its corner coordinates.
// Corners are normalized so Min <= Max on both axes.
func NewEnvelope(minX, minY, maxX, maxY float64, crs CRS) Envelope {
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return Envelope{
		Bound: orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}},
		CRS:   crs,
	}
}

// ParseBBox parses a "minx,miny,maxx,maxy" string.
func ParseBBox(s string, crs CRS) (Envelope, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Envelope{}, fmt.Errorf("bbox must have 4 comma-separated values, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Envelope{}, fmt.Errorf("invalid bbox value %q: %w", p, err)
		}
		v[i] = f
	}
	env := NewEnvelope(v[0], v[1], v[2], v[3], crs)
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// MinX returns the western edge.
func (e Envelope) MinX() float64 { return e.Bound.Min[0] }

// MinY returns the southern edge.
func (e Envelope) MinY() float64 { return e.Bound.Min[1] }

// MaxX returns the eastern edge.
func (e Envelope) MaxX() float64 { return e.Bound.Max[0] }

// MaxY returns the northern edge.
func (e Envelope) MaxY() float64 { return e.Bound.Max[1] }

// Width returns the extent along the X axis.
func (e Envelope) Width() float64 { return e.Bound.Max[0] - e.Bound.Min[0] }

// Height returns the extent along the Y axis.
func (e Envelope) Height() float64 { return e.Bound.Max[1] - e.Bound.Min[1] }

// Validate checks that the envelope is a finite, non-degenerate rectangle.
func (e Envelope) Validate() error {
	for _, v := range []float64{e.MinX(), e.MinY(), e.MaxX(), e.MaxY()} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("envelope %s has non-finite coordinates", e)
		}
	}
	if e.Width() <= 0 || e.Height() <= 0 {
		return fmt.Errorf("envelope %s is degenerate", e)
	}
	return nil
}

// Intersection returns the overlap of two envelopes. The second result is
// false when the envelopes are disjoint or only share an edge.
// The CRS of the receiver is kept.
func (e Envelope) Intersection(o Envelope) (Envelope, bool) {
	if !e.Bound.Intersects(o.Bound) {
		return Envelope{}, false
	}
	minX := math.Max(e.MinX(), o.MinX())
	minY := math.Max(e.MinY(), o.MinY())
	maxX := math.Min(e.MaxX(), o.MaxX())
	maxY := math.Min(e.MaxY(), o.MaxY())
	if maxX <= minX || maxY <= minY {
		return Envelope{}, false
	}
	return NewEnvelope(minX, minY, maxX, maxY, e.CRS), true
}

// Polygon returns the envelope as a closed polygon ring.
func (e Envelope) Polygon() orb.Polygon {
	return e.Bound.ToPolygon()
}

// Equal compares coordinates with a small tolerance.
func (e Envelope) Equal(o Envelope) bool {
	const epsilon = 1e-9
	return math.Abs(e.MinX()-o.MinX()) < epsilon &&
		math.Abs(e.MinY()-o.MinY()) < epsilon &&
		math.Abs(e.MaxX()-o.MaxX()) < epsilon &&
		math.Abs(e.MaxY()-o.MaxY()) < epsilon
}

func (e Envelope) String() string {
	return fmt.Sprintf("[%g,%g %g,%g %s]", e.MinX(), e.MinY(), e.MaxX(), e.MaxY(), e.CRS)
}
