// Package interp resamples regular grids with bilinear interpolation.
package interp

import (
	"math"
	"sort"

	"github.com/juju/errors"
)

// GridCell represents a cell in a regular grid with four corner values.
type GridCell struct {
	// Corner coordinates (forming a rectangle).
	X0, X1 float64
	Y0, Y1 float64

	// Values at the four corners:
	// V00: value at (X0, Y0).
	// V10: value at (X1, Y0).
	// V01: value at (X0, Y1).
	// V11: value at (X1, Y1).
	V00, V10, V01, V11 float64
}

// BilinearInterpolate performs bilinear interpolation within a grid cell
// Formula:
//
//	f(x,y) ≈ (1-t)(1-u)f(x0,y0) + t(1-u)f(x1,y0) + (1-t)u*f(x0,y1) + tu*f(x1,y1)
//
// where:
//
//	t = (x - x0) / (x1 - x0)
//	u = (y - y0) / (y1 - y0)
//
// A NaN corner (no data) makes the result NaN.
func BilinearInterpolate(cell GridCell, x, y float64) (float64, error) {
	if cell.X1 <= cell.X0 {
		return 0, errors.NotValidf("grid cell with X1 <= X0")
	}
	if cell.Y1 <= cell.Y0 {
		return 0, errors.NotValidf("grid cell with Y1 <= Y0")
	}

	// Check if point is within cell (with small tolerance for floating point).
	const epsilon = 1e-9
	if x < cell.X0-epsilon || x > cell.X1+epsilon {
		return 0, errors.Errorf("x coordinate %.6f is outside grid cell [%.6f, %.6f]", x, cell.X0, cell.X1)
	}
	if y < cell.Y0-epsilon || y > cell.Y1+epsilon {
		return 0, errors.Errorf("y coordinate %.6f is outside grid cell [%.6f, %.6f]", y, cell.Y0, cell.Y1)
	}

	t := math.Max(0, math.Min(1, (x-cell.X0)/(cell.X1-cell.X0)))
	u := math.Max(0, math.Min(1, (y-cell.Y0)/(cell.Y1-cell.Y0)))

	return (1-t)*(1-u)*cell.V00 +
		t*(1-u)*cell.V10 +
		(1-t)*u*cell.V01 +
		t*u*cell.V11, nil
}

// Grid2D is a regular grid of cell-centre samples.
type Grid2D struct {
	X      []float64   // Cell-centre X coordinates, strictly increasing.
	Y      []float64   // Cell-centre Y coordinates, strictly increasing (south to north).
	Values [][]float64 // Values[i][j] corresponds to (X[j], Y[i]). NaN is no data.
}

// Validate checks if the grid is valid.
func (g *Grid2D) Validate() error {
	if len(g.X) < 2 {
		return errors.NotValidf("grid with %d X coordinates", len(g.X))
	}
	if len(g.Y) < 2 {
		return errors.NotValidf("grid with %d Y coordinates", len(g.Y))
	}
	if len(g.Values) != len(g.Y) {
		return errors.NotValidf("grid with %d value rows for %d Y coordinates", len(g.Values), len(g.Y))
	}
	for i, row := range g.Values {
		if len(row) != len(g.X) {
			return errors.NotValidf("grid row %d with %d values, expected %d", i, len(row), len(g.X))
		}
	}
	for i := 1; i < len(g.X); i++ {
		if g.X[i] <= g.X[i-1] {
			return errors.NotValidf("grid X coordinates not strictly increasing")
		}
	}
	for i := 1; i < len(g.Y); i++ {
		if g.Y[i] <= g.Y[i-1] {
			return errors.NotValidf("grid Y coordinates not strictly increasing")
		}
	}
	return nil
}

// Spacing returns the mean cell size along each axis.
func (g *Grid2D) Spacing() (dx, dy float64) {
	dx = (g.X[len(g.X)-1] - g.X[0]) / float64(len(g.X)-1)
	dy = (g.Y[len(g.Y)-1] - g.Y[0]) / float64(len(g.Y)-1)
	return dx, dy
}

// IsRegular reports whether every spacing is within tol (relative) of the mean.
func (g *Grid2D) IsRegular(tol float64) bool {
	dx, dy := g.Spacing()
	for i := 1; i < len(g.X); i++ {
		if math.Abs(g.X[i]-g.X[i-1]-dx) > tol*dx {
			return false
		}
	}
	for i := 1; i < len(g.Y); i++ {
		if math.Abs(g.Y[i]-g.Y[i-1]-dy) > tol*dy {
			return false
		}
	}
	return true
}

// cellIndex returns i such that axis[i] <= v <= axis[i+1].
func cellIndex(axis []float64, v float64) int {
	if v < axis[0] || v > axis[len(axis)-1] {
		return -1
	}
	i := sort.SearchFloat64s(axis, v) - 1
	return max(0, min(i, len(axis)-2))
}

// InterpolateAt performs bilinear interpolation at a given point.
// The grid is assumed valid.
func (g *Grid2D) InterpolateAt(x, y float64) (float64, error) {
	xIdx := cellIndex(g.X, x)
	if xIdx == -1 {
		return 0, errors.Errorf("x coordinate %.6f is outside grid range [%.6f, %.6f]", x, g.X[0], g.X[len(g.X)-1])
	}
	yIdx := cellIndex(g.Y, y)
	if yIdx == -1 {
		return 0, errors.Errorf("y coordinate %.6f is outside grid range [%.6f, %.6f]", y, g.Y[0], g.Y[len(g.Y)-1])
	}

	cell := GridCell{
		X0:  g.X[xIdx],
		X1:  g.X[xIdx+1],
		Y0:  g.Y[yIdx],
		Y1:  g.Y[yIdx+1],
		V00: g.Values[yIdx][xIdx],
		V10: g.Values[yIdx][xIdx+1],
		V01: g.Values[yIdx+1][xIdx],
		V11: g.Values[yIdx+1][xIdx+1],
	}
	return BilinearInterpolate(cell, x, y)
}

// Downsample returns a grid covering the same cell extent with factor
// times fewer cells along each axis (rounded up, at least two).
// Samples falling outside the source centres are clamped to the border.
func (g *Grid2D) Downsample(factor int) (*Grid2D, error) {
	if err := g.Validate(); err != nil {
		return nil, errors.Annotate(err, "downsample")
	}
	if factor < 1 {
		return nil, errors.NotValidf("downsample factor %d", factor)
	}
	if factor == 1 {
		return g, nil
	}
	xs := resampleAxis(g.X, factor)
	ys := resampleAxis(g.Y, factor)

	out := &Grid2D{X: xs, Y: ys, Values: make([][]float64, len(ys))}
	for i, y := range ys {
		row := make([]float64, len(xs))
		cy := clampFloat(y, g.Y[0], g.Y[len(g.Y)-1])
		for j, x := range xs {
			v, err := g.InterpolateAt(clampFloat(x, g.X[0], g.X[len(g.X)-1]), cy)
			if err != nil {
				return nil, errors.Annotatef(err, "sample (%g, %g)", x, y)
			}
			row[j] = v
		}
		out.Values[i] = row
	}
	return out, nil
}

// resampleAxis returns the cell centres of a coarser axis spanning the
// same cell extent as axis.
func resampleAxis(axis []float64, factor int) []float64 {
	step := (axis[len(axis)-1] - axis[0]) / float64(len(axis)-1)
	lo := axis[0] - step/2
	width := step * float64(len(axis))
	n := max(2, (len(axis)+factor-1)/factor)
	cell := width / float64(n)
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (float64(i)+0.5)*cell
	}
	return out
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
