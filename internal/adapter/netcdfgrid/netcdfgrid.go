// Package netcdfgrid loads 2D gridded rasters (DEMs, bathymetry) from
// NetCDF files as interpolation grids for pyramid ingestion.
package netcdfgrid

import (
	"math"
	"slices"
	"sort"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/paulmach/orb"

	"go.ngs.io/raster-pyramid/internal/adapter/interp"
)

var logger = loggo.GetLogger("pyramid.netcdf")

// Vars names the coordinate and data variables of a grid file.
// Empty names fall back to common conventions.
type Vars struct {
	X    string
	Y    string
	Data string
}

func (v Vars) candidates() (xs, ys, data []string) {
	xs = compact(v.X, "lon", "longitude", "x")
	ys = compact(v.Y, "lat", "latitude", "y")
	data = compact(v.Data, "elevation", "z", "data", "band1")
	return xs, ys, data
}

func compact(first string, rest ...string) []string {
	if first == "" {
		return rest
	}
	return append([]string{first}, rest...)
}

// Load reads the whole grid.
func Load(path string, vars Vars) (*interp.Grid2D, error) {
	return load(path, vars, nil)
}

// LoadWindow reads the samples bracketing win, so interpolation is
// defined everywhere inside it.
func LoadWindow(path string, vars Vars, win orb.Bound) (*interp.Grid2D, error) {
	return load(path, vars, &win)
}

func load(path string, vars Vars, win *orb.Bound) (*interp.Grid2D, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, errors.Annotatef(err, "open %s", path)
	}
	defer func() { _ = nc.Close() }()

	xNames, yNames, dataNames := vars.candidates()
	xVar, xName, err := findVar(nc, xNames)
	if err != nil {
		return nil, errors.Annotate(err, "x axis")
	}
	yVar, yName, err := findVar(nc, yNames)
	if err != nil {
		return nil, errors.Annotate(err, "y axis")
	}
	dataVar, dataName, err := findVar(nc, dataNames)
	if err != nil {
		return nil, errors.Annotate(err, "data")
	}
	xs, err := readAxis(xVar)
	if err != nil {
		return nil, errors.Annotatef(err, "read %s", xName)
	}
	ys, err := readAxis(yVar)
	if err != nil {
		return nil, errors.Annotatef(err, "read %s", yName)
	}

	// Many products store rows north to south.
	yFlipped := len(ys) > 1 && ys[0] > ys[len(ys)-1]
	if yFlipped {
		slices.Reverse(ys)
	}

	xr := span{0, len(xs)}
	yr := span{0, len(ys)}
	if win != nil {
		xr = window(xs, win.Min[0], win.Max[0])
		yr = window(ys, win.Min[1], win.Max[1])
	}

	dims, err := dataVar.Dims()
	if err != nil {
		return nil, errors.Annotatef(err, "dimensions of %s", dataName)
	}
	if len(dims) != 2 {
		return nil, errors.NotValidf("%dD data variable %s", len(dims), dataName)
	}
	dim0, err := dims[0].Len()
	if err != nil {
		return nil, errors.Trace(err)
	}
	dim1, err := dims[1].Len()
	if err != nil {
		return nil, errors.Trace(err)
	}

	// File row offsets address the on-disk order.
	fileY := yr
	if yFlipped {
		fileY = span{len(ys) - yr.end, len(ys) - yr.start}
	}

	var values [][]float64
	switch {
	case dim0 == uint64(len(ys)) && dim1 == uint64(len(xs)):
		values, err = readSlab(dataVar, fileY, xr)
	case dim0 == uint64(len(xs)) && dim1 == uint64(len(ys)):
		var t [][]float64
		t, err = readSlab(dataVar, xr, fileY)
		values = transpose(t)
	default:
		return nil, errors.NotValidf("data shape [%d, %d] for axes %d x %d", dim0, dim1, len(ys), len(xs))
	}
	if err != nil {
		return nil, errors.Annotatef(err, "read %s", dataName)
	}
	if yFlipped {
		slices.Reverse(values)
	}

	grid := &interp.Grid2D{
		X:      xs[xr.start:xr.end],
		Y:      ys[yr.start:yr.end],
		Values: values,
	}
	if err := grid.Validate(); err != nil {
		return nil, errors.Annotatef(err, "grid %s", path)
	}
	logger.Debugf("loaded %s from %s: %dx%d", dataName, path, len(grid.X), len(grid.Y))
	return grid, nil
}

func findVar(nc netcdf.Dataset, names []string) (netcdf.Var, string, error) {
	for _, name := range names {
		if v, err := nc.Var(name); err == nil {
			return v, name, nil
		}
	}
	return netcdf.Var{}, "", errors.NotFoundf("variable (tried %v)", names)
}

func readAxis(v netcdf.Var) ([]float64, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(dims) != 1 {
		return nil, errors.NotValidf("%dD axis", len(dims))
	}
	n, err := dims[0].Len()
	if err != nil {
		return nil, errors.Trace(err)
	}
	data := make([]float64, n)
	if err := v.ReadFloat64s(data); err != nil {
		return nil, errors.Trace(err)
	}
	return data, nil
}

type span struct{ start, end int }

func (s span) len() int { return s.end - s.start }

// window returns the index span of axis bracketing [lo, hi], never
// narrower than two samples.
func window(axis []float64, lo, hi float64) span {
	start := sort.SearchFloat64s(axis, lo) - 1
	end := sort.SearchFloat64s(axis, hi) + 1
	start = clamp(start, 0, len(axis)-2)
	end = clamp(end, start+2, len(axis))
	return span{start, end}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

// readSlab reads a rows x cols hyperslab as float64, applying the CF
// packing attributes and mapping _FillValue and missing_value to NaN.
func readSlab(v netcdf.Var, rows, cols span) ([][]float64, error) {
	typ, err := v.Type()
	if err != nil {
		return nil, errors.Trace(err)
	}
	//nolint:gosec // G115: NetCDF offsets are non-negative.
	start := []uint64{uint64(rows.start), uint64(cols.start)}
	//nolint:gosec // G115: NetCDF counts are non-negative.
	count := []uint64{uint64(rows.len()), uint64(cols.len())}
	n := rows.len() * cols.len()

	flat := make([]float64, n)
	switch typ {
	case netcdf.DOUBLE:
		err = v.ReadFloat64Slice(flat, start, count)
	case netcdf.FLOAT:
		buf := make([]float32, n)
		if err = v.ReadFloat32Slice(buf, start, count); err == nil {
			for i, x := range buf {
				flat[i] = float64(x)
			}
		}
	case netcdf.SHORT:
		buf := make([]int16, n)
		if err = v.ReadInt16Slice(buf, start, count); err == nil {
			for i, x := range buf {
				flat[i] = float64(x)
			}
		}
	case netcdf.INT:
		buf := make([]int32, n)
		if err = v.ReadInt32Slice(buf, start, count); err == nil {
			for i, x := range buf {
				flat[i] = float64(x)
			}
		}
	default:
		return nil, errors.NotSupportedf("data type %v", typ)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}

	fills := make([]float64, 0, 2)
	for _, name := range []string{"_FillValue", "missing_value"} {
		if f, ok := attrFloat(v, name); ok {
			fills = append(fills, f)
		}
	}
	scale, hasScale := attrFloat(v, "scale_factor")
	offset, _ := attrFloat(v, "add_offset")
	for i, x := range flat {
		if slices.Contains(fills, x) {
			flat[i] = math.NaN()
			continue
		}
		if hasScale && scale != 0 {
			x *= scale
		}
		flat[i] = x + offset
	}

	values := make([][]float64, rows.len())
	for i := range values {
		values[i] = flat[i*cols.len() : (i+1)*cols.len()]
	}
	return values, nil
}

func attrFloat(v netcdf.Var, name string) (float64, bool) {
	a := v.Attr(name)
	if l, err := a.Len(); err != nil || l == 0 {
		return 0, false
	}
	f64 := make([]float64, 1)
	if err := a.ReadFloat64s(f64); err == nil {
		return f64[0], true
	}
	f32 := make([]float32, 1)
	if err := a.ReadFloat32s(f32); err == nil {
		return float64(f32[0]), true
	}
	i32 := make([]int32, 1)
	if err := a.ReadInt32s(i32); err == nil {
		return float64(i32[0]), true
	}
	i16 := make([]int16, 1)
	if err := a.ReadInt16s(i16); err == nil {
		return float64(i16[0]), true
	}
	return 0, false
}

func transpose(data [][]float64) [][]float64 {
	if len(data) == 0 {
		return data
	}
	out := make([][]float64, len(data[0]))
	for j := range out {
		out[j] = make([]float64, len(data))
		for i := range data {
			out[j][i] = data[i][j]
		}
	}
	return out
}
