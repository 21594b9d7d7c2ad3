package pyramid

import (
	"bytes"
	"context"
	"database/sql/driver"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"go.ngs.io/raster-pyramid/internal/adapter/codec"
	"go.ngs.io/raster-pyramid/internal/adapter/crs"
	"go.ngs.io/raster-pyramid/internal/adapter/store"
	"go.ngs.io/raster-pyramid/internal/adapter/store/postgis"
	"go.ngs.io/raster-pyramid/internal/adapter/store/storetest"
	"go.ngs.io/raster-pyramid/internal/domain"
)

const tilePixels = 4

// fakeTile is one row of a tile table.
type fakeTile struct {
	bound   orb.Bound
	payload []byte
}

// fakeLevel is one master row plus its tile table.
type fakeLevel struct {
	id      int
	table   string
	extent  []driver.Value // Four values or all nil.
	res     []driver.Value // res x, res y, srid, storage or all nil.
	scale   float64        // Pixel size of the stored tiles.
	outDB   bool
	tiles   []fakeTile
	exports [][]driver.Value
}

// fakePyramid backs a storetest driver with an in-memory PostGIS pyramid.
type fakePyramid struct {
	mu     sync.Mutex
	levels []*fakeLevel
}

func (f *fakePyramid) level(query string) *fakeLevel {
	for _, l := range f.levels {
		if strings.Contains(query, fmt.Sprintf(`FROM "%s"`, l.table)) {
			return l
		}
	}
	return nil
}

func (f *fakePyramid) byID(id driver.Value) *fakeLevel {
	for _, l := range f.levels {
		if int64(l.id) == id.(int64) {
			return l
		}
	}
	return nil
}

func (f *fakePyramid) install(d *storetest.Driver) {
	d.On(`SET "min_x"`, func(_ string, args []driver.Value) (*storetest.Result, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.byID(args[5]).extent = append([]driver.Value(nil), args[:4]...)
		return &storetest.Result{RowsAffected: 1}, nil
	})
	d.On(`SET "res_x"`, func(_ string, args []driver.Value) (*storetest.Result, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.byID(args[5]).res = append([]driver.Value(nil), args[:4]...)
		return &storetest.Result{RowsAffected: 1}, nil
	})
	d.On(`FROM "raster_pyramid"`, func(_ string, args []driver.Value) (*storetest.Result, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		res := &storetest.Result{Columns: []string{"level_id", "tile_table", "min_x", "min_y", "max_x", "max_y", "res_x", "res_y", "srid", "storage"}}
		for _, l := range f.levels {
			row := []driver.Value{int64(l.id), l.table}
			row = append(row, valuesOrNil(l.extent, 4)...)
			row = append(row, valuesOrNil(l.res, 4)...)
			res.Rows = append(res.Rows, row)
		}
		return res, nil
	})
	d.On("ST_Extent", func(q string, _ []driver.Value) (*storetest.Result, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		res := &storetest.Result{Columns: []string{"xmin", "ymin", "xmax", "ymax"}}
		l := f.level(q)
		if len(l.tiles) == 0 {
			res.Rows = [][]driver.Value{{nil, nil, nil, nil}}
			return res, nil
		}
		b := l.tiles[0].bound
		for _, t := range l.tiles[1:] {
			b = b.Union(t.bound)
		}
		res.Rows = [][]driver.Value{{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}}
		return res, nil
	})
	d.On("ST_ScaleX", func(q string, _ []driver.Value) (*storetest.Result, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		res := &storetest.Result{Columns: []string{"sx", "sy", "srid", "outdb"}}
		if l := f.level(q); len(l.tiles) > 0 {
			res.Rows = [][]driver.Value{{l.scale, -l.scale, int64(4326), l.outDB}}
		}
		return res, nil
	})
	d.On("ST_Intersects", func(q string, args []driver.Value) (*storetest.Result, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		g, err := wkb.Unmarshal(args[0].([]byte))
		if err != nil {
			return nil, err
		}
		req := g.Bound()
		res := &storetest.Result{Columns: []string{"xmin", "ymin", "xmax", "ymax", "payload"}}
		for _, t := range f.level(q).tiles {
			if t.bound.Intersects(req) {
				res.Rows = append(res.Rows, []driver.Value{t.bound.Min[0], t.bound.Min[1], t.bound.Max[0], t.bound.Max[1], t.payload})
			}
		}
		return res, nil
	})
	d.On("ST_WorldToRasterCoordX", func(q string, args []driver.Value) (*storetest.Result, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		l := f.level(q)
		ext := l.bound()
		x, y := args[0].(float64), args[1].(float64)
		col := int64(math.Floor((x-ext.Min[0])/l.scale)) + 1
		row := int64(math.Floor((ext.Max[1]-y)/l.scale)) + 1
		return &storetest.Result{Columns: []string{"col", "row"}, Rows: [][]driver.Value{{col, row}}}, nil
	})
	d.On("ST_AsPNG(ST_Clip", func(q string, args []driver.Value) (*storetest.Result, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		l := f.level(q)
		l.exports = append(l.exports, args)
		w := int(args[2].(int64) - args[0].(int64) + 1)
		h := int(args[3].(int64) - args[1].(int64) + 1)
		return &storetest.Result{Columns: []string{"png"}, Rows: [][]driver.Value{{pngBytes(w, h)}}}, nil
	})
}

func (l *fakeLevel) bound() orb.Bound {
	b := l.tiles[0].bound
	for _, t := range l.tiles[1:] {
		b = b.Union(t.bound)
	}
	return b
}

func valuesOrNil(v []driver.Value, n int) []driver.Value {
	if len(v) == n {
		return v
	}
	return make([]driver.Value, n)
}

func pngBytes(w, h int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// gridLevel builds a level of n x n tiles of tilePixels pixels each,
// starting at the origin. Metadata is left for bootstrap to discover.
func gridLevel(c *qt.C, id int, scale float64, n int) *fakeLevel {
	l := &fakeLevel{id: id, table: fmt.Sprintf("dem_l%d", id), scale: scale}
	size := scale * tilePixels
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			minX, minY := float64(i)*size, float64(j)*size
			l.tiles = append(l.tiles, fakeTile{
				bound:   orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{minX + size, minY + size}},
				payload: rasterWKB(c, minX, minY+size, scale),
			})
		}
	}
	return l
}

// complete fills in the stored metadata as a previous bootstrap would.
func (l *fakeLevel) complete() *fakeLevel {
	b := l.bound()
	l.extent = []driver.Value{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	l.res = []driver.Value{l.scale, l.scale, int64(4326), "inline"}
	return l
}

func rasterWKB(c *qt.C, originX, originY, scale float64) []byte {
	values := make([]float64, tilePixels*tilePixels)
	for i := range values {
		values[i] = float64(i * 16)
	}
	data, err := codec.EncodeRaster(&codec.Raster{
		ScaleX:  scale,
		ScaleY:  -scale,
		OriginX: originX,
		OriginY: originY,
		SRID:    4326,
		Width:   tilePixels,
		Height:  tilePixels,
		Bands:   []codec.Band{{Type: codec.Pixel8BUI, Values: values}},
	})
	c.Assert(err, qt.IsNil)
	return data
}

type fixture struct {
	c      *qt.C
	driver *storetest.Driver
	fake   *fakePyramid
	src    store.ConnSource
}

func newFixture(t *testing.T, levels ...*fakeLevel) *fixture {
	c := qt.New(t)
	d := storetest.New()
	f := &fakePyramid{levels: levels}
	f.install(d)
	return &fixture{c: c, driver: d, fake: f, src: d.DB(t)}
}

// newFixtureWith registers the handlers of before ahead of the fake, so
// they take precedence over it.
func newFixtureWith(t *testing.T, before func(d *storetest.Driver, f *fakePyramid), levels ...*fakeLevel) *fixture {
	c := qt.New(t)
	d := storetest.New()
	f := &fakePyramid{levels: levels}
	before(d, f)
	f.install(d)
	return &fixture{c: c, driver: d, fake: f, src: d.DB(t)}
}

func (fx *fixture) options() Options {
	return Options{
		Tables:        store.DefaultTables(),
		Coverage:      "dem",
		Workers:       2,
		DecodeTimeout: DefaultDecodeTimeout,
	}
}

func (fx *fixture) access(opts Options) (*Access, error) {
	return New(context.Background(), fx.src, postgis.Dialect{}, crs.NewRegistry(), opts)
}

func (fx *fixture) assertNoLeaks() {
	fx.c.Helper()
	conns, stmts, rows := fx.driver.Leaks()
	fx.c.Assert([]int{conns, stmts, rows}, qt.DeepEquals, []int{0, 0, 0}, qt.Commentf("open conns, stmts, rows"))
}

var wgs84 = domain.CRS{Code: "EPSG:4326", Authority: "EPSG", SRID: 4326}
