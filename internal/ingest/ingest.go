// Package ingest builds an SQLite raster pyramid from a gridded dataset.
//
// The base grid becomes level 0. Each further level halves the resolution
// of the previous one. Levels are cut into north-up tiles, encoded as
// raster WKB and registered in the master table with their metadata left
// NULL, so the access layer bootstrap computes and persists it.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"go.ngs.io/raster-pyramid/internal/adapter/codec"
	"go.ngs.io/raster-pyramid/internal/adapter/interp"
	"go.ngs.io/raster-pyramid/internal/adapter/netcdfgrid"
	"go.ngs.io/raster-pyramid/internal/adapter/store"
	"go.ngs.io/raster-pyramid/internal/adapter/store/sqlite"
	"go.ngs.io/raster-pyramid/internal/domain"
)

var logger = loggo.GetLogger("pyramid.ingest")

var tilesWritten = metrics.NewCounter("pyramid_ingest_tiles_written_total")

// NoData marks grid samples without a value in the written tiles.
const NoData = -9999

// Options configures an ingest run.
type Options struct {
	Coverage string
	Tables   store.Tables
	// Levels is the number of pyramid levels including the base level.
	Levels   int
	TileSize int
	SRID     int
	Workers  int
	// OutOfRowDir, when set, receives the tile rasters as files; tile rows
	// then only reference them.
	OutOfRowDir string
	// Window, when set, limits File to the samples bracketing it.
	Window *orb.Bound
}

func (o Options) withDefaults() Options {
	if o.Levels <= 0 {
		o.Levels = 3
	}
	if o.TileSize <= 0 {
		o.TileSize = 256
	}
	if o.SRID == 0 {
		o.SRID = 4326
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Tables == (store.Tables{}) {
		o.Tables = store.DefaultTables()
	}
	return o
}

// LevelSummary describes one written level.
type LevelSummary struct {
	LevelID   int
	TileTable string
	Width     int // Pixels.
	Height    int
	Res       float64
	Tiles     int
}

// File loads a NetCDF grid and ingests it.
func File(ctx context.Context, db *sql.DB, path string, vars netcdfgrid.Vars, opts Options) ([]LevelSummary, error) {
	var (
		grid *interp.Grid2D
		err  error
	)
	if opts.Window != nil {
		grid, err = netcdfgrid.LoadWindow(path, vars, *opts.Window)
	} else {
		grid, err = netcdfgrid.Load(path, vars)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	return Run(ctx, db, grid, opts)
}

// Run writes grid as a pyramid of opts.Levels levels.
func Run(ctx context.Context, db *sql.DB, grid *interp.Grid2D, opts Options) ([]LevelSummary, error) {
	opts = opts.withDefaults()
	if opts.Coverage == "" {
		return nil, errors.NotValidf("empty coverage name")
	}
	if err := grid.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if !grid.IsRegular(1e-6) {
		return nil, errors.NotValidf("irregular grid spacing")
	}
	if err := sqlite.CreateMasterTable(ctx, db, opts.Tables); err != nil {
		return nil, errors.Trace(err)
	}

	start := time.Now()
	var out []LevelSummary
	level := grid
	for id := range opts.Levels {
		if id > 0 {
			next, err := level.Downsample(2)
			if err != nil {
				return out, errors.Annotatef(err, "level %d", id)
			}
			level = next
		}
		sum, err := writeLevel(ctx, db, level, id, opts)
		if err != nil {
			return out, errors.Annotatef(err, "level %d", id)
		}
		out = append(out, sum)
		logger.Infof("coverage %q level %d: %dx%d px, %d tiles in %s", opts.Coverage, id, sum.Width, sum.Height, sum.Tiles, sum.TileTable)
		if len(level.X) <= 2 && len(level.Y) <= 2 {
			break
		}
	}
	logger.Infof("coverage %q: %d levels written in %s", opts.Coverage, len(out), time.Since(start).Round(time.Millisecond))
	return out, nil
}

func tileTableName(coverage string, level int) string {
	return fmt.Sprintf("%s_l%d", coverage, level)
}

func writeLevel(ctx context.Context, db *sql.DB, grid *interp.Grid2D, id int, opts Options) (LevelSummary, error) {
	table := tileTableName(opts.Coverage, id)
	dx, dy := grid.Spacing()
	width, height := len(grid.X), len(grid.Y)
	originX := grid.X[0] - dx/2
	originY := grid.Y[height-1] + dy/2

	size := opts.TileSize
	cols := (width + size - 1) / size
	rows := (height + size - 1) / size
	tiles := make([]sqlite.TileRow, cols*rows)

	var dir string
	if opts.OutOfRowDir != "" {
		dir = filepath.Join(opts.OutOfRowDir, table)
		//nolint:gosec // G301: Tile directories are shared with the database reader.
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return LevelSummary{}, errors.Trace(err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for ty := range rows {
		for tx := range cols {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				r := cutTile(grid, tx*size, ty*size, size)
				r.ScaleX, r.ScaleY = dx, -dy
				r.OriginX = originX + float64(tx*size)*dx
				r.OriginY = originY - float64(ty*size)*dy
				r.SRID = int32(opts.SRID) //nolint:gosec // G115: SRIDs fit in int32.

				data, err := codec.EncodeRaster(r)
				if err != nil {
					return errors.Annotatef(err, "tile %d,%d", tx, ty)
				}
				fp := r.Footprint(domain.CRS{SRID: opts.SRID})
				row := sqlite.TileRow{
					MinX: fp.MinX(), MinY: fp.MinY(), MaxX: fp.MaxX(), MaxY: fp.MaxY(),
					ResX: dx, ResY: dy,
					SRID: opts.SRID,
				}
				if dir != "" {
					row.Path = filepath.Join(dir, fmt.Sprintf("%d_%d.rast", ty, tx))
					//nolint:gosec // G306: Tile files are shared with the database reader.
					if err := os.WriteFile(row.Path, data, 0o644); err != nil {
						return errors.Trace(err)
					}
				} else {
					row.Raster = data
				}
				tiles[ty*cols+tx] = row
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return LevelSummary{}, errors.Annotate(err, "encode tiles")
	}

	if err := sqlite.CreateTileTable(ctx, db, opts.Tables, table); err != nil {
		return LevelSummary{}, errors.Trace(err)
	}
	if err := sqlite.InsertTiles(ctx, db, opts.Tables, table, tiles); err != nil {
		return LevelSummary{}, errors.Trace(err)
	}
	if err := sqlite.RegisterLevel(ctx, db, opts.Tables, opts.Coverage, id, table); err != nil {
		return LevelSummary{}, errors.Trace(err)
	}
	tilesWritten.Add(len(tiles))

	return LevelSummary{
		LevelID:   id,
		TileTable: table,
		Width:     width,
		Height:    height,
		Res:       max(dx, dy),
		Tiles:     len(tiles),
	}, nil
}

// cutTile copies the size x size pixel block at (col, row) from the top-left
// corner of grid, clipped to the grid. Grid rows run south to north.
func cutTile(grid *interp.Grid2D, col, row, size int) *codec.Raster {
	height := len(grid.Y)
	w := min(size, len(grid.X)-col)
	h := min(size, height-row)
	values := make([]float64, 0, w*h)
	for r := range h {
		src := grid.Values[height-1-(row+r)]
		for c := range w {
			v := src[col+c]
			if math.IsNaN(v) {
				v = NoData
			}
			values = append(values, v)
		}
	}
	return &codec.Raster{
		Width:  w,
		Height: h,
		Bands: []codec.Band{{
			Type:      codec.Pixel32BF,
			HasNoData: true,
			NoData:    NoData,
			Values:    values,
		}},
	}
}
