package pyramid

import (
	"context"
	"image"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"go.ngs.io/raster-pyramid/internal/adapter/codec"
	"go.ngs.io/raster-pyramid/internal/adapter/store"
	"go.ngs.io/raster-pyramid/internal/domain"
	"go.ngs.io/raster-pyramid/internal/tilestream"
)

var bulkLogger = loggo.GetLogger("pyramid.bulk")

// BulkExport crops the requested window out of a level on the database
// server and decodes the single image it returns.
type BulkExport struct {
	src     store.ConnSource
	dialect store.BulkDialect
	tables  store.Tables
}

// NewBulkExport returns a bulk export strategy.
func NewBulkExport(src store.ConnSource, dialect store.BulkDialect, opts Options) *BulkExport {
	return &BulkExport{src: src, dialect: dialect, tables: opts.Tables}
}

func (b *BulkExport) Name() string { return StrategyBulk }

// cellWindow is an inclusive range of raster cells.
type cellWindow struct {
	minCol, minRow, maxCol, maxRow int64
}

func (w *cellWindow) add(col, row int64, first bool) {
	if first {
		*w = cellWindow{col, row, col, row}
		return
	}
	w.minCol, w.maxCol = min(w.minCol, col), max(w.maxCol, col)
	w.minRow, w.maxRow = min(w.minRow, row), max(w.maxRow, row)
}

// StartTileDecoders implements Strategy. It pushes at most one tile.
func (b *BulkExport) StartTileDecoders(ctx context.Context, query domain.TileQuery, out *tilestream.Queue) error {
	defer out.Close()
	defer observeQuery(StrategyBulk, time.Now())

	lvl := query.Level
	fail := func(err error) error {
		return wrapErr("query", lvl.CoverageName, lvl.LevelID, err)
	}
	if err := query.Validate(); err != nil {
		return fail(errors.NewNotValid(err, "tile query"))
	}
	window, ok := query.Envelope.Intersection(lvl.Extent)
	if !ok {
		bulkLogger.Debugf("request %s misses level %s", query.Envelope, lvl)
		return nil
	}

	var payload []byte
	err := store.WithConn(ctx, b.src, func(s *store.Scope) error {
		stmt, err := s.Prepare(ctx, b.dialect.CellCoordinateSQL(b.tables, lvl))
		if err != nil {
			return err
		}
		// The east and south edges are exclusive: a corner on a pixel
		// boundary belongs to the next cell, so those corners move half a
		// pixel inward before the lookup.
		east := window.MaxX() - min(lvl.ResX, window.Width())/2
		south := window.MinY() + min(lvl.ResY, window.Height())/2
		corners := [][2]float64{
			{window.MinX(), window.MaxY()},
			{east, window.MaxY()},
			{window.MinX(), south},
			{east, south},
		}
		var cells cellWindow
		for i, c := range corners {
			var col, row int64
			found, err := s.QueryStmtOne(ctx, stmt, []any{c[0], c[1]}, &col, &row)
			if err != nil {
				return errors.Annotatef(err, "cell coordinate of (%g, %g)", c[0], c[1])
			}
			if !found {
				return errors.Annotatef(ErrNoGeometry, "table %q", lvl.TileTable)
			}
			cells.add(col, row, i == 0)
		}

		found, err := s.QueryOne(ctx, b.dialect.ExportSQL(b.tables, lvl),
			[]any{cells.minCol, cells.minRow, cells.maxCol, cells.maxRow}, &payload)
		if err != nil {
			return errors.Annotate(err, "export level window")
		}
		if !found || len(payload) == 0 {
			return errors.Annotatef(ErrNoGeometry, "export of %q returned nothing", lvl.TileTable)
		}
		return nil
	})
	if err != nil {
		return fail(err)
	}

	img, err := codec.Decode(payload, domain.StorageEncoded)
	if err != nil {
		decodeErrors.Inc()
		return fail(errors.Annotate(err, "decode exported window"))
	}
	b.push(lvl, img, window, out)
	return nil
}

func (b *BulkExport) push(lvl domain.PyramidLevel, img image.Image, window domain.Envelope, out *tilestream.Queue) {
	if out.Push(domain.DecodedTile{CoverageName: lvl.CoverageName, Image: img, Envelope: window}) {
		tilesDecoded.Inc()
		bulkLogger.Debugf("level %s: exported %v for %s", lvl, img.Bounds(), window)
	}
}
