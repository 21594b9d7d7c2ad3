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

var streamLogger = loggo.GetLogger("pyramid.streaming")

// Streaming selects every tile intersecting the request and decodes the
// rows on a worker pool created for the query.
type Streaming struct {
	src     store.ConnSource
	dialect store.Dialect
	tables  store.Tables
	workers int
	timeout time.Duration

	decode func([]byte, domain.StorageMode) (image.Image, error)
}

// NewStreaming returns a streaming strategy.
func NewStreaming(src store.ConnSource, dialect store.Dialect, opts Options) *Streaming {
	opts = opts.withDefaults()
	return &Streaming{
		src:     src,
		dialect: dialect,
		tables:  opts.Tables,
		workers: opts.Workers,
		timeout: opts.DecodeTimeout,
		decode:  codec.Decode,
	}
}

func (s *Streaming) Name() string { return StrategyStreaming }

type tileRow struct {
	minX, minY, maxX, maxY float64
	payload                []byte
}

// StartTileDecoders implements Strategy.
func (s *Streaming) StartTileDecoders(ctx context.Context, query domain.TileQuery, out *tilestream.Queue) error {
	defer out.Close()
	defer observeQuery(StrategyStreaming, time.Now())

	lvl := query.Level
	fail := func(err error) error {
		return wrapErr("query", lvl.CoverageName, lvl.LevelID, err)
	}
	if err := query.Validate(); err != nil {
		return fail(errors.NewNotValid(err, "tile query"))
	}
	window, ok := query.Envelope.Intersection(lvl.Extent)
	if !ok {
		streamLogger.Debugf("request %s misses level %s", query.Envelope, lvl)
		return nil
	}
	selectSQL := lvl.SelectSQL
	if selectSQL == "" {
		selectSQL = s.dialect.SelectTilesSQL(s.tables, lvl.TileTable, lvl.Storage)
	}
	args, err := s.dialect.SelectTilesArgs(query.Envelope, lvl.SRID)
	if err != nil {
		return fail(err)
	}

	// All matching rows are fetched before decoding starts, so the
	// connection is released while the pool is still busy.
	var rows []tileRow
	err = store.WithConn(ctx, s.src, func(sc *store.Scope) error {
		rs, err := sc.Query(ctx, selectSQL, args...)
		if err != nil {
			return err
		}
		for rs.Next() {
			var r tileRow
			if err := rs.Scan(&r.minX, &r.minY, &r.maxX, &r.maxY, &r.payload); err != nil {
				return errors.Annotate(err, "scan tile row")
			}
			rows = append(rows, r)
		}
		return errors.Trace(rs.Err())
	})

	// A row error fails the whole query; a partial read is not decoded.
	if err != nil {
		return fail(err)
	}

	tasks := make([]func(context.Context), len(rows))
	for i, r := range rows {
		tasks[i] = func(ctx context.Context) { s.decodeTile(ctx, lvl, window, r, out) }
	}
	pool := startDecodePool(ctx, min(s.workers, max(len(rows), 1)), tasks)
	if !pool.wait(s.timeout) {
		decodeTimeouts.Inc()
		streamLogger.Warningf("level %s: decode of %d rows still running after %v, abandoned",
			lvl, len(rows), s.timeout)
	}
	streamLogger.Debugf("level %s: %d tile rows, %d tiles queued", lvl, len(rows), out.Len())
	if err := ctx.Err(); err != nil {
		return fail(errors.Annotatef(err, "%d of %d tiles skipped", pool.skipped.Load(), len(rows)))
	}
	return nil
}

// decodeTile decodes one row and queues it clipped to the window.
// A failing row is logged and skipped.
func (s *Streaming) decodeTile(ctx context.Context, lvl domain.PyramidLevel, window domain.Envelope, r tileRow, out *tilestream.Queue) {
	img, err := s.decode(r.payload, lvl.Storage)
	if err != nil {
		decodeErrors.Inc()
		streamLogger.Warningf("level %s: skipping tile [%g,%g %g,%g]: %v", lvl, r.minX, r.minY, r.maxX, r.maxY, err)
		return
	}
	if ctx.Err() != nil {
		tilesDropped.Inc()
		return
	}
	footprint := domain.NewEnvelope(r.minX, r.minY, r.maxX, r.maxY, lvl.CRS)
	clipped, env, ok := codec.Clip(img, footprint, window)
	if !ok {
		return
	}
	tile := domain.DecodedTile{CoverageName: lvl.CoverageName, Image: clipped, Envelope: env}
	if !out.Push(tile) {
		tilesDropped.Inc()
		return
	}
	tilesDecoded.Inc()
}
