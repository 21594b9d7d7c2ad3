// Package pyramid is the raster pyramid access layer.
//
// New discovers the pyramid levels of one coverage from the database,
// completing and persisting missing metadata. Queries then go through a
// Strategy that turns matching tile rows into decoded, georeferenced
// image tiles delivered on a tilestream.Queue.
package pyramid

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"go.ngs.io/raster-pyramid/internal/adapter/crs"
	"go.ngs.io/raster-pyramid/internal/adapter/store"
	"go.ngs.io/raster-pyramid/internal/domain"
	"go.ngs.io/raster-pyramid/internal/tilestream"
)

var logger = loggo.GetLogger("pyramid")

// DefaultDecodeTimeout bounds how long a streaming query waits for its
// decode tasks.
const DefaultDecodeTimeout = time.Hour

// Options configures an Access.
type Options struct {
	Tables   store.Tables
	Coverage string
	// CRS is used for levels whose SRID the resolver does not know.
	CRS domain.CRS
	// Strategy is StrategyStreaming (default) or StrategyBulk.
	Strategy      string
	Workers       int
	DecodeTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Strategy == "" {
		o.Strategy = StrategyStreaming
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.DecodeTimeout <= 0 {
		o.DecodeTimeout = DefaultDecodeTimeout
	}
	return o
}

// Access serves tile queries for one coverage. It is safe for concurrent use.
type Access struct {
	src      store.ConnSource
	dialect  store.Dialect
	resolver crs.Resolver
	opts     Options
	strategy Strategy

	mu     sync.RWMutex
	levels domain.LevelSet
}

// New builds the access layer and runs the metadata bootstrap.
// It fails when the master table cannot be read or no level survives.
func New(ctx context.Context, src store.ConnSource, dialect store.Dialect, resolver crs.Resolver, opts Options) (*Access, error) {
	opts = opts.withDefaults()
	if opts.Coverage == "" {
		return nil, wrapErr("initialize", "", NoLevel, errors.NotValidf("empty coverage name"))
	}
	strategy, err := NewStrategy(opts.Strategy, src, dialect, opts)
	if err != nil {
		return nil, wrapErr("initialize", opts.Coverage, NoLevel, err)
	}
	a := &Access{
		src:      src,
		dialect:  dialect,
		resolver: resolver,
		opts:     opts,
		strategy: strategy,
	}
	if err := a.Initialize(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Initialize (re)runs the metadata bootstrap and replaces the level set.
// Levels whose metadata is already complete cost no extra queries.
func (a *Access) Initialize(ctx context.Context) error {
	b := &bootstrap{
		dialect:  a.dialect,
		resolver: a.resolver,
		tables:   a.opts.Tables,
		coverage: a.opts.Coverage,
		fallback: a.opts.CRS,
	}
	var levels domain.LevelSet
	err := store.WithConn(ctx, a.src, func(s *store.Scope) error {
		var err error
		levels, err = b.run(ctx, s)
		return err
	})
	if err != nil {
		return wrapErr("initialize", a.opts.Coverage, NoLevel, err)
	}

	a.mu.Lock()
	a.levels = levels
	a.mu.Unlock()
	logger.Infof("coverage %q: %d pyramid levels ready", a.opts.Coverage, levels.Len())
	return nil
}

// Coverage returns the coverage name.
func (a *Access) Coverage() string { return a.opts.Coverage }

// Levels returns the current level set, most detailed first.
func (a *Access) Levels() domain.LevelSet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.levels
}

// Strategy returns the query strategy in use.
func (a *Access) Strategy() Strategy { return a.strategy }

// Query builds a tile query for env and px. When level is negative the
// level is chosen from the requested resolution.
func (a *Access) Query(env domain.Envelope, px domain.PixelDimension, level int) (domain.TileQuery, error) {
	levels := a.Levels()
	if level < 0 {
		level = levels.Select(env, px)
	}
	if level >= levels.Len() {
		return domain.TileQuery{}, errors.NotFoundf("level index %d (have %d)", level, levels.Len())
	}
	if env.CRS.IsZero() {
		env.CRS = levels.Level(level).CRS
	}
	q := domain.TileQuery{Envelope: env, Pixels: px, Level: levels.Level(level)}
	if err := q.Validate(); err != nil {
		return domain.TileQuery{}, errors.NewNotValid(err, "tile query")
	}
	return q, nil
}

// StartTileDecoders runs query with the configured strategy. Tiles are
// pushed to out, which is always closed before StartTileDecoders returns.
func (a *Access) StartTileDecoders(ctx context.Context, query domain.TileQuery, out *tilestream.Queue) error {
	return a.strategy.StartTileDecoders(ctx, query, out)
}
