package pyramid

import (
	"context"

	"github.com/juju/errors"

	"go.ngs.io/raster-pyramid/internal/adapter/store"
	"go.ngs.io/raster-pyramid/internal/domain"
	"go.ngs.io/raster-pyramid/internal/tilestream"
)

// Strategy names accepted by NewStrategy.
const (
	StrategyStreaming = "streaming"
	StrategyBulk      = "bulk"
)

// Strategy turns a tile query into decoded tiles.
//
// StartTileDecoders pushes every tile it produces to out and closes out
// exactly once before returning, on success and on failure alike.
// Failures are returned as *Error.
type Strategy interface {
	Name() string
	StartTileDecoders(ctx context.Context, query domain.TileQuery, out *tilestream.Queue) error
}

// NewStrategy returns the named strategy for dialect.
func NewStrategy(name string, src store.ConnSource, dialect store.Dialect, opts Options) (Strategy, error) {
	opts = opts.withDefaults()
	bulk, canBulk := dialect.(store.BulkDialect)
	switch name {
	case StrategyStreaming:
		return NewStreaming(src, dialect, opts), nil
	case StrategyBulk:
		if !canBulk {
			return nil, errors.Annotatef(ErrUnsupportedStrategy, "dialect %q has no bulk export", dialect.Name())
		}
		return NewBulkExport(src, bulk, opts), nil
	default:
		return nil, errors.Annotatef(ErrUnsupportedStrategy, "%q", name)
	}
}
