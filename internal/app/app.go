// Package app wires configuration, database and access layer together for
// the command entry points.
package app

import (
	"context"
	"database/sql"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"go.ngs.io/raster-pyramid/internal/adapter/crs"
	"go.ngs.io/raster-pyramid/internal/adapter/store"
	"go.ngs.io/raster-pyramid/internal/adapter/store/postgis"
	"go.ngs.io/raster-pyramid/internal/adapter/store/sqlite"
	"go.ngs.io/raster-pyramid/internal/config"
	"go.ngs.io/raster-pyramid/internal/pyramid"
)

var logger = loggo.GetLogger("pyramid.app")

// OpenStore opens the configured database and returns it with its dialect.
func OpenStore(ctx context.Context, cfg config.Config) (*sql.DB, store.Dialect, error) {
	dialect, err := store.LookupDialect(cfg.Dialect)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	var db *sql.DB
	switch cfg.Dialect {
	case postgis.Name:
		db, err = postgis.Open(ctx, cfg.DSN)
	case sqlite.Name:
		db, err = sqlite.Open(ctx, cfg.DSN)
	default:
		return nil, nil, errors.NotSupportedf("opening %q databases", cfg.Dialect)
	}
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	logger.Debugf("opened %s database", cfg.Dialect)
	return db, dialect, nil
}

// OpenAccess opens the store and bootstraps the configured coverage.
// The caller closes the returned database.
func OpenAccess(ctx context.Context, cfg config.Config) (*pyramid.Access, *sql.DB, error) {
	resolver := crs.NewRegistry()
	fallback, err := resolver.Resolve(cfg.CRSCode)
	if err != nil {
		return nil, nil, errors.Annotate(err, "default CRS")
	}
	db, dialect, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	access, err := pyramid.New(ctx, db, dialect, resolver, cfg.PyramidOptions(fallback))
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return access, db, nil
}
