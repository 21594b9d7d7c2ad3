// Package postgis implements the PostGIS raster dialect.
//
// Tile tables hold one raster per row in the configured raster column.
// Out-of-database rasters (ST_BandPath set) are read in encoded mode,
// where the server renders each tile to PNG. For bulk export a level's
// tile table holds a single raster covering the whole level.
package postgis

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/juju/errors"
	"github.com/paulmach/orb/encoding/wkb"

	"go.ngs.io/raster-pyramid/internal/adapter/store"
	"go.ngs.io/raster-pyramid/internal/domain"
)

// Name is the dialect name used in configuration.
const Name = "postgis"

const driverName = "pgx"

var sqlOpen = sql.Open

func init() {
	store.RegisterDialect(Dialect{})
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sqlOpen(driverName, dsn)
	if err != nil {
		return nil, errors.Annotate(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Annotate(err, "ping postgres")
	}
	return db, nil
}

// Dialect renders PostGIS SQL.
type Dialect struct{}

var _ store.BulkDialect = Dialect{}

func (Dialect) Name() string { return Name }

func (Dialect) ReadLevelsSQL(t store.Tables) string {
	return fmt.Sprintf(
		"SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s FROM %s WHERE %s = $1",
		store.Ident(t.LevelColumn), store.Ident(t.TileTableColumn),
		store.Ident(t.MinXColumn), store.Ident(t.MinYColumn), store.Ident(t.MaxXColumn), store.Ident(t.MaxYColumn),
		store.Ident(t.ResXColumn), store.Ident(t.ResYColumn), store.Ident(t.SRIDColumn), store.Ident(t.StorageColumn),
		store.Ident(t.Master), store.Ident(t.CoverageColumn),
	)
}

func (Dialect) ExtentSQL(t store.Tables, tileTable string) string {
	return fmt.Sprintf(
		"SELECT ST_XMin(e), ST_YMin(e), ST_XMax(e), ST_YMax(e) FROM (SELECT ST_Extent(ST_Envelope(%s)) AS e FROM %s) AS footprints",
		store.Ident(t.RasterColumn), store.Ident(tileTable),
	)
}

func (Dialect) UpdateExtentSQL(t store.Tables) string {
	return fmt.Sprintf(
		"UPDATE %s SET %s = $1, %s = $2, %s = $3, %s = $4 WHERE %s = $5 AND %s = $6",
		store.Ident(t.Master),
		store.Ident(t.MinXColumn), store.Ident(t.MinYColumn), store.Ident(t.MaxXColumn), store.Ident(t.MaxYColumn),
		store.Ident(t.CoverageColumn), store.Ident(t.LevelColumn),
	)
}

func (Dialect) SampleSQL(t store.Tables, tileTable string) string {
	r := store.Ident(t.RasterColumn)
	return fmt.Sprintf(
		"SELECT ST_ScaleX(%[1]s), ST_ScaleY(%[1]s), ST_SRID(%[1]s), ST_BandPath(%[1]s) IS NOT NULL FROM %[2]s LIMIT 1",
		r, store.Ident(tileTable),
	)
}

func (Dialect) UpdateResolutionSQL(t store.Tables) string {
	return fmt.Sprintf(
		"UPDATE %s SET %s = $1, %s = $2, %s = $3, %s = $4 WHERE %s = $5 AND %s = $6",
		store.Ident(t.Master),
		store.Ident(t.ResXColumn), store.Ident(t.ResYColumn), store.Ident(t.SRIDColumn), store.Ident(t.StorageColumn),
		store.Ident(t.CoverageColumn), store.Ident(t.LevelColumn),
	)
}

func (Dialect) SelectTilesSQL(t store.Tables, tileTable string, mode domain.StorageMode) string {
	r := store.Ident(t.RasterColumn)
	payload := fmt.Sprintf("ST_AsBinary(%s)", r)
	if mode == domain.StorageEncoded {
		payload = fmt.Sprintf("ST_AsPNG(%s)", r)
	}
	return fmt.Sprintf(
		"SELECT ST_XMin(ST_Envelope(%[1]s)), ST_YMin(ST_Envelope(%[1]s)), ST_XMax(ST_Envelope(%[1]s)), ST_YMax(ST_Envelope(%[1]s)), %[2]s FROM %[3]s WHERE ST_Intersects(%[1]s, ST_GeomFromWKB($1, $2))",
		r, payload, store.Ident(tileTable),
	)
}

// SelectTilesArgs passes the request envelope as a WKB polygon.
func (Dialect) SelectTilesArgs(env domain.Envelope, srid int) ([]any, error) {
	poly, err := wkb.Marshal(env.Polygon())
	if err != nil {
		return nil, errors.Annotate(err, "encode request polygon")
	}
	return []any{poly, srid}, nil
}

func (Dialect) CellCoordinateSQL(t store.Tables, level domain.PyramidLevel) string {
	return fmt.Sprintf(
		"SELECT ST_WorldToRasterCoordX(%[1]s, $1, $2), ST_WorldToRasterCoordY(%[1]s, $1, $2) FROM %[2]s LIMIT 1",
		store.Ident(t.RasterColumn), store.Ident(level.TileTable),
	)
}

// ExportSQL clips the level raster to a cell window (inclusive, 1-based
// PostGIS cell coordinates) and renders it to PNG.
func (Dialect) ExportSQL(t store.Tables, level domain.PyramidLevel) string {
	return fmt.Sprintf(
		"SELECT ST_AsPNG(ST_Clip(%[1]s, ST_MakeEnvelope("+
			"ST_RasterToWorldCoordX(%[1]s, $1, $2), ST_RasterToWorldCoordY(%[1]s, $1, $4 + 1), "+
			"ST_RasterToWorldCoordX(%[1]s, $3 + 1, $2), ST_RasterToWorldCoordY(%[1]s, $1, $2), "+
			"ST_SRID(%[1]s)), true)) FROM %[2]s LIMIT 1",
		store.Ident(t.RasterColumn), store.Ident(level.TileTable),
	)
}
