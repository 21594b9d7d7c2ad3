// Package sqlite implements the SQLite pyramid dialect.
//
// Tile tables store their footprint, resolution and SRID in plain columns.
// Rows either carry raster WKB in the raster column (inline) or leave it
// NULL and reference a raster file in the path column; such rows are
// rendered to PNG inside the database by the pyr_outdb_png function,
// which this package registers on every connection.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"image/png"
	"os"

	"github.com/juju/errors"
	"github.com/mattn/go-sqlite3"

	"go.ngs.io/raster-pyramid/internal/adapter/codec"
	"go.ngs.io/raster-pyramid/internal/adapter/store"
	"go.ngs.io/raster-pyramid/internal/domain"
)

// Name is the dialect name used in configuration.
const Name = "sqlite"

const driverName = "sqlite3_pyramid"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("pyr_outdb_png", outdbPNG, false)
		},
	})
	store.RegisterDialect(Dialect{})
}

// Open opens (or creates) an SQLite pyramid database.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Annotate(err, "open sqlite")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Annotate(err, "ping sqlite")
	}
	return db, nil
}

// outdbPNG loads a raster WKB file and renders it as PNG.
func outdbPNG(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "read out-of-row raster %q", path)
	}
	r, err := codec.DecodeRaster(data)
	if err != nil {
		return nil, errors.Annotatef(err, "decode out-of-row raster %q", path)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, r.Image()); err != nil {
		return nil, errors.Trace(err)
	}
	return buf.Bytes(), nil
}

// Dialect renders SQLite SQL. It does not support bulk export.
type Dialect struct{}

var _ store.Dialect = Dialect{}

func (Dialect) Name() string { return Name }

func (Dialect) ReadLevelsSQL(t store.Tables) string {
	return fmt.Sprintf(
		"SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s FROM %s WHERE %s = ?",
		store.Ident(t.LevelColumn), store.Ident(t.TileTableColumn),
		store.Ident(t.MinXColumn), store.Ident(t.MinYColumn), store.Ident(t.MaxXColumn), store.Ident(t.MaxYColumn),
		store.Ident(t.ResXColumn), store.Ident(t.ResYColumn), store.Ident(t.SRIDColumn), store.Ident(t.StorageColumn),
		store.Ident(t.Master), store.Ident(t.CoverageColumn),
	)
}

func (Dialect) ExtentSQL(t store.Tables, tileTable string) string {
	return fmt.Sprintf(
		"SELECT MIN(%s), MIN(%s), MAX(%s), MAX(%s) FROM %s",
		store.Ident(t.MinXColumn), store.Ident(t.MinYColumn), store.Ident(t.MaxXColumn), store.Ident(t.MaxYColumn),
		store.Ident(tileTable),
	)
}

func (Dialect) UpdateExtentSQL(t store.Tables) string {
	return fmt.Sprintf(
		"UPDATE %s SET %s = ?, %s = ?, %s = ?, %s = ? WHERE %s = ? AND %s = ?",
		store.Ident(t.Master),
		store.Ident(t.MinXColumn), store.Ident(t.MinYColumn), store.Ident(t.MaxXColumn), store.Ident(t.MaxYColumn),
		store.Ident(t.CoverageColumn), store.Ident(t.LevelColumn),
	)
}

func (Dialect) SampleSQL(t store.Tables, tileTable string) string {
	return fmt.Sprintf(
		"SELECT %s, %s, %s, %s IS NULL FROM %s LIMIT 1",
		store.Ident(t.ResXColumn), store.Ident(t.ResYColumn), store.Ident(t.SRIDColumn), store.Ident(t.RasterColumn),
		store.Ident(tileTable),
	)
}

func (Dialect) UpdateResolutionSQL(t store.Tables) string {
	return fmt.Sprintf(
		"UPDATE %s SET %s = ?, %s = ?, %s = ?, %s = ? WHERE %s = ? AND %s = ?",
		store.Ident(t.Master),
		store.Ident(t.ResXColumn), store.Ident(t.ResYColumn), store.Ident(t.SRIDColumn), store.Ident(t.StorageColumn),
		store.Ident(t.CoverageColumn), store.Ident(t.LevelColumn),
	)
}

func (Dialect) SelectTilesSQL(t store.Tables, tileTable string, mode domain.StorageMode) string {
	payload := store.Ident(t.RasterColumn)
	if mode == domain.StorageEncoded {
		payload = fmt.Sprintf("pyr_outdb_png(%s)", store.Ident(t.PathColumn))
	}
	minX, minY := store.Ident(t.MinXColumn), store.Ident(t.MinYColumn)
	maxX, maxY := store.Ident(t.MaxXColumn), store.Ident(t.MaxYColumn)
	return fmt.Sprintf(
		"SELECT %[1]s, %[2]s, %[3]s, %[4]s, %[5]s FROM %[6]s WHERE %[3]s > ? AND %[1]s < ? AND %[4]s > ? AND %[2]s < ?",
		minX, minY, maxX, maxY, payload, store.Ident(tileTable),
	)
}

// SelectTilesArgs passes the envelope as plain bounds; SRID is not needed.
func (Dialect) SelectTilesArgs(env domain.Envelope, _ int) ([]any, error) {
	return []any{env.MinX(), env.MaxX(), env.MinY(), env.MaxY()}, nil
}
