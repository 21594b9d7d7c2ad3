package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/juju/errors"

	"go.ngs.io/raster-pyramid/internal/adapter/store"
)

// CreateMasterTable creates the master metadata table if it is missing.
func CreateMasterTable(ctx context.Context, db *sql.DB, t store.Tables) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s TEXT NOT NULL,
	%s INTEGER NOT NULL,
	%s TEXT NOT NULL,
	%s REAL, %s REAL, %s REAL, %s REAL,
	%s REAL, %s REAL,
	%s INTEGER,
	%s TEXT,
	PRIMARY KEY (%s, %s)
)`,
		store.Ident(t.Master),
		store.Ident(t.CoverageColumn), store.Ident(t.LevelColumn), store.Ident(t.TileTableColumn),
		store.Ident(t.MinXColumn), store.Ident(t.MinYColumn), store.Ident(t.MaxXColumn), store.Ident(t.MaxYColumn),
		store.Ident(t.ResXColumn), store.Ident(t.ResYColumn),
		store.Ident(t.SRIDColumn),
		store.Ident(t.StorageColumn),
		store.Ident(t.CoverageColumn), store.Ident(t.LevelColumn),
	)
	_, err := db.ExecContext(ctx, ddl)
	return errors.Annotate(err, "create master table")
}

// CreateTileTable (re)creates one level's tile table with a footprint index.
func CreateTileTable(ctx context.Context, db *sql.DB, t store.Tables, name string) error {
	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", store.Ident(name)),
		fmt.Sprintf(`CREATE TABLE %s (
	id INTEGER PRIMARY KEY,
	%s REAL NOT NULL, %s REAL NOT NULL, %s REAL NOT NULL, %s REAL NOT NULL,
	%s REAL NOT NULL, %s REAL NOT NULL,
	%s INTEGER NOT NULL,
	%s BLOB,
	%s TEXT
)`,
			store.Ident(name),
			store.Ident(t.MinXColumn), store.Ident(t.MinYColumn), store.Ident(t.MaxXColumn), store.Ident(t.MaxYColumn),
			store.Ident(t.ResXColumn), store.Ident(t.ResYColumn),
			store.Ident(t.SRIDColumn),
			store.Ident(t.RasterColumn),
			store.Ident(t.PathColumn),
		),
		fmt.Sprintf("CREATE INDEX %s ON %s (%s, %s)",
			store.Ident(name+"_footprint"), store.Ident(name), store.Ident(t.MinXColumn), store.Ident(t.MinYColumn)),
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return errors.Annotatef(err, "create tile table %q", name)
		}
	}
	return nil
}

// RegisterLevel inserts or replaces a master row, leaving extent,
// resolution and storage mode NULL so the next bootstrap discovers them.
func RegisterLevel(ctx context.Context, db *sql.DB, t store.Tables, coverage string, level int, tileTable string) error {
	q := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s, %s, %s) VALUES (?, ?, ?)",
		store.Ident(t.Master), store.Ident(t.CoverageColumn), store.Ident(t.LevelColumn), store.Ident(t.TileTableColumn))
	_, err := db.ExecContext(ctx, q, coverage, level, tileTable)
	return errors.Annotatef(err, "register level %s/%d", coverage, level)
}

// TileRow is one tile as written by the ingest tool.
type TileRow struct {
	MinX, MinY, MaxX, MaxY float64
	ResX, ResY             float64
	SRID                   int
	Raster                 []byte // Inline raster WKB, nil for out-of-row tiles.
	Path                   string // Out-of-row raster file.
}

// InsertTiles writes tile rows in a single transaction.
func InsertTiles(ctx context.Context, db *sql.DB, t store.Tables, tileTable string, rows []TileRow) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Annotate(err, "begin tile insert")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	q := fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		store.Ident(tileTable),
		store.Ident(t.MinXColumn), store.Ident(t.MinYColumn), store.Ident(t.MaxXColumn), store.Ident(t.MaxYColumn),
		store.Ident(t.ResXColumn), store.Ident(t.ResYColumn), store.Ident(t.SRIDColumn),
		store.Ident(t.RasterColumn), store.Ident(t.PathColumn))
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return errors.Annotatef(err, "prepare insert into %q", tileTable)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		var raster, path any
		if r.Raster != nil {
			raster = r.Raster
		}
		if r.Path != "" {
			path = r.Path
		}
		if _, err := stmt.ExecContext(ctx, r.MinX, r.MinY, r.MaxX, r.MaxY, r.ResX, r.ResY, r.SRID, raster, path); err != nil {
			return errors.Annotatef(err, "insert tile into %q", tileTable)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Annotate(err, "commit tile insert")
	}
	committed = true
	return nil
}
