package store

import (
	"sort"
	"sync"

	"github.com/juju/errors"

	"go.ngs.io/raster-pyramid/internal/domain"
)

// ErrUnknownDialect is returned when no dialect is registered under a name.
const ErrUnknownDialect = errors.ConstError("unknown SQL dialect")

// Tables names the master table, its columns, and the columns shared by
// every tile table. All names come from configuration.
type Tables struct {
	Master          string
	CoverageColumn  string
	LevelColumn     string
	TileTableColumn string
	MinXColumn      string // Extent in the master table, footprint in tile tables.
	MinYColumn      string
	MaxXColumn      string
	MaxYColumn      string
	ResXColumn      string
	ResYColumn      string
	SRIDColumn      string
	StorageColumn   string
	RasterColumn    string
	PathColumn      string // Out-of-row pixel reference, where the backend has one.
}

// DefaultTables returns the column layout written by the ingest tool.
func DefaultTables() Tables {
	return Tables{
		Master:          "raster_pyramid",
		CoverageColumn:  "coverage",
		LevelColumn:     "level_id",
		TileTableColumn: "tile_table",
		MinXColumn:      "min_x",
		MinYColumn:      "min_y",
		MaxXColumn:      "max_x",
		MaxYColumn:      "max_y",
		ResXColumn:      "res_x",
		ResYColumn:      "res_y",
		SRIDColumn:      "srid",
		StorageColumn:   "storage",
		RasterColumn:    "rast",
		PathColumn:      "rast_path",
	}
}

// Dialect supplies backend-specific SQL text. Query column orders are fixed:
//
//   - ReadLevelsSQL(coverage): level, tile table, min x, min y, max x, max y, res x, res y, srid, storage
//   - ExtentSQL(): min x, min y, max x, max y (all NULL for an empty table)
//   - SampleSQL(): res x, res y, srid, out-of-row flag
//   - SelectTilesSQL(SelectTilesArgs...): min x, min y, max x, max y, payload
type Dialect interface {
	Name() string
	ReadLevelsSQL(t Tables) string
	ExtentSQL(t Tables, tileTable string) string
	// UpdateExtentSQL args: min x, min y, max x, max y, coverage, level.
	UpdateExtentSQL(t Tables) string
	SampleSQL(t Tables, tileTable string) string
	// UpdateResolutionSQL args: res x, res y, srid, storage, coverage, level.
	UpdateResolutionSQL(t Tables) string
	SelectTilesSQL(t Tables, tileTable string, mode domain.StorageMode) string
	SelectTilesArgs(env domain.Envelope, srid int) ([]any, error)
}

// BulkDialect is implemented by backends that can crop a whole level on
// the server and return one encoded image.
type BulkDialect interface {
	Dialect
	// CellCoordinateSQL args: world x, world y. Returns column, row.
	CellCoordinateSQL(t Tables, level domain.PyramidLevel) string
	// ExportSQL args: min column, min row, max column, max row. Returns one blob.
	ExportSQL(t Tables, level domain.PyramidLevel) string
}

var (
	dialectsMu sync.RWMutex
	dialects   = make(map[string]Dialect)
)

// RegisterDialect makes a dialect available by name.
// It panics on nil or duplicate registration.
func RegisterDialect(d Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	if d == nil {
		panic("store: RegisterDialect with nil dialect")
	}
	if _, dup := dialects[d.Name()]; dup {
		panic("store: RegisterDialect called twice for " + d.Name())
	}
	dialects[d.Name()] = d
}

// LookupDialect returns the dialect registered under name.
func LookupDialect(name string) (Dialect, error) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	d, ok := dialects[name]
	if !ok {
		return nil, errors.Annotatef(ErrUnknownDialect, "%q (registered: %v)", name, dialectNames())
	}
	return d, nil
}

func dialectNames() []string {
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
