package pyramid

import (
	"context"
	"database/sql"
	"math"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"go.ngs.io/raster-pyramid/internal/adapter/crs"
	"go.ngs.io/raster-pyramid/internal/adapter/store"
	"go.ngs.io/raster-pyramid/internal/domain"
)

var bootLogger = loggo.GetLogger("pyramid.bootstrap")

// levelRecord is one master-table row. NULL columns stay invalid until
// bootstrap completes them.
type levelRecord struct {
	level     int
	tileTable string

	minX, minY, maxX, maxY sql.NullFloat64
	resX, resY             sql.NullFloat64
	srid                   sql.NullInt64
	storage                sql.NullString

	mode domain.StorageMode
}

func (r *levelRecord) hasExtent() bool {
	return r.minX.Valid && r.minY.Valid && r.maxX.Valid && r.maxY.Valid
}

func (r *levelRecord) hasResolution() bool {
	if !r.resX.Valid || !r.resY.Valid || !r.srid.Valid || !r.storage.Valid {
		return false
	}
	mode, ok := domain.ParseStorageMode(r.storage.String)
	if !ok {
		return false
	}
	r.mode = mode
	return true
}

type bootstrap struct {
	dialect  store.Dialect
	resolver crs.Resolver
	tables   store.Tables
	coverage string
	fallback domain.CRS
}

// run executes the bootstrap phases on one scoped connection.
func (b *bootstrap) run(ctx context.Context, s *store.Scope) (domain.LevelSet, error) {
	records, err := b.readLevels(ctx, s)
	if err != nil {
		return domain.LevelSet{}, errors.Annotate(err, "read master table")
	}
	bootLogger.Debugf("coverage %q: %d master rows", b.coverage, len(records))

	records = b.keep(records, "extent", func(r *levelRecord) error {
		if r.hasExtent() {
			return nil
		}
		return b.completeExtent(ctx, s, r)
	})
	records = b.keep(records, "resolution", func(r *levelRecord) error {
		if r.hasResolution() {
			return nil
		}
		return b.completeResolution(ctx, s, r)
	})
	return b.finalize(records)
}

// keep applies fn to every record and drops the ones it fails for.
func (b *bootstrap) keep(records []*levelRecord, phase string, fn func(*levelRecord) error) []*levelRecord {
	out := records[:0]
	for _, r := range records {
		if err := fn(r); err != nil {
			bootLogger.Warningf("coverage %q level %d: dropped during %s discovery: %v", b.coverage, r.level, phase, err)
			levelsDropped.Inc()
			continue
		}
		out = append(out, r)
	}
	return out
}

func (b *bootstrap) readLevels(ctx context.Context, s *store.Scope) ([]*levelRecord, error) {
	rows, err := s.Query(ctx, b.dialect.ReadLevelsSQL(b.tables), b.coverage)
	if err != nil {
		return nil, err
	}
	var records []*levelRecord
	for rows.Next() {
		r := &levelRecord{}
		if err := rows.Scan(
			&r.level, &r.tileTable,
			&r.minX, &r.minY, &r.maxX, &r.maxY,
			&r.resX, &r.resY, &r.srid, &r.storage,
		); err != nil {
			return nil, errors.Annotate(err, "scan master row")
		}
		records = append(records, r)
	}
	return records, errors.Trace(rows.Err())
}

// completeExtent computes the union of the level's tile footprints and
// persists it.
func (b *bootstrap) completeExtent(ctx context.Context, s *store.Scope, r *levelRecord) error {
	var minX, minY, maxX, maxY sql.NullFloat64
	found, err := s.QueryOne(ctx, b.dialect.ExtentSQL(b.tables, r.tileTable), nil, &minX, &minY, &maxX, &maxY)
	if err != nil {
		return err
	}
	if !found || !minX.Valid || !minY.Valid || !maxX.Valid || !maxY.Valid {
		return errors.Annotatef(ErrNoGeometry, "table %q", r.tileTable)
	}
	extentsComputed.Inc()

	if _, err := s.Exec(ctx, b.dialect.UpdateExtentSQL(b.tables),
		minX.Float64, minY.Float64, maxX.Float64, maxY.Float64, b.coverage, r.level); err != nil {
		return errors.Annotate(err, "persist extent")
	}
	r.minX, r.minY, r.maxX, r.maxY = minX, minY, maxX, maxY
	bootLogger.Infof("coverage %q level %d: extent computed [%g,%g %g,%g]",
		b.coverage, r.level, minX.Float64, minY.Float64, maxX.Float64, maxY.Float64)
	return nil
}

// completeResolution samples one tile for pixel size, SRID and storage
// mode, and persists them.
func (b *bootstrap) completeResolution(ctx context.Context, s *store.Scope, r *levelRecord) error {
	var (
		resX, resY float64
		srid       int64
		outOfRow   bool
	)
	found, err := s.QueryOne(ctx, b.dialect.SampleSQL(b.tables, r.tileTable), nil, &resX, &resY, &srid, &outOfRow)
	if err != nil {
		return err
	}
	if !found {
		return errors.Annotatef(ErrNoGeometry, "table %q", r.tileTable)
	}
	resolutionsRead.Inc()

	// North-up rasters report a negative Y scale.
	resX, resY = math.Abs(resX), math.Abs(resY)
	mode := domain.StorageInline
	if outOfRow {
		mode = domain.StorageEncoded
	}
	if _, err := s.Exec(ctx, b.dialect.UpdateResolutionSQL(b.tables),
		resX, resY, srid, mode.String(), b.coverage, r.level); err != nil {
		return errors.Annotate(err, "persist resolution")
	}
	r.resX = sql.NullFloat64{Float64: resX, Valid: true}
	r.resY = sql.NullFloat64{Float64: resY, Valid: true}
	r.srid = sql.NullInt64{Int64: srid, Valid: true}
	r.storage = sql.NullString{String: mode.String(), Valid: true}
	r.mode = mode
	bootLogger.Infof("coverage %q level %d: resolution %g x %g, SRID %d, %s storage",
		b.coverage, r.level, resX, resY, srid, mode)
	return nil
}

// finalize builds and sorts the surviving levels.
func (b *bootstrap) finalize(records []*levelRecord) (domain.LevelSet, error) {
	levels := make([]domain.PyramidLevel, 0, len(records))
	for _, r := range records {
		l, err := b.level(r)
		if err != nil {
			bootLogger.Warningf("coverage %q level %d: dropped: %v", b.coverage, r.level, err)
			levelsDropped.Inc()
			continue
		}
		levels = append(levels, l)
	}
	if len(levels) == 0 {
		return domain.LevelSet{}, errors.Trace(ErrNoLevels)
	}
	return domain.NewLevelSet(levels)
}

func (b *bootstrap) level(r *levelRecord) (domain.PyramidLevel, error) {
	srid := int(r.srid.Int64)
	c, err := b.resolver.ResolveSRID(srid)
	if err != nil {
		if b.fallback.IsZero() {
			return domain.PyramidLevel{}, errors.Annotatef(err, "resolve SRID %d", srid)
		}
		bootLogger.Debugf("SRID %d unknown, using %s", srid, b.fallback)
		c = b.fallback
	}
	l := domain.PyramidLevel{
		CoverageName: b.coverage,
		LevelID:      r.level,
		TileTable:    r.tileTable,
		Extent:       domain.NewEnvelope(r.minX.Float64, r.minY.Float64, r.maxX.Float64, r.maxY.Float64, c),
		ResX:         r.resX.Float64,
		ResY:         r.resY.Float64,
		SRID:         srid,
		CRS:          c,
		Storage:      r.mode,
		SelectSQL:    b.dialect.SelectTilesSQL(b.tables, r.tileTable, r.mode),
	}
	return l, l.Validate()
}
