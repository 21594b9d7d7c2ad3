package pyramid

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/juju/errors"

	"go.ngs.io/raster-pyramid/internal/adapter/store/storetest"
	"go.ngs.io/raster-pyramid/internal/domain"
)

func TestBootstrapCompleteTableRunsOneQuery(t *testing.T) {
	fx := newFixture(t)
	fx.fake.levels = []*fakeLevel{
		gridLevel(fx.c, 2, 4, 1).complete(),
		gridLevel(fx.c, 0, 1, 4).complete(),
		gridLevel(fx.c, 1, 2, 2).complete(),
	}

	a, err := fx.access(fx.options())
	fx.c.Assert(err, qt.IsNil)

	levels := a.Levels()
	fx.c.Assert(levels.Len(), qt.Equals, 3)
	for i, want := range []float64{1, 2, 4} {
		fx.c.Assert(levels.Level(i).Resolution(), qt.Equals, want)
		fx.c.Assert(levels.Level(i).Storage, qt.Equals, domain.StorageInline)
		fx.c.Assert(levels.Level(i).SelectSQL, qt.Not(qt.Equals), "")
	}
	fx.c.Assert(levels.MostDetailed().CRS, qt.DeepEquals, wgs84)
	fx.c.Assert(fx.driver.Queries(), qt.HasLen, 1)
	fx.assertNoLeaks()
}

func TestBootstrapComputesAndPersistsMetadata(t *testing.T) {
	fx := newFixture(t)
	fx.fake.levels = []*fakeLevel{gridLevel(fx.c, 0, 0.5, 2), gridLevel(fx.c, 1, 1, 1)}

	a, err := fx.access(fx.options())
	fx.c.Assert(err, qt.IsNil)
	fx.c.Assert(fx.driver.Count("ST_Extent"), qt.Equals, 2)
	fx.c.Assert(fx.driver.Count(`SET "min_x"`), qt.Equals, 2)
	fx.c.Assert(fx.driver.Count("ST_ScaleX"), qt.Equals, 2)
	fx.c.Assert(fx.driver.Count(`SET "res_x"`), qt.Equals, 2)
	fx.assertNoLeaks()

	l0 := a.Levels().MostDetailed()
	fx.c.Assert(l0.Extent.Equal(domain.NewEnvelope(0, 0, 4, 4, wgs84)), qt.IsTrue, qt.Commentf("%s", l0.Extent))
	// The stored Y scale is negative; the level keeps its magnitude.
	fx.c.Assert(l0.ResY, qt.Equals, 0.5)

	// Persisted values are read back without recomputing anything.
	fx.c.Assert(fx.fake.levels[0].extent, qt.HasLen, 4)
	fx.c.Assert(fx.fake.levels[0].res[3], qt.Equals, "inline")
	fx.driver.ResetLog()

	again, err := fx.access(fx.options())
	fx.c.Assert(err, qt.IsNil)
	fx.c.Assert(fx.driver.Queries(), qt.HasLen, 1)
	fx.c.Assert(again.Levels().Levels(), qt.DeepEquals, a.Levels().Levels())
	fx.assertNoLeaks()
}

func TestBootstrapDetectsEncodedStorage(t *testing.T) {
	fx := newFixture(t)
	l := gridLevel(fx.c, 0, 1, 1)
	l.outDB = true
	fx.fake.levels = []*fakeLevel{l}

	a, err := fx.access(fx.options())
	fx.c.Assert(err, qt.IsNil)
	lvl := a.Levels().MostDetailed()
	fx.c.Assert(lvl.Storage, qt.Equals, domain.StorageEncoded)
	fx.c.Assert(lvl.SelectSQL, qt.Contains, "ST_AsPNG")
	fx.c.Assert(l.res[3], qt.Equals, "encoded")
}

func TestBootstrapDropsEmptyLevels(t *testing.T) {
	fx := newFixture(t)
	empty := &fakeLevel{id: 1, table: "dem_l1", scale: 2}
	fx.fake.levels = []*fakeLevel{gridLevel(fx.c, 0, 1, 2), empty}

	a, err := fx.access(fx.options())
	fx.c.Assert(err, qt.IsNil)
	fx.c.Assert(a.Levels().Len(), qt.Equals, 1)
	fx.c.Assert(a.Levels().MostDetailed().LevelID, qt.Equals, 0)
	fx.c.Assert(empty.extent, qt.IsNil)
	fx.assertNoLeaks()
}

func TestBootstrapNoLevels(t *testing.T) {
	fx := newFixture(t)
	fx.fake.levels = []*fakeLevel{{id: 0, table: "dem_l0", scale: 1}}

	_, err := fx.access(fx.options())
	fx.c.Assert(err, qt.ErrorIs, ErrNoLevels)

	var pe *Error
	fx.c.Assert(errors.As(err, &pe), qt.IsTrue)
	fx.c.Assert(pe.Op, qt.Equals, "initialize")
	fx.c.Assert(pe.Coverage, qt.Equals, "dem")
	fx.assertNoLeaks()
}

func TestBootstrapMasterTableFailure(t *testing.T) {
	c := qt.New(t)
	boom := errors.New("relation does not exist")
	d := storetest.New().On("raster_pyramid", storetest.Fail(boom))
	fx := &fixture{c: c, driver: d, fake: &fakePyramid{}, src: d.DB(t)}

	_, err := fx.access(fx.options())
	c.Assert(err, qt.ErrorIs, boom)
	c.Assert(err, qt.ErrorMatches, `pyramid initialize "dem": read master table: .*`)
	fx.assertNoLeaks()
}

func TestBootstrapUpdateFailureDropsLevel(t *testing.T) {
	c := qt.New(t)
	// Registered ahead of the fake's handlers, so it wins.
	d := storetest.New().On(`SET "min_x"`, storetest.Fail(errors.New("read-only transaction")))
	f := &fakePyramid{levels: []*fakeLevel{gridLevel(c, 0, 1, 1).complete(), gridLevel(c, 1, 2, 1)}}
	f.install(d)
	fx := &fixture{c: c, driver: d, fake: f, src: d.DB(t)}

	a, err := fx.access(fx.options())
	c.Assert(err, qt.IsNil)
	c.Assert(a.Levels().Len(), qt.Equals, 1)
	c.Assert(a.Levels().MostDetailed().LevelID, qt.Equals, 0)
	c.Assert(fx.driver.Count("ST_ScaleX"), qt.Equals, 0)
	fx.assertNoLeaks()
}

func TestNewRejectsEmptyCoverage(t *testing.T) {
	fx := newFixture(t)
	opts := fx.options()
	opts.Coverage = ""
	_, err := fx.access(opts)
	fx.c.Assert(errors.Is(err, errors.NotValid), qt.IsTrue)
	fx.c.Assert(fx.driver.Queries(), qt.HasLen, 0)
}
