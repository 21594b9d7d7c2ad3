package store_test

import (
	"context"
	"database/sql/driver"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/juju/errors"

	"go.ngs.io/raster-pyramid/internal/adapter/store"
	"go.ngs.io/raster-pyramid/internal/adapter/store/storetest"
)

func assertNoLeaks(c *qt.C, d *storetest.Driver) {
	c.Helper()
	conns, stmts, rows := d.Leaks()
	c.Assert([]int{conns, stmts, rows}, qt.DeepEquals, []int{0, 0, 0})
}

func TestWithConnClosesEverything(t *testing.T) {
	c := qt.New(t)
	d := storetest.New().
		On("SELECT a", storetest.Rows([]string{"a"}, []driver.Value{int64(1)}, []driver.Value{int64(2)})).
		On("SELECT b", storetest.Rows([]string{"b"}, []driver.Value{"x"}))
	db := d.DB(t)
	ctx := context.Background()

	err := store.WithConn(ctx, db, func(s *store.Scope) error {
		// Left open on purpose: the scope must close it.
		rows, err := s.Query(ctx, "SELECT a FROM t")
		if err != nil {
			return err
		}
		c.Assert(rows.Next(), qt.IsTrue)

		stmt, err := s.Prepare(ctx, "SELECT b FROM t WHERE id = ?")
		if err != nil {
			return err
		}
		var b string
		found, err := s.QueryStmtOne(ctx, stmt, []any{7}, &b)
		c.Assert(found, qt.IsTrue)
		c.Assert(b, qt.Equals, "x")
		return err
	})
	c.Assert(err, qt.IsNil)
	assertNoLeaks(c, d)
	c.Assert(db.Stats().InUse, qt.Equals, 0)
}

func TestWithConnClosesOnError(t *testing.T) {
	c := qt.New(t)
	boom := errors.New("boom")
	d := storetest.New().
		On("SELECT a", storetest.Rows([]string{"a"}, []driver.Value{int64(1)})).
		On("UPDATE", storetest.Fail(boom))
	db := d.DB(t)
	ctx := context.Background()

	err := store.WithConn(ctx, db, func(s *store.Scope) error {
		if _, err := s.Prepare(ctx, "SELECT a FROM t"); err != nil {
			return err
		}
		if _, err := s.Query(ctx, "SELECT a FROM t"); err != nil {
			return err
		}
		_, err := s.Exec(ctx, "UPDATE t SET a = 1")
		return err
	})
	c.Assert(err, qt.ErrorIs, boom)
	assertNoLeaks(c, d)
}

func TestQueryOneNoRows(t *testing.T) {
	c := qt.New(t)
	d := storetest.New().On("SELECT", storetest.Rows([]string{"a"}))
	db := d.DB(t)
	ctx := context.Background()

	err := store.WithConn(ctx, db, func(s *store.Scope) error {
		var a int64
		found, err := s.QueryOne(ctx, "SELECT a FROM t", nil, &a)
		c.Assert(found, qt.IsFalse)
		return err
	})
	c.Assert(err, qt.IsNil)
	assertNoLeaks(c, d)
}

func TestWithConnAcquireFailure(t *testing.T) {
	c := qt.New(t)
	d := storetest.New()
	d.FailConnect(errors.New("refused"))
	db := d.DB(t)

	called := false
	err := store.WithConn(context.Background(), db, func(*store.Scope) error {
		called = true
		return nil
	})
	c.Assert(err, qt.ErrorMatches, "acquire connection: .*refused")
	c.Assert(called, qt.IsFalse)
}

func TestIdent(t *testing.T) {
	c := qt.New(t)
	c.Assert(store.Ident("tiles"), qt.Equals, `"tiles"`)
	c.Assert(store.Ident("public.tiles"), qt.Equals, `"public"."tiles"`)
}

func TestLookupDialectUnknown(t *testing.T) {
	c := qt.New(t)
	_, err := store.LookupDialect("oracle")
	c.Assert(errors.Is(err, store.ErrUnknownDialect), qt.IsTrue)
}
