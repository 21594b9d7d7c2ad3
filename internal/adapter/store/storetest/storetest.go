// Package storetest provides a scripted database/sql driver for tests.
//
// Queries are answered by handlers matched on SQL substrings. The driver
// counts open connections, statements and result sets so tests can assert
// that nothing leaked, and keeps a log of every query it served.
package storetest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

// Result is a scripted answer to one query.
type Result struct {
	Columns      []string
	Rows         [][]driver.Value
	RowsAffected int64
	// Err is returned by the result set after all rows were delivered.
	Err error
}

// Handler answers one query. Returning an error fails the query.
type Handler func(query string, args []driver.Value) (*Result, error)

// Rows is a convenience handler returning fixed rows.
func Rows(columns []string, rows ...[]driver.Value) Handler {
	return func(string, []driver.Value) (*Result, error) {
		return &Result{Columns: columns, Rows: rows}, nil
	}
}

// Exec is a convenience handler for statements returning no rows.
func Exec(affected int64) Handler {
	return func(string, []driver.Value) (*Result, error) {
		return &Result{RowsAffected: affected}, nil
	}
}

// Fail is a convenience handler failing every call.
func Fail(err error) Handler {
	return func(string, []driver.Value) (*Result, error) {
		return nil, err
	}
}

type route struct {
	substr  string
	handler Handler
}

// Driver is a scripted database driver. The zero value is not usable; call New.
type Driver struct {
	mu         sync.Mutex
	routes     []route
	log        []string
	connectErr error

	conns, stmts, rows int
}

// New returns an empty driver.
func New() *Driver {
	return &Driver{}
}

// On registers a handler for queries containing substr. Handlers are
// tried in registration order; the first match wins.
func (d *Driver) On(substr string, h Handler) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes = append(d.routes, route{substr: substr, handler: h})
	return d
}

// FailConnect makes every new connection attempt fail with err.
func (d *Driver) FailConnect(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErr = err
}

// DB opens a *sql.DB backed by the driver. Idle connections are not kept,
// so a released connection is closed immediately and shows up in Leaks.
func (d *Driver) DB(t testing.TB) *sql.DB {
	db := sql.OpenDB(connector{d: d})
	db.SetMaxIdleConns(0)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Queries returns every query served so far, in order.
func (d *Driver) Queries() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.log...)
}

// Count returns how many served queries contain substr.
func (d *Driver) Count(substr string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, q := range d.log {
		if strings.Contains(q, substr) {
			n++
		}
	}
	return n
}

// ResetLog forgets the queries served so far.
func (d *Driver) ResetLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = nil
}

// Leaks returns the number of connections, statements and result sets
// that are currently open.
func (d *Driver) Leaks() (conns, stmts, rows int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns, d.stmts, d.rows
}

func (d *Driver) dispatch(query string, args []driver.Value) (*Result, error) {
	d.mu.Lock()
	d.log = append(d.log, query)
	var h Handler
	for _, r := range d.routes {
		if strings.Contains(query, r.substr) {
			h = r.handler
			break
		}
	}
	d.mu.Unlock()
	if h == nil {
		return nil, fmt.Errorf("storetest: unexpected query %q", query)
	}
	res, err := h(query, args)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	return res, nil
}

func (d *Driver) add(counter *int, delta int) {
	d.mu.Lock()
	*counter += delta
	d.mu.Unlock()
}

type connector struct {
	d *Driver
}

func (c connector) Connect(context.Context) (driver.Conn, error) {
	c.d.mu.Lock()
	err := c.d.connectErr
	c.d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c.d.add(&c.d.conns, 1)
	return &conn{d: c.d}, nil
}

func (c connector) Driver() driver.Driver { return drv{} }

type drv struct{}

func (drv) Open(string) (driver.Conn, error) {
	return nil, fmt.Errorf("storetest: use Driver.DB")
}

type conn struct {
	d      *Driver
	closed bool
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	c.d.add(&c.d.stmts, 1)
	return &stmt{d: c.d, query: query}, nil
}

func (c *conn) Close() error {
	if !c.closed {
		c.closed = true
		c.d.add(&c.d.conns, -1)
	}
	return nil
}

func (c *conn) Begin() (driver.Tx, error) { return tx{}, nil }

type tx struct{}

func (tx) Commit() error   { return nil }
func (tx) Rollback() error { return nil }

type stmt struct {
	d      *Driver
	query  string
	closed bool
}

func (s *stmt) Close() error {
	if !s.closed {
		s.closed = true
		s.d.add(&s.d.stmts, -1)
	}
	return nil
}

func (s *stmt) NumInput() int { return -1 }

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	res, err := s.d.dispatch(s.query, args)
	if err != nil {
		return nil, err
	}
	return driver.RowsAffected(res.RowsAffected), nil
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	res, err := s.d.dispatch(s.query, args)
	if err != nil {
		return nil, err
	}
	s.d.add(&s.d.rows, 1)
	return &rows{d: s.d, res: res}, nil
}

type rows struct {
	d      *Driver
	res    *Result
	next   int
	closed bool
}

func (r *rows) Columns() []string { return r.res.Columns }

func (r *rows) Close() error {
	if !r.closed {
		r.closed = true
		r.d.add(&r.d.rows, -1)
	}
	return nil
}

func (r *rows) Next(dest []driver.Value) error {
	if r.next >= len(r.res.Rows) {
		if r.res.Err != nil {
			return r.res.Err
		}
		return io.EOF
	}
	copy(dest, r.res.Rows[r.next])
	r.next++
	return nil
}
