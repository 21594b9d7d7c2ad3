package store

import (
	"context"
	"database/sql"
	"io"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("pyramid.store")

// Scope tracks every statement and result set opened on one connection
// so they can be closed together, in reverse order, when the scope ends.
type Scope struct {
	conn    *sql.Conn
	closers []io.Closer
}

// WithConn acquires one connection from src, runs fn with a scope bound to
// it, and closes every resource opened through the scope plus the
// connection itself, whichever way fn returns.
func WithConn(ctx context.Context, src ConnSource, fn func(*Scope) error) (err error) {
	conn, err := src.Conn(ctx)
	if err != nil {
		return errors.Annotate(err, "acquire connection")
	}
	s := &Scope{conn: conn}
	defer func() {
		if cerr := s.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// Prepare prepares a statement owned by the scope.
func (s *Scope) Prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	stmt, err := s.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, errors.Annotatef(err, "prepare %q", abbreviate(query))
	}
	s.closers = append(s.closers, stmt)
	return stmt, nil
}

// Query runs a query whose result set is owned by the scope.
func (s *Scope) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Annotatef(err, "query %q", abbreviate(query))
	}
	s.closers = append(s.closers, rows)
	return rows, nil
}

// QueryStmt runs a prepared statement; the result set is owned by the scope.
func (s *Scope) QueryStmt(ctx context.Context, stmt *sql.Stmt, args ...any) (*sql.Rows, error) {
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, errors.Annotate(err, "query prepared statement")
	}
	s.closers = append(s.closers, rows)
	return rows, nil
}

// QueryOne scans the first row of a query into dest and closes the result
// set. It reports false when the query returned no rows.
func (s *Scope) QueryOne(ctx context.Context, query string, args []any, dest ...any) (bool, error) {
	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return scanOne(rows, query, dest)
}

// QueryStmtOne is QueryOne for a prepared statement.
func (s *Scope) QueryStmtOne(ctx context.Context, stmt *sql.Stmt, args []any, dest ...any) (bool, error) {
	rows, err := s.QueryStmt(ctx, stmt, args...)
	if err != nil {
		return false, err
	}
	return scanOne(rows, "prepared statement", dest)
}

// Exec runs a statement that returns no rows.
func (s *Scope) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Annotatef(err, "exec %q", abbreviate(query))
	}
	return res, nil
}

func scanOne(rows *sql.Rows, query string, dest []any) (bool, error) {
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return false, errors.Annotatef(err, "read %q", abbreviate(query))
		}
		return false, nil
	}
	if err := rows.Scan(dest...); err != nil {
		return false, errors.Annotatef(err, "scan %q", abbreviate(query))
	}
	return true, errors.Trace(rows.Close())
}

// close releases resources in reverse order of opening. The first error
// is returned; later ones are only logged.
func (s *Scope) close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			if first == nil {
				first = err
			} else {
				logger.Warningf("closing resource: %v", err)
			}
		}
	}
	s.closers = nil
	if err := s.conn.Close(); err != nil {
		if first == nil {
			first = err
		} else {
			logger.Warningf("closing connection: %v", err)
		}
	}
	return errors.Annotate(first, "release database resources")
}

func abbreviate(query string) string {
	const limit = 60
	if len(query) <= limit {
		return query
	}
	return query[:limit] + "..."
}
