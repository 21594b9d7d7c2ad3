// Package store provides scoped database access for pyramid metadata and tiles.
package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ConnSource hands out one database connection per operation.
// *sql.DB satisfies it; pooling is the source's concern.
type ConnSource interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

// Ident quotes a possibly schema-qualified identifier from configuration.
func Ident(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
