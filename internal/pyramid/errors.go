package pyramid

import (
	"fmt"

	"github.com/juju/errors"
)

const (
	// ErrNoLevels means bootstrap found no usable pyramid level.
	ErrNoLevels = errors.ConstError("no usable pyramid levels")
	// ErrNoGeometry means a level's tile table holds no tiles.
	ErrNoGeometry = errors.ConstError("tile table has no geometry")
	// ErrUnsupportedStrategy means the dialect cannot serve the requested strategy.
	ErrUnsupportedStrategy = errors.ConstError("unsupported tile query strategy")
)

// NoLevel marks an Error that is not tied to a single level.
const NoLevel = -1

// Error is the failure returned by the access layer boundary. It carries
// the operation, the coverage, the level when known, and the cause.
type Error struct {
	Op       string
	Coverage string
	Level    int
	Err      error
}

func (e *Error) Error() string {
	if e.Level == NoLevel {
		return fmt.Sprintf("pyramid %s %q: %v", e.Op, e.Coverage, e.Err)
	}
	return fmt.Sprintf("pyramid %s %q level %d: %v", e.Op, e.Coverage, e.Level, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(op, coverage string, level int, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Op: op, Coverage: coverage, Level: level, Err: err}
}
