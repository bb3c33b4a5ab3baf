// Package warehouse runs generated read-only SQL against the data warehouse. Implementations for
// each supported engine live in subpackages.
package warehouse

import (
	"context"

	"hermannm.dev/nlq/query"
)

// Executor runs SQL against a warehouse engine. Returned errors are marked with query.Transient if
// the query may succeed when attempted again.
type Executor interface {
	Run(ctx context.Context, sql string) (query.RawResult, error)
	Ping(ctx context.Context) error
	Name() string
}
