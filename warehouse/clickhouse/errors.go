package clickhouse

import (
	"errors"

	"github.com/ClickHouse/clickhouse-go/v2/lib/proto"
	"hermannm.dev/nlq/query"
	"hermannm.dev/wrap"
)

// See https://github.com/ClickHouse/ClickHouse/blob/bd387f6d2c30f67f2822244c0648f2169adab4d3/src/Common/ErrorCodes.cpp
const (
	clickhouseTimeoutExceededErrorCode       = 159
	clickhouseTooManySimultaneousQueriesCode = 202
	clickhouseSocketTimeoutErrorCode         = 209
	clickhouseNetworkErrorCode               = 210
	clickhouseMemoryLimitExceededErrorCode   = 241
	clickhouseQueryWasCancelledErrorCode     = 394
)

var transientExceptionCodes = map[int32]struct{}{
	clickhouseTimeoutExceededErrorCode:       {},
	clickhouseTooManySimultaneousQueriesCode: {},
	clickhouseSocketTimeoutErrorCode:         {},
	clickhouseNetworkErrorCode:               {},
	clickhouseMemoryLimitExceededErrorCode:   {},
	clickhouseQueryWasCancelledErrorCode:     {},
}

// classifyError wraps err with the given message, marking it transient unless ClickHouse rejected
// the query itself (syntax errors, unknown tables, readonly violations and so on).
func classifyError(err error, message string) error {
	wrapped := wrap.Error(err, message)

	var exception *proto.Exception
	if errors.As(err, &exception) {
		if _, transient := transientExceptionCodes[exception.Code]; transient {
			return query.Transient(wrapped)
		}
		return wrapped
	}

	return query.Transient(wrapped)
}
