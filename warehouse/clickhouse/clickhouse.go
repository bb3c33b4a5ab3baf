package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"hermannm.dev/devlog/log"
	"hermannm.dev/nlq/config"
	"hermannm.dev/nlq/query"
	"hermannm.dev/wrap"
)

// Querier is the subset of driver.Conn used by Executor.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (driver.Rows, error)
	Ping(ctx context.Context) error
}

// Implements warehouse.Executor for ClickHouse.
type Executor struct {
	conn    Querier
	timeout time.Duration
}

func NewExecutor(config config.Config) (Executor, error) {
	// Options docs: https://clickhouse.com/docs/en/integrations/go#connection-settings
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{config.ClickHouse.Address},
		Auth: clickhouse.Auth{
			Database: config.ClickHouse.DatabaseName,
			Username: config.ClickHouse.Username,
			Password: config.ClickHouse.Password,
		},
		Debug: config.ClickHouse.Debug,
		Debugf: func(format string, v ...any) {
			fmt.Printf(format+"\n", v...)
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout: 5 * time.Second,
		ReadTimeout: config.WarehouseSQL.Timeout,
	})
	if err != nil {
		return Executor{}, wrap.Error(err, "failed to connect to ClickHouse")
	}

	return NewExecutorWithQuerier(conn, config.WarehouseSQL.Timeout), nil
}

func NewExecutorWithQuerier(conn Querier, timeout time.Duration) Executor {
	return Executor{conn: conn, timeout: timeout}
}

func (Executor) Name() string {
	return "clickhouse"
}

func (executor Executor) Ping(ctx context.Context) error {
	if err := executor.conn.Ping(ctx); err != nil {
		return wrap.Error(err, "failed to ping ClickHouse")
	}
	return nil
}

// Run executes the query with read-only settings, so that ClickHouse itself rejects anything that
// would modify data.
func (executor Executor) Run(ctx context.Context, sql string) (query.RawResult, error) {
	log.Debug("running warehouse query", slog.String("query", sql))

	ctx, cancel := context.WithTimeout(ctx, executor.timeout)
	defer cancel()

	ctx = clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		// 2 is read-only, but still lets the query itself carry settings such as the one below
		"readonly":           2,
		"max_execution_time": maxExecutionSeconds(executor.timeout),
	}))

	rows, err := executor.conn.Query(ctx, sql)
	if err != nil {
		return query.RawResult{}, classifyError(err, "failed to execute query against ClickHouse")
	}
	defer rows.Close()

	// Scan failures are permanent
	result, err := parseRows(rows)
	if err != nil {
		return query.RawResult{}, wrap.Error(err, "failed to parse query result")
	}
	if err := rows.Err(); err != nil {
		return query.RawResult{}, classifyError(err, "failed to read result rows")
	}

	return result, nil
}

// maxExecutionSeconds converts the timeout to whole seconds for ClickHouse, which treats 0 as no
// limit.
func maxExecutionSeconds(timeout time.Duration) int {
	return max(1, int(timeout.Seconds()))
}
