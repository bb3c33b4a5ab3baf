package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"hermannm.dev/devlog/log"
	"hermannm.dev/nlq/config"
	"hermannm.dev/nlq/query"
	"hermannm.dev/wrap"
)

// Implements warehouse.Executor for Elasticsearch, through its SQL API.
type Executor struct {
	client  *elasticsearch.Client
	timeout time.Duration
}

func NewExecutor(config config.Config) (Executor, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:         []string{config.Elasticsearch.Address},
		EnableDebugLogger: config.Elasticsearch.Debug,
	})
	if err != nil {
		return Executor{}, wrap.Error(err, "failed to connect to Elasticsearch")
	}

	return Executor{client: client, timeout: config.WarehouseSQL.Timeout}, nil
}

func (Executor) Name() string {
	return "elasticsearch"
}

func (executor Executor) Ping(ctx context.Context) error {
	response, err := executor.client.Ping(executor.client.Ping.WithContext(ctx))
	if err != nil {
		return wrap.Error(err, "failed to ping Elasticsearch")
	}
	defer response.Body.Close()

	if response.IsError() {
		return wrapElasticError(
			parseErrorResponse(response.StatusCode, response.Body),
			"failed to ping Elasticsearch",
		)
	}
	return nil
}

type sqlRequest struct {
	Query     string `json:"query"`
	FetchSize int    `json:"fetch_size,omitempty"`
}

type sqlResponse struct {
	Columns []sqlColumn         `json:"columns"`
	Rows    [][]json.RawMessage `json:"rows"`
}

type sqlColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (executor Executor) Run(ctx context.Context, sql string) (query.RawResult, error) {
	log.Debug("running warehouse query", slog.String("query", sql))

	ctx, cancel := context.WithTimeout(ctx, executor.timeout)
	defer cancel()

	body, err := json.Marshal(sqlRequest{Query: sql})
	if err != nil {
		return query.RawResult{}, wrap.Error(err, "failed to serialize SQL request")
	}

	response, err := executor.client.SQL.Query(
		bytes.NewReader(body),
		executor.client.SQL.Query.WithContext(ctx),
		executor.client.SQL.Query.WithFormat("json"),
	)
	if err != nil {
		return query.RawResult{}, query.Transient(
			wrap.Error(err, "failed to send SQL query to Elasticsearch"),
		)
	}
	defer response.Body.Close()

	if response.IsError() {
		err := wrapElasticError(
			parseErrorResponse(response.StatusCode, response.Body),
			"Elasticsearch rejected SQL query",
		)
		if isTransientStatus(response.StatusCode) {
			return query.RawResult{}, query.Transient(err)
		}
		return query.RawResult{}, err
	}

	var parsed sqlResponse
	decoder := json.NewDecoder(response.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&parsed); err != nil {
		return query.RawResult{}, wrap.Error(err, "failed to decode Elasticsearch SQL response")
	}

	result, err := parsed.toRawResult()
	if err != nil {
		return query.RawResult{}, wrap.Error(err, "failed to parse Elasticsearch SQL response")
	}
	return result, nil
}

func (response sqlResponse) toRawResult() (query.RawResult, error) {
	columns := make([]string, len(response.Columns))
	for i, column := range response.Columns {
		columns[i] = column.Name
	}

	result := query.RawResult{
		Rows:    make([]query.Row, 0, len(response.Rows)),
		Source:  query.SourceWarehouse,
		Columns: columns,
	}

	for rowIndex, values := range response.Rows {
		if len(values) != len(columns) {
			return query.RawResult{}, wrap.Errorf(
				errColumnCountMismatch,
				"row %d has %d values for %d columns",
				rowIndex, len(values), len(columns),
			)
		}

		row := make(query.Row, len(columns))
		for i, rawValue := range values {
			value, err := decodeValue(rawValue)
			if err != nil {
				return query.RawResult{}, wrap.Errorf(
					err, "failed to decode value of column '%s' in row %d", columns[i], rowIndex,
				)
			}
			row[columns[i]] = value
		}
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

func isTransientStatus(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
