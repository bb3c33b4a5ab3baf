package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"hermannm.dev/nlq/cube"
	"hermannm.dev/nlq/normalizer"
	"hermannm.dev/nlq/query"
	"hermannm.dev/wrap"
)

var errMetricsUnreachable = errors.New("metrics service is not reachable")

// Expects:
//   - JSON body in the metrics service's query format
//
// Returns:
//   - JSON-encoded query.Result, or status 503 if the metrics service is unavailable
func (api GatewayAPI) CubeQuery(res http.ResponseWriter, req *http.Request) {
	if !api.Metrics.Configured() {
		sendUnavailable(res, cube.ErrNotConfigured)
		return
	}

	var metricsQuery query.MetricsQuery
	if err := decodeJSONBody(res, req, &metricsQuery); err != nil {
		sendClientError(res, err, "failed to parse metrics query from request body")
		return
	}

	api.runMetricsQuery(res, req, metricsQuery)
}

// Expects:
//   - path parameter 'name': name of a pre-built metric
//   - optional query parameter 'days': lookback window for time series
//
// Returns:
//   - JSON-encoded query.Result, or status 503 if the metrics service is unavailable
func (api GatewayAPI) CubeMetric(res http.ResponseWriter, req *http.Request) {
	if !api.Metrics.Configured() {
		sendUnavailable(res, cube.ErrNotConfigured)
		return
	}

	days := 0
	if daysParam := req.URL.Query().Get("days"); daysParam != "" {
		var err error
		days, err = strconv.Atoi(daysParam)
		if err != nil || days <= 0 {
			sendClientError(res, nil, "query parameter 'days' must be a positive integer")
			return
		}
	}

	name := req.PathValue("name")
	metricsQuery, ok := cube.PrebuiltQuery(name, days)
	if !ok {
		sendNotFound(res, fmt.Sprintf(
			"unknown metric '%s' (available: %s)", name, strings.Join(cube.PrebuiltNames(), ", "),
		))
		return
	}

	api.runMetricsQuery(res, req, metricsQuery)
}

func (api GatewayAPI) runMetricsQuery(
	res http.ResponseWriter,
	req *http.Request,
	metricsQuery query.MetricsQuery,
) {
	metricsQuery = metricsQuery.Bounded()
	if errs := metricsQuery.Validate(); len(errs) != 0 {
		sendClientError(res, wrap.Errors("invalid metrics query", errs...), "")
		return
	}

	if !api.Metrics.Health(req.Context()) {
		sendUnavailable(res, errMetricsUnreachable)
		return
	}

	raw, err := api.Metrics.Load(req.Context(), metricsQuery)
	if err != nil {
		if query.IsTransient(err) {
			sendUnavailable(res, err)
		} else {
			sendJSONWithStatus(res, http.StatusBadGateway, errorResponse{Error: err.Error()})
		}
		return
	}

	sendJSON(res, normalizer.Normalize(raw.Truncate(api.config.Execution.MaxResultRows)))
}

// Returns:
//   - JSON-encoded catalog of cubes from the metrics service, or status 503 if it is unavailable
func (api GatewayAPI) CubeMeta(res http.ResponseWriter, req *http.Request) {
	if !api.Metrics.Configured() {
		sendUnavailable(res, cube.ErrNotConfigured)
		return
	}

	meta, ok := api.Metrics.Meta(req.Context())
	if !ok {
		sendUnavailable(res, errMetricsUnreachable)
		return
	}

	sendJSON(res, meta)
}

func (api GatewayAPI) ClearCache(res http.ResponseWriter, req *http.Request) {
	api.Orchestrator.ClearCache()
	sendJSON(res, map[string]string{"status": "cleared"})
}
