package synthesizer

import (
	"encoding/json"
	"errors"
	"strings"

	"hermannm.dev/nlq/query"
	"hermannm.dev/wrap"
)

// modelOutput is the JSON shape the model is instructed to produce. Alternative key names seen in
// model output are accepted too.
type modelOutput struct {
	Intent         string              `json:"intent"`
	Route          string              `json:"route"`
	Table          string              `json:"table"`
	TableReference string              `json:"table_reference"`
	CubeQuery      *query.MetricsQuery `json:"cube_query"`
	MetricsQuery   *query.MetricsQuery `json:"metrics_query"`
	SQL            string              `json:"sql"`
	WarehouseQuery string              `json:"warehouse_query"`
	Explanation    string              `json:"explanation"`
}

var errNoQuery = errors.New("output contains neither a metrics query nor SQL")

// Parse turns sanitized model output into a plan. The plan is not yet resolved to a route: the
// self-reported route is kept as reported (RouteAbsent if missing or unrecognized), along with
// whichever payloads were produced.
func Parse(question string, output string) (query.Plan, error) {
	var parsed modelOutput
	decoder := json.NewDecoder(strings.NewReader(output))
	decoder.UseNumber()
	if err := decoder.Decode(&parsed); err != nil {
		return query.Plan{}, wrap.Error(err, "invalid JSON")
	}

	plan := query.Plan{
		Question:       question,
		Intent:         strings.TrimSpace(parsed.Intent),
		Route:          parseSelfReportedRoute(parsed.Route),
		MetricsQuery:   firstNonNil(parsed.CubeQuery, parsed.MetricsQuery),
		WarehouseQuery: strings.TrimSpace(firstNonEmpty(parsed.SQL, parsed.WarehouseQuery)),
		TableReference: strings.TrimSpace(firstNonEmpty(parsed.Table, parsed.TableReference)),
		Explanation:    strings.TrimSpace(parsed.Explanation),
	}

	if plan.MetricsQuery != nil && len(plan.MetricsQuery.Measures) == 0 {
		plan.MetricsQuery = nil
	}

	if plan.Route == query.RouteError {
		if plan.Explanation == "" {
			plan.Explanation = "the question could not be translated into a query"
		}
		return query.ErrorPlan(question, plan.Explanation, false), nil
	}

	if plan.MetricsQuery == nil && plan.WarehouseQuery == "" {
		return query.Plan{}, errNoQuery
	}

	return plan, nil
}

var routeSynonyms = map[string]query.Route{
	"metrics":   query.RouteMetrics,
	"metric":    query.RouteMetrics,
	"cube":      query.RouteMetrics,
	"semantic":  query.RouteMetrics,
	"warehouse": query.RouteWarehouse,
	"sql":       query.RouteWarehouse,
	"bigquery":  query.RouteWarehouse,
	"error":     query.RouteError,
}

func parseSelfReportedRoute(reported string) query.Route {
	if route, ok := query.ParseRoute(reported); ok {
		return route
	}
	if route, ok := routeSynonyms[strings.ToLower(strings.TrimSpace(reported))]; ok {
		return route
	}
	return query.RouteAbsent
}

func firstNonNil[T any](values ...*T) *T {
	for _, value := range values {
		if value != nil {
			return value
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
