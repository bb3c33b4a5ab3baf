package query

// Plan is the structured output of question synthesis, prior to execution.
//
// For routes metrics and warehouse, exactly one of MetricsQuery/WarehouseQuery is populated once the
// plan has been resolved (see Resolve). For RouteError, both are empty and Explanation carries the
// diagnostic.
type Plan struct {
	Question       string
	Intent         string
	Route          Route
	MetricsQuery   *MetricsQuery
	WarehouseQuery string
	TableReference string
	Explanation    string
	// Set on error plans when generation failed in a way that may succeed if attempted again.
	Retryable bool
}

func ErrorPlan(question string, explanation string, retryable bool) Plan {
	return Plan{
		Question:    question,
		Intent:      "error",
		Route:       RouteError,
		Explanation: explanation,
		Retryable:   retryable,
	}
}

// HasPayload checks whether the plan carries the query needed to execute the given route.
func (plan Plan) HasPayload(route Route) bool {
	switch route {
	case RouteMetrics:
		return plan.MetricsQuery != nil && len(plan.MetricsQuery.Measures) > 0
	case RouteWarehouse:
		return plan.WarehouseQuery != ""
	default:
		return false
	}
}

// Resolve returns a copy of the plan committed to the given route, with the payload of the other
// route cleared.
func (plan Plan) Resolve(route Route) Plan {
	plan.Route = route

	switch route {
	case RouteMetrics:
		plan.WarehouseQuery = ""
	case RouteWarehouse:
		plan.MetricsQuery = nil
	default:
		plan.MetricsQuery = nil
		plan.WarehouseQuery = ""
	}

	return plan
}
