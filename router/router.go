// Package router decides which execution path answers a query plan.
package router

import (
	"strings"

	"hermannm.dev/nlq/cube"
	"hermannm.dev/nlq/query"
)

// Policy tunes how routing decisions are made.
type Policy struct {
	// Whether a well-formed route reported by the synthesizer takes precedence over keyword
	// heuristics. When false, heuristics decide, and the self-report is only used if no heuristic
	// matches.
	PreferSelfReport bool
}

func DefaultPolicy() Policy {
	return Policy{PreferSelfReport: true}
}

type Router struct {
	policy Policy
}

func New(policy Policy) Router {
	return Router{policy: policy}
}

// Decision is a route along with the reason it was chosen.
type Decision struct {
	Route  query.Route
	Reason string
}

// Route returns the execution path for the plan. It is deterministic: the same plan always gives
// the same route.
func (router Router) Route(plan query.Plan) query.Route {
	return router.Explain(plan).Route
}

func (router Router) Explain(plan query.Plan) Decision {
	if plan.Route == query.RouteError {
		return Decision{query.RouteError, "synthesis reported an error"}
	}

	selfReported := plan.Route.IsValid() && plan.HasPayload(plan.Route)

	if selfReported && router.policy.PreferSelfReport {
		return Decision{plan.Route, "self-reported route with matching query"}
	}

	heuristic, matched := classify(plan)
	var preferred Decision
	switch {
	case matched:
		preferred = Decision{heuristic, "keyword heuristics"}
	case selfReported:
		preferred = Decision{plan.Route, "self-reported route with matching query"}
	default:
		preferred = Decision{query.RouteWarehouse, "no routing signal, defaulting to warehouse"}
	}

	if plan.HasPayload(preferred.Route) {
		return preferred
	}

	other := otherRoute(preferred.Route)
	if plan.HasPayload(other) {
		return Decision{other, "only a " + other.String() + " query was produced"}
	}

	if _, ok := cube.PrebuiltQuery(plan.Intent, 0); ok {
		return Decision{query.RouteMetrics, "pre-built metric for intent '" + plan.Intent + "'"}
	}

	return Decision{query.RouteError, "plan contains no executable query"}
}

func otherRoute(route query.Route) query.Route {
	if route == query.RouteMetrics {
		return query.RouteWarehouse
	}
	return query.RouteMetrics
}

// Terms indicating questions that need the broader warehouse schema. Checked before metrics terms,
// since a question like "revenue by product category" needs the warehouse even though it mentions
// revenue.
var warehouseTerms = []string{
	"segment",
	"champions",
	"at risk",
	"cohort",
	"retention",
	"return rate",
	"returns",
	"returned",
	"product",
	"brand",
	"category",
	"affinity",
	"basket",
	"funnel",
	"session",
	"traffic source",
	"lifetime value",
	"ltv",
	"clv",
	"rfm",
	"fulfillment",
	"shipping",
	"join",
}

var metricsTerms = []string{
	"revenue",
	"sales",
	"orders",
	"order count",
	"number of orders",
	"users",
	"user count",
	"how many customers",
	"by country",
	"by status",
	"order status",
	"daily",
	"per day",
	"trend",
	"average order value",
	"aov",
}

// classify matches keyword heuristics against the plan's intent, question and table reference.
func classify(plan query.Plan) (route query.Route, matched bool) {
	text := strings.ToLower(strings.Join(
		[]string{plan.Intent, plan.Question, plan.TableReference},
		" ",
	))
	text = strings.ReplaceAll(text, "_", " ")

	if containsAny(text, warehouseTerms) {
		return query.RouteWarehouse, true
	}
	if containsAny(text, metricsTerms) {
		return query.RouteMetrics, true
	}
	return query.RouteAbsent, false
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
