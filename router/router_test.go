package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"hermannm.dev/nlq/query"
)

var (
	revenueQuery = &query.MetricsQuery{Measures: []string{"orders.total_revenue"}}
	championsSQL = "SELECT user_id FROM fct_rfm_scores WHERE rfm_segment = 'Champions' LIMIT 20"
)

func TestRoute(t *testing.T) {
	testCases := []struct {
		name     string
		plan     query.Plan
		policy   Policy
		expected query.Route
	}{
		{
			name:     "error plan",
			plan:     query.ErrorPlan("q", "failed to parse model output", false),
			policy:   DefaultPolicy(),
			expected: query.RouteError,
		},
		{
			name: "self-report honored",
			plan: query.Plan{
				Question:       "Which customers are in the Champions segment?",
				Route:          query.RouteMetrics,
				MetricsQuery:   revenueQuery,
				WarehouseQuery: championsSQL,
			},
			policy:   DefaultPolicy(),
			expected: query.RouteMetrics,
		},
		{
			name: "heuristics first when self-report not preferred",
			plan: query.Plan{
				Question:       "Which customers are in the Champions segment?",
				Route:          query.RouteMetrics,
				MetricsQuery:   revenueQuery,
				WarehouseQuery: championsSQL,
			},
			policy:   Policy{PreferSelfReport: false},
			expected: query.RouteWarehouse,
		},
		{
			name: "self-report without its payload is ignored",
			plan: query.Plan{
				Question:     "What is our total revenue?",
				Route:        query.RouteWarehouse,
				MetricsQuery: revenueQuery,
			},
			policy:   DefaultPolicy(),
			expected: query.RouteMetrics,
		},
		{
			name: "absent self-report, warehouse terms win over metrics terms",
			plan: query.Plan{
				Question:       "Revenue by product category last month",
				MetricsQuery:   revenueQuery,
				WarehouseQuery: "SELECT category, SUM(total_revenue) FROM fct_category_performance",
			},
			policy:   DefaultPolicy(),
			expected: query.RouteWarehouse,
		},
		{
			name: "absent self-report, metrics terms",
			plan: query.Plan{
				Question:       "How many orders per day?",
				MetricsQuery:   revenueQuery,
				WarehouseQuery: "SELECT 1",
			},
			policy:   DefaultPolicy(),
			expected: query.RouteMetrics,
		},
		{
			name: "no signal defaults to warehouse",
			plan: query.Plan{
				Question:       "Tell me something interesting",
				MetricsQuery:   revenueQuery,
				WarehouseQuery: "SELECT 1",
			},
			policy:   DefaultPolicy(),
			expected: query.RouteWarehouse,
		},
		{
			name: "chosen route without payload switches to the other",
			plan: query.Plan{
				Question:       "What is our total revenue?",
				WarehouseQuery: "SELECT SUM(total_revenue) FROM fct_daily_revenue",
			},
			policy:   DefaultPolicy(),
			expected: query.RouteWarehouse,
		},
		{
			name:     "no payload, pre-built intent",
			plan:     query.Plan{Question: "daily revenue please", Intent: "daily_revenue"},
			policy:   DefaultPolicy(),
			expected: query.RouteMetrics,
		},
		{
			name:     "no payload at all",
			plan:     query.Plan{Question: "hello", Intent: "greeting"},
			policy:   DefaultPolicy(),
			expected: query.RouteError,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			router := New(testCase.policy)
			assert.Equal(t, testCase.expected, router.Route(testCase.plan))
		})
	}
}

func TestRouteIsDeterministic(t *testing.T) {
	router := New(DefaultPolicy())
	plan := query.Plan{
		Question:       "Show cohort retention by month and total revenue",
		MetricsQuery:   revenueQuery,
		WarehouseQuery: "SELECT * FROM fct_customer_retention",
	}

	first := router.Explain(plan)
	for range 10 {
		assert.Equal(t, first, router.Explain(plan))
	}
}

func TestExplainGivesReason(t *testing.T) {
	decision := New(DefaultPolicy()).Explain(query.Plan{Question: "hello"})
	assert.Equal(t, query.RouteError, decision.Route)
	assert.NotEmpty(t, decision.Reason)
}
