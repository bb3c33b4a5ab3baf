package synthesizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hermannm.dev/nlq/catalog"
	"hermannm.dev/nlq/query"
)

type fakeModel struct {
	output string
	err    error
	calls  int
	system string
}

func (model *fakeModel) Complete(_ context.Context, system string, _ string) (string, error) {
	model.calls++
	model.system = system
	return model.output, model.err
}

func (model *fakeModel) Ping(context.Context) error {
	return model.err
}

func newTestSynthesizer(model Model) Synthesizer {
	return New(model, Options{Dialect: "clickhouse", Dataset: "retail_marts", MaxRows: 100})
}

func TestSynthesizeMetricsQuestion(t *testing.T) {
	model := &fakeModel{output: "```json\n" + `{
		"intent": "total_revenue",
		"route": "metrics",
		"table": "orders",
		"cube_query": {"measures": ["orders.total_revenue"], "dimensions": []},
		"sql": null,
		"explanation": "Single governed metric."
	}` + "\n```"}

	plan := newTestSynthesizer(model).Synthesize(
		context.Background(),
		"What is our total revenue?",
		catalog.SchemaSummary("", "retail_marts"),
	)

	assert.Equal(t, query.RouteMetrics, plan.Route)
	require.NotNil(t, plan.MetricsQuery)
	assert.Equal(t, []string{"orders.total_revenue"}, plan.MetricsQuery.Measures)
	assert.Empty(t, plan.MetricsQuery.Dimensions)
	assert.Equal(t, query.DefaultLimit, plan.MetricsQuery.Limit)
	assert.Empty(t, plan.WarehouseQuery)
	assert.Equal(t, "What is our total revenue?", plan.Question)
	assert.Contains(t, model.system, "fct_rfm_scores")
	assert.Contains(t, model.system, "retail_marts.<table_name>")
}

func TestSynthesizeWarehouseQuestion(t *testing.T) {
	model := &fakeModel{output: `Here is the query:
{
	"intent": "segmentation_list",
	"route": "warehouse",
	"table": "fct_rfm_scores",
	"sql": "SELECT user_id, rfm_segment FROM retail_marts.fct_rfm_scores WHERE rfm_segment = 'Champions';",
	"explanation": "Segment membership list."
}
Let me know if you need anything else.`}

	plan := newTestSynthesizer(model).Synthesize(
		context.Background(),
		"Which customers are in the Champions segment?",
		"",
	)

	assert.Equal(t, query.RouteWarehouse, plan.Route)
	assert.Equal(t, "fct_rfm_scores", plan.TableReference)
	assert.Contains(t, plan.WarehouseQuery, "WHERE rfm_segment = 'Champions'")
	assert.Contains(t, plan.WarehouseQuery, "LIMIT 100")
	assert.NotContains(t, plan.WarehouseQuery, ";")
	assert.Nil(t, plan.MetricsQuery)
}

func TestSynthesizeMalformedOutput(t *testing.T) {
	model := &fakeModel{output: `{"intent": "total_revenue", "route": "metrics", "cube_query": {"measures": ["orders.total_revenue"]}`}

	plan := newTestSynthesizer(model).Synthesize(context.Background(), "total revenue", "")

	assert.Equal(t, query.RouteError, plan.Route)
	assert.Contains(t, plan.Explanation, "failed to parse model output")
	assert.False(t, plan.Retryable)
	assert.Nil(t, plan.MetricsQuery)
	assert.Empty(t, plan.WarehouseQuery)
}

func TestSynthesizeModelFailure(t *testing.T) {
	transient := newTestSynthesizer(&fakeModel{err: query.Transient(errors.New("overloaded"))}).
		Synthesize(context.Background(), "total revenue", "")
	assert.Equal(t, query.RouteError, transient.Route)
	assert.True(t, transient.Retryable)

	permanent := newTestSynthesizer(&fakeModel{err: errors.New("invalid API key")}).
		Synthesize(context.Background(), "total revenue", "")
	assert.Equal(t, query.RouteError, permanent.Route)
	assert.False(t, permanent.Retryable)
}

func TestSynthesizeWithoutModelOrQuestion(t *testing.T) {
	plan := newTestSynthesizer(nil).Synthesize(context.Background(), "total revenue", "")
	assert.Equal(t, query.RouteError, plan.Route)
	assert.Contains(t, plan.Explanation, "not configured")

	model := &fakeModel{}
	plan = newTestSynthesizer(model).Synthesize(context.Background(), "   ", "")
	assert.Equal(t, query.RouteError, plan.Route)
	assert.Zero(t, model.calls)
}

func TestSynthesizeDropsInvalidMetricsQueryWhenSQLPresent(t *testing.T) {
	model := &fakeModel{output: `{
		"intent": "revenue",
		"cube_query": {"measures": ["total revenue"]},
		"sql": "SELECT SUM(total_revenue) FROM fct_daily_revenue"
	}`}

	plan := newTestSynthesizer(model).Synthesize(context.Background(), "revenue", "")

	assert.Equal(t, query.RouteAbsent, plan.Route)
	assert.Nil(t, plan.MetricsQuery)
	assert.NotEmpty(t, plan.WarehouseQuery)
}

func TestSanitize(t *testing.T) {
	testCases := []struct {
		raw      string
		expected string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"Sure! {\"a\": {\"b\": 2}} Hope this helps.", `{"a": {"b": 2}}`},
		{"no json here", "no json here"},
		{"  ```\n{}\n```  ", "{}"},
		{
			"```json {\"intent\":\"total_revenue\",\"route\":\"metrics\"} ```",
			`{"intent":"total_revenue","route":"metrics"}`,
		},
		{"Here you go:\n```json\n{\"a\": 1}\n```\nLet me know!", `{"a": 1}`},
		{"```\nno json here\n```", "no json here"},
	}

	for _, testCase := range testCases {
		sanitized := Sanitize(testCase.raw)
		assert.Equal(t, testCase.expected, sanitized)
		assert.Equal(t, sanitized, Sanitize(sanitized), "sanitize must be idempotent")
	}
}

func TestParseSingleLineFencedOutput(t *testing.T) {
	output := "```json {\"intent\": \"total_revenue\", \"route\": \"metrics\", " +
		"\"cube_query\": {\"measures\": [\"orders.total_revenue\"]}} ```"

	plan, err := Parse("What is total revenue?", Sanitize(output))
	require.NoError(t, err)
	assert.Equal(t, "total_revenue", plan.Intent)
	assert.Equal(t, query.RouteMetrics, plan.Route)
	require.NotNil(t, plan.MetricsQuery)
	assert.Equal(t, []string{"orders.total_revenue"}, plan.MetricsQuery.Measures)
}

func TestParseSelfReportedRoute(t *testing.T) {
	testCases := []struct {
		reported string
		expected query.Route
	}{
		{"metrics", query.RouteMetrics},
		{"Cube", query.RouteMetrics},
		{" WAREHOUSE ", query.RouteWarehouse},
		{"sql", query.RouteWarehouse},
		{"", query.RouteAbsent},
		{"both", query.RouteAbsent},
	}

	for _, testCase := range testCases {
		assert.Equal(t, testCase.expected, parseSelfReportedRoute(testCase.reported), testCase.reported)
	}
}

func TestParseModelReportedError(t *testing.T) {
	plan, err := Parse("weather tomorrow?", `{"route": "error", "explanation": "Not in the data."}`)
	require.NoError(t, err)
	assert.Equal(t, query.RouteError, plan.Route)
	assert.Equal(t, "Not in the data.", plan.Explanation)
}

func TestParseRequiresAQuery(t *testing.T) {
	_, err := Parse("q", `{"intent": "x", "route": "metrics"}`)
	assert.ErrorIs(t, err, errNoQuery)
}
