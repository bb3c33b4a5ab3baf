package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hermannm.dev/nlq/cache"
	"hermannm.dev/nlq/config"
	"hermannm.dev/nlq/demodata"
	"hermannm.dev/nlq/query"
	"hermannm.dev/nlq/router"
	"hermannm.dev/nlq/telemetry"
)

type fakeSynthesizer struct {
	plans []query.Plan
	calls int
}

func (synthesizer *fakeSynthesizer) Synthesize(context.Context, string, string) query.Plan {
	plan := synthesizer.plans[min(synthesizer.calls, len(synthesizer.plans)-1)]
	synthesizer.calls++
	return plan
}

type fakeMetrics struct {
	lock   sync.Mutex
	result func(call int) (query.RawResult, error)
	calls  int
}

func (metrics *fakeMetrics) Configured() bool {
	return true
}

func (metrics *fakeMetrics) Load(context.Context, query.MetricsQuery) (query.RawResult, error) {
	metrics.lock.Lock()
	defer metrics.lock.Unlock()
	metrics.calls++
	return metrics.result(metrics.calls)
}

type fakeWarehouse struct {
	rows    []query.Row
	err     error
	queries []string
}

func (warehouse *fakeWarehouse) Run(_ context.Context, sql string) (query.RawResult, error) {
	warehouse.queries = append(warehouse.queries, sql)
	if warehouse.err != nil {
		return query.RawResult{}, warehouse.err
	}
	return query.RawResult{Rows: warehouse.rows, Source: query.SourceWarehouse}, nil
}

func (warehouse *fakeWarehouse) Ping(context.Context) error {
	return nil
}

func (warehouse *fakeWarehouse) Name() string {
	return "clickhouse"
}

const totalRevenueQuestion = "What is the total revenue?"

func totalRevenuePlan() query.Plan {
	return query.Plan{
		Question: totalRevenueQuestion,
		Intent:   "total_revenue",
		Route:    query.RouteMetrics,
		MetricsQuery: &query.MetricsQuery{
			Measures: []string{"orders.total_revenue"},
			Limit:    100,
		},
		Explanation: "Total revenue across all orders.",
	}
}

func championsPlan() query.Plan {
	return query.Plan{
		Question:       "Which customers are in the Champions segment?",
		Intent:         "rfm_champions",
		Route:          query.RouteWarehouse,
		TableReference: "fct_rfm_scores",
		WarehouseQuery: "SELECT user_id FROM retail_marts.fct_rfm_scores WHERE rfm_segment = 'Champions'\nLIMIT 100",
	}
}

func timeoutError() error {
	return query.Transient(fmt.Errorf("metrics query failed: %w", context.DeadlineExceeded))
}

func testConfig(demoEnabled bool) config.Config {
	return config.Config{
		BaseConfig: config.BaseConfig{
			Execution: config.Execution{MaxAttempts: 2, MaxResultRows: 100},
			Cache:     config.Cache{TTL: 5 * time.Minute, StaleTTL: time.Hour, Capacity: 100},
			Demo:      config.Demo{FallbackEnabled: demoEnabled},
		},
	}
}

type testSetup struct {
	dependencies Dependencies
	config       config.Config
	clock        *clockwork.FakeClock
}

func newTestSetup(t *testing.T, demoEnabled bool) testSetup {
	t.Helper()

	demo, err := demodata.Load("")
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	config := testConfig(demoEnabled)

	return testSetup{
		dependencies: Dependencies{
			Synthesizer: &fakeSynthesizer{plans: []query.Plan{totalRevenuePlan()}},
			Router:      router.New(router.DefaultPolicy()),
			Cache:       cache.NewResultCache(config.Cache, clock),
			Demo:        demo,
			Retrier:     NewRetrier(config.Execution, clock),
		},
		config: config,
		clock:  clock,
	}
}

func (setup testSetup) orchestrator() *Orchestrator {
	return New(setup.dependencies, setup.config)
}

func TestAskTotalRevenue(t *testing.T) {
	setup := newTestSetup(t, false)
	metrics := &fakeMetrics{
		result: func(int) (query.RawResult, error) {
			return query.RawResult{
				Rows:     []query.Row{{"orders.total_revenue": "1250000"}},
				Source:   query.SourceMetrics,
				Measures: []string{"orders.total_revenue"},
			}, nil
		},
	}
	setup.dependencies.Metrics = metrics
	orchestrator := setup.orchestrator()

	answer := orchestrator.Ask(context.Background(), QuestionContext{Question: totalRevenueQuestion}, true)

	assert.Equal(t, query.RouteMetrics, answer.Route)
	assert.False(t, answer.Cached)
	require.NotNil(t, answer.Result)
	result := *answer.Result
	assert.Empty(t, result.Error)
	assert.Equal(t, query.SourceMetrics, result.Source)
	assert.Equal(t, 1, result.RowCount)
	assert.Equal(t, int64(1250000), result.Rows[0]["total_revenue"])
	assert.Equal(t, "total_revenue", result.Roles.Revenue)

	again := orchestrator.Ask(
		context.Background(),
		QuestionContext{Question: "what is the total revenue"},
		true,
	)
	assert.True(t, again.Cached)
	assert.Equal(t, result, *again.Result)
	assert.Equal(t, 1, metrics.calls)
}

func TestAskPlanOnly(t *testing.T) {
	setup := newTestSetup(t, true)
	metrics := &fakeMetrics{}
	setup.dependencies.Metrics = metrics

	answer := setup.orchestrator().Ask(
		context.Background(),
		QuestionContext{Question: totalRevenueQuestion},
		false,
	)

	assert.Equal(t, query.RouteMetrics, answer.Route)
	assert.Nil(t, answer.Result)
	require.NotNil(t, answer.Plan.MetricsQuery)
	assert.Equal(t, []string{"orders.total_revenue"}, answer.Plan.MetricsQuery.Measures)
	assert.Zero(t, metrics.calls)
}

func TestAskRetriesRetryableSynthesisFailure(t *testing.T) {
	setup := newTestSetup(t, true)
	synthesizer := &fakeSynthesizer{
		plans: []query.Plan{
			query.ErrorPlan(totalRevenueQuestion, "query generation failed: overloaded", true),
			totalRevenuePlan(),
		},
	}
	setup.dependencies.Synthesizer = synthesizer

	answer := setup.orchestrator().Ask(
		context.Background(),
		QuestionContext{Question: totalRevenueQuestion},
		false,
	)

	assert.Equal(t, 2, synthesizer.calls)
	assert.Equal(t, query.RouteMetrics, answer.Route)
}

func TestAskDoesNotRetryParseFailure(t *testing.T) {
	setup := newTestSetup(t, true)
	synthesizer := &fakeSynthesizer{
		plans: []query.Plan{
			query.ErrorPlan(totalRevenueQuestion, "failed to parse model output: unexpected EOF", false),
		},
	}
	setup.dependencies.Synthesizer = synthesizer
	warehouse := &fakeWarehouse{}
	setup.dependencies.Warehouse = warehouse

	answer := setup.orchestrator().Ask(
		context.Background(),
		QuestionContext{Question: totalRevenueQuestion},
		true,
	)

	assert.Equal(t, 1, synthesizer.calls)
	assert.Equal(t, query.RouteError, answer.Route)
	require.NotNil(t, answer.Result)
	assert.Contains(t, answer.Result.Error, "failed to parse model output")
	assert.Equal(t, query.SourceNone, answer.Result.Source)
	assert.Empty(t, warehouse.queries)
}

func TestExecuteRetriesTimeoutsThenFallsBackOnce(t *testing.T) {
	setup := newTestSetup(t, true)
	setup.config.Execution.RetryDelay = 500 * time.Millisecond
	setup.config.Execution.RetryDelayInc = 500 * time.Millisecond
	setup.dependencies.Retrier = NewRetrier(setup.config.Execution, setup.clock)
	metrics := &fakeMetrics{
		result: func(int) (query.RawResult, error) { return query.RawResult{}, timeoutError() },
	}
	setup.dependencies.Metrics = metrics
	orchestrator := setup.orchestrator()

	demoFallbacks := testutil.ToFloat64(telemetry.FallbacksTotal.WithLabelValues("demo"))

	results := make(chan query.Result, 1)
	go func() {
		results <- orchestrator.Execute(
			context.Background(),
			QuestionContext{Question: totalRevenueQuestion},
			totalRevenuePlan(),
			query.RouteMetrics,
		)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, setup.clock.BlockUntilContext(ctx, 1))
	setup.clock.Advance(500 * time.Millisecond)

	var result query.Result
	select {
	case result = <-results:
	case <-ctx.Done():
		t.Fatal("execution did not finish after retry delay")
	}

	assert.Equal(t, 2, metrics.calls)
	assert.Empty(t, result.Error)
	assert.Equal(t, query.SourceDemo, result.Source)
	assert.Contains(t, result.Notice, "demo data")
	require.Len(t, result.Rows, 1)
	assert.EqualValues(t, 1250000, result.Rows[0]["total_revenue"])
	assert.Equal(t, demoFallbacks+1, testutil.ToFloat64(telemetry.FallbacksTotal.WithLabelValues("demo")))
}

func TestExecuteReturnsErrorWithoutFallback(t *testing.T) {
	setup := newTestSetup(t, false)
	metrics := &fakeMetrics{
		result: func(int) (query.RawResult, error) { return query.RawResult{}, timeoutError() },
	}
	setup.dependencies.Metrics = metrics

	answer := setup.orchestrator().Ask(
		context.Background(),
		QuestionContext{Question: totalRevenueQuestion},
		true,
	)

	assert.Equal(t, 2, metrics.calls)
	require.NotNil(t, answer.Result)
	assert.NotEmpty(t, answer.Result.Error)
	assert.Nil(t, answer.Result.Rows)
	assert.Zero(t, answer.Result.RowCount)
	assert.Equal(t, query.SourceMetrics, answer.Result.Source)
	require.NotNil(t, answer.Plan.MetricsQuery)
	assert.Equal(t, 0, setup.dependencies.Cache.Len())
}

func TestExecuteServesStaleCacheBeforeDemo(t *testing.T) {
	setup := newTestSetup(t, true)
	metrics := &fakeMetrics{
		result: func(call int) (query.RawResult, error) {
			if call > 1 {
				return query.RawResult{}, timeoutError()
			}
			return query.RawResult{
				Rows:     []query.Row{{"orders.total_revenue": "990000"}},
				Source:   query.SourceMetrics,
				Measures: []string{"orders.total_revenue"},
			}, nil
		},
	}
	setup.dependencies.Metrics = metrics
	orchestrator := setup.orchestrator()
	question := QuestionContext{Question: totalRevenueQuestion}

	first := orchestrator.Ask(context.Background(), question, true)
	require.Empty(t, first.Result.Error)

	setup.clock.Advance(10 * time.Minute)

	second := orchestrator.Ask(context.Background(), question, true)
	assert.False(t, second.Cached)
	assert.Equal(t, 3, metrics.calls)
	assert.Equal(t, query.SourceCache, second.Result.Source)
	assert.Contains(t, second.Result.Notice, "cached results")
	assert.Equal(t, int64(990000), second.Result.Rows[0]["total_revenue"])
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	setup := newTestSetup(t, true)
	warehouse := &fakeWarehouse{err: errors.New("Unknown column 'segment'")}
	setup.dependencies.Warehouse = warehouse

	result := setup.orchestrator().Execute(
		context.Background(),
		QuestionContext{Question: championsPlan().Question},
		championsPlan(),
		query.RouteWarehouse,
	)

	assert.Len(t, warehouse.queries, 1)
	assert.Equal(t, "Unknown column 'segment'", result.Error)
	assert.Equal(t, query.SourceWarehouse, result.Source)
	assert.Nil(t, result.Rows)
}

func TestExecuteCapsRows(t *testing.T) {
	setup := newTestSetup(t, false)
	rows := make([]query.Row, 250)
	for i := range rows {
		rows[i] = query.Row{"user_id": int64(i)}
	}
	setup.dependencies.Warehouse = &fakeWarehouse{rows: rows}

	result := setup.orchestrator().Execute(
		context.Background(),
		QuestionContext{Question: championsPlan().Question},
		championsPlan(),
		query.RouteWarehouse,
	)

	assert.Empty(t, result.Error)
	assert.Equal(t, 100, result.RowCount)
	assert.Len(t, result.Rows, 100)
}

func TestExecuteRejectsWriteStatements(t *testing.T) {
	setup := newTestSetup(t, true)
	warehouse := &fakeWarehouse{}
	setup.dependencies.Warehouse = warehouse

	plan := championsPlan()
	plan.WarehouseQuery = "DELETE FROM retail_marts.fct_rfm_scores"

	result := setup.orchestrator().Execute(
		context.Background(),
		QuestionContext{Question: plan.Question},
		plan,
		query.RouteWarehouse,
	)

	assert.NotEmpty(t, result.Error)
	assert.Equal(t, query.SourceWarehouse, result.Source)
	assert.Empty(t, warehouse.queries)
}

func TestExecuteErrorRouteCallsNoBackend(t *testing.T) {
	setup := newTestSetup(t, true)
	warehouse := &fakeWarehouse{}
	setup.dependencies.Warehouse = warehouse

	plan := query.ErrorPlan("drop everything", "question cannot be answered from the catalog", false)
	result := setup.orchestrator().Execute(
		context.Background(),
		QuestionContext{Question: plan.Question},
		plan,
		query.RouteError,
	)

	assert.Equal(t, "question cannot be answered from the catalog", result.Error)
	assert.Equal(t, query.SourceNone, result.Source)
	assert.Empty(t, warehouse.queries)
}

func TestExecuteUnconfiguredBackendUsesDemoData(t *testing.T) {
	setup := newTestSetup(t, true)

	plan := championsPlan()
	result := setup.orchestrator().Execute(
		context.Background(),
		QuestionContext{Question: plan.Question},
		plan,
		query.RouteWarehouse,
	)

	assert.Empty(t, result.Error)
	assert.Equal(t, query.SourceDemo, result.Source)
	assert.NotEmpty(t, result.Rows)
	assert.Contains(t, result.Notice, "warehouse is unavailable")
}

func TestExecuteUsesPrebuiltQueryForIntent(t *testing.T) {
	setup := newTestSetup(t, false)
	var loaded query.MetricsQuery
	setup.dependencies.Metrics = metricsRecorder{
		MetricsBackend: &fakeMetrics{
			result: func(int) (query.RawResult, error) {
				return query.RawResult{Rows: []query.Row{}, Source: query.SourceMetrics}, nil
			},
		},
		loaded: &loaded,
	}

	plan := query.Plan{Question: "orders by status", Intent: "orders_by_status", Route: query.RouteMetrics}
	result := setup.orchestrator().Execute(
		context.Background(),
		QuestionContext{Question: plan.Question},
		plan,
		query.RouteMetrics,
	)

	assert.Empty(t, result.Error)
	assert.Equal(t, []string{"orders.status"}, loaded.Dimensions)
	assert.Equal(t, 0, result.RowCount)
}

type metricsRecorder struct {
	MetricsBackend
	loaded *query.MetricsQuery
}

func (recorder metricsRecorder) Load(
	ctx context.Context,
	metricsQuery query.MetricsQuery,
) (query.RawResult, error) {
	*recorder.loaded = metricsQuery
	return recorder.MetricsBackend.Load(ctx, metricsQuery)
}

func TestClearCache(t *testing.T) {
	setup := newTestSetup(t, false)
	setup.dependencies.Metrics = &fakeMetrics{
		result: func(int) (query.RawResult, error) {
			return query.RawResult{
				Rows:   []query.Row{{"orders.total_revenue": 1}},
				Source: query.SourceMetrics,
			}, nil
		},
	}
	orchestrator := setup.orchestrator()

	orchestrator.Ask(context.Background(), QuestionContext{Question: totalRevenueQuestion}, true)
	require.Equal(t, 1, setup.dependencies.Cache.Len())

	orchestrator.ClearCache()
	assert.Equal(t, 0, setup.dependencies.Cache.Len())
}
