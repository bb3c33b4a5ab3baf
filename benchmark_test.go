package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"hermannm.dev/devlog"
	"hermannm.dev/nlq/cache"
	"hermannm.dev/nlq/config"
	"hermannm.dev/nlq/normalizer"
	"hermannm.dev/nlq/orchestrator"
	"hermannm.dev/nlq/query"
	"hermannm.dev/nlq/router"
	"hermannm.dev/nlq/synthesizer"
)

const testModelOutput = "```json\n" + `{
  "intent": "daily_revenue",
  "route": "metrics",
  "cube_query": {
    "measures": ["revenue_daily.total_revenue", "revenue_daily.total_orders"],
    "timeDimensions": [
      {"dimension": "revenue_daily.date", "granularity": "day", "dateRange": "last 30 days"}
    ],
    "limit": 100
  },
  "explanation": "Daily revenue and orders for the last 30 days."
}` + "\n```"

var testPlan query.Plan

// Sets up the logger before running benchmarks.
func TestMain(m *testing.M) {
	logHandler := devlog.NewHandler(os.Stdout, &devlog.Options{Level: slog.LevelWarn})
	slog.SetDefault(slog.New(logHandler))

	plan, err := synthesizer.Parse("Show daily revenue", synthesizer.Sanitize(testModelOutput))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to parse test model output:", err)
		os.Exit(1)
	}
	testPlan = plan

	os.Exit(m.Run())
}

func BenchmarkSanitizeAndParse(b *testing.B) {
	for i := 0; i < b.N; i++ {
		output := synthesizer.Sanitize(testModelOutput)
		if _, err := synthesizer.Parse("Show daily revenue", output); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRoute(b *testing.B) {
	planRouter := router.New(router.DefaultPolicy())
	heuristicPlan := testPlan
	heuristicPlan.Route = query.RouteAbsent

	for i := 0; i < b.N; i++ {
		planRouter.Route(heuristicPlan)
	}
}

func BenchmarkNormalize(b *testing.B) {
	raw := dailyRevenueResult(1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		normalizer.Normalize(raw)
	}
}

func BenchmarkConcurrentAsk(b *testing.B) {
	const concurrentQuestions = 1024

	conf := config.Config{
		BaseConfig: config.BaseConfig{
			Execution: config.Execution{MaxAttempts: 2, MaxResultRows: 100},
			Cache:     config.Cache{TTL: time.Minute, StaleTTL: time.Hour, Capacity: 1000},
		},
	}
	clock := clockwork.NewRealClock()
	gateway := orchestrator.New(
		orchestrator.Dependencies{
			Synthesizer: staticSynthesizer{plan: testPlan},
			Router:      router.New(router.DefaultPolicy()),
			Metrics:     staticMetrics{result: dailyRevenueResult(30)},
			Cache:       cache.NewResultCache(conf.Cache, clock),
			Retrier:     orchestrator.NewRetrier(conf.Execution, clock),
		},
		conf,
	)

	// Divides by GOMAXPROCS, since SetParallelism multiplies its argument by GOMAXPROCS, and we
	// want exactly concurrentQuestions number of concurrent questions
	b.SetParallelism(concurrentQuestions / runtime.GOMAXPROCS(0))

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			i++
			answer := gateway.Ask(
				context.Background(),
				// Varies the question, so that not every answer is served from the cache
				orchestrator.QuestionContext{Question: fmt.Sprintf("Show daily revenue %d", i%64)},
				true,
			)
			if answer.Result == nil || answer.Result.Failed() {
				b.Error("expected successful answer")
				return
			}
		}
	})
}

func dailyRevenueResult(days int) query.RawResult {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	rows := make([]query.Row, days)
	for i := range rows {
		rows[i] = query.Row{
			"revenue_daily.date.day":      start.AddDate(0, 0, i).Format("2006-01-02T15:04:05.000"),
			"revenue_daily.total_revenue": fmt.Sprintf("%d.%02d", 30000+i*17, i%100),
			"revenue_daily.total_orders":  fmt.Sprintf("%d", 400+i),
		}
	}

	return query.RawResult{
		Rows:     rows,
		Source:   query.SourceMetrics,
		Measures: []string{"revenue_daily.total_revenue", "revenue_daily.total_orders"},
	}
}

type staticSynthesizer struct {
	plan query.Plan
}

func (synthesizer staticSynthesizer) Synthesize(context.Context, string, string) query.Plan {
	return synthesizer.plan
}

type staticMetrics struct {
	result query.RawResult
}

func (staticMetrics) Configured() bool {
	return true
}

func (metrics staticMetrics) Load(context.Context, query.MetricsQuery) (query.RawResult, error) {
	return metrics.result, nil
}
