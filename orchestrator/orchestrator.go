// Package orchestrator answers questions end to end: it synthesizes a plan, routes it, and
// executes it against the chosen backend with bounded retries, falling back to cached or demo data
// when the backend cannot answer.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"hermannm.dev/devlog/log"
	"hermannm.dev/nlq/cache"
	"hermannm.dev/nlq/config"
	"hermannm.dev/nlq/cube"
	"hermannm.dev/nlq/demodata"
	"hermannm.dev/nlq/normalizer"
	"hermannm.dev/nlq/query"
	"hermannm.dev/nlq/router"
	"hermannm.dev/nlq/telemetry"
	"hermannm.dev/nlq/warehouse"
	"hermannm.dev/wrap"
)

type Synthesizer interface {
	Synthesize(ctx context.Context, question string, schemaContext string) query.Plan
}

// MetricsBackend is satisfied by *cube.Client.
type MetricsBackend interface {
	Configured() bool
	Load(ctx context.Context, metricsQuery query.MetricsQuery) (query.RawResult, error)
}

// Dependencies are the collaborators of the orchestrator. Metrics, Warehouse, Cache and Demo may
// be nil, in which case the corresponding path is unavailable.
type Dependencies struct {
	Synthesizer   Synthesizer
	Router        router.Router
	Metrics       MetricsBackend
	Warehouse     warehouse.Executor
	Cache         *cache.ResultCache
	Demo          *demodata.Store
	Retrier       Retrier
	SchemaContext string
}

type Orchestrator struct {
	Dependencies
	maxRows     int
	demoEnabled bool
}

func New(dependencies Dependencies, config config.Config) *Orchestrator {
	return &Orchestrator{
		Dependencies: dependencies,
		maxRows:      config.Execution.MaxResultRows,
		demoEnabled:  config.Demo.FallbackEnabled,
	}
}

// QuestionContext identifies the question being answered.
type QuestionContext struct {
	RequestID string
	Question  string
}

func (question QuestionContext) logAttr() slog.Attr {
	return slog.String("request_id", question.RequestID)
}

// Answer is the outcome of asking a question. Result is nil if the plan was not executed.
type Answer struct {
	Plan   query.Plan
	Route  query.Route
	Result *query.Result
	Cached bool
}

var errNoRoute = errors.New("no executable route for query plan")

// Ask synthesizes and routes a plan for the question, and executes it unless execute is false.
// Fresh cached results for the same question and route are served without calling the backend.
func (orchestrator *Orchestrator) Ask(
	ctx context.Context,
	question QuestionContext,
	execute bool,
) Answer {
	plan := orchestrator.synthesize(ctx, question)

	decision := orchestrator.Router.Explain(plan)
	log.Info(
		"routed question",
		question.logAttr(),
		slog.String("route", decision.Route.String()),
		slog.String("reason", decision.Reason),
	)

	plan = withPrebuiltQuery(plan.Resolve(decision.Route))
	answer := Answer{Plan: plan, Route: decision.Route}
	if !execute {
		return answer
	}

	key := cache.NewKey(question.Question, decision.Route)
	if decision.Route != query.RouteError && orchestrator.Cache != nil {
		if result, ok := orchestrator.Cache.Fresh(key); ok {
			telemetry.CacheLookupsTotal.WithLabelValues(telemetry.CacheHit).Inc()
			log.Debug("serving cached result", question.logAttr())
			answer.Result = &result
			answer.Cached = true
			telemetry.QuestionsTotal.WithLabelValues(decision.Route.String(), result.Source.String()).Inc()
			return answer
		}
		telemetry.CacheLookupsTotal.WithLabelValues(telemetry.CacheMiss).Inc()
	}

	result := orchestrator.Execute(ctx, question, plan, decision.Route)
	if result.Source == query.SourceForRoute(decision.Route) && orchestrator.Cache != nil {
		orchestrator.Cache.Store(key, result)
	}

	telemetry.QuestionsTotal.WithLabelValues(decision.Route.String(), result.Source.String()).Inc()
	answer.Result = &result
	return answer
}

// synthesize retries synthesis while it fails in a way marked as retryable.
func (orchestrator *Orchestrator) synthesize(ctx context.Context, question QuestionContext) query.Plan {
	var plan query.Plan

	attempts, _ := orchestrator.Retrier.Do(ctx, func(ctx context.Context) error {
		plan = orchestrator.Synthesizer.Synthesize(ctx, question.Question, orchestrator.SchemaContext)
		if plan.Route == query.RouteError && plan.Retryable {
			return query.Transient(errors.New(plan.Explanation))
		}
		return nil
	})

	if plan.Route == query.RouteError {
		telemetry.SynthesisFailuresTotal.WithLabelValues(strconv.FormatBool(plan.Retryable)).Inc()
		log.Warn(
			"query synthesis gave no plan",
			question.logAttr(),
			slog.Uint64("attempts", uint64(attempts)),
			slog.String("explanation", plan.Explanation),
		)
	}

	return plan
}

// Execute runs the plan on the backend for the given route. It never fails: errors are returned in
// the result, with no rows and the attempted backend as source.
//
// Transient failures are retried. When the backend is unavailable after retries, or is not
// configured, a stale cached result or a demo dataset for the same query shape is served instead,
// with a notice. Successful rows are capped before normalization.
func (orchestrator *Orchestrator) Execute(
	ctx context.Context,
	question QuestionContext,
	plan query.Plan,
	route query.Route,
) query.Result {
	plan = withPrebuiltQuery(plan.Resolve(route))
	source := query.SourceForRoute(route)

	switch route {
	case query.RouteError:
		explanation := plan.Explanation
		if explanation == "" {
			explanation = errNoRoute.Error()
		}
		return query.ErrorResult(query.SourceNone, explanation)
	case query.RouteMetrics, query.RouteWarehouse:
	default:
		return query.ErrorResult(query.SourceNone, errNoRoute.Error())
	}

	run, backendName, err := orchestrator.prepare(plan)
	if err != nil {
		log.Info("rejected query plan", question.logAttr(), slog.String("cause", err.Error()))
		return query.ErrorResult(source, err.Error())
	}

	if run != nil {
		var raw query.RawResult
		attempts, err := orchestrator.Retrier.Do(ctx, func(ctx context.Context) error {
			var attemptErr error
			raw, attemptErr = run(ctx)
			telemetry.ExecutionAttemptsTotal.WithLabelValues(backendName, outcome(attemptErr)).Inc()
			return attemptErr
		})
		if err == nil {
			return orchestrator.finish(raw)
		}

		log.Warn(
			"query execution failed",
			question.logAttr(),
			slog.String("backend", backendName),
			slog.Uint64("attempts", uint64(attempts)),
			slog.String("cause", err.Error()),
		)
		if !query.IsTransient(err) {
			return query.ErrorResult(source, err.Error())
		}
		if result, ok := orchestrator.fallback(question, plan, backendName); ok {
			return result
		}
		return query.ErrorResult(source, err.Error())
	}

	err = fmt.Errorf("%s backend is not configured", backendName)
	if result, ok := orchestrator.fallback(question, plan, backendName); ok {
		return result
	}
	return query.ErrorResult(source, err.Error())
}

// prepare checks the plan's query and returns the call that runs it. The call is nil if the
// backend for the plan's route is not configured.
func (orchestrator *Orchestrator) prepare(
	plan query.Plan,
) (run func(ctx context.Context) (query.RawResult, error), backendName string, err error) {
	switch plan.Route {
	case query.RouteMetrics:
		backendName = query.SourceMetrics.String()
		if plan.MetricsQuery == nil {
			return nil, backendName, errors.New("plan has no metrics query")
		}
		if errs := plan.MetricsQuery.Validate(); len(errs) != 0 {
			return nil, backendName, wrap.Errors("invalid metrics query", errs...)
		}
		if orchestrator.Metrics == nil || !orchestrator.Metrics.Configured() {
			return nil, backendName, nil
		}

		metricsQuery := *plan.MetricsQuery
		return func(ctx context.Context) (query.RawResult, error) {
			return orchestrator.Metrics.Load(ctx, metricsQuery)
		}, backendName, nil
	case query.RouteWarehouse:
		backendName = query.SourceWarehouse.String()
		sql, err := warehouse.ValidateReadOnly(plan.WarehouseQuery)
		if err != nil {
			return nil, backendName, err
		}
		if orchestrator.Warehouse == nil {
			return nil, backendName, nil
		}
		backendName = orchestrator.Warehouse.Name()

		return func(ctx context.Context) (query.RawResult, error) {
			return orchestrator.Warehouse.Run(ctx, sql)
		}, backendName, nil
	default:
		return nil, "", errNoRoute
	}
}

// fallback serves data for the plan from the stale cache or, if enabled, the demo datasets.
func (orchestrator *Orchestrator) fallback(
	question QuestionContext,
	plan query.Plan,
	backendName string,
) (query.Result, bool) {
	if orchestrator.Cache != nil {
		key := cache.NewKey(question.Question, plan.Route)
		if result, storedAt, ok := orchestrator.Cache.Stale(key); ok {
			result.Source = query.SourceCache
			result.Notice = fmt.Sprintf(
				"%s is unavailable, showing cached results from %s",
				backendName,
				storedAt.UTC().Format(time.RFC3339),
			)
			telemetry.FallbacksTotal.WithLabelValues(query.SourceCache.String()).Inc()
			log.Info("serving stale cached result", question.logAttr())
			return result, true
		}
	}

	if orchestrator.demoEnabled {
		if dataset, ok := orchestrator.Demo.Lookup(plan); ok {
			raw := query.RawResult{Rows: dataset.Rows, Source: query.SourceDemo}
			if dataset.Metrics != nil {
				raw.Measures = dataset.Metrics.Measures
			}

			result := orchestrator.finish(raw)
			result.Notice = fmt.Sprintf(
				"%s is unavailable, showing demo data (%s)", backendName, dataset.Name,
			)
			telemetry.FallbacksTotal.WithLabelValues(query.SourceDemo.String()).Inc()
			log.Info(
				"serving demo dataset",
				question.logAttr(),
				slog.String("dataset", dataset.Name),
			)
			return result, true
		}
	}

	return query.Result{}, false
}

func (orchestrator *Orchestrator) finish(raw query.RawResult) query.Result {
	return normalizer.Normalize(raw.Truncate(orchestrator.maxRows))
}

// ClearCache removes every cached result.
func (orchestrator *Orchestrator) ClearCache() {
	if orchestrator.Cache != nil {
		orchestrator.Cache.Clear()
	}
}

// withPrebuiltQuery fills in the pre-built metrics query for the plan's intent, if the plan is
// routed to metrics without a query of its own.
func withPrebuiltQuery(plan query.Plan) query.Plan {
	if plan.Route != query.RouteMetrics || plan.MetricsQuery != nil {
		return plan
	}
	if prebuilt, ok := cube.PrebuiltQuery(plan.Intent, cube.DefaultWindowDays); ok {
		plan.MetricsQuery = &prebuilt
	}
	return plan
}

func outcome(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case query.IsTransient(err):
		return telemetry.OutcomeTransient
	default:
		return telemetry.OutcomePermanent
	}
}
