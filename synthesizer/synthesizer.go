// Package synthesizer turns natural language questions into query plans, using a language model.
package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"hermannm.dev/devlog/log"
	"hermannm.dev/nlq/query"
	"hermannm.dev/nlq/warehouse"
)

var ErrModelNotConfigured = errors.New("language model is not configured")

type Options struct {
	// Name of the warehouse engine that generated SQL runs on, e.g. "clickhouse".
	Dialect string
	Project string
	Dataset string
	// Upper bound for LIMIT clauses in generated SQL.
	MaxRows int
}

type Synthesizer struct {
	model   Model
	options Options
}

// New creates a synthesizer. model may be nil, in which case every question yields an error plan.
func New(model Model, options Options) Synthesizer {
	if options.MaxRows <= 0 {
		options.MaxRows = query.DefaultLimit
	}
	return Synthesizer{model: model, options: options}
}

func (synthesizer Synthesizer) Configured() bool {
	return synthesizer.model != nil
}

func (synthesizer Synthesizer) Ping(ctx context.Context) error {
	if synthesizer.model == nil {
		return ErrModelNotConfigured
	}
	return synthesizer.model.Ping(ctx)
}

// Synthesize asks the model for a plan answering the question. It never fails: problems are
// reported as a plan with RouteError, marked retryable if the model call failed transiently.
func (synthesizer Synthesizer) Synthesize(
	ctx context.Context,
	question string,
	schemaContext string,
) query.Plan {
	question = strings.TrimSpace(question)
	if question == "" {
		return query.ErrorPlan(question, "question is empty", false)
	}
	if synthesizer.model == nil {
		return query.ErrorPlan(question, ErrModelNotConfigured.Error(), false)
	}

	output, err := synthesizer.model.Complete(
		ctx,
		synthesizer.SystemPrompt(schemaContext),
		question,
	)
	if err != nil {
		log.Warn("query synthesis failed", slog.String("cause", err.Error()))
		return query.ErrorPlan(
			question,
			fmt.Sprintf("query generation failed: %v", err),
			query.IsTransient(err),
		)
	}

	log.Debug("language model output", slog.String("output", output))

	plan, err := Parse(question, Sanitize(output))
	if err != nil {
		return query.ErrorPlan(
			question,
			fmt.Sprintf("failed to parse model output: %v", err),
			false,
		)
	}

	return synthesizer.postProcess(plan)
}

// postProcess bounds generated queries, and drops a malformed metrics query when there is SQL to
// fall back to.
func (synthesizer Synthesizer) postProcess(plan query.Plan) query.Plan {
	if plan.Route == query.RouteError {
		return plan
	}

	if plan.WarehouseQuery != "" {
		plan.WarehouseQuery = warehouse.EnforceLimit(plan.WarehouseQuery, synthesizer.options.MaxRows)
	}

	if plan.MetricsQuery != nil {
		if errs := plan.MetricsQuery.Validate(); len(errs) != 0 && plan.WarehouseQuery != "" {
			log.Debug(
				"discarding invalid metrics query from model output",
				slog.String("cause", errors.Join(errs...).Error()),
			)
			plan.MetricsQuery = nil
		} else {
			bounded := plan.MetricsQuery.Bounded()
			plan.MetricsQuery = &bounded
		}
	}

	return plan
}
