package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"hermannm.dev/devlog"
	"hermannm.dev/devlog/log"
	"hermannm.dev/nlq/api"
	"hermannm.dev/nlq/cache"
	"hermannm.dev/nlq/catalog"
	"hermannm.dev/nlq/config"
	"hermannm.dev/nlq/cube"
	"hermannm.dev/nlq/demodata"
	"hermannm.dev/nlq/orchestrator"
	"hermannm.dev/nlq/query"
	"hermannm.dev/nlq/router"
	"hermannm.dev/nlq/synthesizer"
	"hermannm.dev/nlq/warehouse"
	"hermannm.dev/nlq/warehouse/clickhouse"
	"hermannm.dev/nlq/warehouse/elasticsearch"
	"hermannm.dev/wrap"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "nlq",
		Short:         "Answer natural-language analytics questions from governed metrics and the warehouse",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context())
			},
		},
		newAskCommand(),
		&cobra.Command{
			Use:   "schema",
			Short: "Print the warehouse tables and governed metrics that questions are answered from",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				printSchema(cmd.OutOrStdout())
				return nil
			},
		},
	)

	return root
}

func newAskCommand() *cobra.Command {
	var planOnly bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and print the plan and result",
		Example: `  nlq ask "What is the total revenue?"
  nlq ask "Which customers are in the Champions segment?" --plan-only`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), !planOnly)
		},
	}
	cmd.Flags().BoolVar(&planOnly, "plan-only", false, "Print the generated plan without executing it")

	return cmd
}

type application struct {
	config       config.Config
	orchestrator *orchestrator.Orchestrator
	backends     api.Backends
	cache        *cache.ResultCache
}

func setup() (application, error) {
	// Logs at info level until the config has been read
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{Level: slog.LevelInfo})))

	conf, err := config.ReadFromEnv()
	if err != nil {
		return application{}, wrap.Error(err, "failed to read config from env")
	}

	level, err := conf.SlogLevel()
	if err != nil {
		return application{}, err
	}
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{Level: level})))

	clock := clockwork.NewRealClock()

	executor, err := newWarehouseExecutor(conf)
	if err != nil {
		return application{}, err
	}

	demo, err := demodata.Load(conf.Demo.DataPath)
	if err != nil {
		return application{}, wrap.Error(err, "failed to load demo datasets")
	}

	model := synthesizer.NewModel(conf.LLM)
	if model == nil {
		log.Warn("ANTHROPIC_API_KEY not set, questions will not be answered")
	}
	synth := synthesizer.New(model, synthesizer.Options{
		Dialect: string(conf.Warehouse),
		Project: conf.WarehouseSQL.Project,
		Dataset: conf.WarehouseSQL.Dataset,
		MaxRows: conf.Execution.MaxResultRows,
	})

	metrics := cube.NewClient(conf.Cube, clock)
	if !metrics.Configured() {
		log.Warn("CUBE_API_URL not set, governed metrics are unavailable")
	}

	resultCache := cache.NewResultCache(conf.Cache, clock)

	dependencies := orchestrator.Dependencies{
		Synthesizer:   synth,
		Router:        router.New(router.DefaultPolicy()),
		Metrics:       metrics,
		Warehouse:     executor,
		Cache:         resultCache,
		Demo:          demo,
		Retrier:       orchestrator.NewRetrier(conf.Execution, clock),
		SchemaContext: catalog.SchemaSummary(conf.WarehouseSQL.Project, conf.WarehouseSQL.Dataset),
	}
	gateway := orchestrator.New(dependencies, conf)

	return application{
		config:       conf,
		orchestrator: gateway,
		backends: api.Backends{
			Orchestrator: gateway,
			Synthesizer:  synth,
			Metrics:      metrics,
			Warehouse:    executor,
		},
		cache: resultCache,
	}, nil
}

// newWarehouseExecutor returns nil if no warehouse is configured.
func newWarehouseExecutor(conf config.Config) (warehouse.Executor, error) {
	switch conf.Warehouse {
	case config.WarehouseClickHouse:
		log.Info("connecting to ClickHouse...")
		executor, err := clickhouse.NewExecutor(conf)
		if err != nil {
			return nil, err
		}
		return executor, nil
	case config.WarehouseElasticsearch:
		log.Info("connecting to Elasticsearch...")
		executor, err := elasticsearch.NewExecutor(conf)
		if err != nil {
			return nil, err
		}
		return executor, nil
	default:
		log.Warn("no warehouse configured, warehouse questions are served from demo data only")
		return nil, nil
	}
}

func runServe(ctx context.Context) error {
	app, err := setup()
	if err != nil {
		log.ErrorCause(err, "failed to start")
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go app.cache.Start()
	defer app.cache.Stop()

	gatewayAPI := api.NewGatewayAPI(app.backends, app.config)

	log.Infof("listening on port %s...", app.config.API.Port)
	if err := gatewayAPI.ListenAndServe(ctx); err != nil {
		log.ErrorCause(err, "server stopped")
		return err
	}

	log.Info("server stopped")
	return nil
}

func runAsk(ctx context.Context, out io.Writer, question string, execute bool) error {
	app, err := setup()
	if err != nil {
		log.ErrorCause(err, "failed to start")
		return err
	}

	if timeout := app.config.API.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	answer := app.orchestrator.Ask(
		ctx,
		orchestrator.QuestionContext{RequestID: "cli", Question: question},
		execute,
	)

	printPlan(out, answer)
	if answer.Result == nil {
		return nil
	}

	result := *answer.Result
	if result.Failed() {
		fmt.Fprintf(out, "Error (%s): %s\n", result.Source, result.Error)
		return fmt.Errorf("execution failed: %s", result.Error)
	}
	if result.Notice != "" {
		fmt.Fprintf(out, "Notice: %s\n", result.Notice)
	}
	fmt.Fprintf(out, "Source: %s, rows: %d\n", result.Source, result.RowCount)
	printRows(out, result)
	return nil
}

func printPlan(out io.Writer, answer orchestrator.Answer) {
	plan := answer.Plan
	fmt.Fprintf(out, "Route: %s\n", answer.Route)
	if plan.Intent != "" {
		fmt.Fprintf(out, "Intent: %s\n", plan.Intent)
	}
	if plan.Explanation != "" {
		fmt.Fprintf(out, "Explanation: %s\n", plan.Explanation)
	}
	if plan.TableReference != "" {
		fmt.Fprintf(out, "Table: %s\n", plan.TableReference)
	}
	if plan.MetricsQuery != nil {
		metricsQuery, err := json.MarshalIndent(plan.MetricsQuery, "", "  ")
		if err == nil {
			fmt.Fprintf(out, "Metrics query:\n%s\n", metricsQuery)
		}
	}
	if plan.WarehouseQuery != "" {
		fmt.Fprintf(out, "SQL:\n%s\n", plan.WarehouseQuery)
	}
}

func printRows(out io.Writer, result query.Result) {
	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(result.Columns)

	for _, row := range result.Rows {
		cells := make([]string, len(result.Columns))
		for i, column := range result.Columns {
			if value, ok := row[column]; ok && value != nil {
				cells[i] = fmt.Sprint(value)
			}
		}
		table.Append(cells)
	}

	table.Render()
}

func printSchema(out io.Writer) {
	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Table", "Kind", "Domain", "Description"})
	for _, t := range catalog.Tables() {
		table.Append([]string{t.Name, t.Kind, t.Domain, t.Description})
	}
	table.Render()

	fmt.Fprintln(out)

	metrics := tablewriter.NewWriter(out)
	metrics.SetAutoWrapText(false)
	metrics.SetAutoFormatHeaders(false)
	metrics.SetHeader([]string{"Cube", "Measures", "Dimensions"})
	for _, c := range catalog.Cubes() {
		metrics.Append([]string{
			c.Name,
			strings.Join(c.Measures, ", "),
			strings.Join(slices.Concat(c.Dimensions, c.TimeDimensions), ", "),
		})
	}
	metrics.Render()
}
