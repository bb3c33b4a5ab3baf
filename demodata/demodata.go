// Package demodata holds sample datasets served in place of live results when a backend is
// unavailable.
package demodata

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
	"hermannm.dev/nlq/catalog"
	"hermannm.dev/nlq/query"
	"hermannm.dev/wrap"
)

//go:embed datasets.yaml
var embeddedDatasets []byte

type Dataset struct {
	Name string `yaml:"name"`
	// Set for datasets answering metrics queries. Mutually exclusive with Table.
	Metrics *MetricsShape `yaml:"metrics"`
	// Set for datasets answering warehouse queries on the given table.
	Table string      `yaml:"table"`
	Rows  []query.Row `yaml:"rows"`
}

type MetricsShape struct {
	Measures      []string `yaml:"measures"`
	Dimensions    []string `yaml:"dimensions"`
	TimeDimension string   `yaml:"time_dimension"`
	Granularity   string   `yaml:"granularity"`
}

type datasetFile struct {
	Datasets []Dataset `yaml:"datasets"`
}

// Store looks up datasets by query shape. It is read-only after construction.
type Store struct {
	byShape map[string]Dataset
}

// Load parses the embedded datasets. If overridePath is not empty, datasets from that file are
// added, replacing embedded datasets of the same name.
func Load(overridePath string) (*Store, error) {
	datasets, err := parseDatasets(embeddedDatasets)
	if err != nil {
		return nil, wrap.Error(err, "failed to parse embedded demo datasets")
	}

	if overridePath != "" {
		content, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, wrap.Errorf(err, "failed to read demo datasets from '%s'", overridePath)
		}

		overrides, err := parseDatasets(content)
		if err != nil {
			return nil, wrap.Errorf(err, "failed to parse demo datasets from '%s'", overridePath)
		}

		for _, override := range overrides {
			datasets = slices.DeleteFunc(datasets, func(dataset Dataset) bool {
				return dataset.Name == override.Name
			})
			datasets = append(datasets, override)
		}
	}

	store := Store{byShape: make(map[string]Dataset, len(datasets))}
	for _, dataset := range datasets {
		store.byShape[dataset.shapeKey()] = dataset
	}
	return &store, nil
}

func parseDatasets(content []byte) ([]Dataset, error) {
	var file datasetFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, err
	}

	var errs []error
	names := make(map[string]struct{}, len(file.Datasets))
	for i, dataset := range file.Datasets {
		if err := dataset.validate(); err != nil {
			errs = append(errs, wrap.Errorf(err, "invalid dataset at index %d", i))
			continue
		}
		if _, duplicate := names[dataset.Name]; duplicate {
			errs = append(errs, fmt.Errorf("duplicate dataset name '%s'", dataset.Name))
		}
		names[dataset.Name] = struct{}{}
	}
	if len(errs) != 0 {
		return nil, wrap.Errors("invalid demo datasets", errs...)
	}

	return file.Datasets, nil
}

func (dataset Dataset) validate() error {
	switch {
	case dataset.Name == "":
		return errors.New("missing name")
	case (dataset.Metrics == nil) == (dataset.Table == ""):
		return fmt.Errorf("dataset '%s' must set exactly one of 'metrics' and 'table'", dataset.Name)
	case dataset.Metrics != nil && len(dataset.Metrics.Measures) == 0:
		return fmt.Errorf("dataset '%s' has no measures", dataset.Name)
	case len(dataset.Rows) == 0:
		return fmt.Errorf("dataset '%s' has no rows", dataset.Name)
	default:
		return nil
	}
}

func (dataset Dataset) shapeKey() string {
	if dataset.Metrics != nil {
		return metricsShapeKey(*dataset.Metrics, nil)
	}
	return tableShapeKey(dataset.Table)
}

// Lookup finds the dataset matching the shape of the plan's query: measures, dimensions, time
// dimension and filters for metrics queries, and the queried table for warehouse queries.
func (store *Store) Lookup(plan query.Plan) (Dataset, bool) {
	if store == nil {
		return Dataset{}, false
	}

	var key string
	switch plan.Route {
	case query.RouteMetrics:
		if plan.MetricsQuery == nil {
			return Dataset{}, false
		}
		key = metricsShapeKey(shapeOf(*plan.MetricsQuery), plan.MetricsQuery.Filters)
	case query.RouteWarehouse:
		table := plan.TableReference
		if table == "" {
			table = tableFromSQL(plan.WarehouseQuery)
		}
		if table == "" {
			return Dataset{}, false
		}
		key = tableShapeKey(table)
	default:
		return Dataset{}, false
	}

	dataset, ok := store.byShape[key]
	return dataset, ok
}

func (store *Store) Len() int {
	if store == nil {
		return 0
	}
	return len(store.byShape)
}

func shapeOf(metricsQuery query.MetricsQuery) MetricsShape {
	shape := MetricsShape{
		Measures:   metricsQuery.Measures,
		Dimensions: metricsQuery.Dimensions,
	}
	if window := metricsQuery.TimeWindow; window != nil && window.Granularity.IsValid() {
		shape.TimeDimension = window.Dimension
		shape.Granularity = window.Granularity.String()
	}
	return shape
}

func metricsShapeKey(shape MetricsShape, filters []query.Filter) string {
	var key strings.Builder
	key.WriteString("metrics:")
	key.WriteString(sortedJoin(shape.Measures))
	key.WriteByte('|')
	key.WriteString(sortedJoin(shape.Dimensions))
	key.WriteByte('|')
	if shape.TimeDimension != "" {
		key.WriteString(shape.TimeDimension)
		key.WriteByte('.')
		key.WriteString(strings.ToLower(shape.Granularity))
	}
	for _, filter := range filters {
		key.WriteString("|")
		key.WriteString(filter.Member)
		key.WriteByte(' ')
		key.WriteString(filter.Operator)
		key.WriteByte(' ')
		key.WriteString(strings.Join(filter.Values, ","))
	}
	return key.String()
}

func tableShapeKey(table string) string {
	if found, ok := catalog.FindTable(table); ok {
		table = found.Name
	}
	return "warehouse:" + strings.ToLower(table)
}

func sortedJoin(values []string) string {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return strings.Join(sorted, ",")
}

var fromClausePattern = regexp.MustCompile("(?i)\\bfrom\\s+([`\"]?[\\w.-]+[`\"]?)")

func tableFromSQL(sql string) string {
	match := fromClausePattern.FindStringSubmatch(sql)
	if match == nil {
		return ""
	}
	return strings.Trim(match[1], "`\"")
}
