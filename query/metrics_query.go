package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"hermannm.dev/wrap"
)

const (
	DefaultLimit = 100
	// Hard cap on rows requested from the metrics service.
	MaxLimit = 1000
)

// MetricsQuery is a query against the governed metrics catalog. Its JSON form is the shape the
// metrics service accepts on its load endpoint, so the same value is shown to callers as the query
// that was attempted.
type MetricsQuery struct {
	Measures   []string
	Dimensions []string
	Filters    []Filter
	TimeWindow *TimeWindow
	Order      map[string]SortOrder
	Limit      int
}

type Filter struct {
	Member   string       `json:"member"`
	Operator string       `json:"operator"`
	Values   FilterValues `json:"values,omitempty"`
}

// FilterValues are always sent as strings, but numbers and booleans are accepted on input.
type FilterValues []string

type TimeWindow struct {
	Dimension   string      `json:"dimension"`
	Granularity Granularity `json:"granularity,omitempty"`
	DateRange   *DateRange  `json:"dateRange,omitempty"`
}

// DateRange is either relative ("last 30 days") or an explicit [from, to] pair.
type DateRange struct {
	Relative string
	From     string
	To       string
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier checks that name follows the <entity>.<field> naming of the metrics catalog.
func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

func (metricsQuery MetricsQuery) Validate() (errs []error) {
	if len(metricsQuery.Measures) == 0 {
		errs = append(errs, errors.New("at least one measure is required"))
	}

	checkIdentifier := func(kind string, name string) {
		if !IsIdentifier(name) {
			errs = append(errs, fmt.Errorf("%s '%s' does not follow <entity>.<field> naming", kind, name))
		}
	}

	for _, measure := range metricsQuery.Measures {
		checkIdentifier("measure", measure)
	}
	for _, dimension := range metricsQuery.Dimensions {
		checkIdentifier("dimension", dimension)
	}
	for _, filter := range metricsQuery.Filters {
		checkIdentifier("filter member", filter.Member)
		if filter.Operator == "" {
			errs = append(errs, fmt.Errorf("filter on '%s' is missing an operator", filter.Member))
		}
	}
	if metricsQuery.TimeWindow != nil {
		checkIdentifier("time dimension", metricsQuery.TimeWindow.Dimension)
		granularity := metricsQuery.TimeWindow.Granularity
		if granularity != 0 && !granularity.IsValid() {
			errs = append(errs, fmt.Errorf("invalid granularity %v", granularity))
		}
	}
	for member, order := range metricsQuery.Order {
		checkIdentifier("order member", member)
		if !order.IsValid() {
			errs = append(errs, fmt.Errorf("invalid sort order for '%s'", member))
		}
	}

	if metricsQuery.Limit < 0 {
		errs = append(errs, fmt.Errorf("limit must be positive, got %d", metricsQuery.Limit))
	}

	return errs
}

// Bounded returns a copy with the default limit applied and the hard cap enforced.
func (metricsQuery MetricsQuery) Bounded() MetricsQuery {
	switch {
	case metricsQuery.Limit <= 0:
		metricsQuery.Limit = DefaultLimit
	case metricsQuery.Limit > MaxLimit:
		metricsQuery.Limit = MaxLimit
	}
	return metricsQuery
}

// Members returns every identifier referenced by the query, without duplicates.
func (metricsQuery MetricsQuery) Members() []string {
	members := make([]string, 0, len(metricsQuery.Measures)+len(metricsQuery.Dimensions)+1)
	add := func(member string) {
		if !slices.Contains(members, member) {
			members = append(members, member)
		}
	}

	for _, measure := range metricsQuery.Measures {
		add(measure)
	}
	for _, dimension := range metricsQuery.Dimensions {
		add(dimension)
	}
	for _, filter := range metricsQuery.Filters {
		add(filter.Member)
	}
	if metricsQuery.TimeWindow != nil {
		add(metricsQuery.TimeWindow.Dimension)
	}

	return members
}

type metricsQueryJSON struct {
	Measures       []string             `json:"measures"`
	Dimensions     []string             `json:"dimensions"`
	Filters        []Filter             `json:"filters,omitempty"`
	TimeDimensions []TimeWindow         `json:"timeDimensions,omitempty"`
	Order          map[string]SortOrder `json:"order,omitempty"`
	Limit          int                  `json:"limit,omitempty"`
}

func (metricsQuery MetricsQuery) MarshalJSON() ([]byte, error) {
	wire := metricsQueryJSON{
		Measures:   metricsQuery.Measures,
		Dimensions: metricsQuery.Dimensions,
		Filters:    metricsQuery.Filters,
		Order:      metricsQuery.Order,
		Limit:      metricsQuery.Limit,
	}
	if wire.Measures == nil {
		wire.Measures = []string{}
	}
	if wire.Dimensions == nil {
		wire.Dimensions = []string{}
	}
	if metricsQuery.TimeWindow != nil {
		wire.TimeDimensions = []TimeWindow{*metricsQuery.TimeWindow}
	}

	return json.Marshal(wire)
}

func (metricsQuery *MetricsQuery) UnmarshalJSON(bytes []byte) error {
	var wire metricsQueryJSON
	if err := json.Unmarshal(bytes, &wire); err != nil {
		return err
	}

	*metricsQuery = MetricsQuery{
		Measures:   wire.Measures,
		Dimensions: wire.Dimensions,
		Filters:    wire.Filters,
		Order:      wire.Order,
		Limit:      wire.Limit,
	}

	switch len(wire.TimeDimensions) {
	case 0:
	case 1:
		metricsQuery.TimeWindow = &wire.TimeDimensions[0]
	default:
		return fmt.Errorf(
			"at most one time dimension is supported, got %d", len(wire.TimeDimensions),
		)
	}

	return nil
}

func (values *FilterValues) UnmarshalJSON(bytes []byte) error {
	var raw []any
	if err := json.Unmarshal(bytes, &raw); err != nil {
		return wrap.Error(err, "filter values must be a list")
	}

	converted := make(FilterValues, 0, len(raw))
	for _, value := range raw {
		switch value := value.(type) {
		case string:
			converted = append(converted, value)
		case float64:
			converted = append(converted, strconv.FormatFloat(value, 'f', -1, 64))
		case bool:
			converted = append(converted, strconv.FormatBool(value))
		default:
			return fmt.Errorf("unsupported filter value '%v'", value)
		}
	}

	*values = converted
	return nil
}

func (dateRange DateRange) MarshalJSON() ([]byte, error) {
	if dateRange.Relative != "" {
		return json.Marshal(dateRange.Relative)
	}
	return json.Marshal([2]string{dateRange.From, dateRange.To})
}

func (dateRange *DateRange) UnmarshalJSON(bytes []byte) error {
	var relative string
	if err := json.Unmarshal(bytes, &relative); err == nil {
		*dateRange = DateRange{Relative: relative}
		return nil
	}

	var pair []string
	if err := json.Unmarshal(bytes, &pair); err != nil {
		return wrap.Error(err, "date range must be a string or a [from, to] pair")
	}
	if len(pair) != 2 {
		return fmt.Errorf("date range pair must have 2 elements, got %d", len(pair))
	}

	*dateRange = DateRange{From: pair[0], To: pair[1]}
	return nil
}
