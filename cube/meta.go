package cube

import (
	"fmt"

	"hermannm.dev/nlq/query"
)

// Meta is the catalog of cubes exposed by the metrics service.
type Meta struct {
	Cubes []CubeMeta `json:"cubes"`
}

type CubeMeta struct {
	Name       string       `json:"name"`
	Title      string       `json:"title,omitempty"`
	Measures   []MemberMeta `json:"measures"`
	Dimensions []MemberMeta `json:"dimensions"`
}

type MemberMeta struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Validate checks that every member referenced by the query exists in the catalog, and that
// measures and dimensions are used in their right places.
func (meta *Meta) Validate(metricsQuery query.MetricsQuery) (errs []error) {
	measures := make(map[string]struct{})
	dimensions := make(map[string]struct{})
	for _, cube := range meta.Cubes {
		for _, measure := range cube.Measures {
			measures[measure.Name] = struct{}{}
		}
		for _, dimension := range cube.Dimensions {
			dimensions[dimension.Name] = struct{}{}
		}
	}

	for _, measure := range metricsQuery.Measures {
		if _, ok := measures[measure]; !ok {
			errs = append(errs, fmt.Errorf("unknown measure '%s'", measure))
		}
	}
	for _, dimension := range metricsQuery.Dimensions {
		if _, ok := dimensions[dimension]; !ok {
			errs = append(errs, fmt.Errorf("unknown dimension '%s'", dimension))
		}
	}
	if window := metricsQuery.TimeWindow; window != nil {
		if _, ok := dimensions[window.Dimension]; !ok {
			errs = append(errs, fmt.Errorf("unknown time dimension '%s'", window.Dimension))
		}
	}
	for _, filter := range metricsQuery.Filters {
		_, isMeasure := measures[filter.Member]
		_, isDimension := dimensions[filter.Member]
		if !isMeasure && !isDimension {
			errs = append(errs, fmt.Errorf("unknown filter member '%s'", filter.Member))
		}
	}

	return errs
}
