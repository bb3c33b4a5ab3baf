package query

import "hermannm.dev/enumnames"

// Source is the backend that actually served a result. It may differ from the planned route when a
// fallback was used.
type Source int8

const (
	SourceMetrics Source = iota + 1
	SourceWarehouse
	SourceCache
	SourceDemo
	SourceNone
)

var sourceNames = enumnames.NewMap(map[Source]string{
	SourceMetrics:   "metrics",
	SourceWarehouse: "warehouse",
	SourceCache:     "cache",
	SourceDemo:      "demo",
	SourceNone:      "none",
})

// SourceForRoute returns the live backend that serves the given route.
func SourceForRoute(route Route) Source {
	switch route {
	case RouteMetrics:
		return SourceMetrics
	case RouteWarehouse:
		return SourceWarehouse
	default:
		return SourceNone
	}
}

func (source Source) IsValid() bool {
	return sourceNames.ContainsEnumValue(source)
}

func (source Source) String() string {
	return sourceNames.GetNameOrFallback(source, "INVALID_SOURCE")
}

func (source Source) MarshalJSON() ([]byte, error) {
	return sourceNames.MarshalToNameJSON(source)
}

func (source *Source) UnmarshalJSON(bytes []byte) error {
	return sourceNames.UnmarshalFromNameJSON(bytes, source)
}
