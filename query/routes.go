package query

import (
	"strings"

	"hermannm.dev/enumnames"
)

// Route is the execution path chosen for a question. The zero value means that no route has been
// reported, which is distinct from RouteError.
type Route int8

const (
	RouteMetrics Route = iota + 1
	RouteWarehouse
	RouteError
)

const RouteAbsent Route = 0

var routeNames = enumnames.NewMap(map[Route]string{
	RouteMetrics:   "metrics",
	RouteWarehouse: "warehouse",
	RouteError:     "error",
})

// ParseRoute matches name case-insensitively against the known routes.
func ParseRoute(name string) (route Route, ok bool) {
	name = strings.TrimSpace(name)
	for _, candidate := range []Route{RouteMetrics, RouteWarehouse, RouteError} {
		if strings.EqualFold(name, candidate.String()) {
			return candidate, true
		}
	}
	return RouteAbsent, false
}

func (route Route) IsValid() bool {
	return routeNames.ContainsEnumValue(route)
}

func (route Route) String() string {
	if route == RouteAbsent {
		return "absent"
	}
	return routeNames.GetNameOrFallback(route, "INVALID_ROUTE")
}

func (route Route) MarshalJSON() ([]byte, error) {
	if route == RouteAbsent {
		return []byte("null"), nil
	}
	return routeNames.MarshalToNameJSON(route)
}

func (route *Route) UnmarshalJSON(bytes []byte) error {
	if string(bytes) == "null" {
		*route = RouteAbsent
		return nil
	}
	return routeNames.UnmarshalFromNameJSON(bytes, route)
}
