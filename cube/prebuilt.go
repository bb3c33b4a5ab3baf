package cube

import (
	"fmt"
	"slices"

	"hermannm.dev/nlq/query"
)

const DefaultWindowDays = 30

// Pre-built queries for common metrics, by intent name. Windowed queries take the number of days to
// look back.
var prebuiltQueries = map[string]func(days int) query.MetricsQuery{
	"total_revenue": func(int) query.MetricsQuery {
		return query.MetricsQuery{Measures: []string{"orders.total_revenue"}}
	},
	"total_orders": func(int) query.MetricsQuery {
		return query.MetricsQuery{Measures: []string{"orders.count"}}
	},
	"revenue_by_country": func(int) query.MetricsQuery {
		return query.MetricsQuery{
			Measures:   []string{"orders.total_revenue", "orders.count"},
			Dimensions: []string{"orders.country"},
			Order:      map[string]query.SortOrder{"orders.total_revenue": query.SortOrderDescending},
			Limit:      20,
		}
	},
	"orders_by_status": func(int) query.MetricsQuery {
		return query.MetricsQuery{
			Measures:   []string{"orders.count", "orders.total_revenue"},
			Dimensions: []string{"orders.status"},
			Order:      map[string]query.SortOrder{"orders.count": query.SortOrderDescending},
		}
	},
	"daily_revenue": func(days int) query.MetricsQuery {
		return query.MetricsQuery{
			Measures: []string{"revenue_daily.total_revenue", "revenue_daily.total_orders"},
			TimeWindow: &query.TimeWindow{
				Dimension:   "revenue_daily.date",
				Granularity: query.GranularityDay,
				DateRange:   &query.DateRange{Relative: fmt.Sprintf("last %d days", days)},
			},
			Order: map[string]query.SortOrder{"revenue_daily.date": query.SortOrderAscending},
		}
	},
	"user_count": func(int) query.MetricsQuery {
		return query.MetricsQuery{Measures: []string{"users.count", "users.total_orders_placed"}}
	},
	"order_metrics": func(int) query.MetricsQuery {
		return query.MetricsQuery{
			Measures: []string{"orders.count", "orders.total_revenue", "orders.avg_order_value"},
		}
	},
}

// PrebuiltQuery returns the pre-built query for the given intent name. days is the lookback window
// for time series, and falls back to DefaultWindowDays if not positive.
func PrebuiltQuery(name string, days int) (query.MetricsQuery, bool) {
	build, ok := prebuiltQueries[name]
	if !ok {
		return query.MetricsQuery{}, false
	}
	if days <= 0 {
		days = DefaultWindowDays
	}
	return build(days).Bounded(), true
}

func PrebuiltNames() []string {
	names := make([]string, 0, len(prebuiltQueries))
	for name := range prebuiltQueries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
