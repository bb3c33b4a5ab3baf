// Package catalog describes the warehouse marts and governed metrics that questions can be answered
// from. It is static: the same description feeds the synthesis prompt and the schema endpoint.
package catalog

import (
	"fmt"
	"strings"
)

type Table struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Domain      string   `json:"domain"`
	Grain       string   `json:"grain,omitempty"`
	Description string   `json:"description"`
	Columns     []string `json:"columns,omitempty"`
}

type Cube struct {
	Name       string   `json:"name"`
	Measures   []string `json:"measures"`
	Dimensions []string `json:"dimensions"`
	// Dimensions usable as time windows.
	TimeDimensions []string `json:"timeDimensions,omitempty"`
}

const (
	KindDimension = "dimension"
	KindFact      = "fact"
)

var tables = []Table{
	{
		Name: "dim_date", Kind: KindDimension, Domain: "calendar",
		Description: "Calendar reference",
		Columns:     []string{"date_key", "month_name", "is_weekend"},
	},
	{
		Name: "dim_users", Kind: KindDimension, Domain: "customers",
		Description: "User attributes: demographics, location, traffic source, cohorts",
		Columns:     []string{"user_id", "country", "traffic_source", "cohort_month"},
	},
	{
		Name: "dim_products", Kind: KindDimension, Domain: "products",
		Description: "Product catalog with brand, category, department, cost, price and margin",
		Columns:     []string{"product_id", "product_name", "brand", "category", "department"},
	},
	{
		Name: "dim_distribution_centers", Kind: KindDimension, Domain: "operations",
		Description: "Distribution center locations",
	},
	{
		Name: "fct_customer_orders", Kind: KindFact, Domain: "customers", Grain: "user",
		Description: "Customer lifetime value, total revenue and new/repeat status",
		Columns:     []string{"user_id", "lifetime_value", "total_revenue", "customer_status"},
	},
	{
		Name: "fct_customer_cohorts", Kind: KindFact, Domain: "customers", Grain: "user-month",
		Description: "Monthly activity per cohort, input to retention",
	},
	{
		Name: "fct_rfm_scores", Kind: KindFact, Domain: "customers", Grain: "user",
		Description: "RFM segmentation (Champions, At Risk, ...)",
		Columns:     []string{"user_id", "rfm_segment", "recency_days", "frequency", "monetary"},
	},
	{
		Name: "fct_customer_retention", Kind: KindFact, Domain: "customers", Grain: "cohort-month",
		Description: "Aggregated retention rates",
		Columns:     []string{"cohort_month", "months_since_first_order", "retention_rate"},
	},
	{
		Name: "fct_product_performance", Kind: KindFact, Domain: "products", Grain: "product",
		Description: "Sales and returns by product",
		Columns: []string{
			"product_name", "total_units_sold", "total_revenue", "return_rate",
			"revenue_lost_to_returns",
		},
	},
	{
		Name: "fct_category_performance", Kind: KindFact, Domain: "products", Grain: "category-month",
		Description: "Sales by category and month",
	},
	{
		Name: "fct_brand_performance", Kind: KindFact, Domain: "products", Grain: "brand-month",
		Description: "Sales by brand and month",
	},
	{
		Name: "fct_product_affinity", Kind: KindFact, Domain: "products", Grain: "product pair",
		Description: "Market basket analysis (lift, confidence)",
	},
	{
		Name: "fct_daily_revenue", Kind: KindFact, Domain: "revenue", Grain: "date",
		Description: "Daily sales and average order value",
		Columns:     []string{"order_date", "daily_revenue", "order_count", "avg_order_value"},
	},
	{
		Name: "fct_monthly_revenue", Kind: KindFact, Domain: "revenue", Grain: "month",
		Description: "Month-over-month and year-over-year growth",
		Columns:     []string{"order_month", "total_revenue", "mom_growth_pct", "yoy_growth_pct"},
	},
	{
		Name: "fct_geography_revenue", Kind: KindFact, Domain: "revenue", Grain: "country-month",
		Description: "Sales by country",
	},
	{
		Name: "fct_fulfillment", Kind: KindFact, Domain: "operations", Grain: "order",
		Description: "Order-level shipping times",
	},
	{
		Name: "fct_fulfillment_summary", Kind: KindFact, Domain: "operations", Grain: "month",
		Description: "Monthly SLA statistics (share shipped same day)",
	},
	{
		Name: "fct_returns", Kind: KindFact, Domain: "operations", Grain: "return",
		Description: "Product return rates and reasons",
	},
	{
		Name: "fct_order_status", Kind: KindFact, Domain: "operations", Grain: "status",
		Description: "Order funnel from processing to complete",
	},
	{
		Name: "fct_sessions", Kind: KindFact, Domain: "web", Grain: "session",
		Description: "Session metrics (duration, events)",
	},
	{
		Name: "fct_web_funnel", Kind: KindFact, Domain: "web", Grain: "source",
		Description: "Conversion funnels by traffic source",
	},
	{
		Name: "fct_traffic_source_performance", Kind: KindFact, Domain: "web", Grain: "channel",
		Description: "Return on investment by channel",
	},
}

var cubes = []Cube{
	{
		Name: "orders",
		Measures: []string{
			"orders.count", "orders.total_revenue", "orders.avg_order_value",
		},
		Dimensions:     []string{"orders.status", "orders.country", "orders.created_at"},
		TimeDimensions: []string{"orders.created_at"},
	},
	{
		Name:           "users",
		Measures:       []string{"users.count", "users.total_orders_placed"},
		Dimensions:     []string{"users.country", "users.traffic_source", "users.created_at"},
		TimeDimensions: []string{"users.created_at"},
	},
	{
		Name:           "revenue_daily",
		Measures:       []string{"revenue_daily.total_revenue", "revenue_daily.total_orders"},
		Dimensions:     []string{"revenue_daily.date"},
		TimeDimensions: []string{"revenue_daily.date"},
	},
}

func Tables() []Table {
	return tables
}

func Cubes() []Cube {
	return cubes
}

// FindTable looks up a table by name, also accepting names qualified by project/dataset.
func FindTable(name string) (Table, bool) {
	name = strings.Trim(name, "`\" ")
	if dot := strings.LastIndexByte(name, '.'); dot != -1 {
		name = name[dot+1:]
	}

	for _, table := range tables {
		if table.Name == name {
			return table, true
		}
	}
	return Table{}, false
}

// Domains groups table names by business domain, in catalog order.
func Domains() map[string][]string {
	domains := make(map[string][]string)
	for _, table := range tables {
		if table.Kind == KindFact {
			domains[table.Domain] = append(domains[table.Domain], table.Name)
		}
	}
	return domains
}

// QualifiedName returns the name generated queries should use for the table.
func QualifiedName(project string, dataset string, table string) string {
	switch {
	case project != "" && dataset != "":
		return fmt.Sprintf("%s.%s.%s", project, dataset, table)
	case dataset != "":
		return fmt.Sprintf("%s.%s", dataset, table)
	default:
		return table
	}
}
