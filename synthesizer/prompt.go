package synthesizer

import (
	"fmt"
	"strings"

	"hermannm.dev/nlq/catalog"
)

// Date expressions per SQL dialect, for the relative periods users most often ask about.
var dateLogicByDialect = map[string][]string{
	"clickhouse": {
		"\"Last month\" = `toStartOfMonth(today() - INTERVAL 1 MONTH)`",
		"\"YTD\" = `toYear(date_col) = toYear(today())`",
		"\"Last N days\" = `date_col >= today() - N`",
	},
	"elasticsearch": {
		"\"Last month\" = `DATE_TRUNC('month', NOW() - INTERVAL 1 MONTH)`",
		"\"YTD\" = `YEAR(date_col) = YEAR(NOW())`",
		"\"Last N days\" = `date_col >= NOW() - INTERVAL N DAYS`",
	},
}

var defaultDateLogic = []string{
	"\"Last month\" = from the first day of the previous month to the first day of this month",
	"\"YTD\" = from January 1st of the current year up to today",
}

// SystemPrompt builds the instruction given to the model, embedding the schema context.
func (synthesizer Synthesizer) SystemPrompt(schemaContext string) string {
	options := synthesizer.options
	qualify := func(table string) string {
		return catalog.QualifiedName(options.Project, options.Dataset, table)
	}

	var prompt strings.Builder

	prompt.WriteString(`You are an expert analytics engineer. Translate natural language business questions into
precise, executable queries over a retail e-commerce data platform.

### ROLE
- You are the interface between non-technical users and the data platform.
- Always choose the most appropriate pre-aggregated mart rather than raw tables.
- You understand retail business terminology (CLV, AOV, RFM and so on).

### SCHEMA CONTEXT
`)
	prompt.WriteString(schemaContext)

	prompt.WriteString(`
### ROUTING
Every question is answered by exactly one of two paths:
- "metrics": the governed metrics catalog. Use it for simple governed aggregations: single-metric
  totals (total revenue, order count, user count), breakdowns by one dimension such as country or
  order status, and daily revenue time series. Produce a "cube_query" using only the governed
  measures and dimensions listed above.
- "warehouse": generated SQL against the marts. Use it for anything ad-hoc or complex: segment
  membership lists (e.g. RFM segments), cohort and retention analyses, return rates, product, brand
  and category performance, and anything needing joins across tables. Produce "sql".
If unsure, choose "warehouse".

### RULES
`)
	fmt.Fprintf(&prompt, "1. Table selection: write tables as `%s`.\n", qualify("<table_name>"))
	fmt.Fprintf(
		&prompt,
		"2. SQL dialect: %s. A single SELECT statement, with no trailing semicolon.\n",
		options.dialectName(),
	)
	prompt.WriteString("3. Date logic:\n")
	for _, line := range options.dateLogic() {
		prompt.WriteString("   - ")
		prompt.WriteString(line)
		prompt.WriteByte('\n')
	}
	prompt.WriteString("4. Aggregation: always aggregate unless asked for a specific list.\n")
	fmt.Fprintf(&prompt, "5. Limits: lists must have a LIMIT of at most %d.\n", options.MaxRows)
	prompt.WriteString("6. Member names in cube_query always follow `<cube>.<field>`.\n")
	prompt.WriteString("7. No markdown: return one JSON object and nothing else.\n")

	prompt.WriteString(`
### OUTPUT FORMAT
{
    "intent": "short_snake_case_label",
    "route": "metrics" or "warehouse",
    "table": "main table or cube used",
    "cube_query": {"measures": [...], "dimensions": [...], "filters": [...], "timeDimensions": [...], "order": {...}, "limit": 100} or null,
    "sql": "SELECT ..." or null,
    "explanation": "why this logic"
}
If the question cannot be answered from this data, return {"route": "error", "explanation": "..."}.

### EXAMPLES
`)
	writeExample(&prompt, "What is our total revenue?", `{
    "intent": "total_revenue",
    "route": "metrics",
    "table": "orders",
    "cube_query": {"measures": ["orders.total_revenue"], "dimensions": []},
    "sql": null,
    "explanation": "Single governed metric, served by the metrics catalog."
}`)
	writeExample(&prompt, "Show daily revenue for the last 14 days", `{
    "intent": "daily_revenue",
    "route": "metrics",
    "table": "revenue_daily",
    "cube_query": {
        "measures": ["revenue_daily.total_revenue", "revenue_daily.total_orders"],
        "dimensions": [],
        "timeDimensions": [{"dimension": "revenue_daily.date", "granularity": "day", "dateRange": "last 14 days"}],
        "order": {"revenue_daily.date": "asc"}
    },
    "sql": null,
    "explanation": "Daily time series of a governed metric."
}`)
	writeExample(&prompt, "Which products have the highest return rate?", fmt.Sprintf(`{
    "intent": "analyze_product_returns",
    "route": "warehouse",
    "table": "fct_product_performance",
    "cube_query": null,
    "sql": "SELECT product_name, return_rate, total_units_sold, revenue_lost_to_returns FROM %s WHERE total_units_sold > 10 ORDER BY return_rate DESC LIMIT 10",
    "explanation": "Product performance mart, filtered to products with significant sales volume."
}`, qualify("fct_product_performance")))
	writeExample(&prompt, "Show me customers in the Champions segment", fmt.Sprintf(`{
    "intent": "segmentation_list",
    "route": "warehouse",
    "table": "fct_rfm_scores",
    "cube_query": null,
    "sql": "SELECT user_id, rfm_segment, recency_days, monetary FROM %s WHERE rfm_segment = 'Champions' LIMIT 20",
    "explanation": "Segment membership list from the RFM scores mart."
}`, qualify("fct_rfm_scores")))

	return prompt.String()
}

func writeExample(prompt *strings.Builder, question string, output string) {
	prompt.WriteString("\nInput: \"")
	prompt.WriteString(question)
	prompt.WriteString("\"\nOutput:\n")
	prompt.WriteString(output)
	prompt.WriteByte('\n')
}

func (options Options) dialectName() string {
	switch options.Dialect {
	case "clickhouse":
		return "ClickHouse SQL"
	case "elasticsearch":
		return "Elasticsearch SQL"
	default:
		return "ANSI SQL"
	}
}

func (options Options) dateLogic() []string {
	if lines, ok := dateLogicByDialect[options.Dialect]; ok {
		return lines
	}
	return defaultDateLogic
}
