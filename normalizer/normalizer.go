// Package normalizer reshapes backend output into the tabular contract returned to consumers.
package normalizer

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"

	"hermannm.dev/nlq/query"
)

// Normalize renames metrics-service columns to their bare field names, converts numeric values to
// Go numbers and assigns canonical roles to columns. Unrecognized columns are kept as they are, and
// members whose bare names collide keep a longer name instead of overwriting each other.
func Normalize(raw query.RawResult) query.Result {
	columns := newColumnSet(raw.Measures)
	for _, name := range raw.Columns {
		columns.add(name)
	}

	rows := make([]query.Row, 0, len(raw.Rows))
	for _, rawRow := range raw.Rows {
		row := make(query.Row, len(rawRow))
		for _, name := range sortedKeys(rawRow) {
			column := columns.add(name)
			row[column.name] = convertValue(rawRow[name], column.isMeasure)
		}
		rows = append(rows, row)
	}

	return query.Result{
		Rows:     rows,
		RowCount: len(rows),
		Source:   raw.Source,
		Columns:  columns.names,
		Roles:    columns.roles(),
	}
}

// ColumnName strips the entity prefix and any granularity suffix from a metrics-service member
// name, such that "orders.total_revenue" becomes "total_revenue" and "revenue_daily.date.day"
// becomes "date". Names without a prefix are returned unchanged.
func ColumnName(member string) string {
	parts := strings.Split(member, ".")
	switch len(parts) {
	case 1:
		return member
	case 2:
		return parts[1]
	default:
		if _, ok := parseGranularity(parts[len(parts)-1]); ok {
			return parts[len(parts)-2]
		}
		return parts[len(parts)-1]
	}
}

func parseGranularity(suffix string) (query.Granularity, bool) {
	var granularity query.Granularity
	if err := json.Unmarshal([]byte(strconv.Quote(suffix)), &granularity); err != nil {
		return 0, false
	}
	return granularity, true
}

type column struct {
	name      string
	isMeasure bool
}

type columnSet struct {
	names    []string
	byMember map[string]column
	owners   map[string]string
	measures []string
}

func newColumnSet(measures []string) *columnSet {
	return &columnSet{
		byMember: make(map[string]column),
		owners:   make(map[string]string),
		measures: measures,
	}
}

func (set *columnSet) add(member string) column {
	if existing, ok := set.byMember[member]; ok {
		return existing
	}

	col := column{name: set.freeName(member), isMeasure: slices.Contains(set.measures, member)}
	set.byMember[member] = col
	set.owners[col.name] = member
	set.names = append(set.names, col.name)
	return col
}

// freeName returns the short column name for the member, or a longer one if a different member
// already uses the short name, such that "users.count" becomes "users_count" when "orders.count"
// was added first.
func (set *columnSet) freeName(member string) string {
	candidates := []string{ColumnName(member), strings.ReplaceAll(member, ".", "_"), member}
	for _, name := range candidates {
		if _, taken := set.owners[name]; !taken {
			return name
		}
	}

	for i := 2; ; i++ {
		name := member + "_" + strconv.Itoa(i)
		if _, taken := set.owners[name]; !taken {
			return name
		}
	}
}

// roles assigns each role to the first column (in column order) that matches it.
func (set *columnSet) roles() query.ColumnRoles {
	var roles query.ColumnRoles
	for _, name := range set.names {
		role, ok := Match(name)
		if !ok {
			continue
		}

		switch role {
		case RoleRevenue:
			if roles.Revenue == "" {
				roles.Revenue = name
			}
		case RoleCount:
			if roles.Count == "" {
				roles.Count = name
			}
		case RoleDate:
			if roles.Date == "" {
				roles.Date = name
			}
		}
	}
	return roles
}

// convertValue turns decoded JSON numbers into int64 or float64. The metrics service sends measure
// values as strings, so those are converted too when the column is a requested measure.
func convertValue(value any, isMeasure bool) any {
	switch value := value.(type) {
	case json.Number:
		return parseNumber(string(value), value)
	case string:
		if isMeasure {
			return parseNumber(value, value)
		}
		return value
	default:
		return value
	}
}

func parseNumber(text string, fallback any) any {
	if integer, err := strconv.ParseInt(text, 10, 64); err == nil {
		return integer
	}
	if float, err := strconv.ParseFloat(text, 64); err == nil && !math.IsNaN(float) &&
		!math.IsInf(float, 0) {
		return float
	}
	return fallback
}

// Rows are maps, so keys are sorted to keep column order stable for backends that report none.
func sortedKeys(row query.Row) []string {
	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
