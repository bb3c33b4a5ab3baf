package query

// Row is a single record of a tabular result, mapping column name to a scalar value.
type Row map[string]any

// RawResult is backend output before normalization.
type RawResult struct {
	Rows   []Row
	Source Source
	// Column order as reported by the backend, if it has one.
	Columns []string
	// Measures that were requested from the metrics service, whose values may need type conversion.
	Measures []string
}

// Truncate caps the number of rows.
func (raw RawResult) Truncate(maxRows int) RawResult {
	if maxRows >= 0 && len(raw.Rows) > maxRows {
		raw.Rows = raw.Rows[:maxRows]
	}
	return raw
}

// Result is the consumer-facing tabular contract. RowCount always equals len(Rows), and Rows is
// empty whenever Error is set.
type Result struct {
	Rows     []Row       `json:"data"`
	RowCount int         `json:"row_count"`
	Source   Source      `json:"source"`
	Error    string      `json:"error,omitempty"`
	Notice   string      `json:"notice,omitempty"`
	Columns  []string    `json:"columns,omitempty"`
	Roles    ColumnRoles `json:"roles"`
}

// ColumnRoles names the column that plays each canonical role in a result. Roles with no matching
// column are empty.
type ColumnRoles struct {
	Revenue string `json:"revenue"`
	Count   string `json:"count"`
	Date    string `json:"date"`
}

func ErrorResult(source Source, message string) Result {
	return Result{Source: source, Error: message}
}

func (result Result) Failed() bool {
	return result.Error != ""
}
