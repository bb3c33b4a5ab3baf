package clickhouse

import (
	"fmt"
	"reflect"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"hermannm.dev/nlq/query"
	"hermannm.dev/wrap"
)

// parseRows scans rows of any shape into records, using the scan type ClickHouse reports for each
// column. The caller checks rows.Err afterwards.
func parseRows(rows driver.Rows) (query.RawResult, error) {
	columnTypes := rows.ColumnTypes()
	columns := make([]string, len(columnTypes))
	for i, columnType := range columnTypes {
		columns[i] = columnType.Name()
	}

	result := query.RawResult{Rows: []query.Row{}, Source: query.SourceWarehouse, Columns: columns}

	for rows.Next() {
		scanTargets := make([]any, len(columnTypes))
		for i, columnType := range columnTypes {
			scanTargets[i] = reflect.New(columnType.ScanType()).Interface()
		}

		if err := rows.Scan(scanTargets...); err != nil {
			return query.RawResult{}, wrap.Error(err, "failed to scan result row")
		}

		row := make(query.Row, len(columns))
		for i, column := range columns {
			row[column] = scalarValue(reflect.ValueOf(scanTargets[i]).Elem())
		}
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

// Implemented by decimal types.
type float64Converter interface {
	Float64() (float64, bool)
}

// scalarValue dereferences nullable values and turns types that do not serialize to plain JSON
// scalars into numbers or strings.
func scalarValue(value reflect.Value) any {
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}

	switch scanned := value.Interface().(type) {
	case string, bool, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return scanned
	case float64Converter:
		float, _ := scanned.Float64()
		return float
	case fmt.Stringer:
		return scanned.String()
	default:
		return scanned
	}
}
