// Package resultset turns driver values into JSON-safe rows with per-column
// type tags.
package resultset

import (
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Column type tags.
const (
	TypeNull     = "null"
	TypeInteger  = "integer"
	TypeNumber   = "number"
	TypeDecimal  = "decimal"
	TypeString   = "string"
	TypeBoolean  = "boolean"
	TypeDatetime = "datetime"
	TypeDate     = "date"
	TypeTime     = "time"
	TypeBinary   = "binary"
)

// Serialization layouts.
const (
	DatetimeLayout = "2006-01-02T15:04:05.999999Z07:00"
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05.999999"
)

// Decimal is an exact numeric kept in its textual form.
type Decimal string

// Date is a calendar date with no time of day.
type Date time.Time

// TimeOfDay is a time with no date, already rendered as text.
type TimeOfDay string

// Column describes one result column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Outcome is a normalized query result.
type Outcome struct {
	Columns       []Column `json:"columns"`
	Rows          [][]any  `json:"rows"`
	RowCount      int      `json:"rowCount"`
	ExecutionTime float64  `json:"executionTime"`
}

// NewOutcome assembles an outcome. Elapsed time is reported in
// milliseconds rounded to two decimals.
func NewOutcome(columns []Column, rows [][]any, elapsed time.Duration) *Outcome {
	ms := float64(elapsed) / float64(time.Millisecond)
	return &Outcome{
		Columns:       columns,
		Rows:          rows,
		RowCount:      len(rows),
		ExecutionTime: math.Round(ms*100) / 100,
	}
}

// Normalize types each column from its value in the first row and
// serializes every value. An empty result yields empty, non-nil slices.
func Normalize(names []string, rows [][]any) ([]Column, [][]any) {
	if len(rows) == 0 {
		return []Column{}, [][]any{}
	}

	columns := make([]Column, len(names))
	for i, name := range names {
		var first any
		if i < len(rows[0]) {
			first = rows[0][i]
		}
		columns[i] = Column{Name: name, Type: TypeOf(first)}
	}

	out := make([][]any, len(rows))
	for r, row := range rows {
		values := make([]any, len(names))
		for i := range names {
			if i < len(row) {
				values[i] = Serialize(row[i])
			}
		}
		out[r] = values
	}
	return columns, out
}

// TypeOf returns the type tag for a driver value. Values of unknown type
// are tagged with their Go type name.
func TypeOf(v any) string {
	switch v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case float32, float64:
		return TypeNumber
	case Decimal:
		return TypeDecimal
	case string:
		return TypeString
	case time.Time:
		return TypeDatetime
	case Date:
		return TypeDate
	case TimeOfDay:
		return TypeTime
	case []byte:
		return TypeBinary
	}

	t := reflect.TypeOf(v)
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

// Serialize converts a driver value into something encoding/json renders
// faithfully. It never fails; unknown values fall back to their text form.
func Serialize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool, string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return x
	case float32:
		return serializeFloat(float64(x))
	case float64:
		return serializeFloat(x)
	case Decimal:
		return string(x)
	case TimeOfDay:
		return string(x)
	case time.Time:
		return x.Format(DatetimeLayout)
	case Date:
		return time.Time(x).Format(DateLayout)
	case []byte:
		return hex.EncodeToString(x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// serializeFloat keeps finite floats numeric; NaN and infinities have no
// JSON number form and become text.
func serializeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

// Text renders a serialized value for flat formats such as CSV and tables.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
