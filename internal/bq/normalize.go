package bq

import (
	"encoding/base64"
	"math/big"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// Row is a query result row whose values are restricted to the JSON-safe
// closed set: nil, bool, number, string, and nested maps/slices of the same.
type Row map[string]any

// bigNumericScale is the maximum number of fractional digits BigQuery
// BIGNUMERIC values carry, so rendering at this scale is exact.
const bigNumericScale = 38

// NormalizeRow converts a raw store row into a Row safe for lossless text
// interchange. It only remaps values, never drops fields, and is idempotent
// on already-normalized rows.
func NormalizeRow(row map[string]bigquery.Value) Row {
	out := make(Row, len(row))
	for name, value := range row {
		out[name] = NormalizeValue(value)
	}
	return out
}

// NormalizeValue converts a single field value. Temporal values become their
// ISO-8601 textual form with whatever precision and offset the store
// provided, arbitrary-precision decimals become exact decimal strings, and
// bytes become base64. Values already in the closed set pass through
// unchanged, as do unrecognized-but-primitive types; this function never
// fails.
func NormalizeValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case civil.Date:
		return v.String()
	case civil.Time:
		return v.String()
	case civil.DateTime:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case *big.Rat:
		return ratString(v)
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	case []bigquery.Value:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = NormalizeValue(elem)
		}
		return out
	case map[string]bigquery.Value:
		out := make(map[string]any, len(v))
		for name, elem := range v {
			out[name] = NormalizeValue(elem)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = NormalizeValue(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for name, elem := range v {
			out[name] = NormalizeValue(elem)
		}
		return out
	default:
		return value
	}
}

// ratString renders a NUMERIC/BIGNUMERIC value as its exact decimal string,
// with no rounding and no float coercion. BigQuery decimals always have a
// power-of-ten denominator with at most bigNumericScale fractional digits,
// so rendering at that scale and trimming trailing zeros is lossless.
func ratString(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	s := r.FloatString(bigNumericScale)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
