package bq

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"
)

func mustRat(t *testing.T, s string) *big.Rat {
	t.Helper()
	r, ok := new(big.Rat).SetString(s)
	require.True(t, ok, "bad rat literal %q", s)
	return r
}

func TestBQ_Normalize_TemporalValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{
			name:     "date",
			value:    civil.Date{Year: 2024, Month: time.March, Day: 15},
			expected: "2024-03-15",
		},
		{
			name:     "time",
			value:    civil.Time{Hour: 10, Minute: 30, Second: 5},
			expected: "10:30:05",
		},
		{
			name:     "datetime",
			value:    civil.DateTime{Date: civil.Date{Year: 2024, Month: time.March, Day: 15}, Time: civil.Time{Hour: 10, Minute: 30}},
			expected: "2024-03-15T10:30:00",
		},
		{
			name:     "timestamp keeps provided offset and precision",
			value:    time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
			expected: "2024-03-15T10:30:00Z",
		},
		{
			name:     "timestamp with sub-second precision",
			value:    time.Date(2024, 3, 15, 10, 30, 0, 123456000, time.UTC),
			expected: "2024-03-15T10:30:00.123456Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.expected, NormalizeValue(tt.value))
		})
	}
}

func TestBQ_Normalize_Decimals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{
			name:     "large decimal round-trips exactly",
			value:    "12345678901234567890.123456789",
			expected: "12345678901234567890.123456789",
		},
		{
			name:     "integer-valued decimal",
			value:    "42",
			expected: "42",
		},
		{
			name:     "negative decimal",
			value:    "-0.000000001",
			expected: "-0.000000001",
		},
		{
			name:     "bignumeric scale",
			value:    "0.12345678901234567890123456789012345678",
			expected: "0.12345678901234567890123456789012345678",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.expected, NormalizeValue(mustRat(t, tt.value)))
		})
	}
}

func TestBQ_Normalize_PassThrough(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
	}{
		{"nil", nil},
		{"bool", true},
		{"int64", int64(7)},
		{"float64", 1.5},
		{"string", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.value, NormalizeValue(tt.value))
		})
	}
}

func TestBQ_Normalize_BytesToBase64(t *testing.T) {
	t.Parallel()

	require.Equal(t, "aGVsbG8=", NormalizeValue([]byte("hello")))
}

func TestBQ_Normalize_NestedStructures(t *testing.T) {
	t.Parallel()

	raw := map[string]bigquery.Value{
		"id":   int64(1),
		"tags": []bigquery.Value{"a", "b"},
		"meta": map[string]bigquery.Value{
			"created": civil.Date{Year: 2020, Month: time.January, Day: 2},
			"amounts": []bigquery.Value{mustRat(t, "1.50"), mustRat(t, "2")},
		},
	}

	got := NormalizeRow(raw)
	require.Equal(t, Row{
		"id":   int64(1),
		"tags": []any{"a", "b"},
		"meta": map[string]any{
			"created": "2020-01-02",
			"amounts": []any{"1.5", "2"},
		},
	}, got)
}

func TestBQ_Normalize_Idempotent(t *testing.T) {
	t.Parallel()

	raw := map[string]bigquery.Value{
		"id":      int64(1),
		"name":    "x",
		"when":    civil.DateTime{Date: civil.Date{Year: 2024, Month: time.June, Day: 1}, Time: civil.Time{Hour: 12}},
		"amount":  mustRat(t, "10.25"),
		"tags":    []bigquery.Value{"a", nil},
		"details": map[string]bigquery.Value{"ok": true},
	}

	once := NormalizeRow(raw)
	twice := NormalizeRow(map[string]bigquery.Value(rowAsRaw(once)))
	require.Equal(t, once, twice)
}

// rowAsRaw feeds an already-normalized row back through the raw-row type to
// exercise idempotence.
func rowAsRaw(row Row) map[string]bigquery.Value {
	raw := make(map[string]bigquery.Value, len(row))
	for k, v := range row {
		raw[k] = v
	}
	return raw
}
