package bq

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"cloud.google.com/go/bigquery"
)

// SchemaField describes one column of a table, as reported by the store.
type SchemaField struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Mode string `json:"mode"`
}

// QueryResult is a fully materialized, normalized result set. Columns are in
// result order; row order matches the store's result order for the query.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
	Count   int      `json:"count"`
}

type ToolkitConfig struct {
	Logger  *slog.Logger
	Binding Binding
	Store   Store
}

func (c *ToolkitConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if err := c.Binding.Validate(); err != nil {
		return fmt.Errorf("invalid store binding: %w", err)
	}
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	return nil
}

// Toolkit implements the operations exposed to the external reasoning loop.
//
// The read operations (ListTables, GetSchema, RunQuery) are fail-soft: any
// store fault is logged as a diagnostic and converted into the operation's
// empty result, never a raised error. A single bad tool call must not abort
// the external loop, at the documented cost that callers cannot distinguish
// "legitimately empty" from "failed" by the return value alone. Callers that
// need that distinction use the Store directly.
type Toolkit struct {
	log     *slog.Logger
	binding Binding
	store   Store
}

func NewToolkit(cfg ToolkitConfig) (*Toolkit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate toolkit config: %w", err)
	}
	return &Toolkit{
		log:     cfg.Logger,
		binding: cfg.Binding,
		store:   cfg.Store,
	}, nil
}

// Binding returns the (project, dataset) pair the toolkit operates against.
func (t *Toolkit) Binding() Binding {
	return t.binding
}

// ListTables returns the identifiers of all tables in the bound dataset, in
// the order the store reports them. A dataset with zero tables and a failed
// listing both yield an empty slice.
func (t *Toolkit) ListTables(ctx context.Context) []string {
	tables, err := t.store.ListTables(ctx)
	if err != nil {
		t.log.Warn("bq: failed to list tables", "binding", t.binding.String(), "error", err)
		return []string{}
	}
	if len(tables) == 0 {
		t.log.Info("bq: no tables found", "binding", t.binding.String())
		return []string{}
	}
	return tables
}

// GetSchema returns the (name, type, mode) descriptors of a table's columns,
// preserving the store's column order. The table identifier is not validated
// against a prior listing; an unknown table yields an empty slice.
func (t *Toolkit) GetSchema(ctx context.Context, table string) []SchemaField {
	schema, err := t.store.TableSchema(ctx, table)
	if err != nil {
		t.log.Warn("bq: failed to get table schema", "binding", t.binding.String(), "table", table, "error", err)
		return []SchemaField{}
	}
	fields := make([]SchemaField, 0, len(schema))
	for _, f := range schema {
		fields = append(fields, SchemaField{
			Name: f.Name,
			Type: string(f.Type),
			Mode: fieldMode(f),
		})
	}
	if len(fields) == 0 {
		t.log.Info("bq: schema not found or empty", "binding", t.binding.String(), "table", table)
	}
	return fields
}

// RunQuery submits sql for execution, blocks until it completes, and returns
// the normalized result set. The query text is opaque to this layer and must
// already contain fully qualified table references; the binding supplies only
// the billing project context. Any execution fault yields an empty result.
func (t *Toolkit) RunQuery(ctx context.Context, sql string) QueryResult {
	columns, rawRows, err := t.store.Query(ctx, sql)
	if err != nil {
		t.log.Warn("bq: failed to run query", "binding", t.binding.String(), "sql", sql, "error", err)
		return QueryResult{Columns: []string{}, Rows: []Row{}}
	}
	rows := make([]Row, 0, len(rawRows))
	for _, raw := range rawRows {
		rows = append(rows, NormalizeRow(raw))
	}
	if len(rows) == 0 {
		t.log.Info("bq: query returned no results", "binding", t.binding.String(), "sql", sql)
	}
	return QueryResult{
		Columns: columns,
		Rows:    rows,
		Count:   len(rows),
	}
}

// InsertRows streams rows into a table in the bound dataset and returns an
// outcome message. Unlike the read operations, the DML operations surface
// their errors; the tool layer reports them as tool errors, which the
// external loop tolerates.
func (t *Toolkit) InsertRows(ctx context.Context, table string, rows []map[string]any) (string, error) {
	if len(rows) == 0 {
		return "", fmt.Errorf("rows list cannot be empty")
	}
	converted := make([]map[string]bigquery.Value, len(rows))
	for i, row := range rows {
		values := make(map[string]bigquery.Value, len(row))
		for name, v := range row {
			values[name] = bigquery.Value(v)
		}
		converted[i] = values
	}
	if err := t.store.Insert(ctx, table, converted); err != nil {
		return "", fmt.Errorf("failed to insert rows into table %s: %w", table, err)
	}
	return fmt.Sprintf("successfully inserted %d rows into table %s", len(rows), table), nil
}

// UpdateRecords updates rows in a table matching the given WHERE clause. The
// SET values are passed as typed query parameters with backticked column
// names, so only the caller-supplied WHERE clause is interpolated verbatim.
func (t *Toolkit) UpdateRecords(ctx context.Context, table string, setValues map[string]any, where string) (string, error) {
	if len(setValues) == 0 {
		return "", fmt.Errorf("set values cannot be empty")
	}
	if strings.TrimSpace(where) == "" {
		return "", fmt.Errorf("where clause cannot be empty")
	}

	// Iterate columns in sorted order so the generated SQL is deterministic.
	columns := make([]string, 0, len(setValues))
	for col := range setValues {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	setClauses := make([]string, 0, len(columns))
	params := make([]bigquery.QueryParameter, 0, len(columns))
	for i, col := range columns {
		paramName := fmt.Sprintf("p_set_val_%d", i)
		setClauses = append(setClauses, fmt.Sprintf("`%s` = @%s", col, paramName))
		params = append(params, bigquery.QueryParameter{
			Name:  paramName,
			Value: setValues[col],
		})
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		t.binding.TableRef(table), strings.Join(setClauses, ", "), where)

	affected, err := t.store.Exec(ctx, sql, params)
	if err != nil {
		return "", fmt.Errorf("failed to update table %s: %w", table, err)
	}
	return fmt.Sprintf("successfully updated %d rows in table %s", affected, table), nil
}

// DeleteRecords deletes rows in a table matching the given WHERE clause. An
// empty clause is rejected before reaching the store; callers that truly want
// every row must pass an explicit tautology like "1=1".
func (t *Toolkit) DeleteRecords(ctx context.Context, table string, where string) (string, error) {
	if strings.TrimSpace(where) == "" {
		return "", fmt.Errorf("where clause cannot be empty; to delete all rows, explicitly pass a condition like '1=1'")
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", t.binding.TableRef(table), where)

	affected, err := t.store.Exec(ctx, sql, nil)
	if err != nil {
		return "", fmt.Errorf("failed to delete from table %s: %w", table, err)
	}
	return fmt.Sprintf("successfully deleted %d rows from table %s", affected, table), nil
}

func fieldMode(f *bigquery.FieldSchema) string {
	switch {
	case f.Repeated:
		return "REPEATED"
	case f.Required:
		return "REQUIRED"
	default:
		return "NULLABLE"
	}
}
