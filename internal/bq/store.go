package bq

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// Store abstracts the BigQuery surface the toolkit needs. Implementations
// return real errors; the fail-soft conversion documented on the toolkit
// happens one layer up, so in-process callers can still distinguish an empty
// result from a failed one.
type Store interface {
	// ListTables returns the table identifiers in the bound dataset, in the
	// order the store reports them.
	ListTables(ctx context.Context) ([]string, error)
	// TableSchema returns the column descriptors of a table in the bound
	// dataset, in column order.
	TableSchema(ctx context.Context, table string) (bigquery.Schema, error)
	// Query runs a SQL statement to completion and materializes the full
	// result set, returning column names in result order plus the raw rows.
	Query(ctx context.Context, sql string) ([]string, []map[string]bigquery.Value, error)
	// Insert streams rows into a table in the bound dataset.
	Insert(ctx context.Context, table string, rows []map[string]bigquery.Value) error
	// Exec runs a DML statement with query parameters and returns the number
	// of affected rows.
	Exec(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error)

	Close() error
}

type bigqueryStore struct {
	binding Binding
	client  *bigquery.Client
}

// NewStore opens a BigQuery client bound to the binding's project, using
// ambient application-default credentials.
func NewStore(ctx context.Context, binding Binding) (Store, error) {
	if err := binding.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store binding: %w", err)
	}
	client, err := bigquery.NewClient(ctx, binding.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	return &bigqueryStore{binding: binding, client: client}, nil
}

func (s *bigqueryStore) ListTables(ctx context.Context) ([]string, error) {
	it := s.client.Dataset(s.binding.DatasetID).Tables(ctx)
	var tables []string
	for {
		t, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list tables in %s: %w", s.binding, err)
		}
		tables = append(tables, t.TableID)
	}
	return tables, nil
}

func (s *bigqueryStore) TableSchema(ctx context.Context, table string) (bigquery.Schema, error) {
	md, err := s.client.Dataset(s.binding.DatasetID).Table(table).Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata for %s.%s: %w", s.binding, table, err)
	}
	return md.Schema, nil
}

func (s *bigqueryStore) Query(ctx context.Context, sql string) ([]string, []map[string]bigquery.Value, error) {
	q := s.client.Query(sql)
	it, err := q.Read(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to run query: %w", err)
	}

	var rows []map[string]bigquery.Value
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read query results: %w", err)
		}
		rows = append(rows, row)
	}

	// The iterator's schema is populated once the first page has been
	// fetched, which has happened by the time Next reports Done.
	columns := make([]string, 0, len(it.Schema))
	for _, field := range it.Schema {
		columns = append(columns, field.Name)
	}
	return columns, rows, nil
}

// mapSaver adapts a plain row map to the inserter's ValueSaver, with no
// insert id (BigQuery applies best-effort de-duplication only when one is
// set).
type mapSaver map[string]bigquery.Value

func (m mapSaver) Save() (map[string]bigquery.Value, string, error) {
	return m, "", nil
}

func (s *bigqueryStore) Insert(ctx context.Context, table string, rows []map[string]bigquery.Value) error {
	savers := make([]bigquery.ValueSaver, len(rows))
	for i, row := range rows {
		savers[i] = mapSaver(row)
	}
	inserter := s.client.Dataset(s.binding.DatasetID).Table(table).Inserter()
	if err := inserter.Put(ctx, savers); err != nil {
		return fmt.Errorf("failed to insert rows into %s.%s: %w", s.binding, table, err)
	}
	return nil
}

func (s *bigqueryStore) Exec(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error) {
	q := s.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to start dml job: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to wait for dml job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("dml job failed: %w", err)
	}

	var affected int64
	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			affected = qs.NumDMLAffectedRows
		}
	}
	return affected, nil
}

func (s *bigqueryStore) Close() error {
	return s.client.Close()
}
