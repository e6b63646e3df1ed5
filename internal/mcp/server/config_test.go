package server

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/require"

	"github.com/daniel-kwapien-dvt/bigquery-agent/internal/bq"
)

type stubStore struct {
	tables  []string
	schema  bigquery.Schema
	columns []string
	rows    []map[string]bigquery.Value
	err     error
}

func (s *stubStore) ListTables(ctx context.Context) ([]string, error) {
	return s.tables, s.err
}

func (s *stubStore) TableSchema(ctx context.Context, table string) (bigquery.Schema, error) {
	return s.schema, s.err
}

func (s *stubStore) Query(ctx context.Context, sql string) ([]string, []map[string]bigquery.Value, error) {
	return s.columns, s.rows, s.err
}

func (s *stubStore) Insert(ctx context.Context, table string, rows []map[string]bigquery.Value) error {
	return s.err
}

func (s *stubStore) Exec(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error) {
	return 0, s.err
}

func (s *stubStore) Close() error {
	return nil
}

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func testBinding() bq.Binding {
	return bq.Binding{ProjectID: "proj", DatasetID: "ds"}
}

func testToolkit(t *testing.T, store bq.Store) *bq.Toolkit {
	toolkit, err := bq.NewToolkit(bq.ToolkitConfig{
		Logger:  testLogger(t),
		Binding: testBinding(),
		Store:   store,
	})
	require.NoError(t, err)
	return toolkit
}

func validConfig(t *testing.T) Config {
	return Config{
		Version:    "test",
		ListenAddr: "localhost:8080",
		Logger:     slog.Default(),
		Binding:    testBinding(),
		Toolkit:    testToolkit(t, &stubStore{}),
	}
}

func TestBQ_MCP_Server_Config_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "missing logger",
			modify: func(c *Config) {
				c.Logger = nil
			},
			wantErr: true,
		},
		{
			name: "missing toolkit",
			modify: func(c *Config) {
				c.Toolkit = nil
			},
			wantErr: true,
		},
		{
			name: "missing project in binding",
			modify: func(c *Config) {
				c.Binding.ProjectID = ""
			},
			wantErr: true,
		},
		{
			name: "missing dataset in binding",
			modify: func(c *Config) {
				c.Binding.DatasetID = ""
			},
			wantErr: true,
		},
		{
			name: "sets default read header timeout",
			modify: func(c *Config) {
				c.ReadHeaderTimeout = 0
			},
			wantErr: false,
		},
		{
			name: "sets default shutdown timeout",
			modify: func(c *Config) {
				c.ShutdownTimeout = 0
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig(t)
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				require.NotZero(t, cfg.ReadHeaderTimeout, "Config.Validate() should set default read header timeout")
				require.NotZero(t, cfg.ShutdownTimeout, "Config.Validate() should set default shutdown timeout")
			}
		})
	}
}
