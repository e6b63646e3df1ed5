package server

import (
	"log/slog"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/daniel-kwapien-dvt/bigquery-agent/internal/bq"
)

func TestBQ_MCP_Server_Tools_Register(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		register func(*slog.Logger, *mcp.Server, *bq.Toolkit) error
	}{
		{name: "list-tables", register: RegisterListTablesTool},
		{name: "get-table-schema", register: RegisterSchemaTool},
		{name: "query", register: RegisterQueryTool},
		{name: "insert-rows", register: RegisterInsertTool},
		{name: "update-records", register: RegisterUpdateTool},
		{name: "delete-records", register: RegisterDeleteTool},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name+" registers successfully", func(t *testing.T) {
			t.Parallel()

			server := mcp.NewServer(&mcp.Implementation{
				Name:    "Test Server",
				Version: "1.0.0",
			}, nil)
			err := tt.register(testLogger(t), server, testToolkit(t, &stubStore{}))
			require.NoError(t, err)
		})
	}
}
