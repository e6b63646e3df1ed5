package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/daniel-kwapien-dvt/bigquery-agent/internal/bq"
	"github.com/daniel-kwapien-dvt/bigquery-agent/internal/mcp/server/metrics"
)

type ListTablesInput struct{}

type ListTablesOutput struct {
	Tables []string `json:"tables"`
	Count  int      `json:"count"`
}

func RegisterListTablesTool(log *slog.Logger, server *mcp.Server, toolkit *bq.Toolkit) error {
	req, err := jsonschema.For[ListTablesInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create list-tables input schema: %w", err)
	}

	res, err := jsonschema.For[ListTablesOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create list-tables output schema: %w", err)
	}

	binding := toolkit.Binding()
	tool := &mcp.Tool{
		Name: "list-tables",
		Description: fmt.Sprintf(`List all tables in the configured BigQuery dataset (%s).
Returns table identifiers in the order the store reports them. Use this first to discover what data is available, then inspect a table with "get-table-schema" before querying it with "query".
An empty list means the dataset has no tables or the listing failed; diagnostics go to the server log.`, binding),
		InputSchema:  req,
		OutputSchema: res,
	}

	handler := func(ctx context.Context, _ *mcp.CallToolRequest, req ListTablesInput) (*mcp.CallToolResult, ListTablesOutput, error) {
		startTime := time.Now()
		toolName := "list-tables"

		log.Debug("mcp/tool: handling list-tables")

		tables := toolkit.ListTables(ctx)

		metrics.ToolCallsTotal.WithLabelValues(toolName, "success").Inc()
		metrics.ToolCallDuration.WithLabelValues(toolName).Observe(time.Since(startTime).Seconds())
		return nil, ListTablesOutput{
			Tables: tables,
			Count:  len(tables),
		}, nil
	}

	mcp.AddTool(server, tool, handler)
	return nil
}
