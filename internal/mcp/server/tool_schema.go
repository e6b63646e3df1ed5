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

type SchemaInput struct {
	Table string `json:"table"`
}

type SchemaOutput struct {
	Table  string           `json:"table"`
	Fields []bq.SchemaField `json:"fields"`
}

func RegisterSchemaTool(log *slog.Logger, server *mcp.Server, toolkit *bq.Toolkit) error {
	req, err := jsonschema.For[SchemaInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create get-table-schema input schema: %w", err)
	}

	res, err := jsonschema.For[SchemaOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create get-table-schema output schema: %w", err)
	}

	binding := toolkit.Binding()
	tool := &mcp.Tool{
		Name: "get-table-schema",
		Description: fmt.Sprintf(`Get the column schema of one table in the configured BigQuery dataset (%s).
Returns (name, type, mode) for each column in the table's column order; mode is one of NULLABLE, REQUIRED, or REPEATED.
Always consult this before writing SQL against a table. Do not guess column names.
An empty field list means the table does not exist, has no columns, or the lookup failed; diagnostics go to the server log.`, binding),
		InputSchema:  req,
		OutputSchema: res,
	}

	handler := func(ctx context.Context, _ *mcp.CallToolRequest, req SchemaInput) (*mcp.CallToolResult, SchemaOutput, error) {
		startTime := time.Now()
		toolName := "get-table-schema"

		log.Debug("mcp/tool: handling get-table-schema", "table", req.Table)

		fields := toolkit.GetSchema(ctx, req.Table)

		metrics.ToolCallsTotal.WithLabelValues(toolName, "success").Inc()
		metrics.ToolCallDuration.WithLabelValues(toolName).Observe(time.Since(startTime).Seconds())
		return nil, SchemaOutput{
			Table:  req.Table,
			Fields: fields,
		}, nil
	}

	mcp.AddTool(server, tool, handler)
	return nil
}
