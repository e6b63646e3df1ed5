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

type InsertInput struct {
	Table string           `json:"table"`
	Rows  []map[string]any `json:"rows"`
}

type InsertOutput struct {
	Message string `json:"message"`
}

func RegisterInsertTool(log *slog.Logger, server *mcp.Server, toolkit *bq.Toolkit) error {
	req, err := jsonschema.For[InsertInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create insert-rows input schema: %w", err)
	}

	res, err := jsonschema.For[InsertOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create insert-rows output schema: %w", err)
	}

	binding := toolkit.Binding()
	tool := &mcp.Tool{
		Name: "insert-rows",
		Description: fmt.Sprintf(`Insert one or more rows into a table in the configured BigQuery dataset (%s).
Provide the short table name (not fully qualified) and a list of row objects whose keys match the table's column names, e.g. [{"name": "Alice", "age": 30}].
Consult "get-table-schema" first so the row shape matches the table.`, binding),
		InputSchema:  req,
		OutputSchema: res,
	}

	handler := func(ctx context.Context, _ *mcp.CallToolRequest, req InsertInput) (*mcp.CallToolResult, InsertOutput, error) {
		startTime := time.Now()
		toolName := "insert-rows"

		log.Debug("mcp/tool: handling insert-rows", "table", req.Table, "rows", len(req.Rows))

		msg, err := toolkit.InsertRows(ctx, req.Table, req.Rows)
		duration := time.Since(startTime).Seconds()
		if err != nil {
			metrics.ToolCallsTotal.WithLabelValues(toolName, "error").Inc()
			metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
			return nil, InsertOutput{}, err
		}
		metrics.ToolCallsTotal.WithLabelValues(toolName, "success").Inc()
		metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
		return nil, InsertOutput{Message: msg}, nil
	}

	mcp.AddTool(server, tool, handler)
	return nil
}
