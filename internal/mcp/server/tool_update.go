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

type UpdateInput struct {
	Table     string         `json:"table"`
	SetValues map[string]any `json:"set_values"`
	Where     string         `json:"where"`
}

type UpdateOutput struct {
	Message string `json:"message"`
}

func RegisterUpdateTool(log *slog.Logger, server *mcp.Server, toolkit *bq.Toolkit) error {
	req, err := jsonschema.For[UpdateInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create update-records input schema: %w", err)
	}

	res, err := jsonschema.For[UpdateOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create update-records output schema: %w", err)
	}

	binding := toolkit.Binding()
	tool := &mcp.Tool{
		Name: "update-records",
		Description: fmt.Sprintf(`Update records in a table in the configured BigQuery dataset (%s).
Provide the short table name, a set_values object of column/new-value pairs (e.g. {"status": "completed", "score": 100}), and a SQL WHERE clause selecting the rows to update (e.g. "user_id = 'user123' AND attempt_date < '2024-01-01'").
Values in set_values are sent as typed query parameters; ensure string values inside the where clause are properly quoted.`, binding),
		InputSchema:  req,
		OutputSchema: res,
	}

	handler := func(ctx context.Context, _ *mcp.CallToolRequest, req UpdateInput) (*mcp.CallToolResult, UpdateOutput, error) {
		startTime := time.Now()
		toolName := "update-records"

		log.Debug("mcp/tool: handling update-records", "table", req.Table, "where", req.Where)

		msg, err := toolkit.UpdateRecords(ctx, req.Table, req.SetValues, req.Where)
		duration := time.Since(startTime).Seconds()
		if err != nil {
			metrics.ToolCallsTotal.WithLabelValues(toolName, "error").Inc()
			metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
			return nil, UpdateOutput{}, err
		}
		metrics.ToolCallsTotal.WithLabelValues(toolName, "success").Inc()
		metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
		return nil, UpdateOutput{Message: msg}, nil
	}

	mcp.AddTool(server, tool, handler)
	return nil
}
