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

type DeleteInput struct {
	Table string `json:"table"`
	Where string `json:"where"`
}

type DeleteOutput struct {
	Message string `json:"message"`
}

func RegisterDeleteTool(log *slog.Logger, server *mcp.Server, toolkit *bq.Toolkit) error {
	req, err := jsonschema.For[DeleteInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create delete-records input schema: %w", err)
	}

	res, err := jsonschema.For[DeleteOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create delete-records output schema: %w", err)
	}

	binding := toolkit.Binding()
	tool := &mcp.Tool{
		Name: "delete-records",
		Description: fmt.Sprintf(`Delete records from a table in the configured BigQuery dataset (%s).
Provide the short table name and a SQL WHERE clause selecting the rows to delete (e.g. "status = 'archived'").
The where clause must not be empty; to delete all rows, explicitly pass a tautology like "1=1" (use with extreme caution). Be very specific to avoid unintended data loss.`, binding),
		InputSchema:  req,
		OutputSchema: res,
	}

	handler := func(ctx context.Context, _ *mcp.CallToolRequest, req DeleteInput) (*mcp.CallToolResult, DeleteOutput, error) {
		startTime := time.Now()
		toolName := "delete-records"

		log.Debug("mcp/tool: handling delete-records", "table", req.Table, "where", req.Where)

		msg, err := toolkit.DeleteRecords(ctx, req.Table, req.Where)
		duration := time.Since(startTime).Seconds()
		if err != nil {
			metrics.ToolCallsTotal.WithLabelValues(toolName, "error").Inc()
			metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
			return nil, DeleteOutput{}, err
		}
		metrics.ToolCallsTotal.WithLabelValues(toolName, "success").Inc()
		metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
		return nil, DeleteOutput{Message: msg}, nil
	}

	mcp.AddTool(server, tool, handler)
	return nil
}
