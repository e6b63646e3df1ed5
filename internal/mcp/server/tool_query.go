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

type QueryInput struct {
	SQL string `json:"sql"`
}

type QueryOutput struct {
	Columns []string `json:"columns"`
	Rows    []bq.Row `json:"rows"`
	Count   int      `json:"count"`
}

func RegisterQueryTool(log *slog.Logger, server *mcp.Server, toolkit *bq.Toolkit) error {
	req, err := jsonschema.For[QueryInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create query input schema: %w", err)
	}

	res, err := jsonschema.For[QueryOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create query output schema: %w", err)
	}

	binding := toolkit.Binding()
	tool := &mcp.Tool{
		Name: "query",
		Description: fmt.Sprintf(`Execute a GoogleSQL query against BigQuery, billed to project %q.

USAGE RULES:
- Consult "get-table-schema" before writing any SQL. Do not guess column names.
- CRITICALLY IMPORTANT: table references in the query MUST be fully qualified in the form %s, with backticks (e.g. SELECT * FROM %s LIMIT 10). The server does not qualify or rewrite the query text.
- Prefer single, well-constructed queries that return summarized results; aggregate with GROUP BY and apply LIMIT to keep result sets small.

Temporal values are returned as ISO-8601 strings and NUMERIC/BIGNUMERIC values as exact decimal strings, so all results are plain JSON.
An empty result set means the query matched no rows or execution failed; diagnostics go to the server log.`,
			binding.ProjectID,
			"`"+binding.ProjectID+"."+binding.DatasetID+".<table>`",
			binding.TableRef("my_table")),
		InputSchema:  req,
		OutputSchema: res,
	}

	handler := func(ctx context.Context, _ *mcp.CallToolRequest, req QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
		startTime := time.Now()
		toolName := "query"

		log.Debug("mcp/tool: handling query", "sql", req.SQL)

		result := toolkit.RunQuery(ctx, req.SQL)

		metrics.ToolCallsTotal.WithLabelValues(toolName, "success").Inc()
		metrics.ToolCallDuration.WithLabelValues(toolName).Observe(time.Since(startTime).Seconds())
		return nil, QueryOutput{
			Columns: result.Columns,
			Rows:    result.Rows,
			Count:   result.Count,
		}, nil
	}

	mcp.AddTool(server, tool, handler)
	return nil
}
