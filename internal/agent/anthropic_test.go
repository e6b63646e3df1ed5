package agent

import (
	"encoding/json"
	"strings"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/require"

	"github.com/daniel-kwapien-dvt/bigquery-agent/internal/mcp/client"
)

func TestBQ_Agent_Anthropic_IsSchemaTool(t *testing.T) {
	tests := []struct {
		name     string
		toolName string
		expected bool
	}{
		{"get-table-schema", "get-table-schema", true},
		{"query", "query", false},
		{"list-tables", "list-tables", false},
		{"unknown", "unknown-tool", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isSchemaTool(tt.toolName)
			require.Equal(t, tt.expected, result)
		})
	}
}

func TestBQ_Agent_Anthropic_FormatTruncationNotice(t *testing.T) {
	tests := []struct {
		name     string
		itemType string
		shown    int
		total    int
		expected string
	}{
		{
			name:     "tables",
			itemType: "tables",
			shown:    5,
			total:    10,
			expected: "\n\n[Result truncated: showing 5 of 10 tables to avoid token limits]",
		},
		{
			name:     "rows",
			itemType: "rows",
			shown:    100,
			total:    500,
			expected: "\n\n[Result truncated: showing 100 of 500 rows to avoid token limits]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatTruncationNotice(tt.itemType, tt.shown, tt.total)
			require.Equal(t, tt.expected, result)
		})
	}
}

func TestBQ_Agent_Anthropic_TruncateAtBoundary(t *testing.T) {
	tests := []struct {
		name           string
		text           string
		maxLen         int
		shouldTruncate bool
	}{
		{
			name:           "text shorter than max",
			text:           "short",
			maxLen:         100,
			shouldTruncate: false,
		},
		{
			name:           "text longer than max, finds newline",
			text:           strings.Repeat("line1\nline2\nline3\n", 10),
			maxLen:         100,
			shouldTruncate: true,
		},
		{
			name:           "text longer than max, finds closing brace",
			text:           strings.Repeat(`{"key": "value", "other": "data"}, `, 5),
			maxLen:         100,
			shouldTruncate: true,
		},
		{
			name:           "finds comma boundary",
			text:           strings.Repeat(`{"a": 1, "b": 2, "c": 3}, `, 5),
			maxLen:         100,
			shouldTruncate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := truncateAtBoundary(tt.text, tt.maxLen)
			if tt.shouldTruncate {
				require.Contains(t, result, "[Result truncated")
				require.LessOrEqual(t, len(result), tt.maxLen)
			} else {
				require.Equal(t, tt.text, result)
			}
		})
	}
}

func TestBQ_Agent_Anthropic_TruncateGenericJSON(t *testing.T) {
	tests := []struct {
		name   string
		data   map[string]any
		maxLen int
	}{
		{
			name: "small JSON fits",
			data: map[string]any{
				"key": "value",
			},
			maxLen: 100,
		},
		{
			name: "large JSON gets truncated",
			data: map[string]any{
				"key": strings.Repeat("x", 1000),
			},
			maxLen: 100,
		},
		{
			name: "complex nested JSON",
			data: map[string]any{
				"nested": map[string]any{
					"deep": map[string]any{
						"value": "data",
					},
				},
			},
			maxLen: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := truncateGenericJSON(tt.data, tt.maxLen)
			require.NoError(t, err)
			require.LessOrEqual(t, len(result), tt.maxLen)
			// Should be valid JSON if not truncated
			if len(result) < tt.maxLen {
				var parsed map[string]any
				err := json.Unmarshal([]byte(result), &parsed)
				require.NoError(t, err)
			}
		})
	}
}

func TestBQ_Agent_Anthropic_TruncateListTables(t *testing.T) {
	tests := []struct {
		name     string
		data     map[string]any
		maxLen   int
		expected int // expected number of tables in result
	}{
		{
			name: "small listing fits",
			data: map[string]any{
				"tables": []any{"users", "orders"},
			},
			maxLen:   1000,
			expected: 2,
		},
		{
			name: "large listing gets truncated",
			data: map[string]any{
				"tables": []any{
					strings.Repeat("a", 120),
					strings.Repeat("b", 120),
					strings.Repeat("c", 120),
				},
			},
			maxLen:   400, // Small enough to force truncation
			expected: 2,
		},
		{
			name: "no tables field falls back to generic",
			data: map[string]any{
				"other": "data",
			},
			maxLen:   100,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := truncateListTables(tt.data, tt.maxLen)
			require.NoError(t, err)
			require.LessOrEqual(t, len(result), tt.maxLen)

			// Parse and verify structure
			var parsed map[string]any
			err = json.Unmarshal([]byte(result), &parsed)
			if err != nil {
				// Truncation notice appended; the prefix is still informative
				require.Contains(t, result, "[Result truncated")
				return
			}

			if tables, ok := parsed["tables"].([]any); ok && len(tables) > 0 {
				require.GreaterOrEqual(t, len(tables), 1)
				require.LessOrEqual(t, len(tables), tt.expected+1)
			}
		})
	}
}

func TestBQ_Agent_Anthropic_TruncateQueryResult(t *testing.T) {
	tests := []struct {
		name     string
		data     map[string]any
		maxLen   int
		expected int // expected number of rows in result
	}{
		{
			name: "small query result fits",
			data: map[string]any{
				"columns": []string{"col1", "col2"},
				"rows": []any{
					map[string]any{"col1": "val1", "col2": "val2"},
					map[string]any{"col1": "val3", "col2": "val4"},
				},
				"count": 2,
			},
			maxLen:   1000,
			expected: 2,
		},
		{
			name: "large query result gets truncated",
			data: map[string]any{
				"columns": []string{"col1"},
				"rows": []any{
					map[string]any{"col1": strings.Repeat("x", 80)},
					map[string]any{"col1": strings.Repeat("y", 80)},
					map[string]any{"col1": strings.Repeat("z", 80)},
				},
				"count": 3.0, // Use float64 to match JSON unmarshal
			},
			maxLen:   400, // Small enough to force truncation
			expected: 2,
		},
		{
			name: "no rows field falls back to generic",
			data: map[string]any{
				"columns": []string{"col1"},
				"count":   0,
			},
			maxLen:   100,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := truncateQueryResult(tt.data, tt.maxLen)
			require.NoError(t, err)
			require.LessOrEqual(t, len(result), tt.maxLen)

			// Parse and verify structure
			var parsed map[string]any
			err = json.Unmarshal([]byte(result), &parsed)
			if err != nil {
				require.Contains(t, result, "[Result truncated")
				return
			}

			if rows, ok := parsed["rows"].([]any); ok && len(rows) > 0 {
				require.GreaterOrEqual(t, len(rows), 1)
				require.LessOrEqual(t, len(rows), tt.expected+1)
			}
		})
	}
}

func TestBQ_Agent_Anthropic_TruncateToolResult(t *testing.T) {
	tests := []struct {
		name     string
		result   string
		toolName string
		maxLen   int
	}{
		{
			name:     "list tool with valid JSON",
			result:   `{"tables": ["users", "orders"]}`,
			toolName: "list-tables",
			maxLen:   1000,
		},
		{
			name:     "query tool with valid JSON",
			result:   `{"rows": [{"col1": "val1"}], "count": 1}`,
			toolName: "query",
			maxLen:   1000,
		},
		{
			name:     "schema tool falls back to generic",
			result:   `{"fields": [{"name": "id", "type": "INTEGER", "mode": "NULLABLE"}]}`,
			toolName: "get-table-schema",
			maxLen:   1000,
		},
		{
			name:     "unknown tool falls back to generic",
			result:   `{"key": "value"}`,
			toolName: "unknown-tool",
			maxLen:   1000,
		},
		{
			name:     "invalid JSON falls back to boundary truncation",
			result:   "not valid json {",
			toolName: "query",
			maxLen:   200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := truncateToolResult(tt.result, tt.toolName, tt.maxLen)
			require.NoError(t, err)
			require.LessOrEqual(t, len(result), tt.maxLen)
		})
	}
}

func TestBQ_Agent_Anthropic_ToAnthropicTools(t *testing.T) {
	tests := []struct {
		name     string
		tools    []client.Tool
		expected int
	}{
		{
			name:     "empty tools",
			tools:    []client.Tool{},
			expected: 0,
		},
		{
			name: "single tool",
			tools: []client.Tool{
				{
					Name:        "query",
					Description: "Run a SQL query",
					InputSchema: map[string]any{
						"properties": map[string]any{
							"sql": map[string]any{"type": "string"},
						},
						"required": []string{"sql"},
					},
				},
			},
			expected: 1,
		},
		{
			name: "multiple tools",
			tools: []client.Tool{
				{Name: "list-tables", Description: "List tables", InputSchema: map[string]any{}},
				{Name: "get-table-schema", Description: "Get schema", InputSchema: map[string]any{}},
			},
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := toAnthropicTools(tt.tools)
			require.Equal(t, tt.expected, len(result))
		})
	}
}

func TestBQ_Agent_Anthropic_SystemPrompt(t *testing.T) {
	prompt := SystemPrompt("my-project", "my_dataset")
	require.Contains(t, prompt, "my-project")
	require.Contains(t, prompt, "my_dataset")
	require.Contains(t, prompt, "`my-project.my_dataset.my_table`")
	require.Contains(t, prompt, "list-tables")
	require.Contains(t, prompt, "get-table-schema")
	require.Contains(t, prompt, "delete-records")
}

func TestBQ_Agent_Anthropic_TrimOldToolResults(t *testing.T) {
	tests := []struct {
		name              string
		toolResultIndices []int
		keepRounds        int
		expectedMsgLen    int
		expectedIndices   []int
	}{
		{
			name:              "no trimming needed",
			toolResultIndices: []int{5, 7, 9},
			keepRounds:        5,
			expectedMsgLen:    10,
			expectedIndices:   []int{5, 7, 9},
		},
		{
			name:              "trim to last 2 rounds",
			toolResultIndices: []int{2, 4, 6, 8},
			keepRounds:        2,
			expectedMsgLen:    6,
			expectedIndices:   []int{2, 4},
		},
		{
			name:              "trim all but one",
			toolResultIndices: []int{2, 4, 6, 8},
			keepRounds:        1,
			expectedMsgLen:    4,
			expectedIndices:   []int{2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := make([]anthropic.MessageParam, 10)
			for i := range msgs {
				msgs[i] = anthropic.NewUserMessage(anthropic.NewTextBlock("test"))
			}

			resultMsgs, resultIndices := trimOldToolResults(msgs, tt.toolResultIndices, tt.keepRounds)

			require.Equal(t, tt.expectedMsgLen, len(resultMsgs))
			require.Equal(t, len(tt.expectedIndices), len(resultIndices))
			if len(tt.expectedIndices) > 0 {
				require.Equal(t, tt.expectedIndices[len(tt.expectedIndices)-1], resultIndices[len(resultIndices)-1])
			}
		})
	}
}
