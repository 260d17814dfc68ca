package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var strategyEnum = []string{"token_mean", "summary_mean"}

// embedCodeTool returns the tool definition for embed_code
func embedCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "embed_code",
		Description: "Embed a source snippet into token-mean and summary-mean vectors",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"code": map[string]interface{}{
					"type":        "string",
					"description": "Source code to embed; may be longer than one model window",
				},
				"include_vectors": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, return the full vectors instead of only their shape",
					"default":     true,
				},
			},
			Required: []string{"code"},
		},
	}
}

// embedCorpusTool returns the tool definition for embed_corpus
func embedCorpusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "embed_corpus",
		Description: "Embed every file of a labeled corpus (one subdirectory per category) and store the vectors",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the corpus root",
				},
				"extension": map[string]interface{}{
					"type":        "string",
					"description": "File suffix to embed",
					"default":     ".py",
				},
				"workers": map[string]interface{}{
					"type":        "integer",
					"description": "Concurrent embed calls",
					"default":     1,
					"minimum":     1,
				},
				"output_dir": map[string]interface{}{
					"type":        "string",
					"description": "If set, write the token_mean and summary_mean CSV tables here",
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchSimilarTool returns the tool definition for search_similar
func searchSimilarTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_similar",
		Description: "Find the stored corpus files most similar to a code snippet and vote on its category",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"code": map[string]interface{}{
					"type":        "string",
					"description": "Source code to compare against the corpus",
				},
				"strategy": map[string]interface{}{
					"type":        "string",
					"description": "Pooling strategy whose vectors are compared",
					"enum":        strategyEnum,
					"default":     "token_mean",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"run_id": map[string]interface{}{
					"type":        "string",
					"description": "Corpus run to search; defaults to the latest run",
				},
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Only return files from this category",
				},
				"min_relevance": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity (-1.0 to 1.0)",
					"minimum":     -1.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"code"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report statistics for a corpus run",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": map[string]interface{}{
					"type":        "string",
					"description": "Run to report on; defaults to the latest run",
				},
			},
		},
	}
}
