// Package mcp implements the Model Context Protocol (MCP) server for patternvec.
//
// The MCP server exposes four tools to MCP clients:
//   - embed_code: Embed one snippet into token-mean and summary-mean vectors
//   - embed_corpus: Embed a labeled corpus and store the vectors
//   - search_similar: Rank stored files against a snippet and vote on its category
//   - get_status: Report statistics for a corpus run
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport. Stdout carries the
// protocol only; all logging goes to stderr through zap.
//
// The server is started via the serve command:
//
//	patternvec serve
//
// # Tool: embed_corpus
//
//	Request:
//	{
//	  "name": "embed_corpus",
//	  "arguments": {
//	    "path": "/data/patterns",
//	    "extension": ".py",
//	    "workers": 4
//	  }
//	}
//
//	Response:
//	{
//	  "run_id": "9f1c...",
//	  "categories": 12,
//	  "files_found": 240,
//	  "files_embedded": 238,
//	  "files_failed": 2,
//	  "dimension": 768
//	}
//
// Only one corpus run may be active at a time; a second call while one is
// running fails with -32002.
//
// # Tool: search_similar
//
//	Request:
//	{
//	  "name": "search_similar",
//	  "arguments": {
//	    "code": "class Registry:\n    _instance = None",
//	    "strategy": "token_mean",
//	    "limit": 5
//	  }
//	}
//
//	Response:
//	{
//	  "predicted": "singleton",
//	  "results": [
//	    {"rank": 1, "score": 0.93, "path": "singleton/registry.py", "category": "singleton"}
//	  ],
//	  "votes": [{"category": "singleton", "count": 4, "mean_score": 0.88}]
//	}
//
// # Error codes
//
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, encoder, filesystem)
//   - -32001: Path is not a labeled corpus
//   - -32002: Corpus run in progress
//   - -32003: No corpus run stored
//   - -32004: Empty code
package mcp
