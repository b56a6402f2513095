// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pipecorr/pipecorr/internal/contract"
)

// NewMCPServer initializes and configures the pipecorr MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, mgr contract.CacheManager) *server.MCPServer {
	s := server.NewMCPServer(
		"pipecorr Reconciliation Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg: baseCfg,
		mgr:     mgr,
	}

	// --- 1. Tool: compare_trees ---
	s.AddTool(mcp.NewTool("compare_trees",
		mcp.WithDescription("Compare two pipeline output trees and summarize how well every matched artifact agrees."),
		mcp.WithString("old_tree", mcp.Description("Root of the reference run (local path or gs://bucket/prefix)."), mcp.Required()),
		mcp.WithString("new_tree", mcp.Description("Root of the run under test (local path or gs://bucket/prefix)."), mcp.Required()),
		mcp.WithNumber("threshold", mcp.Description("Concordance above which a pair needs no review. Defaults to the configured threshold.")),
		mcp.WithString("grouping", mcp.Description("How categories are grouped in the summary."), mcp.Enum("semantic", "datatype")),
		mcp.WithBoolean("quick", mcp.Description("Only compare the core derivatives.")),
	), h.handleCompareTrees)

	// --- 2. Tool: score_pair ---
	s.AddTool(mcp.NewTool("score_pair",
		mcp.WithDescription("Compute Pearson's r and the concordance correlation coefficient between two artifacts."),
		mcp.WithString("old_path", mcp.Description("Path of the reference artifact."), mcp.Required()),
		mcp.WithString("new_path", mcp.Description("Path of the artifact under test."), mcp.Required()),
		mcp.WithString("category", mcp.Description("Category label; derived from the file name when empty.")),
	), h.handleScorePair)

	// --- 3. Tool: index_tree ---
	s.AddTool(mcp.NewTool("index_tree",
		mcp.WithDescription("Fingerprint every artifact of one output tree."),
		mcp.WithString("tree", mcp.Description("Root of the tree to index."), mcp.Required()),
	), h.handleIndexTree)

	return s
}

// StartMCPServer starts the pipecorr MCP server over stdio.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, mgr contract.CacheManager) error {
	s := NewMCPServer(baseCfg, mgr)
	return server.ServeStdio(s)
}
