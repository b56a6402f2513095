package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pipecorr/pipecorr/core"
	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/schema"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
	mgr     contract.CacheManager
}

// compareSummary is the compact view of a compare run returned to clients.
type compareSummary struct {
	OldLabel   string                `json:"old_label"`
	NewLabel   string                `json:"new_label"`
	Counts     schema.ResultCounts   `json:"counts"`
	Summaries  []schema.GroupSummary `json:"summaries"`
	SubOptimal map[string][]string   `json:"sub_optimal"`
	Missing    schema.MissingReport  `json:"missing"`
}

func toolJSON(v any) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

func resolveTrees(oldRaw, newRaw string) (string, string, error) {
	if oldRaw == "" || newRaw == "" {
		return "", "", errors.New("old_tree and new_tree are required")
	}
	oldTree, err := contract.ResolveTreeRoot(oldRaw)
	if err != nil {
		return "", "", err
	}
	newTree, err := contract.ResolveTreeRoot(newRaw)
	if err != nil {
		return "", "", err
	}
	return oldTree, newTree, nil
}

func (h *toolHandler) handleCompareTrees(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	oldTree, newTree, err := resolveTrees(request.GetString("old_tree", ""), request.GetString("new_tree", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid trees: %v", err)), nil
	}
	cfg := h.baseCfg.CloneWithTrees(oldTree, newTree)

	if th := request.GetFloat("threshold", 0); th != 0 {
		if th < 0 || th > 1 {
			return mcp.NewToolResultError(fmt.Sprintf("threshold must be in (0, 1] (received %g)", th)), nil
		}
		cfg.Threshold = th
	}
	if g := request.GetString("grouping", ""); g != "" {
		cfg.Grouping = schema.GroupingMode(g)
		if _, ok := schema.ValidGroupingModes[cfg.Grouping]; !ok {
			return mcp.NewToolResultError(fmt.Sprintf("invalid grouping '%s'. must be semantic, datatype", g)), nil
		}
	}
	cfg.Quick = request.GetBool("quick", cfg.Quick)

	output, err := core.GetCompareResults(core.WithSuppressHeader(ctx), cfg, h.mgr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("comparison failed: %v", err)), nil
	}

	return toolJSON(compareSummary{
		OldLabel:   output.OldLabel,
		NewLabel:   output.NewLabel,
		Counts:     output.Counts,
		Summaries:  output.Summaries,
		SubOptimal: output.SubOptimal,
		Missing:    output.Missing,
	})
}

func (h *toolHandler) handleScorePair(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	oldPath := request.GetString("old_path", "")
	newPath := request.GetString("new_path", "")
	if oldPath == "" || newPath == "" {
		return mcp.NewToolResultError("old_path and new_path are required"), nil
	}

	result, err := core.GetPairResult(ctx, h.baseCfg.Clone(), request.GetString("category", ""), oldPath, newPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scoring failed: %v", err)), nil
	}
	return toolJSON(result)
}

func (h *toolHandler) handleIndexTree(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := request.GetString("tree", "")
	if raw == "" {
		return mcp.NewToolResultError("tree is required"), nil
	}
	root, err := contract.ResolveTreeRoot(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid tree: %v", err)), nil
	}
	cfg := h.baseCfg.CloneWithTrees(root, root)

	idx, stats, err := core.GetIndexResults(ctx, cfg, root, h.mgr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("indexing failed: %v", err)), nil
	}
	return toolJSON(struct {
		Index *schema.FileIndex `json:"index"`
		Stats schema.IndexStats `json:"stats"`
	}{idx, stats})
}
