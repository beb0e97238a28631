package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"

	"github.com/dshills/regs-mcp/internal/ranker"
)

// arguments returns the call's argument map. A call without arguments gets
// an empty map.
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// requireDocumentID extracts a positive document_id
func requireDocumentID(args map[string]interface{}) (int64, error) {
	raw, ok := args["document_id"]
	if !ok {
		return 0, newMCPError(ErrorCodeInvalidParams, "document_id parameter is required", map[string]interface{}{
			"param":  "document_id",
			"reason": "missing",
		})
	}
	id, err := cast.ToInt64E(raw)
	if err != nil || id <= 0 {
		return 0, newMCPError(ErrorCodeInvalidParams, "document_id must be a positive integer", map[string]interface{}{
			"param": "document_id",
			"value": raw,
		})
	}
	return id, nil
}

// requireQuery extracts a non-blank query
func requireQuery(args map[string]interface{}) (string, error) {
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return "", newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	return query, nil
}

// parseMode extracts the optional ranking mode. Empty means the searcher default.
func parseMode(args map[string]interface{}) (ranker.Mode, error) {
	mode := ranker.Mode(strings.ToLower(getStringDefault(args, "mode", "")))
	if mode != "" && !mode.Valid() {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   mode,
			"allowed": []ranker.Mode{ranker.ModeHybrid, ranker.ModeKeyword},
		})
	}
	return mode, nil
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key]; ok {
		if b, err := cast.ToBoolE(val); err == nil {
			return b
		}
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value.
// JSON numbers arrive as float64; numeric strings are accepted too.
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key]; ok {
		if n, err := cast.ToIntE(val); err == nil {
			return n
		}
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a list of strings, or nil
func getStringSlice(args map[string]interface{}, key string) []string {
	val, ok := args[key]
	if !ok {
		return nil
	}
	out, err := cast.ToStringSliceE(val)
	if err != nil {
		return nil
	}
	return out
}

// getInt64Slice extracts a list of integers
func getInt64Slice(args map[string]interface{}, key string) ([]int64, error) {
	items, err := cast.ToSliceE(args[key])
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(items))
	for i, item := range items {
		if out[i], err = cast.ToInt64E(item); err != nil {
			return nil, err
		}
	}
	return out, nil
}
