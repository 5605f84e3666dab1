// Package workers holds the small argument-mapping helpers shared by the
// four worker packages (internal/workers/discovery, setup, compilation,
// orchestrator) when translating between a daemon.Envelope's free-form
// map[string]interface{} and the typed Go calls underneath. Grounded on
// ppb's internal/cmd flag-parsing helpers, generalized from CLI flags to
// RPC argument mappings.
package workers

import "fmt"

func StringArg(args map[string]interface{}, key, def string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func BoolArg(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func IntArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func StringSliceArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		if direct, ok := args[key].([]string); ok {
			return direct
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func MapArg(args map[string]interface{}, key string) map[string]interface{} {
	if v, ok := args[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

// Ok builds a success response, merging fields onto {"success": true}.
func Ok(fields map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{"success": true}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// RequireString fetches a required string argument, erroring with a
// consistent message when it is absent or empty.
func RequireString(args map[string]interface{}, key string) (string, error) {
	v := StringArg(args, key, "")
	if v == "" {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return v, nil
}
