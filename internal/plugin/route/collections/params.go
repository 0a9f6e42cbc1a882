package collections

import (
	"encoding/json"
	"fmt"
	"strconv"

	registrystore "github.com/convsync/sync-service/internal/registry/store"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// parseSelector parses the selector query parameter: a JSON object mapping
// fields to exact-match values or Mongo-style operator objects.
func parseSelector(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var sel map[string]any
	if err := json.Unmarshal([]byte(raw), &sel); err != nil {
		return nil, fmt.Errorf("invalid selector: %w", err)
	}
	return sel, nil
}

// parseFields parses the fields query parameter into a projection map; any
// truthy value includes the field.
func parseFields(raw string) (map[string]int, error) {
	if raw == "" {
		return nil, nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("invalid fields: %w", err)
	}
	proj := make(map[string]int, len(fields))
	for k, v := range fields {
		if truthy(v) {
			proj[k] = 1
		} else {
			proj[k] = 0
		}
	}
	return proj, nil
}

// parseSort parses the sort query parameter: a JSON array of either bare
// field names or [field, direction] pairs, direction "desc"/"-1" for
// descending.
func parseSort(raw string) ([]registrystore.SortField, error) {
	if raw == "" {
		return nil, nil
	}
	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("invalid sort: %w", err)
	}
	var out []registrystore.SortField
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, registrystore.SortField{Field: v})
		case []any:
			if len(v) == 0 {
				return nil, fmt.Errorf("invalid sort: empty term")
			}
			field, ok := v[0].(string)
			if !ok {
				return nil, fmt.Errorf("invalid sort: field must be a string")
			}
			desc := false
			if len(v) >= 2 {
				switch dir := v[1].(type) {
				case string:
					desc = dir == "desc" || dir == "-1"
				case float64:
					desc = dir == -1
				}
			}
			out = append(out, registrystore.SortField{Field: field, Desc: desc})
		default:
			return nil, fmt.Errorf("invalid sort: terms must be field names or [field, direction] pairs")
		}
	}
	return out, nil
}

// parseLimit clamps the limit query parameter into [1, maxLimit], defaulting
// when absent.
func parseLimit(raw string) (int64, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit: %w", err)
	}
	if n < 1 {
		n = 1
	}
	if n > maxLimit {
		n = maxLimit
	}
	return int64(n), nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	}
	return true
}
