package memory

import (
	"strings"

	"github.com/convsync/sync-service/internal/model"
)

// matches evaluates the Mongo-style selector subset the sync API uses:
// exact-match values and the $ne/$gt/$gte/$lt/$lte/$in/$exists operators.
func matches(doc model.Document, selector map[string]any) bool {
	for field, cond := range selector {
		val, present := doc[field]
		if ops, ok := cond.(map[string]any); ok && isOperatorObject(ops) {
			if !matchOps(val, present, ops) {
				return false
			}
			continue
		}
		if !present || !model.ValueEqual(val, cond) {
			return false
		}
	}
	return true
}

func isOperatorObject(m map[string]any) bool {
	for k := range m {
		return strings.HasPrefix(k, "$")
	}
	return false
}

func matchOps(val any, present bool, ops map[string]any) bool {
	for op, arg := range ops {
		switch op {
		case "$ne":
			if present && model.ValueEqual(val, arg) {
				return false
			}
		case "$exists":
			want, _ := arg.(bool)
			if present != want {
				return false
			}
		case "$in":
			if !inList(val, present, arg) {
				return false
			}
		case "$gt":
			if !present || compareValues(val, arg) <= 0 {
				return false
			}
		case "$gte":
			if !present || compareValues(val, arg) < 0 {
				return false
			}
		case "$lt":
			if !present || compareValues(val, arg) >= 0 {
				return false
			}
		case "$lte":
			if !present || compareValues(val, arg) > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func inList(val any, present bool, arg any) bool {
	list, ok := arg.([]any)
	if !ok || !present {
		return false
	}
	for _, item := range list {
		if model.ValueEqual(val, item) {
			return true
		}
	}
	return false
}

// compareValues orders two field values: numbers numerically, strings
// lexically, bools false<true. Mismatched or unordered types compare equal.
func compareValues(a, b any) int {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
		return 0
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs)
		}
		return 0
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case !ab && bb:
				return -1
			case ab && !bb:
				return 1
			}
		}
		return 0
	}
	return 0
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return float64(n), true
	}
	return 0, false
}
