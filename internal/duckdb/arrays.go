package duckdb

import (
	"fmt"
	"strconv"
	"strings"
)

// Int64ArrayToString converts []int64 to a DuckDB list literal.
// Example: [1, 2, 3] -> "[1, 2, 3]"
func Int64ArrayToString(values []int64) string {
	if len(values) == 0 {
		return "[]"
	}

	var sb strings.Builder
	sb.WriteString("[")
	for i, v := range values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatInt(v, 10))
	}
	sb.WriteString("]")
	return sb.String()
}

// ArrayToInt64 converts a scanned DuckDB integer list to []int64.
func ArrayToInt64(value any) ([]int64, error) {
	if value == nil {
		return nil, nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected list type %T", value)
	}

	result := make([]int64, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case int32:
			result[i] = int64(v)
		case int64:
			result[i] = v
		case int:
			result[i] = int64(v)
		default:
			return nil, fmt.Errorf("unexpected list element type %T", item)
		}
	}
	return result, nil
}
