package bplus

import (
	"IndexDB/types"
	"fmt"
	"strings"
)

// KeyComparator compares two encoded composite keys.
type KeyComparator func(a, b []byte) int

// NewKeyComparator compares column by column in declared order and stops at
// the first column that differs.
func NewKeyComparator(cols []types.ColumnMeta) KeyComparator {
	cols = append([]types.ColumnMeta(nil), cols...)
	return func(a, b []byte) int {
		offset := 0
		for _, col := range cols {
			if c := types.CompareColumn(a[offset:offset+col.Len], b[offset:offset+col.Len], col); c != 0 {
				return c
			}
			offset += col.Len
		}
		return 0
	}
}

// FormatKey renders a key for dumps and logs.
func FormatKey(cols []types.ColumnMeta, key []byte) string {
	parts := make([]string, 0, len(cols))
	offset := 0
	for _, col := range cols {
		if offset+col.Len > len(key) {
			parts = append(parts, "?")
			break
		}
		parts = append(parts, types.FormatValue(key[offset:offset+col.Len], col))
		offset += col.Len
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, ", "))
}
