package duckdb

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInterpolateQuery(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		query string
		args  []any
		want  string
	}{
		{"no args", "SELECT 1", nil, "SELECT 1"},
		{"string escaped", "WHERE g = ?", []any{"it's"}, "WHERE g = 'it''s'"},
		{"numbers", "LIMIT ? OFFSET ?", []any{10, uint64(3)}, "LIMIT 10 OFFSET 3"},
		{"float", "WHERE x > ?", []any{1.5}, "WHERE x > 1.5"},
		{"bool and null", "SET a = ?, b = ?", []any{true, nil}, "SET a = true, b = NULL"},
		{"time", "WHERE t >= ?", []any{at}, "WHERE t >= '2024-01-01T12:00:00Z'"},
		{"whitespace", "SELECT *\n\tFROM t", nil, "SELECT *  FROM t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InterpolateQuery(tt.query, tt.args))
		})
	}
}

func TestInt64ArrayToString(t *testing.T) {
	assert.Equal(t, "[]", Int64ArrayToString(nil))
	assert.Equal(t, "[1, 2, 30]", Int64ArrayToString([]int64{1, 2, 30}))
}

func TestArrayToInt64(t *testing.T) {
	got, err := ArrayToInt64([]any{int32(1), int64(2), 3})
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, got)

	got, err = ArrayToInt64(nil)
	assert.NoError(t, err)
	assert.Nil(t, got)

	_, err = ArrayToInt64("nope")
	assert.Error(t, err)

	_, err = ArrayToInt64([]any{"x"})
	assert.Error(t, err)
}

func TestIsTransactionConflict(t *testing.T) {
	assert.False(t, IsTransactionConflict(nil))
	assert.True(t, IsTransactionConflict(errors.New("TransactionContext Error: Conflict on tuple deletion!")))
	assert.True(t, IsTransactionConflict(fmt.Errorf("failed to commit: %w", errors.New("Conflict on update"))))
	assert.False(t, IsTransactionConflict(errors.New("Constraint Error: PRIMARY KEY or UNIQUE constraint violated")))
}
