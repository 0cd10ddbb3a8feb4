package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertSQL_NoColumns(t *testing.T) {
	_, err := UpsertSQL(UpsertConfig{
		Table:        "shift_records",
		ConflictKeys: []string{"id"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestUpsertSQL_NoConflictKeys(t *testing.T) {
	_, err := UpsertSQL(UpsertConfig{
		Table:   "shift_records",
		Columns: []string{"id", "meter"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestUpsertSQL_DefaultUpdateColumns(t *testing.T) {
	sql, err := UpsertSQL(UpsertConfig{
		Table:        "shift_records",
		Columns:      []string{"id", "tenant_id", "machine_id", "meter", "created_at"},
		ConflictKeys: []string{"tenant_id", "machine_id"},
		Preserve:     []string{"id", "created_at"},
		Returning:    []string{"id"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "shift_records" ("id", "tenant_id", "machine_id", "meter", "created_at") VALUES ($1, $2, $3, $4, $5)`+
			` ON CONFLICT ("tenant_id", "machine_id") DO UPDATE SET "meter" = EXCLUDED."meter" RETURNING "id"`,
		sql)
}

func TestUpsertSQL_NothingToUpdate(t *testing.T) {
	sql, err := UpsertSQL(UpsertConfig{
		Table:        "t",
		Columns:      []string{"a"},
		ConflictKeys: []string{"a"},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "DO NOTHING")
}

func TestMustUpsertSQL_Panics(t *testing.T) {
	assert.Panics(t, func() { MustUpsertSQL(UpsertConfig{}) })
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"public.daily_summaries", `"public"."daily_summaries"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"id", "name", "value"})
	assert.Equal(t, `"id", "name", "value"`, result)
}
