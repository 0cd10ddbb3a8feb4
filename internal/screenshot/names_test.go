package screenshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/catalog"
)

func TestNormalizeDisplayName(t *testing.T) {
	assert.Equal(t, "RAMESH K", NormalizeDisplayName("  ramesh k "))
	assert.Equal(t, "", NormalizeDisplayName("   "))
}

func TestNames_CreateNormalizes(t *testing.T) {
	e := newEnv(t)
	m, err := e.names.Create(context.Background(), "t1", NameMappingInput{
		DisplayName: " suresh ", SystemName: " Suresh P ", Aliases: []string{"sures", " ", "s.p"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SURESH", m.DisplayName)
	assert.Equal(t, "Suresh P", m.SystemName)
	assert.Equal(t, []string{"SURES", "S.P"}, m.Aliases)
	assert.True(t, m.IsActive)
}

func TestNames_Errors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.names.Create(ctx, "t1", NameMappingInput{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = e.names.Create(ctx, "t1", NameMappingInput{DisplayName: "a", SystemName: "A", WorkerID: "ghost"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = e.names.Create(ctx, "t1", NameMappingInput{DisplayName: "dup", SystemName: "Dup"})
	require.NoError(t, err)
	_, err = e.names.Create(ctx, "t1", NameMappingInput{DisplayName: "DUP ", SystemName: "Other"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestNames_ResolveWorkerName(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w, err := e.catalog.CreateWorker(ctx, "t1", catalog.WorkerInput{Name: "Mahesh"})
	require.NoError(t, err)

	_, err = e.names.Create(ctx, "t1", NameMappingInput{
		DisplayName: "MAHESH", SystemName: "Mahesh Rao", WorkerID: w.ID, Aliases: []string{"MAHES", "MHSH"},
	})
	require.NoError(t, err)
	off := false
	_, err = e.names.Create(ctx, "t1", NameMappingInput{DisplayName: "RETIRED", SystemName: "Old Hand", IsActive: &off})
	require.NoError(t, err)

	tests := []struct {
		tenant, raw, want string
	}{
		{"t1", "mahesh", "Mahesh Rao"},
		{"t1", " mhsh", "Mahesh Rao"},
		{"t1", "retired", "retired"},
		{"t1", "nobody", "nobody"},
		{"t1", "", ""},
		{"t2", "mahesh", "mahesh"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.names.ResolveWorkerName(ctx, tt.tenant, tt.raw), "%s/%q", tt.tenant, tt.raw)
	}
}

func TestNames_UpdateListDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m, err := e.names.Create(ctx, "t1", NameMappingInput{DisplayName: "ANIL", SystemName: "Anil"})
	require.NoError(t, err)

	off := false
	upd, err := e.names.Update(ctx, "t1", m.ID, NameMappingInput{DisplayName: "anil", SystemName: "Anil S", IsActive: &off})
	require.NoError(t, err)
	assert.Equal(t, "Anil S", upd.SystemName)
	assert.False(t, upd.IsActive)

	active, err := e.names.List(ctx, "t1", true)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := e.names.List(ctx, "t1", false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, e.names.Delete(ctx, "t1", m.ID))
	_, err = e.names.Get(ctx, "t1", m.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
