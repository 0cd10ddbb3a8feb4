package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
	"github.com/sells-group/loomtrack/internal/monitoring"
	"github.com/sells-group/loomtrack/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.SQLiteStore, *monitoring.Metrics) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	m, err := monitoring.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return NewService(st, time.Minute, m), st, m
}

func boolPtr(b bool) *bool { return &b }

func TestMachineLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	m, err := svc.CreateMachine(ctx, "t1", MachineInput{MachineNumber: "  L-07 ", Type: model.MachineDouble})
	require.NoError(t, err)
	assert.Equal(t, "L-07", m.MachineNumber)
	assert.True(t, m.IsActive)

	_, err = svc.CreateMachine(ctx, "t1", MachineInput{MachineNumber: "L-07"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	// Same number is fine for another tenant.
	_, err = svc.CreateMachine(ctx, "t2", MachineInput{MachineNumber: "L-07"})
	require.NoError(t, err)

	updated, err := svc.UpdateMachine(ctx, "t1", m.ID, MachineInput{MachineNumber: "L-07", Type: model.MachineSingle, IsActive: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	list, err := svc.ListMachines(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.DeleteMachine(ctx, "t1", m.ID))
	_, err = svc.GetMachine(ctx, "t1", m.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCreateMachine_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateMachine(context.Background(), "t1", MachineInput{Type: "triple"})
	require.Error(t, err)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "is required", ae.Fields["machineNumber"])
	assert.Equal(t, "must be single or double", ae.Fields["machineType"])
}

func TestMachineType_CachedAndInvalidated(t *testing.T) {
	svc, _, metrics := newTestService(t)
	ctx := context.Background()

	m, err := svc.CreateMachine(ctx, "t1", MachineInput{MachineNumber: "D-1", Type: model.MachineDouble})
	require.NoError(t, err)

	typ, err := svc.MachineType(ctx, "t1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MachineDouble, typ)
	typ, err = svc.MachineType(ctx, "t1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MachineDouble, typ)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.MachineTypeCacheHits.WithLabelValues("miss")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.MachineTypeCacheHits.WithLabelValues("hit")), 1e-9)

	_, err = svc.UpdateMachine(ctx, "t1", m.ID, MachineInput{MachineNumber: "D-1", Type: model.MachineSingle})
	require.NoError(t, err)
	typ, err = svc.MachineType(ctx, "t1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MachineSingle, typ)
}

func TestMachineType_UnknownIsSingle(t *testing.T) {
	svc, _, _ := newTestService(t)
	typ, err := svc.MachineType(context.Background(), "t1", "missing")
	require.NoError(t, err)
	assert.Equal(t, model.MachineSingle, typ)
}

func TestMachineType_CancelledCallerStillLoads(t *testing.T) {
	svc, _, _ := newTestService(t)
	m, err := svc.CreateMachine(context.Background(), "t1", MachineInput{MachineNumber: "D-2", Type: model.MachineDouble})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	typ, err := svc.MachineType(ctx, "t1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MachineDouble, typ)
}

// slowMachines blocks the first GetMachine after it has read the row.
type slowMachines struct {
	store.CatalogStore
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func (s *slowMachines) GetMachine(ctx context.Context, tenantID, id string) (*model.Machine, error) {
	m, err := s.CatalogStore.GetMachine(ctx, tenantID, id)
	s.once.Do(func() {
		close(s.loaded)
		<-s.release
	})
	return m, err
}

func TestMachineType_UpdateDuringLoadIsNotRecached(t *testing.T) {
	_, st, _ := newTestService(t)
	ctx := context.Background()
	slow := &slowMachines{CatalogStore: st, loaded: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(slow, time.Minute, nil)

	m := &model.Machine{TenantID: "t1", MachineNumber: "D-3", Type: model.MachineDouble, IsActive: true}
	require.NoError(t, st.CreateMachine(ctx, m))

	done := make(chan model.MachineType)
	go func() {
		typ, _ := svc.MachineType(ctx, "t1", m.ID)
		done <- typ
	}()
	<-slow.loaded

	_, err := svc.UpdateMachine(ctx, "t1", m.ID, MachineInput{MachineNumber: "D-3", Type: model.MachineSingle})
	require.NoError(t, err)
	close(slow.release)
	assert.Equal(t, model.MachineDouble, <-done, "in-flight load returns what it read")

	typ, err := svc.MachineType(ctx, "t1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MachineSingle, typ)
}

func TestMachineTypes(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	d, err := svc.CreateMachine(ctx, "t1", MachineInput{MachineNumber: "1", Type: model.MachineDouble})
	require.NoError(t, err)
	s, err := svc.CreateMachine(ctx, "t1", MachineInput{MachineNumber: "2"})
	require.NoError(t, err)

	types, err := svc.MachineTypes(ctx, "t1", []string{d.ID, s.ID, d.ID})
	require.NoError(t, err)
	assert.Equal(t, map[string]model.MachineType{d.ID: model.MachineDouble, s.ID: model.MachineSingle}, types)
}

func TestWorkerLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateWorker(ctx, "t1", WorkerInput{Name: "   "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	w, err := svc.CreateWorker(ctx, "t1", WorkerInput{Name: "Ramesh", Phone: "98765"})
	require.NoError(t, err)

	_, err = svc.GetWorker(ctx, "t2", w.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "tenant isolation")

	w, err = svc.UpdateWorker(ctx, "t1", w.ID, WorkerInput{Name: "Ramesh K", IsActive: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "Ramesh K", w.Name)
	assert.False(t, w.IsActive)

	ws, err := svc.ListWorkers(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, ws, 1)

	require.NoError(t, svc.DeleteWorker(ctx, "t1", w.ID))
	assert.True(t, apperr.Is(svc.DeleteWorker(ctx, "t1", w.ID), apperr.KindNotFound))
}
