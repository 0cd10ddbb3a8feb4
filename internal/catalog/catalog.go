// Package catalog manages the machines and workers a tenant's production
// records refer to.
package catalog

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
	"github.com/sells-group/loomtrack/internal/monitoring"
	"github.com/sells-group/loomtrack/internal/store"
)

// MachineInput is the writable part of a machine.
type MachineInput struct {
	MachineNumber string            `json:"machineNumber"`
	Type          model.MachineType `json:"machineType"`
	Description   string            `json:"description"`
	IsActive      *bool             `json:"isActive"`
}

// WorkerInput is the writable part of a worker.
type WorkerInput struct {
	Name          string `json:"name"`
	AadhaarNumber string `json:"aadhaarNumber"`
	Phone         string `json:"phone"`
	IsActive      *bool  `json:"isActive"`
}

// Service is the machine and worker registry. Machine types are cached
// because every aggregation needs them.
type Service struct {
	store   store.CatalogStore
	types   *gocache.Cache
	group   singleflight.Group
	// gen changes on every type invalidation so an in-flight load cannot
	// re-cache a stale type.
	gen     atomic.Uint64
	metrics *monitoring.Metrics
}

// NewService creates a catalog service. A non-positive ttl defaults to five
// minutes. metrics may be nil.
func NewService(st store.CatalogStore, ttl time.Duration, metrics *monitoring.Metrics) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		store:   st,
		types:   gocache.New(ttl, 2*ttl),
		metrics: metrics,
	}
}

func typeKey(tenantID, machineID string) string { return tenantID + "/" + machineID }

// MachineType returns the type of a machine. Unknown machines count as
// single so a deleted loom never breaks a recompute.
func (s *Service) MachineType(ctx context.Context, tenantID, machineID string) (model.MachineType, error) {
	key := typeKey(tenantID, machineID)
	if v, ok := s.types.Get(key); ok {
		s.metrics.ObserveCacheLookup(true)
		return v.(model.MachineType), nil
	}
	s.metrics.ObserveCacheLookup(false)

	gen := s.gen.Load()
	v, err, _ := s.group.Do(key, func() (any, error) {
		// The load is shared by every waiter.
		m, err := s.store.GetMachine(context.WithoutCancel(ctx), tenantID, machineID)
		if apperr.Is(err, apperr.KindNotFound) {
			return model.MachineSingle, nil
		}
		if err != nil {
			return nil, err
		}
		if s.gen.Load() == gen {
			s.types.SetDefault(key, m.Type)
		}
		return m.Type, nil
	})
	if err != nil {
		return "", apperr.Wrap(err, "catalog: machine type")
	}
	return v.(model.MachineType), nil
}

// MachineTypes resolves the types of several machines.
func (s *Service) MachineTypes(ctx context.Context, tenantID string, machineIDs []string) (map[string]model.MachineType, error) {
	out := make(map[string]model.MachineType, len(machineIDs))
	for _, id := range machineIDs {
		if _, ok := out[id]; ok {
			continue
		}
		t, err := s.MachineType(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		out[id] = t
	}
	return out, nil
}

func validateMachine(in MachineInput) (MachineInput, error) {
	in.MachineNumber = strings.TrimSpace(in.MachineNumber)
	if in.Type == "" {
		in.Type = model.MachineSingle
	}
	fe := apperr.FieldErrors{}
	if in.MachineNumber == "" {
		fe.Add("machineNumber", "is required")
	}
	if !in.Type.Valid() {
		fe.Add("machineType", "must be single or double")
	}
	return in, fe.Err()
}

// CreateMachine registers a machine. Machine numbers are unique per tenant.
func (s *Service) CreateMachine(ctx context.Context, tenantID string, in MachineInput) (*model.Machine, error) {
	in, err := validateMachine(in)
	if err != nil {
		return nil, err
	}
	m := &model.Machine{
		TenantID:      tenantID,
		MachineNumber: in.MachineNumber,
		Type:          in.Type,
		Description:   in.Description,
		IsActive:      in.IsActive == nil || *in.IsActive,
	}
	if err := s.store.CreateMachine(ctx, m); err != nil {
		return nil, apperr.Wrap(err, "catalog: create machine")
	}
	return m, nil
}

// GetMachine returns a machine of the tenant.
func (s *Service) GetMachine(ctx context.Context, tenantID, id string) (*model.Machine, error) {
	m, err := s.store.GetMachine(ctx, tenantID, id)
	return m, apperr.Wrap(err, "catalog: get machine")
}

// ListMachines returns the tenant's machines ordered by number.
func (s *Service) ListMachines(ctx context.Context, tenantID string) ([]model.Machine, error) {
	ms, err := s.store.ListMachines(ctx, tenantID)
	return ms, apperr.Wrap(err, "catalog: list machines")
}

// UpdateMachine replaces a machine's fields and drops its cached type.
func (s *Service) UpdateMachine(ctx context.Context, tenantID, id string, in MachineInput) (*model.Machine, error) {
	in, err := validateMachine(in)
	if err != nil {
		return nil, err
	}
	m, err := s.store.GetMachine(ctx, tenantID, id)
	if err != nil {
		return nil, apperr.Wrap(err, "catalog: update machine")
	}
	m.MachineNumber, m.Type, m.Description = in.MachineNumber, in.Type, in.Description
	if in.IsActive != nil {
		m.IsActive = *in.IsActive
	}
	if err := s.store.UpdateMachine(ctx, m); err != nil {
		return nil, apperr.Wrap(err, "catalog: update machine")
	}
	s.invalidateType(tenantID, id)
	return m, nil
}

// DeleteMachine removes a machine.
func (s *Service) DeleteMachine(ctx context.Context, tenantID, id string) error {
	if err := s.store.DeleteMachine(ctx, tenantID, id); err != nil {
		return apperr.Wrap(err, "catalog: delete machine")
	}
	s.invalidateType(tenantID, id)
	return nil
}

func (s *Service) invalidateType(tenantID, machineID string) {
	key := typeKey(tenantID, machineID)
	s.gen.Add(1)
	s.group.Forget(key)
	s.types.Delete(key)
}

func validateWorker(in WorkerInput) (WorkerInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	fe := apperr.FieldErrors{}
	if in.Name == "" {
		fe.Add("name", "is required")
	}
	return in, fe.Err()
}

// CreateWorker registers a worker.
func (s *Service) CreateWorker(ctx context.Context, tenantID string, in WorkerInput) (*model.Worker, error) {
	in, err := validateWorker(in)
	if err != nil {
		return nil, err
	}
	w := &model.Worker{
		TenantID:      tenantID,
		Name:          in.Name,
		AadhaarNumber: in.AadhaarNumber,
		Phone:         in.Phone,
		IsActive:      in.IsActive == nil || *in.IsActive,
	}
	if err := s.store.CreateWorker(ctx, w); err != nil {
		return nil, apperr.Wrap(err, "catalog: create worker")
	}
	return w, nil
}

// GetWorker returns a worker of the tenant.
func (s *Service) GetWorker(ctx context.Context, tenantID, id string) (*model.Worker, error) {
	w, err := s.store.GetWorker(ctx, tenantID, id)
	return w, apperr.Wrap(err, "catalog: get worker")
}

// ListWorkers returns the tenant's workers ordered by name.
func (s *Service) ListWorkers(ctx context.Context, tenantID string) ([]model.Worker, error) {
	ws, err := s.store.ListWorkers(ctx, tenantID)
	return ws, apperr.Wrap(err, "catalog: list workers")
}

// UpdateWorker replaces a worker's fields.
func (s *Service) UpdateWorker(ctx context.Context, tenantID, id string, in WorkerInput) (*model.Worker, error) {
	in, err := validateWorker(in)
	if err != nil {
		return nil, err
	}
	w, err := s.store.GetWorker(ctx, tenantID, id)
	if err != nil {
		return nil, apperr.Wrap(err, "catalog: update worker")
	}
	w.Name, w.AadhaarNumber, w.Phone = in.Name, in.AadhaarNumber, in.Phone
	if in.IsActive != nil {
		w.IsActive = *in.IsActive
	}
	if err := s.store.UpdateWorker(ctx, w); err != nil {
		return nil, apperr.Wrap(err, "catalog: update worker")
	}
	return w, nil
}

// DeleteWorker removes a worker.
func (s *Service) DeleteWorker(ctx context.Context, tenantID, id string) error {
	return apperr.Wrap(s.store.DeleteWorker(ctx, tenantID, id), "catalog: delete worker")
}
