package screenshot

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
	"github.com/sells-group/loomtrack/internal/store"
)

// WorkerLookup resolves workers of a tenant.
type WorkerLookup interface {
	GetWorker(ctx context.Context, tenantID, id string) (*model.Worker, error)
}

// NameMappingInput is the writable part of a worker name mapping.
type NameMappingInput struct {
	DisplayName string   `json:"displayName"`
	SystemName  string   `json:"systemName"`
	WorkerID    string   `json:"workerId"`
	Aliases     []string `json:"aliases"`
	IsActive    *bool    `json:"isActive"`
}

// NormalizeDisplayName upper-cases and trims a name read off a display.
func NormalizeDisplayName(s string) string {
	// Casers hold state and are not safe to share.
	return cases.Upper(language.Und).String(strings.TrimSpace(s))
}

func (in NameMappingInput) normalize() (NameMappingInput, error) {
	in.DisplayName = NormalizeDisplayName(in.DisplayName)
	in.SystemName = strings.TrimSpace(in.SystemName)
	aliases := make([]string, 0, len(in.Aliases))
	for _, a := range in.Aliases {
		if a = NormalizeDisplayName(a); a != "" {
			aliases = append(aliases, a)
		}
	}
	in.Aliases = aliases

	fe := apperr.FieldErrors{}
	if in.DisplayName == "" {
		fe.Add("displayName", "is required")
	}
	if in.SystemName == "" {
		fe.Add("systemName", "is required")
	}
	return in, fe.Err()
}

// Names manages worker name mappings and resolves OCR'd names through them.
type Names struct {
	store   store.NameMappingStore
	workers WorkerLookup
}

// NewNames creates a name mapping service.
func NewNames(st store.NameMappingStore, workers WorkerLookup) *Names {
	return &Names{store: st, workers: workers}
}

func (n *Names) checkWorker(ctx context.Context, tenantID, workerID string) error {
	if workerID == "" {
		return nil
	}
	_, err := n.workers.GetWorker(ctx, tenantID, workerID)
	return apperr.Wrap(err, "screenshot: get worker")
}

// Create stores a new mapping. Display names are unique per tenant.
func (n *Names) Create(ctx context.Context, tenantID string, in NameMappingInput) (*model.WorkerNameMapping, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	if err := n.checkWorker(ctx, tenantID, in.WorkerID); err != nil {
		return nil, err
	}
	m := &model.WorkerNameMapping{
		TenantID:    tenantID,
		DisplayName: in.DisplayName,
		SystemName:  in.SystemName,
		WorkerID:    in.WorkerID,
		Aliases:     in.Aliases,
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if err := n.store.CreateNameMapping(ctx, m); err != nil {
		return nil, apperr.Wrap(err, "screenshot: create name mapping")
	}
	return m, nil
}

// Update replaces a mapping's fields.
func (n *Names) Update(ctx context.Context, tenantID, id string, in NameMappingInput) (*model.WorkerNameMapping, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	if err := n.checkWorker(ctx, tenantID, in.WorkerID); err != nil {
		return nil, err
	}
	m, err := n.store.GetNameMapping(ctx, tenantID, id)
	if err != nil {
		return nil, apperr.Wrap(err, "screenshot: get name mapping")
	}
	m.DisplayName = in.DisplayName
	m.SystemName = in.SystemName
	m.WorkerID = in.WorkerID
	m.Aliases = in.Aliases
	if in.IsActive != nil {
		m.IsActive = *in.IsActive
	}
	if err := n.store.UpdateNameMapping(ctx, m); err != nil {
		return nil, apperr.Wrap(err, "screenshot: update name mapping")
	}
	return m, nil
}

// Get returns one mapping.
func (n *Names) Get(ctx context.Context, tenantID, id string) (*model.WorkerNameMapping, error) {
	m, err := n.store.GetNameMapping(ctx, tenantID, id)
	return m, apperr.Wrap(err, "screenshot: get name mapping")
}

// List returns mappings ordered by display name.
func (n *Names) List(ctx context.Context, tenantID string, activeOnly bool) ([]model.WorkerNameMapping, error) {
	out, err := n.store.ListNameMappings(ctx, tenantID, activeOnly)
	return out, apperr.Wrap(err, "screenshot: list name mappings")
}

// Delete removes a mapping.
func (n *Names) Delete(ctx context.Context, tenantID, id string) error {
	return apperr.Wrap(n.store.DeleteNameMapping(ctx, tenantID, id), "screenshot: delete name mapping")
}

// ResolveWorkerName returns the system name of the active mapping whose
// display name, or failing that one of whose aliases, matches raw. raw is
// returned unchanged when nothing matches or the lookup fails.
func (n *Names) ResolveWorkerName(ctx context.Context, tenantID, raw string) string {
	key := NormalizeDisplayName(raw)
	if key == "" {
		return raw
	}
	ms, err := n.store.ListNameMappings(ctx, tenantID, true)
	if err != nil {
		zap.L().Warn("screenshot: resolve worker name",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return raw
	}
	for _, m := range ms {
		if m.DisplayName == key {
			return m.SystemName
		}
	}
	for _, m := range ms {
		for _, a := range m.Aliases {
			if a == key {
				return m.SystemName
			}
		}
	}
	return raw
}
