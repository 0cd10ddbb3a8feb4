package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
)

// ErrInvalidTransition is returned when an extraction record is not in the
// state a transition requires.
var ErrInvalidTransition = eris.New("extraction record not in expected state")

// SettingsPatch carries the day-wide loom settings supplied on an edit.
// Nil fields keep their stored value.
type SettingsPatch struct {
	Speed *float64
	CFM   *float64
	Pik   *float64
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.Speed == nil && p.CFM == nil && p.Pik == nil
}

// CatalogStore persists machines and workers.
type CatalogStore interface {
	CreateMachine(ctx context.Context, m *model.Machine) error
	GetMachine(ctx context.Context, tenantID, id string) (*model.Machine, error)
	ListMachines(ctx context.Context, tenantID string) ([]model.Machine, error)
	UpdateMachine(ctx context.Context, m *model.Machine) error
	DeleteMachine(ctx context.Context, tenantID, id string) error

	CreateWorker(ctx context.Context, w *model.Worker) error
	GetWorker(ctx context.Context, tenantID, id string) (*model.Worker, error)
	ListWorkers(ctx context.Context, tenantID string) ([]model.Worker, error)
	UpdateWorker(ctx context.Context, w *model.Worker) error
	DeleteWorker(ctx context.Context, tenantID, id string) error
}

// ProductionStore persists shift records, daily settings and daily summaries.
type ProductionStore interface {
	// UpsertShiftRecord inserts or replaces the record keyed by
	// (tenant, machine, date, shift) and fills r with the stored id and
	// timestamps.
	UpsertShiftRecord(ctx context.Context, r *model.ShiftRecord) error
	GetShiftRecord(ctx context.Context, tenantID, id string) (*model.ShiftRecord, error)
	UpdateShiftRecord(ctx context.Context, r *model.ShiftRecord) error
	DeleteShiftRecord(ctx context.Context, tenantID, id string) error
	ListShiftRecords(ctx context.Context, tenantID string, filter model.ShiftFilter) ([]model.ShiftRecord, error)

	// UpsertDailySettings writes speed, cfm and pik. The electricity fields
	// are written only when s.CurrentReading is set; otherwise the stored
	// readings are kept.
	UpsertDailySettings(ctx context.Context, s *model.DailySettings) error
	PatchDailySettings(ctx context.Context, tenantID, machineID string, date time.Time, p SettingsPatch) error
	GetDailySettings(ctx context.Context, tenantID, machineID string, date time.Time) (*model.DailySettings, error)
	ListDailySettings(ctx context.Context, tenantID string, from, to time.Time) ([]model.DailySettings, error)
	// FindPriorDayReading returns the current reading stored for the machine
	// on the day before date, or nil when there is none.
	FindPriorDayReading(ctx context.Context, tenantID, machineID string, date time.Time) (*float64, error)

	UpsertDailySummary(ctx context.Context, s *model.DailySummary) error
	// GetDailySummary returns nil, nil when no summary exists for the date.
	GetDailySummary(ctx context.Context, tenantID string, date time.Time) (*model.DailySummary, error)
	ListDailySummaries(ctx context.Context, tenantID string, from, to time.Time) ([]model.DailySummary, error)
}

// TemplateStore persists screenshot mapping templates.
type TemplateStore interface {
	// CreateTemplate and UpdateTemplate clear any other default of the
	// tenant in the same transaction when t.IsDefault is set.
	CreateTemplate(ctx context.Context, t *model.Template) error
	UpdateTemplate(ctx context.Context, t *model.Template) error
	GetTemplate(ctx context.Context, tenantID, id string) (*model.Template, error)
	GetDefaultTemplate(ctx context.Context, tenantID string) (*model.Template, error)
	ListTemplates(ctx context.Context, tenantID string) ([]model.Template, error)
	DeleteTemplate(ctx context.Context, tenantID, id string) error
}

// ExtractionStore persists screenshot extraction records and their
// lifecycle transitions.
type ExtractionStore interface {
	CreateExtraction(ctx context.Context, r *model.ExtractionRecord) error
	GetExtraction(ctx context.Context, tenantID, id string) (*model.ExtractionRecord, error)
	ListExtractions(ctx context.Context, tenantID string, filter model.ExtractionFilter) ([]model.ExtractionRecord, error)
	// MarkExtractionProcessing moves a pending record to processing. It
	// returns false when the record is no longer pending.
	MarkExtractionProcessing(ctx context.Context, tenantID, id string) (bool, error)
	// CompleteExtraction and FailExtraction apply only to processing records
	// and return ErrInvalidTransition otherwise.
	CompleteExtraction(ctx context.Context, tenantID, id string, out model.ExtractionOutcome) error
	FailExtraction(ctx context.Context, tenantID, id, reason string) error
	// VerifyExtraction applies from any state.
	VerifyExtraction(ctx context.Context, tenantID, id, userID string, data map[string]string) (*model.ExtractionRecord, error)
	DeleteExtraction(ctx context.Context, tenantID, id string) error

	// ListPendingExtractions scans all tenants, oldest first.
	ListPendingExtractions(ctx context.Context, limit int) ([]model.ExtractionRecord, error)
	// FailStaleExtractions fails records stuck in processing since before cutoff.
	FailStaleExtractions(ctx context.Context, cutoff time.Time, reason string) (int, error)
	CountExtractionsByStatus(ctx context.Context) (map[model.ExtractionStatus]int, error)
}

// NameMappingStore persists display-name to worker mappings.
type NameMappingStore interface {
	CreateNameMapping(ctx context.Context, m *model.WorkerNameMapping) error
	GetNameMapping(ctx context.Context, tenantID, id string) (*model.WorkerNameMapping, error)
	ListNameMappings(ctx context.Context, tenantID string, activeOnly bool) ([]model.WorkerNameMapping, error)
	UpdateNameMapping(ctx context.Context, m *model.WorkerNameMapping) error
	DeleteNameMapping(ctx context.Context, tenantID, id string) error
}

// Store is the complete persistence interface. Every tenant-scoped method
// filters on tenant id.
type Store interface {
	CatalogStore
	ProductionStore
	TemplateStore
	ExtractionStore
	NameMappingStore

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// defaultTemplateIndex keeps at most one default template per tenant.
const defaultTemplateIndex = "idx_templates_one_default"

func templateConflict(name string, defaultClash bool) error {
	if defaultClash {
		return apperr.Conflict("another template was made the default concurrently")
	}
	return apperr.Conflict(fmt.Sprintf("template name %s already exists", name))
}

func defaultLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
