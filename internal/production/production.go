// Package production records per-shift loom output and keeps the daily
// summary in step with every write.
package production

import (
	"context"
	"time"

	"github.com/sells-group/loomtrack/internal/aggregate"
	"github.com/sells-group/loomtrack/internal/model"
	"github.com/sells-group/loomtrack/internal/store"
)

// maxRangeDays bounds summary listings and resyncs.
const maxRangeDays = 366

// Catalog resolves the machines and workers a record refers to.
type Catalog interface {
	GetMachine(ctx context.Context, tenantID, id string) (*model.Machine, error)
	GetWorker(ctx context.Context, tenantID, id string) (*model.Worker, error)
}

// Aggregator keeps daily summaries current.
type Aggregator interface {
	Recompute(ctx context.Context, tenantID string, date time.Time) bool
	Resync(ctx context.Context, tenantID string, r model.DateRange) (*aggregate.ResyncResult, error)
}

// ShiftEntry is a submitted shift record plus the optional day-wide machine
// settings and electricity readings entered with it.
type ShiftEntry struct {
	MachineID  string      `json:"machine"`
	WorkerID   string      `json:"worker"`
	Date       string      `json:"productionDate"`
	Shift      model.Shift `json:"shift"`
	Runtime    *float64    `json:"runtime"`
	Efficiency *float64    `json:"efficiency"`
	H1         *float64    `json:"h1"`
	H2         *float64    `json:"h2"`
	Worph      *float64    `json:"worph"`
	Meter      *float64    `json:"meter"`
	TotalPick  *float64    `json:"totalPick"`
	Notes      string      `json:"notes"`

	Speed           *float64 `json:"speed"`
	CFM             *float64 `json:"cfm"`
	Pik             *float64 `json:"pik"`
	PreviousReading *float64 `json:"previousReading"`
	CurrentReading  *float64 `json:"currentReading"`
}

func (e ShiftEntry) hasSettings() bool {
	return e.Speed != nil || e.CFM != nil || e.Pik != nil
}

// ShiftPatch is a partial update of a stored shift record. Nil fields are
// left unchanged.
type ShiftPatch struct {
	WorkerID   *string  `json:"worker"`
	Runtime    *float64 `json:"runtime"`
	Efficiency *float64 `json:"efficiency"`
	H1         *float64 `json:"h1"`
	H2         *float64 `json:"h2"`
	Worph      *float64 `json:"worph"`
	Meter      *float64 `json:"meter"`
	TotalPick  *float64 `json:"totalPick"`
	Notes      *string  `json:"notes"`

	Speed *float64 `json:"speed"`
	CFM   *float64 `json:"cfm"`
	Pik   *float64 `json:"pik"`
}

// ShiftDetail is a shift record with its machine's settings for the day.
type ShiftDetail struct {
	model.ShiftRecord
	DailyData *model.DailySettings `json:"dailyData"`
}

// DaySnapshot is everything recorded for one tenant day.
type DaySnapshot struct {
	Summary  *model.DailySummary   `json:"summary"`
	Records  []model.ShiftRecord   `json:"productions"`
	Settings []model.DailySettings `json:"dailyProductions"`
}

// Stats are today's running totals.
type Stats struct {
	TotalMeter    float64 `json:"totalMeter"`
	TotalPick     float64 `json:"totalPick"`
	AvgEfficiency float64 `json:"avgEfficiency"`
	RecordCount   int     `json:"recordCount"`
}

// Service implements shift entry and summary reads.
type Service struct {
	store   store.ProductionStore
	catalog Catalog
	agg     Aggregator
	now     func() time.Time
}

// NewService creates a production service.
func NewService(st store.ProductionStore, catalog Catalog, agg Aggregator) *Service {
	return &Service{store: st, catalog: catalog, agg: agg, now: time.Now}
}

func (s *Service) today() time.Time { return model.NormalizeDate(s.now()) }
