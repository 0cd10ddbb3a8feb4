// Package analytics answers read-only questions about a tenant's production
// over a date range: per worker, per machine and electricity consumption.
package analytics

import (
	"context"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
)

// Default lookback windows in days.
const (
	DefaultWorkerDays      = 7
	DefaultMachineDays     = 7
	DefaultElectricityDays = 30

	maxDays = 366
)

// Store is the read side the analytics need.
type Store interface {
	ListShiftRecords(ctx context.Context, tenantID string, filter model.ShiftFilter) ([]model.ShiftRecord, error)
	ListDailySummaries(ctx context.Context, tenantID string, from, to time.Time) ([]model.DailySummary, error)
}

// Catalog resolves machines, workers and machine types.
type Catalog interface {
	GetMachine(ctx context.Context, tenantID, id string) (*model.Machine, error)
	GetWorker(ctx context.Context, tenantID, id string) (*model.Worker, error)
	ListWorkers(ctx context.Context, tenantID string) ([]model.Worker, error)
	MachineTypes(ctx context.Context, tenantID string, machineIDs []string) (map[string]model.MachineType, error)
}

// RangeQuery is a requested window. Zero From/To and non-positive Days fall
// back to the per-report defaults.
type RangeQuery struct {
	From time.Time
	To   time.Time
	Days int
}

// Service computes analytics reports.
type Service struct {
	store   Store
	catalog Catalog
	now     func() time.Time
}

// NewService creates an analytics service.
func NewService(st Store, catalog Catalog) *Service {
	return &Service{store: st, catalog: catalog, now: time.Now}
}

// resolve turns q into a concrete range: end defaults to today and start to
// end minus the lookback.
func (s *Service) resolve(q RangeQuery, defaultDays int) (model.DateRange, error) {
	days := q.Days
	if days <= 0 {
		days = defaultDays
	}
	to := model.NormalizeDate(s.now())
	if !q.To.IsZero() {
		to = model.NormalizeDate(q.To)
	}
	from := to.AddDate(0, 0, -days)
	if !q.From.IsZero() {
		from = model.NormalizeDate(q.From)
	}

	switch {
	case to.Before(from):
		return model.DateRange{}, apperr.Validation("invalid date range", map[string]string{"endDate": "must not be before startDate"})
	case to.Sub(from) > maxDays*24*time.Hour:
		return model.DateRange{}, apperr.Validation("invalid date range", map[string]string{"days": "range must not exceed 366 days"})
	}
	return model.DateRange{From: from, To: to}, nil
}

// ShiftBucket accumulates one shift of one date. Efficiency, Meter, Pick and
// Runtime are sums; the averages divide by Count.
type ShiftBucket struct {
	Efficiency    float64 `json:"efficiency"`
	Meter         float64 `json:"meter"`
	Pick          float64 `json:"pick"`
	Runtime       float64 `json:"runtime"`
	Count         int     `json:"count"`
	MachineCount  float64 `json:"machineCount,omitempty"`
	AvgEfficiency float64 `json:"avgEfficiency"`
	AvgRuntime    float64 `json:"avgRuntime"`
	MeterPerHour  float64 `json:"meterPerHour,omitempty"`
}

func (b *ShiftBucket) add(r model.ShiftRecord, mult float64) {
	b.Efficiency += r.Efficiency
	b.Meter += r.Meter * mult
	b.Pick += r.TotalPick * mult
	b.Runtime += r.Runtime
	b.Count++
}

func (b *ShiftBucket) finish(hours int) {
	if b.Count == 0 {
		return
	}
	b.AvgEfficiency = b.Efficiency / float64(b.Count)
	b.AvgRuntime = b.Runtime / float64(b.Count)
	if hours > 0 {
		b.MeterPerHour = b.Meter / float64(hours*b.Count)
	}
}

// DateBucket holds the day and night buckets of one calendar date.
type DateBucket struct {
	Date              string      `json:"date"`
	Day               ShiftBucket `json:"dayShift"`
	Night             ShiftBucket `json:"nightShift"`
	TotalMeterPerHour float64     `json:"totalMeterPerHour,omitempty"`
}

func (d *DateBucket) shift(s model.Shift) *ShiftBucket {
	if s == model.ShiftNight {
		return &d.Night
	}
	return &d.Day
}

type bucketSet map[string]*DateBucket

func (bs bucketSet) get(date time.Time) *DateBucket {
	key := date.Format(model.DateLayout)
	b, ok := bs[key]
	if !ok {
		b = &DateBucket{Date: key}
		bs[key] = b
	}
	return b
}

// sorted returns the buckets oldest first.
func (bs bucketSet) sorted() []DateBucket {
	out := make([]DateBucket, 0, len(bs))
	for _, b := range bs {
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b DateBucket) int {
		switch {
		case a.Date < b.Date:
			return -1
		case a.Date > b.Date:
			return 1
		}
		return 0
	})
	return out
}

// totals accumulates the overall block shared by the worker and machine reports.
type totals struct {
	effSum   float64
	effCount int
	meter    float64
	pick     float64
	runtime  float64
	records  int
}

func (t *totals) add(r model.ShiftRecord, mult float64) {
	if r.Efficiency > 0 {
		t.effSum += r.Efficiency
		t.effCount++
	}
	t.meter += r.Meter * mult
	t.pick += r.TotalPick * mult
	t.runtime += r.Runtime
	t.records++
}

func (t totals) overall(r model.DateRange) Overall {
	o := Overall{
		TotalMeter:   t.meter,
		TotalPick:    t.pick,
		TotalRuntime: t.runtime,
		TotalShifts:  t.records,
		DateRange:    r,
	}
	if t.effCount > 0 {
		o.AvgEfficiency = t.effSum / float64(t.effCount)
	}
	if t.records > 0 {
		o.AvgRuntime = t.runtime / float64(t.records)
	}
	return o
}

// Overall summarizes every record in a report's range. Efficiency is
// averaged over records that reported one.
type Overall struct {
	AvgEfficiency float64         `json:"avgEfficiency"`
	TotalMeter    float64         `json:"totalMeter"`
	TotalPick     float64         `json:"totalPick"`
	TotalRuntime  float64         `json:"totalRuntime"`
	AvgRuntime    float64         `json:"avgRuntime"`
	TotalShifts   int             `json:"totalShifts"`
	DateRange     model.DateRange `json:"dateRange"`
}

// loadRecords runs the catalog lookup and the record query of a report
// concurrently.
func loadRecords(ctx context.Context, lookup func(ctx context.Context) error, list func(ctx context.Context) ([]model.ShiftRecord, error)) ([]model.ShiftRecord, error) {
	var recs []model.ShiftRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return lookup(gctx) })
	g.Go(func() error {
		var err error
		recs, err = list(gctx)
		return apperr.Wrap(err, "analytics: list shift records")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return recs, nil
}
