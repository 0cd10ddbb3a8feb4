package aggregate

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
	"github.com/sells-group/loomtrack/internal/monitoring"
	"github.com/sells-group/loomtrack/internal/store"
)

// TypeResolver looks up machine types for multiplier selection.
type TypeResolver interface {
	MachineTypes(ctx context.Context, tenantID string, machineIDs []string) (map[string]model.MachineType, error)
}

// Engine recomputes and stores daily summaries.
type Engine struct {
	store    store.ProductionStore
	types    TypeResolver
	metrics  *monitoring.Metrics
	locks    *keyedMutex
	parallel int
}

// NewEngine creates an aggregation engine. parallel bounds concurrent
// recomputes during a resync. metrics may be nil.
func NewEngine(st store.ProductionStore, types TypeResolver, metrics *monitoring.Metrics, parallel int) *Engine {
	if parallel <= 0 {
		parallel = 4
	}
	return &Engine{
		store:    st,
		types:    types,
		metrics:  metrics,
		locks:    newKeyedMutex(),
		parallel: parallel,
	}
}

// Recompute rebuilds the summary of one tenant day from its current records
// and stores it. It reports whether the summary was written; failures are
// logged and never returned to the write that triggered the recompute.
// Recomputes of the same (tenant, date) run one at a time.
func (e *Engine) Recompute(ctx context.Context, tenantID string, date time.Time) bool {
	date = model.NormalizeDate(date)
	unlock := e.locks.Lock(tenantID + "|" + date.Format(model.DateLayout))
	defer unlock()

	start := time.Now()
	sum, err := e.Compute(ctx, tenantID, date)
	if err == nil {
		err = e.store.UpsertDailySummary(ctx, sum)
	}
	e.metrics.ObserveAggregation(err == nil, time.Since(start))
	if err != nil {
		zap.L().Error("aggregate: recompute failed",
			zap.String("tenant_id", tenantID),
			zap.String("date", date.Format(model.DateLayout)),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Compute loads the inputs for one tenant day and returns the summary
// without storing it.
func (e *Engine) Compute(ctx context.Context, tenantID string, date time.Time) (*model.DailySummary, error) {
	date = model.NormalizeDate(date)

	records, err := e.store.ListShiftRecords(ctx, tenantID, model.ShiftFilter{From: date, To: date})
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: load shift records")
	}
	settings, err := e.store.ListDailySettings(ctx, tenantID, date, date)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: load daily settings")
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.MachineID)
	}
	types, err := e.types.MachineTypes(ctx, tenantID, ids)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: resolve machine types")
	}

	var day, night []ShiftInput
	for _, r := range records {
		in := ShiftInput{
			MachineType: types[r.MachineID],
			Efficiency:  r.Efficiency,
			Meter:       r.Meter,
			Pick:        r.TotalPick,
			Runtime:     r.Runtime,
		}
		if r.Shift == model.ShiftNight {
			night = append(night, in)
		} else {
			day = append(day, in)
		}
	}

	sum := ComputeSummary(tenantID, date, day, night, settings)
	return &sum, nil
}

// ResyncResult reports the outcome of a range resync.
type ResyncResult struct {
	Dates  int      `json:"dates"`
	Failed []string `json:"failed,omitempty"`
}

// Resync recomputes every date of r for the tenant. Failed dates are
// collected rather than aborting the run.
func (e *Engine) Resync(ctx context.Context, tenantID string, r model.DateRange) (*ResyncResult, error) {
	dates := r.Dates()
	if len(dates) == 0 {
		return nil, apperr.Validation("invalid date range", map[string]string{"endDate": "must not be before startDate"})
	}

	res := &ResyncResult{Dates: len(dates)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for _, d := range dates {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if !e.Recompute(gctx, tenantID, d) {
				mu.Lock()
				res.Failed = append(res.Failed, d.Format(model.DateLayout))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, eris.Wrap(err, "aggregate: resync")
	}
	slices.Sort(res.Failed)
	zap.L().Info("aggregate: resync complete",
		zap.String("tenant_id", tenantID),
		zap.Int("dates", res.Dates),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}
