package analytics

import (
	"context"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
)

// WorkerReport is a worker's production over a range.
type WorkerReport struct {
	Worker    *model.Worker `json:"worker"`
	DailyData []DateBucket  `json:"dailyData"`
	Overall   Overall       `json:"overall"`
}

// WorkerAnalytics buckets a worker's records per date and shift, with
// meter and pick scaled by each machine's multiplier.
func (s *Service) WorkerAnalytics(ctx context.Context, tenantID, workerID string, q RangeQuery) (*WorkerReport, error) {
	r, err := s.resolve(q, DefaultWorkerDays)
	if err != nil {
		return nil, err
	}

	rep := &WorkerReport{}
	recs, err := loadRecords(ctx,
		func(ctx context.Context) error {
			w, err := s.catalog.GetWorker(ctx, tenantID, workerID)
			rep.Worker = w
			return apperr.Wrap(err, "analytics: get worker")
		},
		func(ctx context.Context) ([]model.ShiftRecord, error) {
			return s.store.ListShiftRecords(ctx, tenantID, model.ShiftFilter{From: r.From, To: r.To, WorkerID: workerID})
		},
	)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.MachineID)
	}
	types, err := s.catalog.MachineTypes(ctx, tenantID, ids)
	if err != nil {
		return nil, apperr.Wrap(err, "analytics: resolve machine types")
	}

	buckets := bucketSet{}
	var t totals
	for _, rec := range recs {
		mult := types[rec.MachineID].Multiplier()
		buckets.get(rec.Date).shift(rec.Shift).add(rec, mult)
		t.add(rec, mult)
	}
	rep.DailyData = buckets.sorted()
	for i := range rep.DailyData {
		rep.DailyData[i].Day.finish(0)
		rep.DailyData[i].Night.finish(0)
	}
	rep.Overall = t.overall(r)
	return rep, nil
}
