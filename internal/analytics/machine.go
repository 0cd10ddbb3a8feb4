package analytics

import (
	"context"
	"slices"
	"strings"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
)

const unknownWorker = "Unknown"

// WorkerPerformance is one worker's share of a machine's output. Count and
// MachineCount are weighted by the machine multiplier.
type WorkerPerformance struct {
	WorkerID      string  `json:"workerId"`
	WorkerName    string  `json:"workerName"`
	Efficiency    float64 `json:"efficiency"`
	Meter         float64 `json:"meter"`
	Pick          float64 `json:"pick"`
	Runtime       float64 `json:"runtime"`
	Count         float64 `json:"count"`
	EffCount      int     `json:"effCount"`
	MachineCount  float64 `json:"machineCount"`
	AvgEfficiency float64 `json:"avgEfficiency"`
	AvgRuntime    float64 `json:"avgRuntime"`
}

// MachineOverall extends Overall with per-shift meters per hour.
type MachineOverall struct {
	Overall
	DayShifts           int     `json:"dayShifts"`
	NightShifts         int     `json:"nightShifts"`
	DayMeterPerHour     float64 `json:"dayMeterPerHour"`
	NightMeterPerHour   float64 `json:"nightMeterPerHour"`
	OverallMeterPerHour float64 `json:"overallMeterPerHour"`
}

// MachineReport is a machine's production over a range.
type MachineReport struct {
	Machine           *model.Machine      `json:"machine"`
	DailyData         []DateBucket        `json:"dailyData"`
	WorkerPerformance []WorkerPerformance `json:"workerPerformance"`
	Overall           MachineOverall      `json:"overall"`
}

// meterPerHour divides meter by the scheduled machine hours.
func meterPerHour(meter float64, dayShifts, nightShifts int) float64 {
	hours := model.DayShiftHours*dayShifts + model.NightShiftHours*nightShifts
	if hours == 0 {
		return 0
	}
	return meter / float64(hours)
}

// MachineAnalytics buckets a machine's records per date and shift and
// breaks its output down per worker.
func (s *Service) MachineAnalytics(ctx context.Context, tenantID, machineID string, q RangeQuery) (*MachineReport, error) {
	r, err := s.resolve(q, DefaultMachineDays)
	if err != nil {
		return nil, err
	}

	rep := &MachineReport{}
	names := map[string]string{}
	recs, err := loadRecords(ctx,
		func(ctx context.Context) error {
			m, err := s.catalog.GetMachine(ctx, tenantID, machineID)
			if err != nil {
				return apperr.Wrap(err, "analytics: get machine")
			}
			rep.Machine = m
			workers, err := s.catalog.ListWorkers(ctx, tenantID)
			if err != nil {
				return apperr.Wrap(err, "analytics: list workers")
			}
			for _, w := range workers {
				names[w.ID] = w.Name
			}
			return nil
		},
		func(ctx context.Context) ([]model.ShiftRecord, error) {
			return s.store.ListShiftRecords(ctx, tenantID, model.ShiftFilter{From: r.From, To: r.To, MachineID: machineID})
		},
	)
	if err != nil {
		return nil, err
	}

	mult := rep.Machine.Type.Multiplier()
	buckets := bucketSet{}
	perf := map[string]*WorkerPerformance{}
	var t totals
	var dayShifts, nightShifts int
	var dayMeter, nightMeter float64

	for _, rec := range recs {
		sb := buckets.get(rec.Date).shift(rec.Shift)
		sb.add(rec, mult)
		sb.MachineCount += mult
		t.add(rec, mult)

		if rec.Shift == model.ShiftNight {
			nightShifts++
			nightMeter += rec.Meter * mult
		} else {
			dayShifts++
			dayMeter += rec.Meter * mult
		}

		wp, ok := perf[rec.WorkerID]
		if !ok {
			name, known := names[rec.WorkerID]
			if !known {
				name = unknownWorker
			}
			wp = &WorkerPerformance{WorkerID: rec.WorkerID, WorkerName: name}
			perf[rec.WorkerID] = wp
		}
		if rec.Efficiency > 0 {
			wp.Efficiency += rec.Efficiency
			wp.EffCount++
		}
		wp.Meter += rec.Meter * mult
		wp.Pick += rec.TotalPick * mult
		wp.Runtime += rec.Runtime
		wp.Count += mult
		wp.MachineCount += mult
	}

	rep.DailyData = buckets.sorted()
	for i := range rep.DailyData {
		d := &rep.DailyData[i]
		d.Day.finish(model.DayShiftHours)
		d.Night.finish(model.NightShiftHours)
		d.TotalMeterPerHour = meterPerHour(d.Day.Meter+d.Night.Meter, d.Day.Count, d.Night.Count)
	}

	rep.WorkerPerformance = make([]WorkerPerformance, 0, len(perf))
	for _, wp := range perf {
		if wp.EffCount > 0 {
			wp.AvgEfficiency = wp.Efficiency / float64(wp.EffCount)
		}
		if wp.Count > 0 {
			wp.AvgRuntime = wp.Runtime / wp.Count
		}
		rep.WorkerPerformance = append(rep.WorkerPerformance, *wp)
	}
	slices.SortFunc(rep.WorkerPerformance, func(a, b WorkerPerformance) int {
		if c := strings.Compare(a.WorkerName, b.WorkerName); c != 0 {
			return c
		}
		return strings.Compare(a.WorkerID, b.WorkerID)
	})

	rep.Overall = MachineOverall{
		Overall:             t.overall(r),
		DayShifts:           dayShifts,
		NightShifts:         nightShifts,
		DayMeterPerHour:     meterPerHour(dayMeter, dayShifts, 0),
		NightMeterPerHour:   meterPerHour(nightMeter, 0, nightShifts),
		OverallMeterPerHour: meterPerHour(dayMeter+nightMeter, dayShifts, nightShifts),
	}
	return rep, nil
}
