// Package aggregate rolls shift records and daily settings up into the
// per-day production summary.
package aggregate

import (
	"time"

	"github.com/sells-group/loomtrack/internal/model"
)

// ShiftInput is one shift record as seen by the summary computation.
type ShiftInput struct {
	MachineType model.MachineType
	Efficiency  float64
	Meter       float64
	Pick        float64
	Runtime     float64
}

// ShiftSummary is the rollup of one shift of one day.
type ShiftSummary struct {
	AvgEfficiency float64
	TotalMeter    float64
	TotalPick     float64
	// MachineCount counts records that reported a non-zero efficiency.
	MachineCount int
	AvgRuntime   float64
}

// ComputeShiftSummary rolls up the records of one shift. Meter and pick are
// scaled by the machine multiplier. Efficiency is averaged over records with
// efficiency > 0 only, runtime over all records.
func ComputeShiftSummary(records []ShiftInput) ShiftSummary {
	if len(records) == 0 {
		return ShiftSummary{}
	}

	var s ShiftSummary
	var effSum, runtimeSum float64
	for _, r := range records {
		if r.Efficiency > 0 {
			effSum += r.Efficiency
			s.MachineCount++
		}
		mult := r.MachineType.Multiplier()
		s.TotalMeter += r.Meter * mult
		s.TotalPick += r.Pick * mult
		runtimeSum += r.Runtime
	}
	if s.MachineCount > 0 {
		s.AvgEfficiency = effSum / float64(s.MachineCount)
	}
	s.AvgRuntime = runtimeSum / float64(len(records))
	return s
}

func (s ShiftSummary) totals() model.ShiftTotals {
	return model.ShiftTotals{
		Efficiency: s.AvgEfficiency,
		Meter:      s.TotalMeter,
		Pick:       s.TotalPick,
		Machine:    float64(s.MachineCount),
		AvgRuntime: s.AvgRuntime,
	}
}

// ComputeSummary builds the full daily summary from the day and night shift
// records and the day's settings.
func ComputeSummary(tenantID string, date time.Time, day, night []ShiftInput, settings []model.DailySettings) model.DailySummary {
	d := ComputeShiftSummary(day)
	n := ComputeShiftSummary(night)

	sum := model.DailySummary{
		TenantID: tenantID,
		Date:     model.NormalizeDate(date),
		Day:      d.totals(),
		Night:    n.totals(),
		Total: model.ShiftTotals{
			Efficiency: (model.DayShiftHours*d.AvgEfficiency + model.NightShiftHours*n.AvgEfficiency) / model.DayHours,
			Meter:      d.TotalMeter + n.TotalMeter,
			Pick:       d.TotalPick + n.TotalPick,
			Machine:    float64(d.MachineCount+n.MachineCount) / 2,
			AvgRuntime: d.AvgRuntime + n.AvgRuntime,
		},
	}

	var cfmSum float64
	for _, st := range settings {
		cfmSum += st.CFM
		units := st.Units()
		sum.TotalUnitsConsumed += units
		if units > 0 {
			sum.MachinesReported++
		}
	}
	if len(settings) > 0 {
		sum.AvgCFM = cfmSum / float64(len(settings))
	}
	if sum.Total.Meter > 0 {
		sum.UnitsPerMeter = sum.TotalUnitsConsumed / sum.Total.Meter
	}
	return sum
}
