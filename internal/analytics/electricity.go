package analytics

import (
	"context"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
)

// ElectricityPoint is one date of the electricity series.
type ElectricityPoint struct {
	Date             string  `json:"date"`
	TotalUnits       float64 `json:"totalUnits"`
	TotalMeter       float64 `json:"totalMeter"`
	UnitsPerMeter    float64 `json:"unitsPerMeter"`
	MachinesReported int     `json:"machinesReported"`
}

// ElectricityOverall totals the series. AvgDailyUnits averages over days
// that consumed units.
type ElectricityOverall struct {
	TotalUnits       float64         `json:"totalUnits"`
	TotalMeter       float64         `json:"totalMeter"`
	AvgUnitsPerMeter float64         `json:"avgUnitsPerMeter"`
	AvgDailyUnits    float64         `json:"avgDailyUnits"`
	DaysTracked      int             `json:"daysTracked"`
	DateRange        model.DateRange `json:"dateRange"`
}

// ElectricityReport is the tenant's consumption over a range.
type ElectricityReport struct {
	DateWiseData []ElectricityPoint `json:"dateWiseData"`
	Overall      ElectricityOverall `json:"overall"`
}

// ElectricityAnalytics reads consumption from the stored daily summaries.
func (s *Service) ElectricityAnalytics(ctx context.Context, tenantID string, q RangeQuery) (*ElectricityReport, error) {
	r, err := s.resolve(q, DefaultElectricityDays)
	if err != nil {
		return nil, err
	}
	sums, err := s.store.ListDailySummaries(ctx, tenantID, r.From, r.To)
	if err != nil {
		return nil, apperr.Wrap(err, "analytics: list daily summaries")
	}

	rep := &ElectricityReport{
		DateWiseData: make([]ElectricityPoint, 0, len(sums)),
		Overall:      ElectricityOverall{DaysTracked: len(sums), DateRange: r},
	}
	var withUnits int
	for _, sum := range sums {
		rep.DateWiseData = append(rep.DateWiseData, ElectricityPoint{
			Date:             sum.Date.Format(model.DateLayout),
			TotalUnits:       sum.TotalUnitsConsumed,
			TotalMeter:       sum.Total.Meter,
			UnitsPerMeter:    sum.UnitsPerMeter,
			MachinesReported: sum.MachinesReported,
		})
		rep.Overall.TotalUnits += sum.TotalUnitsConsumed
		rep.Overall.TotalMeter += sum.Total.Meter
		if sum.TotalUnitsConsumed > 0 {
			withUnits++
		}
	}
	if rep.Overall.TotalMeter > 0 {
		rep.Overall.AvgUnitsPerMeter = rep.Overall.TotalUnits / rep.Overall.TotalMeter
	}
	if withUnits > 0 {
		rep.Overall.AvgDailyUnits = rep.Overall.TotalUnits / float64(withUnits)
	}
	return rep, nil
}
