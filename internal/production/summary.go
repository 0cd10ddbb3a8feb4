package production

import (
	"context"
	"time"

	"github.com/sells-group/loomtrack/internal/aggregate"
	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
)

// GetSummary returns the stored summary for date, or nil when none exists.
func (s *Service) GetSummary(ctx context.Context, tenantID string, date time.Time) (*model.DailySummary, error) {
	sum, err := s.store.GetDailySummary(ctx, tenantID, date)
	return sum, apperr.Wrap(err, "production: get daily summary")
}

// DaySnapshot returns the summary, shift records and settings of one date.
func (s *Service) DaySnapshot(ctx context.Context, tenantID string, date time.Time) (*DaySnapshot, error) {
	date = model.NormalizeDate(date)
	sum, err := s.GetSummary(ctx, tenantID, date)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.ListShiftRecords(ctx, tenantID, model.ShiftFilter{From: date, To: date})
	if err != nil {
		return nil, apperr.Wrap(err, "production: list shift records")
	}
	settings, err := s.store.ListDailySettings(ctx, tenantID, date, date)
	if err != nil {
		return nil, apperr.Wrap(err, "production: list daily settings")
	}
	return &DaySnapshot{Summary: sum, Records: recs, Settings: settings}, nil
}

// ValidateRange checks an inclusive date range for listings and resyncs.
func ValidateRange(r model.DateRange) error {
	fe := apperr.FieldErrors{}
	switch {
	case r.From.IsZero():
		fe.Add("startDate", "is required")
	case r.To.IsZero():
		fe.Add("endDate", "is required")
	case r.To.Before(r.From):
		fe.Add("endDate", "must not be before startDate")
	case r.To.Sub(r.From) > maxRangeDays*24*time.Hour:
		fe.Add("endDate", "range must not exceed 366 days")
	}
	return fe.Err()
}

// fillRange supplies missing bounds: the end defaults to today, or to the
// widest allowed window after an explicit start; the start defaults to the
// widest window before the end.
func fillRange(r model.DateRange, today time.Time) model.DateRange {
	if r.To.IsZero() {
		r.To = today
		if !r.From.IsZero() {
			if limit := r.From.AddDate(0, 0, maxRangeDays); r.To.After(limit) {
				r.To = limit
			}
			if r.To.Before(r.From) {
				r.To = r.From
			}
		}
	}
	if r.From.IsZero() {
		r.From = r.To.AddDate(0, 0, -maxRangeDays)
	}
	return r
}

// ListSummaries returns stored summaries in the range, oldest first. Either
// bound may be omitted.
func (s *Service) ListSummaries(ctx context.Context, tenantID string, r model.DateRange) ([]model.DailySummary, error) {
	r = fillRange(r, s.today())
	if err := ValidateRange(r); err != nil {
		return nil, err
	}
	sums, err := s.store.ListDailySummaries(ctx, tenantID, r.From, r.To)
	return sums, apperr.Wrap(err, "production: list daily summaries")
}

// Resync recomputes every summary in the range.
func (s *Service) Resync(ctx context.Context, tenantID string, r model.DateRange) (*aggregate.ResyncResult, error) {
	if err := ValidateRange(r); err != nil {
		return nil, err
	}
	return s.agg.Resync(ctx, tenantID, r)
}

// Stats totals the records dated today or later. Efficiency is averaged
// over every record.
func (s *Service) Stats(ctx context.Context, tenantID string) (*Stats, error) {
	recs, err := s.store.ListShiftRecords(ctx, tenantID, model.ShiftFilter{From: s.today()})
	if err != nil {
		return nil, apperr.Wrap(err, "production: list shift records")
	}
	st := &Stats{RecordCount: len(recs)}
	var eff float64
	for _, r := range recs {
		st.TotalMeter += r.Meter
		st.TotalPick += r.TotalPick
		eff += r.Efficiency
	}
	if len(recs) > 0 {
		st.AvgEfficiency = eff / float64(len(recs))
	}
	return st, nil
}
