package production

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
	"github.com/sells-group/loomtrack/internal/store"
)

func validateNumbers(fe apperr.FieldErrors, fields map[string]*float64) {
	for name, v := range fields {
		if v != nil && *v < 0 {
			fe.Add(name, "must be >= 0")
		}
	}
}

func validateEfficiency(fe apperr.FieldErrors, v *float64) {
	if v != nil && *v > 100 {
		fe.Add("efficiency", "must be between 0 and 100")
	}
}

func (e ShiftEntry) validate() error {
	fe := apperr.FieldErrors{}
	if e.MachineID == "" {
		fe.Add("machine", "is required")
	}
	if e.WorkerID == "" {
		fe.Add("worker", "is required")
	}
	if !e.Shift.Valid() {
		fe.Add("shift", "must be day or night")
	}
	if e.Date != "" {
		if _, err := model.ParseDate(e.Date); err != nil {
			fe.Add("productionDate", "must be a date (YYYY-MM-DD)")
		}
	}
	validateNumbers(fe, map[string]*float64{
		"runtime": e.Runtime, "efficiency": e.Efficiency, "h1": e.H1, "h2": e.H2, "worph": e.Worph,
		"meter": e.Meter, "totalPick": e.TotalPick, "speed": e.Speed, "cfm": e.CFM, "pik": e.Pik,
		"previousReading": e.PreviousReading, "currentReading": e.CurrentReading,
	})
	validateEfficiency(fe, e.Efficiency)
	return fe.Err()
}

func (p ShiftPatch) validate() error {
	fe := apperr.FieldErrors{}
	if p.WorkerID != nil && *p.WorkerID == "" {
		fe.Add("worker", "must not be empty")
	}
	validateNumbers(fe, map[string]*float64{
		"runtime": p.Runtime, "efficiency": p.Efficiency, "h1": p.H1, "h2": p.H2, "worph": p.Worph,
		"meter": p.Meter, "totalPick": p.TotalPick, "speed": p.Speed, "cfm": p.CFM, "pik": p.Pik,
	})
	validateEfficiency(fe, p.Efficiency)
	return fe.Err()
}

func val(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func set(dst, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func (s *Service) checkRefs(ctx context.Context, tenantID, machineID, workerID string) error {
	if machineID != "" {
		m, err := s.catalog.GetMachine(ctx, tenantID, machineID)
		if err != nil {
			return apperr.Wrap(err, "production: load machine")
		}
		if !m.IsActive {
			return apperr.NotFound("machine", machineID)
		}
	}
	if workerID != "" {
		if _, err := s.catalog.GetWorker(ctx, tenantID, workerID); err != nil {
			return apperr.Wrap(err, "production: load worker")
		}
	}
	return nil
}

// SubmitShift creates or replaces the record for (machine, date, shift),
// writes any supplied day-wide settings and recomputes the day's summary.
// Absent numeric fields are stored as 0.
func (s *Service) SubmitShift(ctx context.Context, tenantID, userID string, e ShiftEntry) (*model.ShiftRecord, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, tenantID, e.MachineID, e.WorkerID); err != nil {
		return nil, err
	}

	date := s.today()
	if e.Date != "" {
		d, _ := model.ParseDate(e.Date)
		date = model.NormalizeDate(d)
	}

	rec := &model.ShiftRecord{
		TenantID:   tenantID,
		MachineID:  e.MachineID,
		WorkerID:   e.WorkerID,
		Date:       date,
		Shift:      e.Shift,
		Runtime:    val(e.Runtime),
		Efficiency: val(e.Efficiency),
		H1:         val(e.H1),
		H2:         val(e.H2),
		Worph:      val(e.Worph),
		Meter:      val(e.Meter),
		TotalPick:  val(e.TotalPick),
		Notes:      e.Notes,
		CreatedBy:  userID,
	}
	if err := s.store.UpsertShiftRecord(ctx, rec); err != nil {
		return nil, apperr.Wrap(err, "production: upsert shift record")
	}

	if e.hasSettings() {
		settings, err := s.buildSettings(ctx, tenantID, userID, date, e)
		if err != nil {
			return nil, err
		}
		if err := s.store.UpsertDailySettings(ctx, settings); err != nil {
			return nil, apperr.Wrap(err, "production: upsert daily settings")
		}
	}

	s.recompute(ctx, tenantID, rec)
	return rec, nil
}

// buildSettings resolves the electricity fields. Without an explicit
// previous reading the machine's reading from the day before is used.
// Units are derived only when both readings are known.
func (s *Service) buildSettings(ctx context.Context, tenantID, userID string, date time.Time, e ShiftEntry) (*model.DailySettings, error) {
	d := &model.DailySettings{
		TenantID:  tenantID,
		MachineID: e.MachineID,
		Date:      date,
		Speed:     val(e.Speed),
		CFM:       val(e.CFM),
		Pik:       val(e.Pik),
		CreatedBy: userID,
	}
	if e.CurrentReading == nil {
		return d, nil
	}

	prev := e.PreviousReading
	if prev == nil {
		var err error
		prev, err = s.store.FindPriorDayReading(ctx, tenantID, e.MachineID, date)
		if err != nil {
			return nil, apperr.Wrap(err, "production: find prior day reading")
		}
	}
	d.CurrentReading = e.CurrentReading
	d.PreviousReading = prev
	if prev != nil {
		units := max(0, *e.CurrentReading-*prev)
		d.UnitsConsumed = &units
	}
	return d, nil
}

func (s *Service) recompute(ctx context.Context, tenantID string, rec *model.ShiftRecord) {
	if !s.agg.Recompute(ctx, tenantID, rec.Date) {
		zap.L().Warn("production: summary left stale",
			zap.String("tenant_id", tenantID),
			zap.String("record_id", rec.ID),
			zap.String("date", rec.Date.Format(model.DateLayout)),
		)
	}
}

// UpdateShift applies a partial update to a stored record, upserts any
// supplied speed/cfm/pik and recomputes the day.
func (s *Service) UpdateShift(ctx context.Context, tenantID, id string, p ShiftPatch) (*model.ShiftRecord, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	rec, err := s.store.GetShiftRecord(ctx, tenantID, id)
	if err != nil {
		return nil, apperr.Wrap(err, "production: get shift record")
	}
	if p.WorkerID != nil && *p.WorkerID != rec.WorkerID {
		if err := s.checkRefs(ctx, tenantID, "", *p.WorkerID); err != nil {
			return nil, err
		}
		rec.WorkerID = *p.WorkerID
	}

	set(&rec.Runtime, p.Runtime)
	set(&rec.Efficiency, p.Efficiency)
	set(&rec.H1, p.H1)
	set(&rec.H2, p.H2)
	set(&rec.Worph, p.Worph)
	set(&rec.Meter, p.Meter)
	set(&rec.TotalPick, p.TotalPick)
	if p.Notes != nil {
		rec.Notes = *p.Notes
	}

	if err := s.store.UpdateShiftRecord(ctx, rec); err != nil {
		return nil, apperr.Wrap(err, "production: update shift record")
	}
	patch := store.SettingsPatch{Speed: p.Speed, CFM: p.CFM, Pik: p.Pik}
	if !patch.Empty() {
		if err := s.store.PatchDailySettings(ctx, tenantID, rec.MachineID, rec.Date, patch); err != nil {
			return nil, apperr.Wrap(err, "production: patch daily settings")
		}
	}

	s.recompute(ctx, tenantID, rec)
	return rec, nil
}

// DeleteShift removes a record and recomputes the date it belonged to.
func (s *Service) DeleteShift(ctx context.Context, tenantID, id string) error {
	rec, err := s.store.GetShiftRecord(ctx, tenantID, id)
	if err != nil {
		return apperr.Wrap(err, "production: get shift record")
	}
	if err := s.store.DeleteShiftRecord(ctx, tenantID, id); err != nil {
		return apperr.Wrap(err, "production: delete shift record")
	}
	s.recompute(ctx, tenantID, rec)
	return nil
}

// GetShift returns a record with its machine's settings for the day.
func (s *Service) GetShift(ctx context.Context, tenantID, id string) (*ShiftDetail, error) {
	rec, err := s.store.GetShiftRecord(ctx, tenantID, id)
	if err != nil {
		return nil, apperr.Wrap(err, "production: get shift record")
	}
	settings, err := s.store.GetDailySettings(ctx, tenantID, rec.MachineID, rec.Date)
	if err != nil {
		return nil, apperr.Wrap(err, "production: get daily settings")
	}
	return &ShiftDetail{ShiftRecord: *rec, DailyData: settings}, nil
}

// ListShifts returns records newest date first.
func (s *Service) ListShifts(ctx context.Context, tenantID string, f model.ShiftFilter) ([]model.ShiftRecord, error) {
	if f.Shift != "" && !f.Shift.Valid() {
		return nil, apperr.Validation("invalid filter", map[string]string{"shift": "must be day or night"})
	}
	recs, err := s.store.ListShiftRecords(ctx, tenantID, f)
	return recs, apperr.Wrap(err, "production: list shift records")
}
