package store

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/loomtrack/internal/model"
)

// scannable is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// dateCol scans a calendar date stored either as a native date (Postgres)
// or as YYYY-MM-DD text (SQLite).
type dateCol time.Time

func (d *dateCol) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = dateCol(time.Time{})
	case time.Time:
		*d = dateCol(model.NormalizeDate(v))
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return eris.Errorf("store: cannot scan %T into date", src)
	}
	return nil
}

func (d *dateCol) parse(s string) error {
	t, err := model.ParseDate(s)
	if err != nil {
		return eris.Wrapf(err, "store: parse date %q", s)
	}
	*d = dateCol(t)
	return nil
}

func scanMachine(row scannable) (*model.Machine, error) {
	var m model.Machine
	var typ string
	if err := row.Scan(&m.ID, &m.TenantID, &m.MachineNumber, &typ, &m.Description, &m.IsActive,
		&m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Type = model.MachineType(typ)
	return &m, nil
}

func scanWorker(row scannable) (*model.Worker, error) {
	var w model.Worker
	if err := row.Scan(&w.ID, &w.TenantID, &w.Name, &w.AadhaarNumber, &w.Phone, &w.IsActive,
		&w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func scanShiftRecord(row scannable) (*model.ShiftRecord, error) {
	var r model.ShiftRecord
	var shift string
	if err := row.Scan(&r.ID, &r.TenantID, &r.MachineID, &r.WorkerID, (*dateCol)(&r.Date), &shift,
		&r.Runtime, &r.Efficiency, &r.H1, &r.H2, &r.Worph, &r.Meter, &r.TotalPick,
		&r.Notes, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Shift = model.Shift(shift)
	return &r, nil
}

func scanDailySettings(row scannable) (*model.DailySettings, error) {
	var d model.DailySettings
	if err := row.Scan(&d.ID, &d.TenantID, &d.MachineID, (*dateCol)(&d.Date), &d.Speed, &d.CFM, &d.Pik,
		&d.PreviousReading, &d.CurrentReading, &d.UnitsConsumed, &d.CreatedBy,
		&d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDailySummary(row scannable) (*model.DailySummary, error) {
	var s model.DailySummary
	if err := row.Scan(&s.TenantID, (*dateCol)(&s.Date),
		&s.Day.Efficiency, &s.Day.Meter, &s.Day.Pick, &s.Day.Machine, &s.Day.AvgRuntime,
		&s.Night.Efficiency, &s.Night.Meter, &s.Night.Pick, &s.Night.Machine, &s.Night.AvgRuntime,
		&s.Total.Efficiency, &s.Total.Meter, &s.Total.Pick, &s.Total.Machine, &s.Total.AvgRuntime,
		&s.AvgCFM, &s.TotalUnitsConsumed, &s.UnitsPerMeter, &s.MachinesReported, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// summaryArgs returns the upsert arguments in dailySummaryColumnList order.
func summaryArgs(s *model.DailySummary, date any) []any {
	return []any{s.TenantID, date,
		s.Day.Efficiency, s.Day.Meter, s.Day.Pick, s.Day.Machine, s.Day.AvgRuntime,
		s.Night.Efficiency, s.Night.Meter, s.Night.Pick, s.Night.Machine, s.Night.AvgRuntime,
		s.Total.Efficiency, s.Total.Meter, s.Total.Pick, s.Total.Machine, s.Total.AvgRuntime,
		s.AvgCFM, s.TotalUnitsConsumed, s.UnitsPerMeter, s.MachinesReported, s.UpdatedAt,
	}
}

func scanTemplate(row scannable) (*model.Template, error) {
	var t model.Template
	var mappings []byte
	if err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.Description, &t.MachineDisplayType, &t.SampleImageURL,
		&mappings, &t.IsDefault, &t.IsActive, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if len(mappings) > 0 {
		if err := json.Unmarshal(mappings, &t.FieldMappings); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal field mappings")
		}
	}
	return &t, nil
}

func scanExtraction(row scannable) (*model.ExtractionRecord, error) {
	var r model.ExtractionRecord
	var shift, status string
	var data, scores []byte
	if err := row.Scan(&r.ID, &r.TenantID, &r.TemplateID, &r.MachineID, &shift, (*dateCol)(&r.Date),
		&r.ImagePath, &r.ImageSize, &data, &scores, &r.OverallConfidence, &status, &r.ProcessingError,
		&r.ManuallyVerified, &r.VerifiedBy, &r.VerifiedAt, &r.UploadedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Shift = model.Shift(shift)
	r.Status = model.ExtractionStatus(status)

	r.ExtractedData = map[string]string{}
	r.ConfidenceScores = map[string]float64{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &r.ExtractedData); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal extracted data")
		}
	}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &r.ConfidenceScores); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal confidence scores")
		}
	}
	return &r, nil
}

func scanNameMapping(row scannable) (*model.WorkerNameMapping, error) {
	var m model.WorkerNameMapping
	var aliases []byte
	if err := row.Scan(&m.ID, &m.TenantID, &m.DisplayName, &m.SystemName, &m.WorkerID, &aliases,
		&m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Aliases = []string{}
	if len(aliases) > 0 {
		if err := json.Unmarshal(aliases, &m.Aliases); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal aliases")
		}
	}
	return &m, nil
}

func marshalOutcomeMaps(data map[string]string, scores map[string]float64) ([]byte, []byte, error) {
	if data == nil {
		data = map[string]string{}
	}
	if scores == nil {
		scores = map[string]float64{}
	}
	rawData, err := json.Marshal(data)
	if err != nil {
		return nil, nil, err
	}
	rawScores, err := json.Marshal(scores)
	if err != nil {
		return nil, nil, err
	}
	return rawData, rawScores, nil
}

func marshalMappings(m []model.FieldMapping) ([]byte, error) {
	if m == nil {
		m = []model.FieldMapping{}
	}
	return json.Marshal(m)
}

func marshalAliases(aliases []string) ([]byte, error) {
	if aliases == nil {
		aliases = []string{}
	}
	return json.Marshal(aliases)
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
