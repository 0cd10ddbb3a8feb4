package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Dates are stored as
// YYYY-MM-DD text so equality and range filters compare lexically.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS machines (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	machine_number TEXT NOT NULL,
	machine_type   TEXT NOT NULL DEFAULT 'single' CHECK (machine_type IN ('single', 'double')),
	description    TEXT NOT NULL DEFAULT '',
	is_active      BOOLEAN NOT NULL DEFAULT 1,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (tenant_id, machine_number)
);

CREATE TABLE IF NOT EXISTS workers (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	name           TEXT NOT NULL,
	aadhaar_number TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	is_active      BOOLEAN NOT NULL DEFAULT 1,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS shift_records (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	machine_id  TEXT NOT NULL,
	worker_id   TEXT NOT NULL,
	date        TEXT NOT NULL,
	shift       TEXT NOT NULL CHECK (shift IN ('day', 'night')),
	runtime     REAL NOT NULL DEFAULT 0,
	efficiency  REAL NOT NULL DEFAULT 0,
	h1          REAL NOT NULL DEFAULT 0,
	h2          REAL NOT NULL DEFAULT 0,
	worph       REAL NOT NULL DEFAULT 0,
	meter       REAL NOT NULL DEFAULT 0,
	total_pick  REAL NOT NULL DEFAULT 0,
	notes       TEXT NOT NULL DEFAULT '',
	created_by  TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (tenant_id, machine_id, date, shift)
);

CREATE INDEX IF NOT EXISTS idx_shift_records_tenant_date ON shift_records(tenant_id, date);

CREATE TABLE IF NOT EXISTS daily_settings (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	machine_id       TEXT NOT NULL,
	date             TEXT NOT NULL,
	speed            REAL NOT NULL DEFAULT 0,
	cfm              REAL NOT NULL DEFAULT 0,
	pik              REAL NOT NULL DEFAULT 0,
	previous_reading REAL,
	current_reading  REAL,
	units_consumed   REAL,
	created_by       TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (tenant_id, machine_id, date)
);

CREATE TABLE IF NOT EXISTS daily_summaries (
	tenant_id            TEXT NOT NULL,
	date                 TEXT NOT NULL,
	day_efficiency       REAL NOT NULL DEFAULT 0,
	day_meter            REAL NOT NULL DEFAULT 0,
	day_pick             REAL NOT NULL DEFAULT 0,
	day_machine          REAL NOT NULL DEFAULT 0,
	day_avg_runtime      REAL NOT NULL DEFAULT 0,
	night_efficiency     REAL NOT NULL DEFAULT 0,
	night_meter          REAL NOT NULL DEFAULT 0,
	night_pick           REAL NOT NULL DEFAULT 0,
	night_machine        REAL NOT NULL DEFAULT 0,
	night_avg_runtime    REAL NOT NULL DEFAULT 0,
	total_efficiency     REAL NOT NULL DEFAULT 0,
	total_meter          REAL NOT NULL DEFAULT 0,
	total_pick           REAL NOT NULL DEFAULT 0,
	total_machine        REAL NOT NULL DEFAULT 0,
	total_avg_runtime    REAL NOT NULL DEFAULT 0,
	avg_cfm              REAL NOT NULL DEFAULT 0,
	total_units_consumed REAL NOT NULL DEFAULT 0,
	units_per_meter      REAL NOT NULL DEFAULT 0,
	machines_reported    INTEGER NOT NULL DEFAULT 0,
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (tenant_id, date)
);

CREATE TABLE IF NOT EXISTS templates (
	id                   TEXT PRIMARY KEY,
	tenant_id            TEXT NOT NULL,
	name                 TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	machine_display_type TEXT NOT NULL DEFAULT '',
	sample_image_url     TEXT NOT NULL DEFAULT '',
	field_mappings       TEXT NOT NULL DEFAULT '[]',
	is_default           BOOLEAN NOT NULL DEFAULT 0,
	is_active            BOOLEAN NOT NULL DEFAULT 1,
	created_by           TEXT NOT NULL DEFAULT '',
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (tenant_id, name)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_one_default ON templates(tenant_id) WHERE is_default;

CREATE TABLE IF NOT EXISTS extraction_records (
	id                 TEXT PRIMARY KEY,
	tenant_id          TEXT NOT NULL,
	template_id        TEXT NOT NULL,
	machine_id         TEXT NOT NULL,
	shift              TEXT NOT NULL CHECK (shift IN ('day', 'night')),
	date               TEXT NOT NULL,
	image_path         TEXT NOT NULL,
	image_size         INTEGER NOT NULL DEFAULT 0,
	extracted_data     TEXT NOT NULL DEFAULT '{}',
	confidence_scores  TEXT NOT NULL DEFAULT '{}',
	overall_confidence REAL NOT NULL DEFAULT 0,
	status             TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending', 'processing', 'completed', 'manual_review', 'failed')),
	processing_error   TEXT NOT NULL DEFAULT '',
	manually_verified  BOOLEAN NOT NULL DEFAULT 0,
	verified_by        TEXT NOT NULL DEFAULT '',
	verified_at        DATETIME,
	uploaded_by        TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_extraction_records_tenant_created ON extraction_records(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_extraction_records_status ON extraction_records(status, created_at);

CREATE TABLE IF NOT EXISTS worker_name_mappings (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	display_name TEXT NOT NULL,
	system_name  TEXT NOT NULL,
	worker_id    TEXT NOT NULL DEFAULT '',
	aliases      TEXT NOT NULL DEFAULT '[]',
	is_active    BOOLEAN NOT NULL DEFAULT 1,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (tenant_id, display_name)
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Machines ---

func (s *SQLiteStore) CreateMachine(ctx context.Context, m *model.Machine) error {
	now := time.Now().UTC()
	m.ID = uuid.New().String()
	m.CreatedAt, m.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO machines (`+machineColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.TenantID, m.MachineNumber, string(m.Type), m.Description, m.IsActive, now, now,
	)
	if isSQLiteUnique(err) {
		return apperr.Conflict(fmt.Sprintf("machine number %s already exists", m.MachineNumber))
	}
	return eris.Wrap(err, "sqlite: insert machine")
}

func (s *SQLiteStore) GetMachine(ctx context.Context, tenantID, id string) (*model.Machine, error) {
	m, err := scanMachine(s.db.QueryRowContext(ctx,
		`SELECT `+machineColumns+` FROM machines WHERE tenant_id = ? AND id = ?`, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("machine", id)
	}
	return m, eris.Wrapf(err, "sqlite: get machine %s", id)
}

func (s *SQLiteStore) ListMachines(ctx context.Context, tenantID string) ([]model.Machine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+machineColumns+` FROM machines WHERE tenant_id = ? ORDER BY machine_number`, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list machines")
	}
	defer rows.Close()

	var out []model.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan machine")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list machines iterate")
}

func (s *SQLiteStore) UpdateMachine(ctx context.Context, m *model.Machine) error {
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE machines SET machine_number = ?, machine_type = ?, description = ?, is_active = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		m.MachineNumber, string(m.Type), m.Description, m.IsActive, m.UpdatedAt, m.TenantID, m.ID,
	)
	if isSQLiteUnique(err) {
		return apperr.Conflict(fmt.Sprintf("machine number %s already exists", m.MachineNumber))
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: update machine %s", m.ID)
	}
	return checkRowsAffected(res, "machine", m.ID)
}

func (s *SQLiteStore) DeleteMachine(ctx context.Context, tenantID, id string) error {
	return s.deleteScoped(ctx, "machines", "machine", tenantID, id)
}

// --- Workers ---

func (s *SQLiteStore) CreateWorker(ctx context.Context, w *model.Worker) error {
	now := time.Now().UTC()
	w.ID = uuid.New().String()
	w.CreatedAt, w.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workers (`+workerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.TenantID, w.Name, w.AadhaarNumber, w.Phone, w.IsActive, now, now,
	)
	return eris.Wrap(err, "sqlite: insert worker")
}

func (s *SQLiteStore) GetWorker(ctx context.Context, tenantID, id string) (*model.Worker, error) {
	w, err := scanWorker(s.db.QueryRowContext(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE tenant_id = ? AND id = ?`, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("worker", id)
	}
	return w, eris.Wrapf(err, "sqlite: get worker %s", id)
}

func (s *SQLiteStore) ListWorkers(ctx context.Context, tenantID string) ([]model.Worker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE tenant_id = ? ORDER BY name`, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list workers")
	}
	defer rows.Close()

	var out []model.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan worker")
		}
		out = append(out, *w)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list workers iterate")
}

func (s *SQLiteStore) UpdateWorker(ctx context.Context, w *model.Worker) error {
	w.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE workers SET name = ?, aadhaar_number = ?, phone = ?, is_active = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		w.Name, w.AadhaarNumber, w.Phone, w.IsActive, w.UpdatedAt, w.TenantID, w.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update worker %s", w.ID)
	}
	return checkRowsAffected(res, "worker", w.ID)
}

func (s *SQLiteStore) DeleteWorker(ctx context.Context, tenantID, id string) error {
	return s.deleteScoped(ctx, "workers", "worker", tenantID, id)
}

// --- Shift records ---

const sqliteShiftRecordUpsert = `
INSERT INTO shift_records (` + shiftRecordColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (tenant_id, machine_id, date, shift) DO UPDATE SET
	worker_id = excluded.worker_id,
	runtime = excluded.runtime,
	efficiency = excluded.efficiency,
	h1 = excluded.h1,
	h2 = excluded.h2,
	worph = excluded.worph,
	meter = excluded.meter,
	total_pick = excluded.total_pick,
	notes = excluded.notes,
	created_by = excluded.created_by,
	updated_at = excluded.updated_at`

func (s *SQLiteStore) UpsertShiftRecord(ctx context.Context, r *model.ShiftRecord) error {
	now := time.Now().UTC()
	r.Date = model.NormalizeDate(r.Date)
	r.UpdatedAt = now

	if _, err := s.db.ExecContext(ctx, sqliteShiftRecordUpsert,
		uuid.New().String(), r.TenantID, r.MachineID, r.WorkerID, dateText(r.Date), string(r.Shift),
		r.Runtime, r.Efficiency, r.H1, r.H2, r.Worph, r.Meter, r.TotalPick,
		r.Notes, r.CreatedBy, now, now,
	); err != nil {
		return eris.Wrap(err, "sqlite: upsert shift record")
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM shift_records WHERE tenant_id = ? AND machine_id = ? AND date = ? AND shift = ?`,
		r.TenantID, r.MachineID, dateText(r.Date), string(r.Shift),
	).Scan(&r.ID, &r.CreatedAt)
	return eris.Wrap(err, "sqlite: read upserted shift record")
}

func (s *SQLiteStore) GetShiftRecord(ctx context.Context, tenantID, id string) (*model.ShiftRecord, error) {
	r, err := scanShiftRecord(s.db.QueryRowContext(ctx,
		`SELECT `+shiftRecordColumns+` FROM shift_records WHERE tenant_id = ? AND id = ?`, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("production record", id)
	}
	return r, eris.Wrapf(err, "sqlite: get shift record %s", id)
}

func (s *SQLiteStore) UpdateShiftRecord(ctx context.Context, r *model.ShiftRecord) error {
	r.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE shift_records SET worker_id = ?, runtime = ?, efficiency = ?, h1 = ?, h2 = ?,
		 worph = ?, meter = ?, total_pick = ?, notes = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		r.WorkerID, r.Runtime, r.Efficiency, r.H1, r.H2, r.Worph, r.Meter, r.TotalPick, r.Notes,
		r.UpdatedAt, r.TenantID, r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update shift record %s", r.ID)
	}
	return checkRowsAffected(res, "production record", r.ID)
}

func (s *SQLiteStore) DeleteShiftRecord(ctx context.Context, tenantID, id string) error {
	return s.deleteScoped(ctx, "shift_records", "production record", tenantID, id)
}

func (s *SQLiteStore) ListShiftRecords(ctx context.Context, tenantID string, filter model.ShiftFilter) ([]model.ShiftRecord, error) {
	query := `SELECT ` + shiftRecordColumns + ` FROM shift_records WHERE tenant_id = ?`
	args := []any{tenantID}

	if !filter.From.IsZero() {
		query += ` AND date >= ?`
		args = append(args, dateText(filter.From))
	}
	if !filter.To.IsZero() {
		query += ` AND date <= ?`
		args = append(args, dateText(filter.To))
	}
	if filter.MachineID != "" {
		query += ` AND machine_id = ?`
		args = append(args, filter.MachineID)
	}
	if filter.WorkerID != "" {
		query += ` AND worker_id = ?`
		args = append(args, filter.WorkerID)
	}
	if filter.Shift != "" {
		query += ` AND shift = ?`
		args = append(args, string(filter.Shift))
	}
	query += ` ORDER BY date DESC, shift, machine_id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list shift records")
	}
	defer rows.Close()

	var out []model.ShiftRecord
	for rows.Next() {
		r, err := scanShiftRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan shift record")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list shift records iterate")
}

// --- Daily settings ---

const sqliteDailySettingsUpsert = `
INSERT INTO daily_settings (` + dailySettingsColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (tenant_id, machine_id, date) DO UPDATE SET
	speed = excluded.speed,
	cfm = excluded.cfm,
	pik = excluded.pik,
	previous_reading = CASE WHEN excluded.current_reading IS NULL THEN daily_settings.previous_reading ELSE excluded.previous_reading END,
	current_reading = COALESCE(excluded.current_reading, daily_settings.current_reading),
	units_consumed = CASE WHEN excluded.current_reading IS NULL THEN daily_settings.units_consumed ELSE excluded.units_consumed END,
	created_by = excluded.created_by,
	updated_at = excluded.updated_at`

const sqliteDailySettingsPatch = `
INSERT INTO daily_settings (id, tenant_id, machine_id, date, speed, cfm, pik, created_at, updated_at)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?8)
ON CONFLICT (tenant_id, machine_id, date) DO UPDATE SET
	speed = CASE WHEN ?9 THEN excluded.speed ELSE daily_settings.speed END,
	cfm = CASE WHEN ?10 THEN excluded.cfm ELSE daily_settings.cfm END,
	pik = CASE WHEN ?11 THEN excluded.pik ELSE daily_settings.pik END,
	updated_at = excluded.updated_at`

func (s *SQLiteStore) UpsertDailySettings(ctx context.Context, d *model.DailySettings) error {
	now := time.Now().UTC()
	d.Date = model.NormalizeDate(d.Date)
	d.UpdatedAt = now

	if _, err := s.db.ExecContext(ctx, sqliteDailySettingsUpsert,
		uuid.New().String(), d.TenantID, d.MachineID, dateText(d.Date), d.Speed, d.CFM, d.Pik,
		d.PreviousReading, d.CurrentReading, d.UnitsConsumed, d.CreatedBy, now, now,
	); err != nil {
		return eris.Wrap(err, "sqlite: upsert daily settings")
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM daily_settings WHERE tenant_id = ? AND machine_id = ? AND date = ?`,
		d.TenantID, d.MachineID, dateText(d.Date),
	).Scan(&d.ID, &d.CreatedAt)
	return eris.Wrap(err, "sqlite: read upserted daily settings")
}

func (s *SQLiteStore) PatchDailySettings(ctx context.Context, tenantID, machineID string, date time.Time, p SettingsPatch) error {
	if p.Empty() {
		return nil
	}
	_, err := s.db.ExecContext(ctx, sqliteDailySettingsPatch,
		uuid.New().String(), tenantID, machineID, dateText(date),
		valueOrZero(p.Speed), valueOrZero(p.CFM), valueOrZero(p.Pik), time.Now().UTC(),
		p.Speed != nil, p.CFM != nil, p.Pik != nil,
	)
	return eris.Wrap(err, "sqlite: patch daily settings")
}

func (s *SQLiteStore) GetDailySettings(ctx context.Context, tenantID, machineID string, date time.Time) (*model.DailySettings, error) {
	d, err := scanDailySettings(s.db.QueryRowContext(ctx,
		`SELECT `+dailySettingsColumns+` FROM daily_settings WHERE tenant_id = ? AND machine_id = ? AND date = ?`,
		tenantID, machineID, dateText(date)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, eris.Wrap(err, "sqlite: get daily settings")
}

func (s *SQLiteStore) ListDailySettings(ctx context.Context, tenantID string, from, to time.Time) ([]model.DailySettings, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dailySettingsColumns+` FROM daily_settings
		 WHERE tenant_id = ? AND date >= ? AND date <= ? ORDER BY date, machine_id`,
		tenantID, dateText(from), dateText(to))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list daily settings")
	}
	defer rows.Close()

	var out []model.DailySettings
	for rows.Next() {
		d, err := scanDailySettings(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan daily settings")
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list daily settings iterate")
}

func (s *SQLiteStore) FindPriorDayReading(ctx context.Context, tenantID, machineID string, date time.Time) (*float64, error) {
	var reading sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT current_reading FROM daily_settings WHERE tenant_id = ? AND machine_id = ? AND date = ?`,
		tenantID, machineID, dateText(model.NormalizeDate(date).AddDate(0, 0, -1)),
	).Scan(&reading)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find prior day reading")
	}
	if !reading.Valid {
		return nil, nil
	}
	return &reading.Float64, nil
}

// --- Daily summaries ---

const sqliteDailySummaryUpsert = `
INSERT INTO daily_summaries (` + dailySummaryColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (tenant_id, date) DO UPDATE SET
	day_efficiency = excluded.day_efficiency,
	day_meter = excluded.day_meter,
	day_pick = excluded.day_pick,
	day_machine = excluded.day_machine,
	day_avg_runtime = excluded.day_avg_runtime,
	night_efficiency = excluded.night_efficiency,
	night_meter = excluded.night_meter,
	night_pick = excluded.night_pick,
	night_machine = excluded.night_machine,
	night_avg_runtime = excluded.night_avg_runtime,
	total_efficiency = excluded.total_efficiency,
	total_meter = excluded.total_meter,
	total_pick = excluded.total_pick,
	total_machine = excluded.total_machine,
	total_avg_runtime = excluded.total_avg_runtime,
	avg_cfm = excluded.avg_cfm,
	total_units_consumed = excluded.total_units_consumed,
	units_per_meter = excluded.units_per_meter,
	machines_reported = excluded.machines_reported,
	updated_at = excluded.updated_at`

func (s *SQLiteStore) UpsertDailySummary(ctx context.Context, sum *model.DailySummary) error {
	sum.Date = model.NormalizeDate(sum.Date)
	sum.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, sqliteDailySummaryUpsert, summaryArgs(sum, dateText(sum.Date))...)
	return eris.Wrap(err, "sqlite: upsert daily summary")
}

func (s *SQLiteStore) GetDailySummary(ctx context.Context, tenantID string, date time.Time) (*model.DailySummary, error) {
	sum, err := scanDailySummary(s.db.QueryRowContext(ctx,
		`SELECT `+dailySummaryColumns+` FROM daily_summaries WHERE tenant_id = ? AND date = ?`,
		tenantID, dateText(date)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sum, eris.Wrap(err, "sqlite: get daily summary")
}

func (s *SQLiteStore) ListDailySummaries(ctx context.Context, tenantID string, from, to time.Time) ([]model.DailySummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dailySummaryColumns+` FROM daily_summaries
		 WHERE tenant_id = ? AND date >= ? AND date <= ? ORDER BY date`,
		tenantID, dateText(from), dateText(to))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list daily summaries")
	}
	defer rows.Close()

	var out []model.DailySummary
	for rows.Next() {
		sum, err := scanDailySummary(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan daily summary")
		}
		out = append(out, *sum)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list daily summaries iterate")
}

// --- Templates ---

func (s *SQLiteStore) CreateTemplate(ctx context.Context, t *model.Template) error {
	now := time.Now().UTC()
	t.ID = uuid.New().String()
	t.CreatedAt, t.UpdatedAt = now, now

	mappings, err := marshalMappings(t.FieldMappings)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal field mappings")
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if t.IsDefault {
			if _, err := tx.ExecContext(ctx,
				`UPDATE templates SET is_default = 0, updated_at = ? WHERE tenant_id = ? AND is_default`,
				now, t.TenantID); err != nil {
				return eris.Wrap(err, "sqlite: clear default template")
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO templates (`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.TenantID, t.Name, t.Description, t.MachineDisplayType, t.SampleImageURL,
			string(mappings), t.IsDefault, t.IsActive, t.CreatedBy, now, now,
		)
		return err
	})
	if isSQLiteUnique(err) {
		return templateConflict(t.Name, isDefaultTemplateClash(err))
	}
	return eris.Wrap(err, "sqlite: insert template")
}

func (s *SQLiteStore) UpdateTemplate(ctx context.Context, t *model.Template) error {
	now := time.Now().UTC()
	t.UpdatedAt = now

	mappings, err := marshalMappings(t.FieldMappings)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal field mappings")
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if t.IsDefault {
			if _, err := tx.ExecContext(ctx,
				`UPDATE templates SET is_default = 0, updated_at = ? WHERE tenant_id = ? AND is_default AND id <> ?`,
				now, t.TenantID, t.ID); err != nil {
				return eris.Wrap(err, "sqlite: clear default template")
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE templates SET name = ?, description = ?, machine_display_type = ?, sample_image_url = ?,
			 field_mappings = ?, is_default = ?, is_active = ?, updated_at = ?
			 WHERE tenant_id = ? AND id = ?`,
			t.Name, t.Description, t.MachineDisplayType, t.SampleImageURL,
			string(mappings), t.IsDefault, t.IsActive, now, t.TenantID, t.ID,
		)
		if err != nil {
			return err
		}
		return checkRowsAffected(res, "template", t.ID)
	})
	if isSQLiteUnique(err) {
		return templateConflict(t.Name, isDefaultTemplateClash(err))
	}
	if apperr.Is(err, apperr.KindNotFound) {
		return err
	}
	return eris.Wrapf(err, "sqlite: update template %s", t.ID)
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, tenantID, id string) (*model.Template, error) {
	t, err := scanTemplate(s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE tenant_id = ? AND id = ?`, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("template", id)
	}
	return t, eris.Wrapf(err, "sqlite: get template %s", id)
}

func (s *SQLiteStore) GetDefaultTemplate(ctx context.Context, tenantID string) (*model.Template, error) {
	t, err := scanTemplate(s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE tenant_id = ? AND is_default AND is_active`, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("default template", tenantID)
	}
	return t, eris.Wrap(err, "sqlite: get default template")
}

func (s *SQLiteStore) ListTemplates(ctx context.Context, tenantID string) ([]model.Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE tenant_id = ? AND is_active ORDER BY is_default DESC, created_at DESC`,
		tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list templates")
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan template")
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list templates iterate")
}

func (s *SQLiteStore) DeleteTemplate(ctx context.Context, tenantID, id string) error {
	return s.deleteScoped(ctx, "templates", "template", tenantID, id)
}

// --- Extraction records ---

func (s *SQLiteStore) CreateExtraction(ctx context.Context, r *model.ExtractionRecord) error {
	now := time.Now().UTC()
	r.ID = uuid.New().String()
	r.Date = model.NormalizeDate(r.Date)
	r.CreatedAt, r.UpdatedAt = now, now
	if r.Status == "" {
		r.Status = model.ExtractionPending
	}

	data, scores, err := marshalOutcomeMaps(r.ExtractedData, r.ConfidenceScores)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extraction")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extraction_records (`+extractionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TenantID, r.TemplateID, r.MachineID, string(r.Shift), dateText(r.Date), r.ImagePath, r.ImageSize,
		string(data), string(scores), r.OverallConfidence, string(r.Status), r.ProcessingError,
		r.ManuallyVerified, r.VerifiedBy, r.VerifiedAt, r.UploadedBy, now, now,
	)
	return eris.Wrap(err, "sqlite: insert extraction record")
}

func (s *SQLiteStore) GetExtraction(ctx context.Context, tenantID, id string) (*model.ExtractionRecord, error) {
	r, err := scanExtraction(s.db.QueryRowContext(ctx,
		`SELECT `+extractionColumns+` FROM extraction_records WHERE tenant_id = ? AND id = ?`, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("extraction record", id)
	}
	return r, eris.Wrapf(err, "sqlite: get extraction record %s", id)
}

func (s *SQLiteStore) ListExtractions(ctx context.Context, tenantID string, filter model.ExtractionFilter) ([]model.ExtractionRecord, error) {
	query := `SELECT ` + extractionColumns + ` FROM extraction_records WHERE tenant_id = ?`
	args := []any{tenantID}

	if !filter.Date.IsZero() {
		query += ` AND date = ?`
		args = append(args, dateText(filter.Date))
	}
	if filter.Shift != "" {
		query += ` AND shift = ?`
		args = append(args, string(filter.Shift))
	}
	if filter.MachineID != "" {
		query += ` AND machine_id = ?`
		args = append(args, filter.MachineID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, defaultLimit(filter.Limit, 50))

	return s.queryExtractions(ctx, "list extraction records", query, args...)
}

func (s *SQLiteStore) MarkExtractionProcessing(ctx context.Context, tenantID, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_records SET status = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status = ?`,
		string(model.ExtractionProcessing), time.Now().UTC(), tenantID, id, string(model.ExtractionPending),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: mark extraction processing %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) CompleteExtraction(ctx context.Context, tenantID, id string, out model.ExtractionOutcome) error {
	data, scores, err := marshalOutcomeMaps(out.ExtractedData, out.ConfidenceScores)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extraction outcome")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_records SET extracted_data = ?, confidence_scores = ?, overall_confidence = ?,
		 status = ?, processing_error = '', updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status = ?`,
		string(data), string(scores), out.OverallConfidence, string(out.Status), time.Now().UTC(),
		tenantID, id, string(model.ExtractionProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete extraction %s", id)
	}
	return transitionApplied(res, "sqlite: complete extraction", id)
}

func (s *SQLiteStore) FailExtraction(ctx context.Context, tenantID, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_records SET status = ?, processing_error = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status = ?`,
		string(model.ExtractionFailed), reason, time.Now().UTC(), tenantID, id, string(model.ExtractionProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail extraction %s", id)
	}
	return transitionApplied(res, "sqlite: fail extraction", id)
}

func (s *SQLiteStore) VerifyExtraction(ctx context.Context, tenantID, id, userID string, data map[string]string) (*model.ExtractionRecord, error) {
	raw, _, err := marshalOutcomeMaps(data, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal verified data")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_records SET extracted_data = ?, manually_verified = 1, verified_by = ?,
		 verified_at = ?, status = ?, processing_error = '', updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		string(raw), userID, now, string(model.ExtractionCompleted), now, tenantID, id)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: verify extraction %s", id)
	}
	if err := checkRowsAffected(res, "extraction record", id); err != nil {
		return nil, err
	}
	return s.GetExtraction(ctx, tenantID, id)
}

func (s *SQLiteStore) DeleteExtraction(ctx context.Context, tenantID, id string) error {
	return s.deleteScoped(ctx, "extraction_records", "extraction record", tenantID, id)
}

func (s *SQLiteStore) ListPendingExtractions(ctx context.Context, limit int) ([]model.ExtractionRecord, error) {
	return s.queryExtractions(ctx, "list pending extractions",
		`SELECT `+extractionColumns+` FROM extraction_records WHERE status = ? ORDER BY created_at, rowid LIMIT ?`,
		string(model.ExtractionPending), defaultLimit(limit, 100))
}

func (s *SQLiteStore) FailStaleExtractions(ctx context.Context, cutoff time.Time, reason string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_records SET status = ?, processing_error = ?, updated_at = ?
		 WHERE status = ? AND updated_at < ?`,
		string(model.ExtractionFailed), reason, time.Now().UTC(), string(model.ExtractionProcessing), cutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: fail stale extractions")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CountExtractionsByStatus(ctx context.Context) (map[model.ExtractionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM extraction_records GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count extractions")
	}
	defer rows.Close()

	out := make(map[model.ExtractionStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extraction count")
		}
		out[model.ExtractionStatus(status)] = n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: count extractions iterate")
}

func (s *SQLiteStore) queryExtractions(ctx context.Context, action, query string, args ...any) ([]model.ExtractionRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", action)
	}
	defer rows.Close()

	var out []model.ExtractionRecord
	for rows.Next() {
		r, err := scanExtraction(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extraction record")
		}
		out = append(out, *r)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: %s iterate", action)
}

// --- Worker name mappings ---

func (s *SQLiteStore) CreateNameMapping(ctx context.Context, m *model.WorkerNameMapping) error {
	now := time.Now().UTC()
	m.ID = uuid.New().String()
	m.CreatedAt, m.UpdatedAt = now, now

	aliases, err := marshalAliases(m.Aliases)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal aliases")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO worker_name_mappings (`+nameMappingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.TenantID, m.DisplayName, m.SystemName, m.WorkerID, string(aliases), m.IsActive, now, now,
	)
	if isSQLiteUnique(err) {
		return apperr.Conflict(fmt.Sprintf("display name %s already mapped", m.DisplayName))
	}
	return eris.Wrap(err, "sqlite: insert name mapping")
}

func (s *SQLiteStore) GetNameMapping(ctx context.Context, tenantID, id string) (*model.WorkerNameMapping, error) {
	m, err := scanNameMapping(s.db.QueryRowContext(ctx,
		`SELECT `+nameMappingColumns+` FROM worker_name_mappings WHERE tenant_id = ? AND id = ?`, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("worker name mapping", id)
	}
	return m, eris.Wrapf(err, "sqlite: get name mapping %s", id)
}

func (s *SQLiteStore) ListNameMappings(ctx context.Context, tenantID string, activeOnly bool) ([]model.WorkerNameMapping, error) {
	query := `SELECT ` + nameMappingColumns + ` FROM worker_name_mappings WHERE tenant_id = ?`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY display_name`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list name mappings")
	}
	defer rows.Close()

	var out []model.WorkerNameMapping
	for rows.Next() {
		m, err := scanNameMapping(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan name mapping")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list name mappings iterate")
}

func (s *SQLiteStore) UpdateNameMapping(ctx context.Context, m *model.WorkerNameMapping) error {
	m.UpdatedAt = time.Now().UTC()
	aliases, err := marshalAliases(m.Aliases)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal aliases")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE worker_name_mappings SET display_name = ?, system_name = ?, worker_id = ?, aliases = ?,
		 is_active = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		m.DisplayName, m.SystemName, m.WorkerID, string(aliases), m.IsActive, m.UpdatedAt, m.TenantID, m.ID,
	)
	if isSQLiteUnique(err) {
		return apperr.Conflict(fmt.Sprintf("display name %s already mapped", m.DisplayName))
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: update name mapping %s", m.ID)
	}
	return checkRowsAffected(res, "worker name mapping", m.ID)
}

func (s *SQLiteStore) DeleteNameMapping(ctx context.Context, tenantID, id string) error {
	return s.deleteScoped(ctx, "worker_name_mappings", "worker name mapping", tenantID, id)
}

// helpers

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// deleteScoped deletes one tenant-owned row by id. table is always a
// package constant.
func (s *SQLiteStore) deleteScoped(ctx context.Context, table, entity, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete %s %s", entity, id)
	}
	return checkRowsAffected(res, entity, id)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return apperr.NotFound(entity, id)
	}
	return nil
}

func transitionApplied(res sql.Result, action, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrInvalidTransition, "%s %s", action, id)
	}
	return nil
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return strings.Contains(se.Error(), "UNIQUE constraint failed")
}

// isDefaultTemplateClash tells the one-default index apart from the name
// constraint. SQLite reports columns, not index names: the default index
// covers tenant_id alone.
func isDefaultTemplateClash(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "templates.tenant_id") && !strings.Contains(msg, "templates.name")
}

func dateText(t time.Time) string {
	return model.NormalizeDate(t).Format(model.DateLayout)
}
