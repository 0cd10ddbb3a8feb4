package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/db"
	"github.com/sells-group/loomtrack/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS machines (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	machine_number TEXT NOT NULL,
	machine_type   TEXT NOT NULL DEFAULT 'single' CHECK (machine_type IN ('single', 'double')),
	description    TEXT NOT NULL DEFAULT '',
	is_active      BOOLEAN NOT NULL DEFAULT true,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, machine_number)
);

CREATE TABLE IF NOT EXISTS workers (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	name           TEXT NOT NULL,
	aadhaar_number TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	is_active      BOOLEAN NOT NULL DEFAULT true,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_workers_tenant ON workers(tenant_id);

CREATE TABLE IF NOT EXISTS shift_records (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	machine_id  TEXT NOT NULL,
	worker_id   TEXT NOT NULL,
	date        DATE NOT NULL,
	shift       TEXT NOT NULL CHECK (shift IN ('day', 'night')),
	runtime     DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (runtime >= 0),
	efficiency  DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (efficiency >= 0 AND efficiency <= 100),
	h1          DOUBLE PRECISION NOT NULL DEFAULT 0,
	h2          DOUBLE PRECISION NOT NULL DEFAULT 0,
	worph       DOUBLE PRECISION NOT NULL DEFAULT 0,
	meter       DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_pick  DOUBLE PRECISION NOT NULL DEFAULT 0,
	notes       TEXT NOT NULL DEFAULT '',
	created_by  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, machine_id, date, shift)
);

CREATE INDEX IF NOT EXISTS idx_shift_records_tenant_date ON shift_records(tenant_id, date);
CREATE INDEX IF NOT EXISTS idx_shift_records_worker ON shift_records(tenant_id, worker_id, date);

CREATE TABLE IF NOT EXISTS daily_settings (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	machine_id       TEXT NOT NULL,
	date             DATE NOT NULL,
	speed            DOUBLE PRECISION NOT NULL DEFAULT 0,
	cfm              DOUBLE PRECISION NOT NULL DEFAULT 0,
	pik              DOUBLE PRECISION NOT NULL DEFAULT 0,
	previous_reading DOUBLE PRECISION,
	current_reading  DOUBLE PRECISION,
	units_consumed   DOUBLE PRECISION,
	created_by       TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, machine_id, date)
);

CREATE INDEX IF NOT EXISTS idx_daily_settings_tenant_date ON daily_settings(tenant_id, date);

CREATE TABLE IF NOT EXISTS daily_summaries (
	tenant_id            TEXT NOT NULL,
	date                 DATE NOT NULL,
	day_efficiency       DOUBLE PRECISION NOT NULL DEFAULT 0,
	day_meter            DOUBLE PRECISION NOT NULL DEFAULT 0,
	day_pick             DOUBLE PRECISION NOT NULL DEFAULT 0,
	day_machine          DOUBLE PRECISION NOT NULL DEFAULT 0,
	day_avg_runtime      DOUBLE PRECISION NOT NULL DEFAULT 0,
	night_efficiency     DOUBLE PRECISION NOT NULL DEFAULT 0,
	night_meter          DOUBLE PRECISION NOT NULL DEFAULT 0,
	night_pick           DOUBLE PRECISION NOT NULL DEFAULT 0,
	night_machine        DOUBLE PRECISION NOT NULL DEFAULT 0,
	night_avg_runtime    DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_efficiency     DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_meter          DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_pick           DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_machine        DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_avg_runtime    DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_cfm              DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_units_consumed DOUBLE PRECISION NOT NULL DEFAULT 0,
	units_per_meter      DOUBLE PRECISION NOT NULL DEFAULT 0,
	machines_reported    INTEGER NOT NULL DEFAULT 0,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, date)
);

CREATE TABLE IF NOT EXISTS templates (
	id                   TEXT PRIMARY KEY,
	tenant_id            TEXT NOT NULL,
	name                 TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	machine_display_type TEXT NOT NULL DEFAULT '',
	sample_image_url     TEXT NOT NULL DEFAULT '',
	field_mappings       JSONB NOT NULL DEFAULT '[]',
	is_default           BOOLEAN NOT NULL DEFAULT false,
	is_active            BOOLEAN NOT NULL DEFAULT true,
	created_by           TEXT NOT NULL DEFAULT '',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, name)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_one_default ON templates(tenant_id) WHERE is_default;

CREATE TABLE IF NOT EXISTS extraction_records (
	id                 TEXT PRIMARY KEY,
	tenant_id          TEXT NOT NULL,
	template_id        TEXT NOT NULL,
	machine_id         TEXT NOT NULL,
	shift              TEXT NOT NULL CHECK (shift IN ('day', 'night')),
	date               DATE NOT NULL,
	image_path         TEXT NOT NULL,
	image_size         BIGINT NOT NULL DEFAULT 0,
	extracted_data     JSONB NOT NULL DEFAULT '{}',
	confidence_scores  JSONB NOT NULL DEFAULT '{}',
	overall_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	status             TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending', 'processing', 'completed', 'manual_review', 'failed')),
	processing_error   TEXT NOT NULL DEFAULT '',
	manually_verified  BOOLEAN NOT NULL DEFAULT false,
	verified_by        TEXT NOT NULL DEFAULT '',
	verified_at        TIMESTAMPTZ,
	uploaded_by        TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_extraction_records_tenant_created ON extraction_records(tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_extraction_records_status ON extraction_records(status, created_at);

CREATE TABLE IF NOT EXISTS worker_name_mappings (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	display_name TEXT NOT NULL,
	system_name  TEXT NOT NULL,
	worker_id    TEXT NOT NULL DEFAULT '',
	aliases      JSONB NOT NULL DEFAULT '[]',
	is_active    BOOLEAN NOT NULL DEFAULT true,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, display_name)
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Machines ---

const machineColumns = `id, tenant_id, machine_number, machine_type, description, is_active, created_at, updated_at`

func (s *PostgresStore) CreateMachine(ctx context.Context, m *model.Machine) error {
	now := time.Now().UTC()
	m.ID = uuid.New().String()
	m.CreatedAt, m.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO machines (`+machineColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.TenantID, m.MachineNumber, string(m.Type), m.Description, m.IsActive, now, now,
	)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict(fmt.Sprintf("machine number %s already exists", m.MachineNumber))
	}
	return eris.Wrap(err, "postgres: insert machine")
}

func (s *PostgresStore) GetMachine(ctx context.Context, tenantID, id string) (*model.Machine, error) {
	m, err := scanMachine(s.pool.QueryRow(ctx,
		`SELECT `+machineColumns+` FROM machines WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("machine", id)
	}
	return m, eris.Wrapf(err, "postgres: get machine %s", id)
}

func (s *PostgresStore) ListMachines(ctx context.Context, tenantID string) ([]model.Machine, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+machineColumns+` FROM machines WHERE tenant_id = $1 ORDER BY machine_number`, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list machines")
	}
	defer rows.Close()

	var out []model.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan machine")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list machines iterate")
}

func (s *PostgresStore) UpdateMachine(ctx context.Context, m *model.Machine) error {
	m.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE machines SET machine_number = $1, machine_type = $2, description = $3, is_active = $4, updated_at = $5
		 WHERE tenant_id = $6 AND id = $7`,
		m.MachineNumber, string(m.Type), m.Description, m.IsActive, m.UpdatedAt, m.TenantID, m.ID,
	)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict(fmt.Sprintf("machine number %s already exists", m.MachineNumber))
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: update machine %s", m.ID)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("machine", m.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteMachine(ctx context.Context, tenantID, id string) error {
	return s.deleteScoped(ctx, "machines", "machine", tenantID, id)
}

// --- Workers ---

const workerColumns = `id, tenant_id, name, aadhaar_number, phone, is_active, created_at, updated_at`

func (s *PostgresStore) CreateWorker(ctx context.Context, w *model.Worker) error {
	now := time.Now().UTC()
	w.ID = uuid.New().String()
	w.CreatedAt, w.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO workers (`+workerColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		w.ID, w.TenantID, w.Name, w.AadhaarNumber, w.Phone, w.IsActive, now, now,
	)
	return eris.Wrap(err, "postgres: insert worker")
}

func (s *PostgresStore) GetWorker(ctx context.Context, tenantID, id string) (*model.Worker, error) {
	w, err := scanWorker(s.pool.QueryRow(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("worker", id)
	}
	return w, eris.Wrapf(err, "postgres: get worker %s", id)
}

func (s *PostgresStore) ListWorkers(ctx context.Context, tenantID string) ([]model.Worker, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list workers")
	}
	defer rows.Close()

	var out []model.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan worker")
		}
		out = append(out, *w)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list workers iterate")
}

func (s *PostgresStore) UpdateWorker(ctx context.Context, w *model.Worker) error {
	w.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE workers SET name = $1, aadhaar_number = $2, phone = $3, is_active = $4, updated_at = $5
		 WHERE tenant_id = $6 AND id = $7`,
		w.Name, w.AadhaarNumber, w.Phone, w.IsActive, w.UpdatedAt, w.TenantID, w.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update worker %s", w.ID)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("worker", w.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteWorker(ctx context.Context, tenantID, id string) error {
	return s.deleteScoped(ctx, "workers", "worker", tenantID, id)
}

// --- Shift records ---

var shiftRecordUpsertSQL = db.MustUpsertSQL(db.UpsertConfig{
	Table: "shift_records",
	Columns: []string{"id", "tenant_id", "machine_id", "worker_id", "date", "shift", "runtime", "efficiency",
		"h1", "h2", "worph", "meter", "total_pick", "notes", "created_by", "created_at", "updated_at"},
	ConflictKeys: []string{"tenant_id", "machine_id", "date", "shift"},
	Preserve:     []string{"id", "created_at"},
	Returning:    []string{"id", "created_at"},
})

const shiftRecordColumns = `id, tenant_id, machine_id, worker_id, date, shift, runtime, efficiency,
	h1, h2, worph, meter, total_pick, notes, created_by, created_at, updated_at`

func (s *PostgresStore) UpsertShiftRecord(ctx context.Context, r *model.ShiftRecord) error {
	now := time.Now().UTC()
	r.Date = model.NormalizeDate(r.Date)
	r.UpdatedAt = now

	err := s.pool.QueryRow(ctx, shiftRecordUpsertSQL,
		uuid.New().String(), r.TenantID, r.MachineID, r.WorkerID, r.Date, string(r.Shift),
		r.Runtime, r.Efficiency, r.H1, r.H2, r.Worph, r.Meter, r.TotalPick,
		r.Notes, r.CreatedBy, now, now,
	).Scan(&r.ID, &r.CreatedAt)
	return eris.Wrap(err, "postgres: upsert shift record")
}

func (s *PostgresStore) GetShiftRecord(ctx context.Context, tenantID, id string) (*model.ShiftRecord, error) {
	r, err := scanShiftRecord(s.pool.QueryRow(ctx,
		`SELECT `+shiftRecordColumns+` FROM shift_records WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("production record", id)
	}
	return r, eris.Wrapf(err, "postgres: get shift record %s", id)
}

func (s *PostgresStore) UpdateShiftRecord(ctx context.Context, r *model.ShiftRecord) error {
	r.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE shift_records SET worker_id = $1, runtime = $2, efficiency = $3, h1 = $4, h2 = $5,
		 worph = $6, meter = $7, total_pick = $8, notes = $9, updated_at = $10
		 WHERE tenant_id = $11 AND id = $12`,
		r.WorkerID, r.Runtime, r.Efficiency, r.H1, r.H2, r.Worph, r.Meter, r.TotalPick, r.Notes,
		r.UpdatedAt, r.TenantID, r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update shift record %s", r.ID)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("production record", r.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteShiftRecord(ctx context.Context, tenantID, id string) error {
	return s.deleteScoped(ctx, "shift_records", "production record", tenantID, id)
}

func (s *PostgresStore) ListShiftRecords(ctx context.Context, tenantID string, filter model.ShiftFilter) ([]model.ShiftRecord, error) {
	query := `SELECT ` + shiftRecordColumns + ` FROM shift_records WHERE tenant_id = $1`
	args := []any{tenantID}
	argIdx := 2

	if !filter.From.IsZero() {
		query += fmt.Sprintf(` AND date >= $%d`, argIdx)
		args = append(args, model.NormalizeDate(filter.From))
		argIdx++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(` AND date <= $%d`, argIdx)
		args = append(args, model.NormalizeDate(filter.To))
		argIdx++
	}
	if filter.MachineID != "" {
		query += fmt.Sprintf(` AND machine_id = $%d`, argIdx)
		args = append(args, filter.MachineID)
		argIdx++
	}
	if filter.WorkerID != "" {
		query += fmt.Sprintf(` AND worker_id = $%d`, argIdx)
		args = append(args, filter.WorkerID)
		argIdx++
	}
	if filter.Shift != "" {
		query += fmt.Sprintf(` AND shift = $%d`, argIdx)
		args = append(args, string(filter.Shift))
		argIdx++
	}
	query += ` ORDER BY date DESC, shift, machine_id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list shift records")
	}
	defer rows.Close()

	var out []model.ShiftRecord
	for rows.Next() {
		r, err := scanShiftRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan shift record")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list shift records iterate")
}

// --- Daily settings ---

// The electricity group is replaced only when a current reading is supplied.
const dailySettingsUpsertSQL = `
INSERT INTO daily_settings (id, tenant_id, machine_id, date, speed, cfm, pik,
	previous_reading, current_reading, units_consumed, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (tenant_id, machine_id, date) DO UPDATE SET
	speed = EXCLUDED.speed,
	cfm = EXCLUDED.cfm,
	pik = EXCLUDED.pik,
	previous_reading = CASE WHEN EXCLUDED.current_reading IS NULL THEN daily_settings.previous_reading ELSE EXCLUDED.previous_reading END,
	current_reading = COALESCE(EXCLUDED.current_reading, daily_settings.current_reading),
	units_consumed = CASE WHEN EXCLUDED.current_reading IS NULL THEN daily_settings.units_consumed ELSE EXCLUDED.units_consumed END,
	created_by = EXCLUDED.created_by,
	updated_at = EXCLUDED.updated_at
RETURNING id, created_at`

// Flags $9..$11 select which of speed, cfm and pik the patch overwrites.
const dailySettingsPatchSQL = `
INSERT INTO daily_settings (id, tenant_id, machine_id, date, speed, cfm, pik, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (tenant_id, machine_id, date) DO UPDATE SET
	speed = CASE WHEN $9 THEN EXCLUDED.speed ELSE daily_settings.speed END,
	cfm = CASE WHEN $10 THEN EXCLUDED.cfm ELSE daily_settings.cfm END,
	pik = CASE WHEN $11 THEN EXCLUDED.pik ELSE daily_settings.pik END,
	updated_at = EXCLUDED.updated_at`

const dailySettingsColumns = `id, tenant_id, machine_id, date, speed, cfm, pik,
	previous_reading, current_reading, units_consumed, created_by, created_at, updated_at`

func (s *PostgresStore) UpsertDailySettings(ctx context.Context, d *model.DailySettings) error {
	now := time.Now().UTC()
	d.Date = model.NormalizeDate(d.Date)
	d.UpdatedAt = now

	err := s.pool.QueryRow(ctx, dailySettingsUpsertSQL,
		uuid.New().String(), d.TenantID, d.MachineID, d.Date, d.Speed, d.CFM, d.Pik,
		d.PreviousReading, d.CurrentReading, d.UnitsConsumed, d.CreatedBy, now, now,
	).Scan(&d.ID, &d.CreatedAt)
	return eris.Wrap(err, "postgres: upsert daily settings")
}

func (s *PostgresStore) PatchDailySettings(ctx context.Context, tenantID, machineID string, date time.Time, p SettingsPatch) error {
	if p.Empty() {
		return nil
	}
	_, err := s.pool.Exec(ctx, dailySettingsPatchSQL,
		uuid.New().String(), tenantID, machineID, model.NormalizeDate(date),
		valueOrZero(p.Speed), valueOrZero(p.CFM), valueOrZero(p.Pik), time.Now().UTC(),
		p.Speed != nil, p.CFM != nil, p.Pik != nil,
	)
	return eris.Wrap(err, "postgres: patch daily settings")
}

func (s *PostgresStore) GetDailySettings(ctx context.Context, tenantID, machineID string, date time.Time) (*model.DailySettings, error) {
	d, err := scanDailySettings(s.pool.QueryRow(ctx,
		`SELECT `+dailySettingsColumns+` FROM daily_settings WHERE tenant_id = $1 AND machine_id = $2 AND date = $3`,
		tenantID, machineID, model.NormalizeDate(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, eris.Wrap(err, "postgres: get daily settings")
}

func (s *PostgresStore) ListDailySettings(ctx context.Context, tenantID string, from, to time.Time) ([]model.DailySettings, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+dailySettingsColumns+` FROM daily_settings
		 WHERE tenant_id = $1 AND date >= $2 AND date <= $3 ORDER BY date, machine_id`,
		tenantID, model.NormalizeDate(from), model.NormalizeDate(to))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list daily settings")
	}
	defer rows.Close()

	var out []model.DailySettings
	for rows.Next() {
		d, err := scanDailySettings(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan daily settings")
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list daily settings iterate")
}

func (s *PostgresStore) FindPriorDayReading(ctx context.Context, tenantID, machineID string, date time.Time) (*float64, error) {
	var reading *float64
	err := s.pool.QueryRow(ctx,
		`SELECT current_reading FROM daily_settings WHERE tenant_id = $1 AND machine_id = $2 AND date = $3`,
		tenantID, machineID, model.NormalizeDate(date).AddDate(0, 0, -1),
	).Scan(&reading)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find prior day reading")
	}
	return reading, nil
}

// --- Daily summaries ---

var dailySummaryUpsertSQL = db.MustUpsertSQL(db.UpsertConfig{
	Table:        "daily_summaries",
	Columns:      dailySummaryColumnList,
	ConflictKeys: []string{"tenant_id", "date"},
})

var dailySummaryColumnList = []string{"tenant_id", "date",
	"day_efficiency", "day_meter", "day_pick", "day_machine", "day_avg_runtime",
	"night_efficiency", "night_meter", "night_pick", "night_machine", "night_avg_runtime",
	"total_efficiency", "total_meter", "total_pick", "total_machine", "total_avg_runtime",
	"avg_cfm", "total_units_consumed", "units_per_meter", "machines_reported", "updated_at"}

const dailySummaryColumns = `tenant_id, date,
	day_efficiency, day_meter, day_pick, day_machine, day_avg_runtime,
	night_efficiency, night_meter, night_pick, night_machine, night_avg_runtime,
	total_efficiency, total_meter, total_pick, total_machine, total_avg_runtime,
	avg_cfm, total_units_consumed, units_per_meter, machines_reported, updated_at`

func (s *PostgresStore) UpsertDailySummary(ctx context.Context, sum *model.DailySummary) error {
	sum.Date = model.NormalizeDate(sum.Date)
	sum.UpdatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, dailySummaryUpsertSQL, summaryArgs(sum, sum.Date)...)
	return eris.Wrap(err, "postgres: upsert daily summary")
}

func (s *PostgresStore) GetDailySummary(ctx context.Context, tenantID string, date time.Time) (*model.DailySummary, error) {
	sum, err := scanDailySummary(s.pool.QueryRow(ctx,
		`SELECT `+dailySummaryColumns+` FROM daily_summaries WHERE tenant_id = $1 AND date = $2`,
		tenantID, model.NormalizeDate(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sum, eris.Wrap(err, "postgres: get daily summary")
}

func (s *PostgresStore) ListDailySummaries(ctx context.Context, tenantID string, from, to time.Time) ([]model.DailySummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+dailySummaryColumns+` FROM daily_summaries
		 WHERE tenant_id = $1 AND date >= $2 AND date <= $3 ORDER BY date`,
		tenantID, model.NormalizeDate(from), model.NormalizeDate(to))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list daily summaries")
	}
	defer rows.Close()

	var out []model.DailySummary
	for rows.Next() {
		sum, err := scanDailySummary(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan daily summary")
		}
		out = append(out, *sum)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list daily summaries iterate")
}

// --- Templates ---

const templateColumns = `id, tenant_id, name, description, machine_display_type, sample_image_url,
	field_mappings, is_default, is_active, created_by, created_at, updated_at`

func (s *PostgresStore) CreateTemplate(ctx context.Context, t *model.Template) error {
	now := time.Now().UTC()
	t.ID = uuid.New().String()
	t.CreatedAt, t.UpdatedAt = now, now

	mappings, err := marshalMappings(t.FieldMappings)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal field mappings")
	}

	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if t.IsDefault {
			if _, err := tx.Exec(ctx,
				`UPDATE templates SET is_default = false, updated_at = $1 WHERE tenant_id = $2 AND is_default`,
				now, t.TenantID); err != nil {
				return eris.Wrap(err, "postgres: clear default template")
			}
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO templates (`+templateColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			t.ID, t.TenantID, t.Name, t.Description, t.MachineDisplayType, t.SampleImageURL,
			mappings, t.IsDefault, t.IsActive, t.CreatedBy, now, now,
		)
		return err
	})
	if c, ok := db.UniqueConstraint(err); ok {
		return templateConflict(t.Name, c == defaultTemplateIndex)
	}
	return eris.Wrap(err, "postgres: insert template")
}

func (s *PostgresStore) UpdateTemplate(ctx context.Context, t *model.Template) error {
	now := time.Now().UTC()
	t.UpdatedAt = now

	mappings, err := marshalMappings(t.FieldMappings)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal field mappings")
	}

	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if t.IsDefault {
			if _, err := tx.Exec(ctx,
				`UPDATE templates SET is_default = false, updated_at = $1 WHERE tenant_id = $2 AND is_default AND id <> $3`,
				now, t.TenantID, t.ID); err != nil {
				return eris.Wrap(err, "postgres: clear default template")
			}
		}
		tag, err := tx.Exec(ctx,
			`UPDATE templates SET name = $1, description = $2, machine_display_type = $3, sample_image_url = $4,
			 field_mappings = $5, is_default = $6, is_active = $7, updated_at = $8
			 WHERE tenant_id = $9 AND id = $10`,
			t.Name, t.Description, t.MachineDisplayType, t.SampleImageURL,
			mappings, t.IsDefault, t.IsActive, now, t.TenantID, t.ID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("template", t.ID)
		}
		return nil
	})
	if c, ok := db.UniqueConstraint(err); ok {
		return templateConflict(t.Name, c == defaultTemplateIndex)
	}
	if apperr.Is(err, apperr.KindNotFound) {
		return err
	}
	return eris.Wrapf(err, "postgres: update template %s", t.ID)
}

func (s *PostgresStore) GetTemplate(ctx context.Context, tenantID, id string) (*model.Template, error) {
	t, err := scanTemplate(s.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("template", id)
	}
	return t, eris.Wrapf(err, "postgres: get template %s", id)
}

func (s *PostgresStore) GetDefaultTemplate(ctx context.Context, tenantID string) (*model.Template, error) {
	t, err := scanTemplate(s.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE tenant_id = $1 AND is_default AND is_active`, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("default template", tenantID)
	}
	return t, eris.Wrap(err, "postgres: get default template")
}

func (s *PostgresStore) ListTemplates(ctx context.Context, tenantID string) ([]model.Template, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE tenant_id = $1 AND is_active ORDER BY is_default DESC, created_at DESC`,
		tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list templates")
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan template")
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list templates iterate")
}

func (s *PostgresStore) DeleteTemplate(ctx context.Context, tenantID, id string) error {
	return s.deleteScoped(ctx, "templates", "template", tenantID, id)
}

// --- Extraction records ---

const extractionColumns = `id, tenant_id, template_id, machine_id, shift, date, image_path, image_size,
	extracted_data, confidence_scores, overall_confidence, status, processing_error,
	manually_verified, verified_by, verified_at, uploaded_by, created_at, updated_at`

func (s *PostgresStore) CreateExtraction(ctx context.Context, r *model.ExtractionRecord) error {
	now := time.Now().UTC()
	r.ID = uuid.New().String()
	r.Date = model.NormalizeDate(r.Date)
	r.CreatedAt, r.UpdatedAt = now, now
	if r.Status == "" {
		r.Status = model.ExtractionPending
	}

	data, scores, err := marshalOutcomeMaps(r.ExtractedData, r.ConfidenceScores)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extraction")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO extraction_records (`+extractionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		r.ID, r.TenantID, r.TemplateID, r.MachineID, string(r.Shift), r.Date, r.ImagePath, r.ImageSize,
		data, scores, r.OverallConfidence, string(r.Status), r.ProcessingError,
		r.ManuallyVerified, r.VerifiedBy, r.VerifiedAt, r.UploadedBy, now, now,
	)
	return eris.Wrap(err, "postgres: insert extraction record")
}

func (s *PostgresStore) GetExtraction(ctx context.Context, tenantID, id string) (*model.ExtractionRecord, error) {
	r, err := scanExtraction(s.pool.QueryRow(ctx,
		`SELECT `+extractionColumns+` FROM extraction_records WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("extraction record", id)
	}
	return r, eris.Wrapf(err, "postgres: get extraction record %s", id)
}

func (s *PostgresStore) ListExtractions(ctx context.Context, tenantID string, filter model.ExtractionFilter) ([]model.ExtractionRecord, error) {
	query := `SELECT ` + extractionColumns + ` FROM extraction_records WHERE tenant_id = $1`
	args := []any{tenantID}
	argIdx := 2

	if !filter.Date.IsZero() {
		query += fmt.Sprintf(` AND date = $%d`, argIdx)
		args = append(args, model.NormalizeDate(filter.Date))
		argIdx++
	}
	if filter.Shift != "" {
		query += fmt.Sprintf(` AND shift = $%d`, argIdx)
		args = append(args, string(filter.Shift))
		argIdx++
	}
	if filter.MachineID != "" {
		query += fmt.Sprintf(` AND machine_id = $%d`, argIdx)
		args = append(args, filter.MachineID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, defaultLimit(filter.Limit, 50))

	return s.queryExtractions(ctx, "list extraction records", query, args...)
}

func (s *PostgresStore) MarkExtractionProcessing(ctx context.Context, tenantID, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_records SET status = $1, updated_at = $2
		 WHERE tenant_id = $3 AND id = $4 AND status = $5`,
		string(model.ExtractionProcessing), time.Now().UTC(), tenantID, id, string(model.ExtractionPending),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark extraction processing %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) CompleteExtraction(ctx context.Context, tenantID, id string, out model.ExtractionOutcome) error {
	data, scores, err := marshalOutcomeMaps(out.ExtractedData, out.ConfidenceScores)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extraction outcome")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_records SET extracted_data = $1, confidence_scores = $2, overall_confidence = $3,
		 status = $4, processing_error = '', updated_at = $5
		 WHERE tenant_id = $6 AND id = $7 AND status = $8`,
		data, scores, out.OverallConfidence, string(out.Status), time.Now().UTC(),
		tenantID, id, string(model.ExtractionProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete extraction %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrInvalidTransition, "postgres: complete extraction %s", id)
	}
	return nil
}

func (s *PostgresStore) FailExtraction(ctx context.Context, tenantID, id, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_records SET status = $1, processing_error = $2, updated_at = $3
		 WHERE tenant_id = $4 AND id = $5 AND status = $6`,
		string(model.ExtractionFailed), reason, time.Now().UTC(), tenantID, id, string(model.ExtractionProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail extraction %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrInvalidTransition, "postgres: fail extraction %s", id)
	}
	return nil
}

func (s *PostgresStore) VerifyExtraction(ctx context.Context, tenantID, id, userID string, data map[string]string) (*model.ExtractionRecord, error) {
	raw, _, err := marshalOutcomeMaps(data, nil)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal verified data")
	}
	now := time.Now().UTC()
	r, err := scanExtraction(s.pool.QueryRow(ctx,
		`UPDATE extraction_records SET extracted_data = $1, manually_verified = true, verified_by = $2,
		 verified_at = $3, status = $4, processing_error = '', updated_at = $3
		 WHERE tenant_id = $5 AND id = $6
		 RETURNING `+extractionColumns,
		raw, userID, now, string(model.ExtractionCompleted), tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("extraction record", id)
	}
	return r, eris.Wrapf(err, "postgres: verify extraction %s", id)
}

func (s *PostgresStore) DeleteExtraction(ctx context.Context, tenantID, id string) error {
	return s.deleteScoped(ctx, "extraction_records", "extraction record", tenantID, id)
}

func (s *PostgresStore) ListPendingExtractions(ctx context.Context, limit int) ([]model.ExtractionRecord, error) {
	return s.queryExtractions(ctx, "list pending extractions",
		`SELECT `+extractionColumns+` FROM extraction_records WHERE status = $1 ORDER BY created_at LIMIT $2`,
		string(model.ExtractionPending), defaultLimit(limit, 100))
}

func (s *PostgresStore) FailStaleExtractions(ctx context.Context, cutoff time.Time, reason string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_records SET status = $1, processing_error = $2, updated_at = $3
		 WHERE status = $4 AND updated_at < $5`,
		string(model.ExtractionFailed), reason, time.Now().UTC(), string(model.ExtractionProcessing), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: fail stale extractions")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountExtractionsByStatus(ctx context.Context) (map[model.ExtractionStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM extraction_records GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count extractions")
	}
	defer rows.Close()

	out := make(map[model.ExtractionStatus]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan extraction count")
		}
		out[model.ExtractionStatus(status)] = int(n)
	}
	return out, eris.Wrap(rows.Err(), "postgres: count extractions iterate")
}

func (s *PostgresStore) queryExtractions(ctx context.Context, action, query string, args ...any) ([]model.ExtractionRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", action)
	}
	defer rows.Close()

	var out []model.ExtractionRecord
	for rows.Next() {
		r, err := scanExtraction(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan extraction record")
		}
		out = append(out, *r)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: %s iterate", action)
}

// --- Worker name mappings ---

const nameMappingColumns = `id, tenant_id, display_name, system_name, worker_id, aliases, is_active, created_at, updated_at`

func (s *PostgresStore) CreateNameMapping(ctx context.Context, m *model.WorkerNameMapping) error {
	now := time.Now().UTC()
	m.ID = uuid.New().String()
	m.CreatedAt, m.UpdatedAt = now, now

	aliases, err := marshalAliases(m.Aliases)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal aliases")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO worker_name_mappings (`+nameMappingColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.TenantID, m.DisplayName, m.SystemName, m.WorkerID, aliases, m.IsActive, now, now,
	)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict(fmt.Sprintf("display name %s already mapped", m.DisplayName))
	}
	return eris.Wrap(err, "postgres: insert name mapping")
}

func (s *PostgresStore) GetNameMapping(ctx context.Context, tenantID, id string) (*model.WorkerNameMapping, error) {
	m, err := scanNameMapping(s.pool.QueryRow(ctx,
		`SELECT `+nameMappingColumns+` FROM worker_name_mappings WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("worker name mapping", id)
	}
	return m, eris.Wrapf(err, "postgres: get name mapping %s", id)
}

func (s *PostgresStore) ListNameMappings(ctx context.Context, tenantID string, activeOnly bool) ([]model.WorkerNameMapping, error) {
	query := `SELECT ` + nameMappingColumns + ` FROM worker_name_mappings WHERE tenant_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY display_name`

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list name mappings")
	}
	defer rows.Close()

	var out []model.WorkerNameMapping
	for rows.Next() {
		m, err := scanNameMapping(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan name mapping")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list name mappings iterate")
}

func (s *PostgresStore) UpdateNameMapping(ctx context.Context, m *model.WorkerNameMapping) error {
	m.UpdatedAt = time.Now().UTC()
	aliases, err := marshalAliases(m.Aliases)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal aliases")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE worker_name_mappings SET display_name = $1, system_name = $2, worker_id = $3, aliases = $4,
		 is_active = $5, updated_at = $6 WHERE tenant_id = $7 AND id = $8`,
		m.DisplayName, m.SystemName, m.WorkerID, aliases, m.IsActive, m.UpdatedAt, m.TenantID, m.ID,
	)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict(fmt.Sprintf("display name %s already mapped", m.DisplayName))
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: update name mapping %s", m.ID)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("worker name mapping", m.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteNameMapping(ctx context.Context, tenantID, id string) error {
	return s.deleteScoped(ctx, "worker_name_mappings", "worker name mapping", tenantID, id)
}

// deleteScoped deletes one tenant-owned row by id. table is always a
// package constant.
func (s *PostgresStore) deleteScoped(ctx context.Context, table, entity, tenantID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+pgx.Identifier{table}.Sanitize()+` WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete %s %s", entity, id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(entity, id)
	}
	return nil
}
