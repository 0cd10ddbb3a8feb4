package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func ptr(v float64) *float64 { return &v }

var testDate = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, func(t *testing.T) Store { return newTestSQLiteStore(t) })
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("MachineCRUD", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m := &model.Machine{TenantID: "t1", MachineNumber: "L-01", Type: model.MachineDouble, IsActive: true}
		require.NoError(t, s.CreateMachine(ctx, m))
		assert.NotEmpty(t, m.ID)

		got, err := s.GetMachine(ctx, "t1", m.ID)
		require.NoError(t, err)
		assert.Equal(t, "L-01", got.MachineNumber)
		assert.Equal(t, model.MachineDouble, got.Type)
		assert.True(t, got.IsActive)

		got.Description = "Rapier loom"
		require.NoError(t, s.UpdateMachine(ctx, got))

		list, err := s.ListMachines(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Rapier loom", list[0].Description)

		require.NoError(t, s.DeleteMachine(ctx, "t1", m.ID))
		_, err = s.GetMachine(ctx, "t1", m.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("MachineNumberConflict", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.CreateMachine(ctx, &model.Machine{TenantID: "t1", MachineNumber: "L-01", Type: model.MachineSingle}))
		err := s.CreateMachine(ctx, &model.Machine{TenantID: "t1", MachineNumber: "L-01", Type: model.MachineSingle})
		assert.True(t, apperr.Is(err, apperr.KindConflict))

		// Same number in another tenant is fine.
		require.NoError(t, s.CreateMachine(ctx, &model.Machine{TenantID: "t2", MachineNumber: "L-01", Type: model.MachineSingle}))
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m := &model.Machine{TenantID: "t1", MachineNumber: "L-01", Type: model.MachineSingle, IsActive: true}
		require.NoError(t, s.CreateMachine(ctx, m))
		w := &model.Worker{TenantID: "t1", Name: "Ravi", IsActive: true}
		require.NoError(t, s.CreateWorker(ctx, w))

		_, err := s.GetMachine(ctx, "t2", m.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
		_, err = s.GetWorker(ctx, "t2", w.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))

		r := &model.ShiftRecord{TenantID: "t1", MachineID: m.ID, WorkerID: w.ID, Date: testDate, Shift: model.ShiftDay, Meter: 10}
		require.NoError(t, s.UpsertShiftRecord(ctx, r))

		other, err := s.ListShiftRecords(ctx, "t2", model.ShiftFilter{})
		require.NoError(t, err)
		assert.Empty(t, other)
		err = s.DeleteShiftRecord(ctx, "t2", r.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("WorkerCRUD", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		w := &model.Worker{TenantID: "t1", Name: "Ravi", Phone: "98450", IsActive: true}
		require.NoError(t, s.CreateWorker(ctx, w))
		w.Name = "Ravi K"
		require.NoError(t, s.UpdateWorker(ctx, w))

		got, err := s.GetWorker(ctx, "t1", w.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ravi K", got.Name)

		list, err := s.ListWorkers(ctx, "t1")
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, s.DeleteWorker(ctx, "t1", w.ID))
		err = s.UpdateWorker(ctx, w)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("ShiftRecordUpsertDedup", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := &model.ShiftRecord{TenantID: "t1", MachineID: "m1", WorkerID: "w1", Date: testDate.Add(7 * time.Hour),
			Shift: model.ShiftDay, Meter: 100, Efficiency: 80}
		require.NoError(t, s.UpsertShiftRecord(ctx, first))

		second := &model.ShiftRecord{TenantID: "t1", MachineID: "m1", WorkerID: "w2", Date: testDate,
			Shift: model.ShiftDay, Meter: 150, Efficiency: 85}
		require.NoError(t, s.UpsertShiftRecord(ctx, second))
		assert.Equal(t, first.ID, second.ID)

		list, err := s.ListShiftRecords(ctx, "t1", model.ShiftFilter{From: testDate, To: testDate})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, 150.0, list[0].Meter)
		assert.Equal(t, "w2", list[0].WorkerID)
		assert.Equal(t, testDate, list[0].Date)

		night := &model.ShiftRecord{TenantID: "t1", MachineID: "m1", WorkerID: "w1", Date: testDate, Shift: model.ShiftNight}
		require.NoError(t, s.UpsertShiftRecord(ctx, night))
		assert.NotEqual(t, first.ID, night.ID)

		nights, err := s.ListShiftRecords(ctx, "t1", model.ShiftFilter{Shift: model.ShiftNight})
		require.NoError(t, err)
		assert.Len(t, nights, 1)
	})

	t.Run("ShiftRecordUpdateAndFilter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i, day := range []time.Time{testDate, testDate.AddDate(0, 0, 1), testDate.AddDate(0, 0, 2)} {
			r := &model.ShiftRecord{TenantID: "t1", MachineID: "m1", WorkerID: "w1", Date: day, Shift: model.ShiftDay, Meter: float64(i)}
			require.NoError(t, s.UpsertShiftRecord(ctx, r))
		}

		list, err := s.ListShiftRecords(ctx, "t1", model.ShiftFilter{From: testDate.AddDate(0, 0, 1), WorkerID: "w1"})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.True(t, list[0].Date.After(list[1].Date), "newest first")

		rec := list[0]
		rec.Notes = "warp break"
		rec.Meter = 99
		require.NoError(t, s.UpdateShiftRecord(ctx, &rec))

		got, err := s.GetShiftRecord(ctx, "t1", rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "warp break", got.Notes)
		assert.Equal(t, 99.0, got.Meter)
	})

	t.Run("DailySettingsElectricityPreserved", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		withReading := &model.DailySettings{TenantID: "t1", MachineID: "m1", Date: testDate, Speed: 500,
			PreviousReading: ptr(100), CurrentReading: ptr(150), UnitsConsumed: ptr(50)}
		require.NoError(t, s.UpsertDailySettings(ctx, withReading))

		noReading := &model.DailySettings{TenantID: "t1", MachineID: "m1", Date: testDate, Speed: 550, CFM: 12}
		require.NoError(t, s.UpsertDailySettings(ctx, noReading))
		assert.Equal(t, withReading.ID, noReading.ID)

		got, err := s.GetDailySettings(ctx, "t1", "m1", testDate)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 550.0, got.Speed)
		assert.Equal(t, 12.0, got.CFM)
		require.NotNil(t, got.CurrentReading)
		assert.Equal(t, 150.0, *got.CurrentReading)
		assert.Equal(t, 50.0, got.Units())
	})

	t.Run("DailySettingsPatch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.UpsertDailySettings(ctx, &model.DailySettings{TenantID: "t1", MachineID: "m1", Date: testDate, Speed: 500, CFM: 10, Pik: 40}))
		require.NoError(t, s.PatchDailySettings(ctx, "t1", "m1", testDate, SettingsPatch{CFM: ptr(14)}))

		got, err := s.GetDailySettings(ctx, "t1", "m1", testDate)
		require.NoError(t, err)
		assert.Equal(t, 500.0, got.Speed)
		assert.Equal(t, 14.0, got.CFM)
		assert.Equal(t, 40.0, got.Pik)

		// Patch on a missing day creates the row.
		require.NoError(t, s.PatchDailySettings(ctx, "t1", "m2", testDate, SettingsPatch{Speed: ptr(480)}))
		got, err = s.GetDailySettings(ctx, "t1", "m2", testDate)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 480.0, got.Speed)
		assert.Nil(t, got.CurrentReading)

		require.NoError(t, s.PatchDailySettings(ctx, "t1", "m3", testDate, SettingsPatch{}))
		got, err = s.GetDailySettings(ctx, "t1", "m3", testDate)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("FindPriorDayReading", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		reading, err := s.FindPriorDayReading(ctx, "t1", "m1", testDate)
		require.NoError(t, err)
		assert.Nil(t, reading)

		require.NoError(t, s.UpsertDailySettings(ctx, &model.DailySettings{TenantID: "t1", MachineID: "m1",
			Date: testDate.AddDate(0, 0, -1), CurrentReading: ptr(180)}))

		reading, err = s.FindPriorDayReading(ctx, "t1", "m1", testDate)
		require.NoError(t, err)
		require.NotNil(t, reading)
		assert.Equal(t, 180.0, *reading)

		// Two days back is not the prior day.
		reading, err = s.FindPriorDayReading(ctx, "t1", "m1", testDate.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Nil(t, reading)
	})

	t.Run("DailySummaryUpsert", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		missing, err := s.GetDailySummary(ctx, "t1", testDate)
		require.NoError(t, err)
		assert.Nil(t, missing)

		sum := &model.DailySummary{TenantID: "t1", Date: testDate,
			Day:   model.ShiftTotals{Efficiency: 80, Meter: 200, Machine: 1},
			Night: model.ShiftTotals{Efficiency: 60, Meter: 100, Machine: 1},
			Total: model.ShiftTotals{Efficiency: 70, Meter: 300, Machine: 1}, MachinesReported: 2}
		require.NoError(t, s.UpsertDailySummary(ctx, sum))
		sum.Total.Meter = 320
		require.NoError(t, s.UpsertDailySummary(ctx, sum))

		got, err := s.GetDailySummary(ctx, "t1", testDate)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 320.0, got.Total.Meter)
		assert.Equal(t, 70.0, got.Total.Efficiency)
		assert.Equal(t, 2, got.MachinesReported)
		assert.Equal(t, testDate, got.Date)

		list, err := s.ListDailySummaries(ctx, "t1", testDate.AddDate(0, 0, -3), testDate)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("TemplateSingleDefault", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := &model.Template{TenantID: "t1", Name: "A", IsDefault: true, IsActive: true,
			FieldMappings: []model.FieldMapping{{FieldName: model.FieldSpeed, Box: model.Box{X: 1, Y: 2, Width: 3, Height: 4}, PreprocessingHint: model.HintNumber}}}
		require.NoError(t, s.CreateTemplate(ctx, a))
		b := &model.Template{TenantID: "t1", Name: "B", IsDefault: true, IsActive: true}
		require.NoError(t, s.CreateTemplate(ctx, b))

		def, err := s.GetDefaultTemplate(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, b.ID, def.ID)

		gotA, err := s.GetTemplate(ctx, "t1", a.ID)
		require.NoError(t, err)
		assert.False(t, gotA.IsDefault)
		require.Len(t, gotA.FieldMappings, 1)
		assert.Equal(t, model.HintNumber, gotA.FieldMappings[0].PreprocessingHint)

		gotA.IsDefault = true
		require.NoError(t, s.UpdateTemplate(ctx, gotA))
		def, err = s.GetDefaultTemplate(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, a.ID, def.ID)

		list, err := s.ListTemplates(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, a.ID, list[0].ID, "default first")

		_, err = s.GetDefaultTemplate(ctx, "t2")
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("TemplateNameConflict", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.CreateTemplate(ctx, &model.Template{TenantID: "t1", Name: "Panel", IsActive: true}))
		err := s.CreateTemplate(ctx, &model.Template{TenantID: "t1", Name: "Panel", IsActive: true})
		assert.True(t, apperr.Is(err, apperr.KindConflict))

		err = s.UpdateTemplate(ctx, &model.Template{TenantID: "t1", ID: "missing", Name: "Other"})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("ExtractionLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := &model.ExtractionRecord{TenantID: "t1", TemplateID: "tpl", MachineID: "m1", Shift: model.ShiftDay,
			Date: testDate, ImagePath: "/tmp/x.png", ImageSize: 1024, UploadedBy: "u1"}
		require.NoError(t, s.CreateExtraction(ctx, r))
		assert.Equal(t, model.ExtractionPending, r.Status)

		ok, err := s.MarkExtractionProcessing(ctx, "t1", r.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.MarkExtractionProcessing(ctx, "t1", r.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		out := model.ExtractionOutcome{
			ExtractedData:     map[string]string{"speed": "512"},
			ConfidenceScores:  map[string]float64{"speed": 91},
			OverallConfidence: 91,
			Status:            model.ExtractionCompleted,
		}
		require.NoError(t, s.CompleteExtraction(ctx, "t1", r.ID, out))

		err = s.CompleteExtraction(ctx, "t1", r.ID, out)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
		err = s.FailExtraction(ctx, "t1", r.ID, "late failure")
		assert.True(t, errors.Is(err, ErrInvalidTransition))

		got, err := s.GetExtraction(ctx, "t1", r.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ExtractionCompleted, got.Status)
		assert.Equal(t, "512", got.ExtractedData["speed"])
		assert.Equal(t, 91.0, got.ConfidenceScores["speed"])
		assert.Equal(t, testDate, got.Date)
		assert.Nil(t, got.VerifiedAt)
	})

	t.Run("ExtractionVerifyFromAnyState", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, status := range []model.ExtractionStatus{model.ExtractionPending, model.ExtractionFailed, model.ExtractionManualReview} {
			r := &model.ExtractionRecord{TenantID: "t1", TemplateID: "tpl", MachineID: "m1", Shift: model.ShiftNight,
				Date: testDate, ImagePath: "x", Status: status, ProcessingError: "boom"}
			require.NoError(t, s.CreateExtraction(ctx, r))

			got, err := s.VerifyExtraction(ctx, "t1", r.ID, "checker", map[string]string{"speed": "600"})
			require.NoError(t, err)
			assert.Equal(t, model.ExtractionCompleted, got.Status)
			assert.True(t, got.ManuallyVerified)
			assert.Equal(t, "checker", got.VerifiedBy)
			require.NotNil(t, got.VerifiedAt)
			assert.Equal(t, "600", got.ExtractedData["speed"])
			assert.Empty(t, got.ProcessingError)
		}

		_, err := s.VerifyExtraction(ctx, "t2", "nope", "checker", nil)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("ExtractionListing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var ids []string
		for i := 0; i < 3; i++ {
			shift := model.ShiftDay
			if i == 2 {
				shift = model.ShiftNight
			}
			r := &model.ExtractionRecord{TenantID: "t1", TemplateID: "tpl", MachineID: "m1", Shift: shift, Date: testDate, ImagePath: "x"}
			require.NoError(t, s.CreateExtraction(ctx, r))
			ids = append(ids, r.ID)
			time.Sleep(2 * time.Millisecond)
		}
		require.NoError(t, s.CreateExtraction(ctx, &model.ExtractionRecord{TenantID: "t2", TemplateID: "tpl", MachineID: "m9",
			Shift: model.ShiftDay, Date: testDate, ImagePath: "y"}))

		list, err := s.ListExtractions(ctx, "t1", model.ExtractionFilter{})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, ids[2], list[0].ID, "newest first")

		days, err := s.ListExtractions(ctx, "t1", model.ExtractionFilter{Shift: model.ShiftDay, Date: testDate})
		require.NoError(t, err)
		assert.Len(t, days, 2)

		limited, err := s.ListExtractions(ctx, "t1", model.ExtractionFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		pending, err := s.ListPendingExtractions(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, pending, 4, "pending scan spans tenants")
		assert.Equal(t, ids[0], pending[0].ID, "oldest first")

		counts, err := s.CountExtractionsByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, counts[model.ExtractionPending])

		require.NoError(t, s.DeleteExtraction(ctx, "t1", ids[0]))
		err = s.DeleteExtraction(ctx, "t1", ids[0])
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("FailStaleExtractions", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := &model.ExtractionRecord{TenantID: "t1", TemplateID: "tpl", MachineID: "m1", Shift: model.ShiftDay, Date: testDate, ImagePath: "x"}
		require.NoError(t, s.CreateExtraction(ctx, r))
		ok, err := s.MarkExtractionProcessing(ctx, "t1", r.ID)
		require.NoError(t, err)
		require.True(t, ok)

		n, err := s.FailStaleExtractions(ctx, time.Now().Add(-time.Hour), "stale")
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = s.FailStaleExtractions(ctx, time.Now().Add(time.Hour), "stale")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := s.GetExtraction(ctx, "t1", r.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ExtractionFailed, got.Status)
		assert.Equal(t, "stale", got.ProcessingError)
	})

	t.Run("NameMappingCRUD", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m := &model.WorkerNameMapping{TenantID: "t1", DisplayName: "RAVI K", SystemName: "Ravi Kumar",
			WorkerID: "w1", Aliases: []string{"R KUMAR"}, IsActive: true}
		require.NoError(t, s.CreateNameMapping(ctx, m))

		dup := &model.WorkerNameMapping{TenantID: "t1", DisplayName: "RAVI K", SystemName: "x", IsActive: true}
		assert.True(t, apperr.Is(s.CreateNameMapping(ctx, dup), apperr.KindConflict))

		inactive := &model.WorkerNameMapping{TenantID: "t1", DisplayName: "OLD", SystemName: "Old", IsActive: false}
		require.NoError(t, s.CreateNameMapping(ctx, inactive))

		active, err := s.ListNameMappings(ctx, "t1", true)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, []string{"R KUMAR"}, active[0].Aliases)

		all, err := s.ListNameMappings(ctx, "t1", false)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		m.Aliases = append(m.Aliases, "RK")
		require.NoError(t, s.UpdateNameMapping(ctx, m))
		got, err := s.GetNameMapping(ctx, "t1", m.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"R KUMAR", "RK"}, got.Aliases)

		require.NoError(t, s.DeleteNameMapping(ctx, "t1", m.ID))
		_, err = s.GetNameMapping(ctx, "t1", m.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}

func TestNewSQLite_InvalidDSN(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	require.Error(t, err)
}

func TestSettingsPatchEmpty(t *testing.T) {
	assert.True(t, SettingsPatch{}.Empty())
	assert.False(t, SettingsPatch{Pik: ptr(1)}.Empty())
}

func TestDateColScan(t *testing.T) {
	var d time.Time
	require.NoError(t, (*dateCol)(&d).Scan("2024-03-05"))
	assert.Equal(t, testDate, d)

	require.NoError(t, (*dateCol)(&d).Scan(testDate.Add(5*time.Hour)))
	assert.Equal(t, testDate, d)

	require.NoError(t, (*dateCol)(&d).Scan([]byte("2024-03-06")))
	assert.Equal(t, testDate.AddDate(0, 0, 1), d)

	assert.Error(t, (*dateCol)(&d).Scan(42))
	assert.Error(t, (*dateCol)(&d).Scan("yesterday"))
}

func TestSQLiteStore_TemplateConflictKinds(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTemplate(ctx, &model.Template{TenantID: "t1", Name: "A", IsDefault: true, IsActive: true}))

	insert := func(name string, isDefault bool) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO templates (id, tenant_id, name, is_default) VALUES (?, 't1', ?, ?)`,
			name+"-id", name, isDefault)
		return err
	}

	// Skips the clear-default step, as a racing writer would.
	err := insert("B", true)
	require.Error(t, err)
	require.True(t, isSQLiteUnique(err))
	assert.True(t, isDefaultTemplateClash(err))

	err = insert("A", false)
	require.Error(t, err)
	require.True(t, isSQLiteUnique(err))
	assert.False(t, isDefaultTemplateClash(err))

	err = s.CreateTemplate(ctx, &model.Template{TenantID: "t1", Name: "A", IsActive: true})
	require.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "template name A already exists")

	assert.Contains(t, templateConflict("B", true).Error(), "made the default concurrently")
}
