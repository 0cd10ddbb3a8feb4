package screenshot

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/loomtrack/internal/catalog"
	"github.com/sells-group/loomtrack/internal/config"
	"github.com/sells-group/loomtrack/internal/model"
	"github.com/sells-group/loomtrack/internal/region"
	"github.com/sells-group/loomtrack/internal/store"
)

type env struct {
	st        *store.SQLiteStore
	catalog   *catalog.Service
	templates *Templates
	names     *Names
	machine   *model.Machine
	template  *model.Template
	uploadDir string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	st, err := store.NewSQLite(filepath.Join(dir, "screenshot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	e := &env{
		st:        st,
		catalog:   catalog.NewService(st, time.Minute, nil),
		templates: NewTemplates(st),
		uploadDir: filepath.Join(dir, "uploads"),
	}
	e.names = NewNames(st, e.catalog)
	e.machine, err = e.catalog.CreateMachine(ctx, "t1", catalog.MachineInput{MachineNumber: "L1"})
	require.NoError(t, err)
	e.template, err = e.templates.Create(ctx, "t1", "u1", TemplateInput{
		Name: "Panel A",
		FieldMappings: []model.FieldMapping{
			mapping(model.FieldProductionLength, 0, model.HintNumber),
			mapping(model.FieldOther, 50, model.HintText),
		},
	})
	require.NoError(t, err)
	return e
}

func (e *env) screenshotConfig() config.ScreenshotConfig {
	return config.ScreenshotConfig{UploadDir: e.uploadDir, MaxUploadMB: 1}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for x := range 40 {
		for y := range 20 {
			img.Set(x, y, color.NRGBA{R: uint8(x * 6), G: uint8(y * 12), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, region.EncodePNG(&buf, img))
	return buf.Bytes()
}

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "shot.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t), 0o644))
	return path
}

// pendingRecord stores a pending record pointing at a real image.
func (e *env) pendingRecord(t *testing.T, tenantID string) *model.ExtractionRecord {
	t.Helper()
	rec := &model.ExtractionRecord{
		TenantID: tenantID, TemplateID: e.template.ID, MachineID: e.machine.ID,
		Shift: model.ShiftDay, Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		ImagePath: writePNG(t, t.TempDir()), Status: model.ExtractionPending,
	}
	require.NoError(t, e.st.CreateExtraction(context.Background(), rec))
	return rec
}

// captureQueue records enqueued jobs.
type captureQueue struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (c *captureQueue) Enqueue(job Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.jobs = append(c.jobs, job)
	return nil
}
