// Package export writes production summaries and shift records to XLSX
// workbooks.
package export

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/loomtrack/internal/model"
)

// Sheet names.
const (
	SummarySheet = "Daily Summaries"
	RecordSheet  = "Shift Records"
)

var summaryHeader = []string{
	"Date", "Day Efficiency", "Day Meter", "Day Pick", "Day Machines", "Day Avg Runtime",
	"Night Efficiency", "Night Meter", "Night Pick", "Night Machines", "Night Avg Runtime",
	"Total Efficiency", "Total Meter", "Total Pick", "Avg CFM", "Units Consumed", "Units per Meter",
	"Machines Reported",
}

var recordHeader = []string{
	"Date", "Shift", "Machine", "Worker", "Runtime", "Efficiency", "H1", "H2", "Worph", "Meter",
	"Total Pick", "Notes",
}

// Source loads the rows of a workbook.
type Source interface {
	ListDailySummaries(ctx context.Context, tenantID string, from, to time.Time) ([]model.DailySummary, error)
	ListShiftRecords(ctx context.Context, tenantID string, f model.ShiftFilter) ([]model.ShiftRecord, error)
}

// Directory names machines and workers in record rows.
type Directory interface {
	ListMachines(ctx context.Context, tenantID string) ([]model.Machine, error)
	ListWorkers(ctx context.Context, tenantID string) ([]model.Worker, error)
}

// Exporter builds tenant workbooks.
type Exporter struct {
	src Source
	dir Directory
}

// NewExporter creates an exporter. dir may be nil, in which case record
// rows carry raw ids.
func NewExporter(src Source, dir Directory) *Exporter {
	return &Exporter{src: src, dir: dir}
}

// Build loads the range and returns the workbook.
func (e *Exporter) Build(ctx context.Context, tenantID string, r model.DateRange) (*xlsx.File, error) {
	var (
		sums     []model.DailySummary
		recs     []model.ShiftRecord
		machines = map[string]string{}
		workers  = map[string]string{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sums, err = e.src.ListDailySummaries(gctx, tenantID, r.From, r.To)
		return eris.Wrap(err, "export: list daily summaries")
	})
	g.Go(func() error {
		var err error
		recs, err = e.src.ListShiftRecords(gctx, tenantID, model.ShiftFilter{From: r.From, To: r.To})
		return eris.Wrap(err, "export: list shift records")
	})
	if e.dir != nil {
		g.Go(func() error {
			ms, err := e.dir.ListMachines(gctx, tenantID)
			for _, m := range ms {
				machines[m.ID] = m.MachineNumber
			}
			return eris.Wrap(err, "export: list machines")
		})
		g.Go(func() error {
			ws, err := e.dir.ListWorkers(gctx, tenantID)
			for _, w := range ws {
				workers[w.ID] = w.Name
			}
			return eris.Wrap(err, "export: list workers")
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Workbook(sums, recs, machines, workers)
}

// Write builds the workbook and writes it to w.
func (e *Exporter) Write(ctx context.Context, tenantID string, r model.DateRange, w io.Writer) error {
	f, err := e.Build(ctx, tenantID, r)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write workbook")
}

// WriteFile builds the workbook and saves it at path.
func (e *Exporter) WriteFile(ctx context.Context, tenantID string, r model.DateRange, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create file")
	}
	if err := e.Write(ctx, tenantID, r, out); err != nil {
		out.Close()     //nolint:errcheck
		os.Remove(path) //nolint:errcheck
		return err
	}
	return eris.Wrap(out.Close(), "export: close file")
}

// Workbook lays out summaries and records on two sheets. Names map machine
// and worker ids to display values; unknown ids are written as is.
func Workbook(sums []model.DailySummary, recs []model.ShiftRecord, machines, workers map[string]string) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(SummarySheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add summary sheet")
	}
	addHeader(sheet, summaryHeader)
	for _, s := range sums {
		row := sheet.AddRow()
		addString(row, s.Date.Format(model.DateLayout))
		addTotals(row, s.Day, true)
		addTotals(row, s.Night, true)
		addTotals(row, s.Total, false)
		addFloat(row, s.AvgCFM)
		addFloat(row, s.TotalUnitsConsumed)
		addFloat(row, s.UnitsPerMeter)
		row.AddCell().SetInt(s.MachinesReported)
	}

	sheet, err = f.AddSheet(RecordSheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add record sheet")
	}
	addHeader(sheet, recordHeader)
	for _, r := range recs {
		row := sheet.AddRow()
		addString(row, r.Date.Format(model.DateLayout))
		addString(row, string(r.Shift))
		addString(row, lookup(machines, r.MachineID))
		addString(row, lookup(workers, r.WorkerID))
		for _, v := range []float64{r.Runtime, r.Efficiency, r.H1, r.H2, r.Worph, r.Meter, r.TotalPick} {
			addFloat(row, v)
		}
		addString(row, r.Notes)
	}
	return f, nil
}

func addHeader(sheet *xlsx.Sheet, cols []string) {
	row := sheet.AddRow()
	for _, c := range cols {
		addString(row, c)
	}
}

// addTotals writes efficiency, meter and pick, then machines and runtime
// for per-shift columns.
func addTotals(row *xlsx.Row, t model.ShiftTotals, perShift bool) {
	addFloat(row, t.Efficiency)
	addFloat(row, t.Meter)
	addFloat(row, t.Pick)
	if perShift {
		addFloat(row, t.Machine)
		addFloat(row, t.AvgRuntime)
	}
}

func addString(row *xlsx.Row, v string) { row.AddCell().SetString(v) }

func addFloat(row *xlsx.Row, v float64) { row.AddCell().SetFloat(v) }

func lookup(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}
