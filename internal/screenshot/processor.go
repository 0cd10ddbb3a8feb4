package screenshot

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/loomtrack/internal/model"
	"github.com/sells-group/loomtrack/internal/monitoring"
	"github.com/sells-group/loomtrack/internal/ocr"
	"github.com/sells-group/loomtrack/internal/region"
)

// ProcessorStore is the persistence a Processor needs.
type ProcessorStore interface {
	GetExtraction(ctx context.Context, tenantID, id string) (*model.ExtractionRecord, error)
	MarkExtractionProcessing(ctx context.Context, tenantID, id string) (bool, error)
	CompleteExtraction(ctx context.Context, tenantID, id string, out model.ExtractionOutcome) error
	FailExtraction(ctx context.Context, tenantID, id, reason string) error
	GetTemplate(ctx context.Context, tenantID, id string) (*model.Template, error)
}

// NameResolver maps a name read off a display to a worker's system name.
type NameResolver interface {
	ResolveWorkerName(ctx context.Context, tenantID, raw string) string
}

// Processor runs the extraction pipeline for queued records. It implements
// Handler.
type Processor struct {
	store     ProcessorStore
	extractor RegionExtractor
	names     NameResolver
	threshold float64
	metrics   *monitoring.Metrics
}

// NewProcessor creates a processor. Records whose overall confidence falls
// below threshold land in manual review; a non-positive threshold uses
// ocr.DefaultReviewThreshold. names may be nil to skip worker name
// resolution. metrics may be nil.
func NewProcessor(st ProcessorStore, ex RegionExtractor, names NameResolver, threshold float64, metrics *monitoring.Metrics) *Processor {
	if threshold <= 0 {
		threshold = ocr.DefaultReviewThreshold
	}
	return &Processor{store: st, extractor: ex, names: names, threshold: threshold, metrics: metrics}
}

// Handle claims the record and moves it to a terminal status. Records that
// are no longer pending are skipped.
func (p *Processor) Handle(ctx context.Context, job Job) {
	ok, err := p.store.MarkExtractionProcessing(ctx, job.TenantID, job.RecordID)
	if err != nil {
		zap.L().Warn("screenshot: claim extraction failed",
			zap.String("tenant_id", job.TenantID),
			zap.String("record_id", job.RecordID),
			zap.Error(err),
		)
		return
	}
	if !ok {
		return
	}

	start := time.Now()
	out, err := p.process(ctx, job)
	if err != nil {
		p.fail(ctx, job, err.Error(), start)
		return
	}

	if err := p.store.CompleteExtraction(context.WithoutCancel(ctx), job.TenantID, job.RecordID, *out); err != nil {
		zap.L().Error("screenshot: store extraction outcome failed",
			zap.String("tenant_id", job.TenantID),
			zap.String("record_id", job.RecordID),
			zap.Error(err),
		)
		p.fail(ctx, job, err.Error(), start)
		return
	}
	p.metrics.ObserveExtraction(string(out.Status), time.Since(start))
	zap.L().Info("screenshot: extraction finished",
		zap.String("tenant_id", job.TenantID),
		zap.String("record_id", job.RecordID),
		zap.String("status", string(out.Status)),
		zap.Float64("overall_confidence", out.OverallConfidence),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// Fail marks a claimed record failed.
func (p *Processor) Fail(ctx context.Context, job Job, reason string) {
	p.fail(ctx, job, reason, time.Now())
}

func (p *Processor) fail(ctx context.Context, job Job, reason string, start time.Time) {
	if err := p.store.FailExtraction(context.WithoutCancel(ctx), job.TenantID, job.RecordID, reason); err != nil {
		zap.L().Warn("screenshot: mark extraction failed",
			zap.String("tenant_id", job.TenantID),
			zap.String("record_id", job.RecordID),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
	p.metrics.ObserveExtraction(string(model.ExtractionFailed), time.Since(start))
}

func (p *Processor) process(ctx context.Context, job Job) (*model.ExtractionOutcome, error) {
	rec, err := p.store.GetExtraction(ctx, job.TenantID, job.RecordID)
	if err != nil {
		return nil, eris.Wrap(err, "screenshot: load record")
	}
	tmpl, err := p.store.GetTemplate(ctx, job.TenantID, rec.TemplateID)
	if err != nil {
		return nil, eris.Wrap(err, "screenshot: load template")
	}
	img, err := region.Open(rec.ImagePath)
	if err != nil {
		return nil, eris.Wrap(err, "screenshot: open image")
	}

	res := ProcessScreenshot(ctx, img, tmpl, p.extractor)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "screenshot: extraction interrupted")
	}

	if p.names != nil {
		if raw, ok := res.ExtractedData[string(model.FieldOther)]; ok && raw != "" {
			res.ExtractedData[WorkerNameField] = p.names.ResolveWorkerName(ctx, job.TenantID, raw)
		}
	}

	return &model.ExtractionOutcome{
		ExtractedData:     res.ExtractedData,
		ConfidenceScores:  res.ConfidenceScores,
		OverallConfidence: res.OverallConfidence,
		Status:            ocr.StatusForThreshold(res.OverallConfidence, p.threshold),
	}, nil
}
