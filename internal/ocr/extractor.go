package ocr

import (
	"context"
	"image"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/loomtrack/internal/config"
	"github.com/sells-group/loomtrack/internal/model"
	"github.com/sells-group/loomtrack/internal/monitoring"
	"github.com/sells-group/loomtrack/internal/region"
	"github.com/sells-group/loomtrack/internal/resilience"
)

// RegionResult is the cleaned text and confidence read from one region.
type RegionResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Extractor reads individual regions of a screenshot.
type Extractor struct {
	engine  Engine
	lang    string
	timeout time.Duration
	tempDir string
	retry   resilience.RetryConfig
	metrics *monitoring.Metrics
}

// NewExtractor creates an Extractor around engine. metrics may be nil.
func NewExtractor(engine Engine, cfg config.OCRConfig, metrics *monitoring.Metrics) *Extractor {
	timeout := cfg.RegionTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}
	retry := resilience.OCRRetryConfig(cfg.MaxAttempts)
	retry.OnRetry = resilience.RetryLogger(engine.Name(), "extract_region")
	return &Extractor{
		engine:  engine,
		lang:    lang,
		timeout: timeout,
		tempDir: cfg.TempDir,
		retry:   retry,
		metrics: metrics,
	}
}

// ExtractRegion crops box out of img, prepares it for hint, runs the engine
// and cleans the text. Any failure yields an empty result with zero
// confidence so one bad region never fails the screenshot.
func (e *Extractor) ExtractRegion(ctx context.Context, img image.Image, box model.Box, hint model.Hint) RegionResult {
	res, err := e.extract(ctx, img, box, hint)
	if err != nil {
		zap.L().Warn("ocr: region extraction failed",
			zap.String("engine", e.engine.Name()),
			zap.String("hint", string(hint)),
			zap.Error(err),
		)
		e.metrics.IncRegionFailure()
		return RegionResult{}
	}
	return res
}

func (e *Extractor) extract(ctx context.Context, img image.Image, box model.Box, hint model.Hint) (RegionResult, error) {
	prepared, err := region.Prepare(img, box, hint)
	if err != nil {
		return RegionResult{}, err
	}

	path, err := e.writeTemp(prepared)
	if err != nil {
		return RegionResult{}, err
	}
	defer os.Remove(path) //nolint:errcheck

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rec, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (Recognition, error) {
		return e.engine.Recognize(ctx, path, e.lang)
	})
	if err != nil {
		return RegionResult{}, err
	}
	return RegionResult{Text: Clean(rec.Text, hint), Confidence: rec.Confidence}, nil
}

func (e *Extractor) writeTemp(img image.Image) (string, error) {
	f, err := os.CreateTemp(e.tempDir, "region_*.png")
	if err != nil {
		return "", eris.Wrap(err, "ocr: create temp file")
	}
	if err := region.EncodePNG(f, img); err != nil {
		f.Close()           //nolint:errcheck
		os.Remove(f.Name()) //nolint:errcheck
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name()) //nolint:errcheck
		return "", eris.Wrap(err, "ocr: close temp file")
	}
	return f.Name(), nil
}
