// Package screenshot turns uploaded machine display screenshots into
// production fields: templates name the regions, a background queue runs
// region OCR on each upload, and users verify or correct the result.
package screenshot

import (
	"context"
	"image"

	"github.com/sells-group/loomtrack/internal/model"
	"github.com/sells-group/loomtrack/internal/ocr"
)

// WorkerNameField is the extracted-data key holding the resolved worker name.
const WorkerNameField = "workerName"

// RegionExtractor reads one region of an image. Failures come back as an
// empty, zero-confidence result.
type RegionExtractor interface {
	ExtractRegion(ctx context.Context, img image.Image, box model.Box, hint model.Hint) ocr.RegionResult
}

// Result is the outcome of running every template region over an image.
type Result struct {
	ExtractedData     map[string]string  `json:"extractedData"`
	ConfidenceScores  map[string]float64 `json:"confidenceScores"`
	OverallConfidence float64            `json:"overallConfidence"`
}

// ProcessScreenshot extracts every field mapping of tmpl from img, in
// template order. A field mapped twice keeps its last reading, but every
// mapping counts toward the overall confidence.
func ProcessScreenshot(ctx context.Context, img image.Image, tmpl *model.Template, ex RegionExtractor) Result {
	res := Result{
		ExtractedData:    make(map[string]string, len(tmpl.FieldMappings)),
		ConfidenceScores: make(map[string]float64, len(tmpl.FieldMappings)),
	}
	scores := make([]float64, 0, len(tmpl.FieldMappings))
	for _, fm := range tmpl.FieldMappings {
		fm = fm.Normalize()
		r := ex.ExtractRegion(ctx, img, fm.Box, fm.PreprocessingHint)
		res.ExtractedData[string(fm.FieldName)] = r.Text
		res.ConfidenceScores[string(fm.FieldName)] = r.Confidence
		scores = append(scores, r.Confidence)
	}
	res.OverallConfidence = ocr.OverallConfidence(scores)
	return res
}
