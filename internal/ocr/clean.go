package ocr

import (
	"regexp"
	"strings"

	"github.com/sells-group/loomtrack/internal/model"
)

// DefaultReviewThreshold is the overall confidence below which an
// extraction is sent to manual review.
const DefaultReviewThreshold = 50

var timePattern = regexp.MustCompile(`\d{1,2}:\d{2}|\d+`)

// Clean post-processes raw OCR text for a region hint.
func Clean(raw string, hint model.Hint) string {
	text := strings.TrimSpace(raw)
	switch hint {
	case model.HintNumber:
		return keepNumber(text)
	case model.HintTime:
		if m := timePattern.FindString(text); m != "" {
			return m
		}
	}
	return text
}

// keepNumber keeps digits and the first decimal point.
func keepNumber(s string) string {
	var b strings.Builder
	dot := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && !dot:
			dot = true
			b.WriteRune(r)
		}
	}
	return b.String()
}

// OverallConfidence is the arithmetic mean of the per-region scores, or 0
// when there are none.
func OverallConfidence(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// StatusFor gates an overall confidence at DefaultReviewThreshold.
func StatusFor(overall float64) model.ExtractionStatus {
	return StatusForThreshold(overall, DefaultReviewThreshold)
}

// StatusForThreshold returns manual_review when overall is below threshold
// and completed otherwise.
func StatusForThreshold(overall, threshold float64) model.ExtractionStatus {
	if overall < threshold {
		return model.ExtractionManualReview
	}
	return model.ExtractionCompleted
}
