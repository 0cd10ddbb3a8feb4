// Package ocr recognizes text in prepared screenshot regions.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/loomtrack/internal/config"
	"github.com/sells-group/loomtrack/pkg/anthropic"
)

// Recognition is the raw output of an engine for one image.
type Recognition struct {
	Text string
	// Confidence is on a 0-100 scale.
	Confidence float64
}

// Engine recognizes the text of a single image file.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, imagePath, lang string) (Recognition, error)
}

// NewEngine creates an Engine based on config.
func NewEngine(cfg config.OCRConfig, ac config.AnthropicConfig) (Engine, error) {
	switch cfg.Provider {
	case "tesseract", "":
		return NewTesseract(cfg.TesseractPath), nil
	case "anthropic":
		if ac.Key == "" {
			return nil, eris.New("ocr: anthropic provider requires anthropic.key")
		}
		return NewVision(anthropic.NewClient(ac.Key), ac.Model), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
