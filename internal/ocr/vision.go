package ocr

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/loomtrack/internal/resilience"
	"github.com/sells-group/loomtrack/pkg/anthropic"
)

const visionSystemPrompt = `You read text from cropped screenshots of textile loom control panels.
Reply with a single JSON object and nothing else: {"text": "<exact characters visible>", "confidence": <0-100>}.
Use an empty string when no text is legible.`

// Vision recognizes text with an Anthropic vision model. Calls pass through a
// circuit breaker so an unavailable API fails regions fast.
type Vision struct {
	client  anthropic.Client
	model   string
	breaker *resilience.CircuitBreaker
}

// NewVision creates a vision engine.
func NewVision(client anthropic.Client, model string) *Vision {
	if model == "" {
		model = "claude-haiku-4-5-20251001"
	}
	return &Vision{
		client: client,
		model:  model,
		breaker: resilience.NewCircuitBreaker(resilience.BreakerConfig{
			Name:             "anthropic-ocr",
			FailureThreshold: 5,
			Cooldown:         time.Minute,
			ShouldTrip:       resilience.IsTransient,
		}),
	}
}

// Name implements Engine.
func (v *Vision) Name() string { return "anthropic" }

// Recognize implements Engine. lang is passed to the model as a hint.
func (v *Vision) Recognize(ctx context.Context, imagePath, lang string) (Recognition, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return Recognition{}, eris.Wrapf(err, "ocr: read %s", imagePath)
	}

	prompt := "Transcribe the text in this image."
	if lang != "" && lang != "eng" {
		prompt += " Tesseract language code: " + lang + "."
	}
	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       v.model,
		MaxTokens:   256,
		System:      visionSystemPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: prompt,
			Images:  []anthropic.Image{{MediaType: "image/png", Data: data}},
		}},
	}

	resp, err := resilience.ExecuteVal(ctx, v.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := v.client.CreateMessage(ctx, req)
		if err != nil {
			if resilience.IsTransientHTTPStatus(anthropic.StatusCode(err)) {
				return nil, resilience.NewTransientError(err, anthropic.StatusCode(err))
			}
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return Recognition{}, eris.Wrap(err, "ocr: vision request")
	}
	resp.Usage.LogCost(v.model, "ocr_region")

	return parseVisionReply(resp.Text())
}

type visionReply struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// parseVisionReply extracts the JSON object from the model reply, tolerating
// surrounding prose or code fences.
func parseVisionReply(raw string) (Recognition, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return Recognition{}, eris.Errorf("ocr: no json object in vision reply %q", raw)
	}
	var r visionReply
	if err := json.Unmarshal([]byte(raw[start:end+1]), &r); err != nil {
		return Recognition{}, eris.Wrap(err, "ocr: decode vision reply")
	}
	return Recognition{Text: r.Text, Confidence: min(max(r.Confidence, 0), 100)}, nil
}
