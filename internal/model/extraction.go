package model

import (
	"time"
)

// FieldName is the production field a template region maps to.
type FieldName string

const (
	FieldMachineName      FieldName = "machineName"
	FieldProductionLength FieldName = "productionLength"
	FieldTotalPick        FieldName = "totalPick"
	FieldSpeed            FieldName = "speed"
	FieldH1               FieldName = "h1"
	FieldH2               FieldName = "h2"
	FieldWorph            FieldName = "worph"
	FieldOther            FieldName = "other"
)

var fieldNames = map[FieldName]bool{
	FieldMachineName: true, FieldProductionLength: true, FieldTotalPick: true, FieldSpeed: true,
	FieldH1: true, FieldH2: true, FieldWorph: true, FieldOther: true,
}

// Valid reports whether f is a known field name.
func (f FieldName) Valid() bool { return fieldNames[f] }

// Hint selects OCR preprocessing and post-cleaning for a region.
type Hint string

const (
	HintText   Hint = "text"
	HintNumber Hint = "number"
	HintTime   Hint = "time"
	HintMixed  Hint = "mixed"
)

// Valid reports whether h is a known hint.
func (h Hint) Valid() bool {
	switch h {
	case HintText, HintNumber, HintTime, HintMixed:
		return true
	}
	return false
}

// Box is a rectangle expressed in percent of image width and height.
type Box struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Clamp limits every coordinate to [0, 100].
func (b Box) Clamp() Box {
	return Box{X: clampPct(b.X), Y: clampPct(b.Y), Width: clampPct(b.Width), Height: clampPct(b.Height)}
}

func clampPct(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// FieldMapping maps one region of a screenshot to a production field.
type FieldMapping struct {
	FieldName         FieldName `json:"fieldName" yaml:"field_name"`
	Box               `yaml:",inline"`
	PreprocessingHint Hint `json:"preprocessingHint" yaml:"preprocessing_hint"`
}

// Normalize clamps the box and fills the default hint.
func (m FieldMapping) Normalize() FieldMapping {
	m.Box = m.Box.Clamp()
	if m.PreprocessingHint == "" {
		m.PreprocessingHint = HintText
	}
	return m
}

// Template describes how to read one machine display layout.
type Template struct {
	ID                 string         `json:"id"`
	TenantID           string         `json:"tenantId"`
	Name               string         `json:"templateName"`
	Description        string         `json:"description,omitempty"`
	MachineDisplayType string         `json:"machineDisplayType,omitempty"`
	SampleImageURL     string         `json:"sampleImageUrl,omitempty"`
	FieldMappings      []FieldMapping `json:"fieldMappings"`
	IsDefault          bool           `json:"isDefault"`
	IsActive           bool           `json:"isActive"`
	CreatedBy          string         `json:"createdBy,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// ExtractionStatus is the lifecycle state of a screenshot extraction.
type ExtractionStatus string

const (
	ExtractionPending      ExtractionStatus = "pending"
	ExtractionProcessing   ExtractionStatus = "processing"
	ExtractionCompleted    ExtractionStatus = "completed"
	ExtractionManualReview ExtractionStatus = "manual_review"
	ExtractionFailed       ExtractionStatus = "failed"
)

// Terminal reports whether no further automatic transition happens from s.
func (s ExtractionStatus) Terminal() bool {
	return s == ExtractionCompleted || s == ExtractionManualReview || s == ExtractionFailed
}

// Valid reports whether s is a known status.
func (s ExtractionStatus) Valid() bool {
	return s == ExtractionPending || s == ExtractionProcessing || s.Terminal()
}

// ExtractionRecord is an uploaded screenshot and its extraction outcome.
type ExtractionRecord struct {
	ID                string             `json:"id"`
	TenantID          string             `json:"tenantId"`
	TemplateID        string             `json:"templateId"`
	MachineID         string             `json:"machineId"`
	Shift             Shift              `json:"shift"`
	Date              time.Time          `json:"date"`
	ImagePath         string             `json:"imagePath"`
	ImageSize         int64              `json:"imageSize"`
	ExtractedData     map[string]string  `json:"extractedData"`
	ConfidenceScores  map[string]float64 `json:"confidenceScores"`
	OverallConfidence float64            `json:"overallConfidence"`
	Status            ExtractionStatus   `json:"status"`
	ProcessingError   string             `json:"processingError,omitempty"`
	ManuallyVerified  bool               `json:"manuallyVerified"`
	VerifiedBy        string             `json:"verifiedBy,omitempty"`
	VerifiedAt        *time.Time         `json:"verifiedAt,omitempty"`
	UploadedBy        string             `json:"uploadedBy,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// ExtractionFilter narrows record listings. Zero values are ignored.
type ExtractionFilter struct {
	Date      time.Time
	Shift     Shift
	MachineID string
	Status    ExtractionStatus
	Limit     int
}

// WorkerNameMapping maps a name read off a display to a worker.
type WorkerNameMapping struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	DisplayName string    `json:"displayName"`
	SystemName  string    `json:"systemName"`
	WorkerID    string    `json:"workerId,omitempty"`
	Aliases     []string  `json:"aliases"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ExtractionOutcome is what a finished pipeline run writes back to a record.
type ExtractionOutcome struct {
	ExtractedData     map[string]string
	ConfidenceScores  map[string]float64
	OverallConfidence float64
	Status            ExtractionStatus
}
