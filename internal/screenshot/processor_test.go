package screenshot

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/loomtrack/internal/model"
	"github.com/sells-group/loomtrack/internal/ocr"
)

func TestProcessor_Completes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rec := e.pendingRecord(t, "t1")
	ex := &stubExtractor{results: map[float64]ocr.RegionResult{
		0: {Text: "812.5", Confidence: 92}, 50: {Text: "ramesh", Confidence: 70},
	}}

	NewProcessor(e.st, ex, nil, 0, nil).Handle(ctx, Job{TenantID: "t1", RecordID: rec.ID})

	got, err := e.st.GetExtraction(ctx, "t1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionCompleted, got.Status)
	assert.Equal(t, "812.5", got.ExtractedData["productionLength"])
	assert.InDelta(t, 81, got.OverallConfidence, 1e-9)
	assert.NotContains(t, got.ExtractedData, WorkerNameField)
}

func TestProcessor_UnsetThresholdGatesAtFifty(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, tc := range []struct {
		conf float64
		want model.ExtractionStatus
	}{
		{49, model.ExtractionManualReview},
		{50, model.ExtractionCompleted},
	} {
		rec := e.pendingRecord(t, "t1")
		ex := &stubExtractor{results: map[float64]ocr.RegionResult{
			0: {Text: "1", Confidence: tc.conf}, 50: {Text: "x", Confidence: tc.conf},
		}}
		NewProcessor(e.st, ex, nil, 0, nil).Handle(ctx, Job{TenantID: "t1", RecordID: rec.ID})

		got, err := e.st.GetExtraction(ctx, "t1", rec.ID)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Status, "confidence %v", tc.conf)
	}
}

func TestProcessor_ManualReviewBelowThreshold(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rec := e.pendingRecord(t, "t1")
	ex := &stubExtractor{results: map[float64]ocr.RegionResult{0: {Text: "1", Confidence: 70}, 50: {Text: "x", Confidence: 70}}}

	NewProcessor(e.st, ex, nil, 80, nil).Handle(ctx, Job{TenantID: "t1", RecordID: rec.ID})

	got, err := e.st.GetExtraction(ctx, "t1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionManualReview, got.Status)
}

func TestProcessor_ResolvesWorkerName(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.names.Create(ctx, "t1", NameMappingInput{DisplayName: "RAMESH", SystemName: "Ramesh Kumar"})
	require.NoError(t, err)
	rec := e.pendingRecord(t, "t1")
	ex := &stubExtractor{results: map[float64]ocr.RegionResult{0: {Text: "1", Confidence: 90}, 50: {Text: " ramesh ", Confidence: 90}}}

	NewProcessor(e.st, ex, e.names, 0, nil).Handle(ctx, Job{TenantID: "t1", RecordID: rec.ID})

	got, err := e.st.GetExtraction(ctx, "t1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ramesh Kumar", got.ExtractedData[WorkerNameField])
	assert.Equal(t, " ramesh ", got.ExtractedData["other"])
}

func TestProcessor_MissingImageFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rec := e.pendingRecord(t, "t1")
	require.NoError(t, os.Remove(rec.ImagePath))

	NewProcessor(e.st, &stubExtractor{}, nil, 0, nil).Handle(ctx, Job{TenantID: "t1", RecordID: rec.ID})

	got, err := e.st.GetExtraction(ctx, "t1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionFailed, got.Status)
	assert.Contains(t, got.ProcessingError, "open image")
}

func TestProcessor_SkipsClaimedRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rec := e.pendingRecord(t, "t1")
	ok, err := e.st.MarkExtractionProcessing(ctx, "t1", rec.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ex := &stubExtractor{}
	NewProcessor(e.st, ex, nil, 0, nil).Handle(ctx, Job{TenantID: "t1", RecordID: rec.ID})
	assert.Empty(t, ex.calls)

	got, err := e.st.GetExtraction(ctx, "t1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionProcessing, got.Status)
}

func TestProcessor_FailAfterPanic(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rec := e.pendingRecord(t, "t1")
	_, err := e.st.MarkExtractionProcessing(ctx, "t1", rec.ID)
	require.NoError(t, err)

	NewProcessor(e.st, &stubExtractor{}, nil, 0, nil).Fail(ctx, Job{TenantID: "t1", RecordID: rec.ID}, "panic: boom")

	got, err := e.st.GetExtraction(ctx, "t1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionFailed, got.Status)
	assert.Equal(t, "panic: boom", got.ProcessingError)
}
