package screenshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/config"
	"github.com/sells-group/loomtrack/internal/model"
	"github.com/sells-group/loomtrack/internal/store"
)

const (
	defaultMaxUpload = 10 << 20
	listLimit        = 50
	sniffLen         = 512
)

// allowedImages maps accepted file extensions to the content types they may
// sniff as.
var allowedImages = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
}

// Store is the persistence the upload service needs.
type Store interface {
	store.ExtractionStore
	GetTemplate(ctx context.Context, tenantID, id string) (*model.Template, error)
}

// MachineLookup resolves machines of a tenant.
type MachineLookup interface {
	GetMachine(ctx context.Context, tenantID, id string) (*model.Machine, error)
}

// Enqueuer accepts extraction jobs.
type Enqueuer interface {
	Enqueue(job Job) error
}

// UploadRequest is one uploaded screenshot and its metadata.
type UploadRequest struct {
	TemplateID string
	MachineID  string
	Shift      model.Shift
	Date       string
	Filename   string
	Size       int64
	Body       io.Reader
}

// UploadResult is returned as soon as the record is stored.
type UploadResult struct {
	RecordID string                 `json:"recordId"`
	Status   model.ExtractionStatus `json:"status"`
}

// Service accepts uploads and serves extraction records.
type Service struct {
	store     Store
	machines  MachineLookup
	queue     Enqueuer
	uploadDir string
	maxBytes  int64
}

// NewService creates the upload service.
func NewService(st Store, machines MachineLookup, queue Enqueuer, cfg config.ScreenshotConfig) *Service {
	maxBytes := cfg.MaxUploadBytes()
	if maxBytes <= 0 {
		maxBytes = defaultMaxUpload
	}
	return &Service{store: st, machines: machines, queue: queue, uploadDir: cfg.UploadDir, maxBytes: maxBytes}
}

// MaxUploadBytes is the largest accepted image.
func (s *Service) MaxUploadBytes() int64 { return s.maxBytes }

func (r UploadRequest) validate(maxBytes int64) error {
	fe := apperr.FieldErrors{}
	if r.TemplateID == "" {
		fe.Add("templateId", "is required")
	}
	if r.MachineID == "" {
		fe.Add("machineId", "is required")
	}
	if !r.Shift.Valid() {
		fe.Add("shift", "must be day or night")
	}
	if r.Date == "" {
		fe.Add("date", "is required")
	} else if _, err := model.ParseDate(r.Date); err != nil {
		fe.Add("date", "must be a date (YYYY-MM-DD)")
	}
	switch {
	case r.Body == nil:
		fe.Add("screenshot", "is required")
	case r.Size > maxBytes:
		fe.Add("screenshot", tooLarge(maxBytes))
	}
	if _, ok := allowedImages[strings.ToLower(filepath.Ext(r.Filename))]; !ok && r.Body != nil {
		fe.Add("screenshot", "only jpeg, png, gif and bmp images are allowed")
	}
	return fe.Err()
}

// Upload stores the image, creates a pending record and queues it. A full
// queue does not fail the upload; the record is picked up by the
// dispatcher.
func (s *Service) Upload(ctx context.Context, tenantID, userID string, req UploadRequest) (*UploadResult, error) {
	if err := req.validate(s.maxBytes); err != nil {
		return nil, err
	}
	if _, err := s.store.GetTemplate(ctx, tenantID, req.TemplateID); err != nil {
		return nil, apperr.Wrap(err, "screenshot: get template")
	}
	if _, err := s.machines.GetMachine(ctx, tenantID, req.MachineID); err != nil {
		return nil, apperr.Wrap(err, "screenshot: get machine")
	}

	ext := strings.ToLower(filepath.Ext(req.Filename))
	path, size, err := s.save(req.Body, ext)
	if err != nil {
		return nil, err
	}

	date, _ := model.ParseDate(req.Date)
	rec := &model.ExtractionRecord{
		TenantID:   tenantID,
		TemplateID: req.TemplateID,
		MachineID:  req.MachineID,
		Shift:      req.Shift,
		Date:       date,
		ImagePath:  path,
		ImageSize:  size,
		Status:     model.ExtractionPending,
		UploadedBy: userID,
	}
	if err := s.store.CreateExtraction(ctx, rec); err != nil {
		removeQuietly(path)
		return nil, apperr.Wrap(err, "screenshot: create extraction record")
	}

	if err := s.queue.Enqueue(Job{TenantID: tenantID, RecordID: rec.ID}); err != nil {
		zap.L().Warn("screenshot: upload left for dispatcher",
			zap.String("tenant_id", tenantID),
			zap.String("record_id", rec.ID),
			zap.Error(err),
		)
	}
	return &UploadResult{RecordID: rec.ID, Status: rec.Status}, nil
}

// save writes body to the upload directory after checking its content type
// and size.
func (s *Service) save(body io.Reader, ext string) (string, int64, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", 0, eris.Wrap(err, "screenshot: read upload")
	}
	head = head[:n]
	if n == 0 {
		return "", 0, apperr.Validation("invalid upload", map[string]string{"screenshot": "is empty"})
	}
	if got := http.DetectContentType(head); got != allowedImages[ext] {
		return "", 0, apperr.Validation("invalid upload", map[string]string{"screenshot": "content is not a " + strings.TrimPrefix(ext, ".") + " image"})
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", 0, eris.Wrap(err, "screenshot: create upload dir")
	}
	path := filepath.Join(s.uploadDir, uuid.New().String()+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, eris.Wrap(err, "screenshot: create image file")
	}

	limited := io.LimitReader(io.MultiReader(bytes.NewReader(head), body), s.maxBytes+1)
	size, err := io.Copy(f, limited)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		removeQuietly(path)
		return "", 0, eris.Wrap(err, "screenshot: write image file")
	}
	if size > s.maxBytes {
		removeQuietly(path)
		return "", 0, apperr.Validation("invalid upload", map[string]string{"screenshot": tooLarge(s.maxBytes)})
	}
	return path, size, nil
}

func tooLarge(maxBytes int64) string {
	return fmt.Sprintf("must not exceed %dMB", maxBytes>>20)
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		zap.L().Debug("screenshot: remove image", zap.String("path", path), zap.Error(err))
	}
}

// Status returns one extraction record.
func (s *Service) Status(ctx context.Context, tenantID, id string) (*model.ExtractionRecord, error) {
	rec, err := s.store.GetExtraction(ctx, tenantID, id)
	return rec, apperr.Wrap(err, "screenshot: get extraction record")
}

// List returns the newest matching records, at most 50.
func (s *Service) List(ctx context.Context, tenantID string, f model.ExtractionFilter) ([]model.ExtractionRecord, error) {
	fe := apperr.FieldErrors{}
	if f.Shift != "" && !f.Shift.Valid() {
		fe.Add("shift", "must be day or night")
	}
	if f.Status != "" && !f.Status.Valid() {
		fe.Add("status", "unknown status")
	}
	if err := fe.Err(); err != nil {
		return nil, err
	}
	if f.Limit <= 0 || f.Limit > listLimit {
		f.Limit = listLimit
	}
	recs, err := s.store.ListExtractions(ctx, tenantID, f)
	return recs, apperr.Wrap(err, "screenshot: list extraction records")
}

// Verify replaces the extracted data with the user's corrections and marks
// the record completed, whatever its current status.
func (s *Service) Verify(ctx context.Context, tenantID, userID, id string, data map[string]string) (*model.ExtractionRecord, error) {
	if data == nil {
		return nil, apperr.Validation("invalid verification", map[string]string{"extractedData": "is required"})
	}
	rec, err := s.store.VerifyExtraction(ctx, tenantID, id, userID, data)
	return rec, apperr.Wrap(err, "screenshot: verify extraction")
}

// Delete removes the record and its image. A missing image is ignored.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	rec, err := s.store.GetExtraction(ctx, tenantID, id)
	if err != nil {
		return apperr.Wrap(err, "screenshot: get extraction record")
	}
	if err := s.store.DeleteExtraction(ctx, tenantID, id); err != nil {
		return apperr.Wrap(err, "screenshot: delete extraction record")
	}
	removeQuietly(rec.ImagePath)
	return nil
}
