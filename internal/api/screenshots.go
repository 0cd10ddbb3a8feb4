package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
	"github.com/sells-group/loomtrack/internal/screenshot"
)

// multipartOverhead covers form fields and boundaries around the image.
const multipartOverhead = 1 << 20

func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	limit := h.Screenshots.MaxUploadBytes() + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, apperr.Validation("invalid upload", map[string]string{"screenshot": "file is too large"}))
			return
		}
		writeError(w, r, apperr.Validation("invalid upload", map[string]string{"body": "must be multipart form data"}))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	req := screenshot.UploadRequest{
		TemplateID: r.FormValue("templateId"),
		MachineID:  r.FormValue("machineId"),
		Shift:      model.Shift(r.FormValue("shift")),
		Date:       r.FormValue("date"),
	}
	file, hdr, err := r.FormFile("screenshot")
	if err == nil {
		defer file.Close() //nolint:errcheck
		req.Body, req.Filename, req.Size = file, hdr.Filename, hdr.Size
	}

	res, err := h.Screenshots.Upload(r.Context(), tenant(r), user(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusAccepted, res)
}

func (h *handlers) extractionStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Screenshots.Status(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (h *handlers) listExtractions(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := model.ExtractionFilter{
		Date:      q.date("date"),
		Shift:     model.Shift(q.str("shift")),
		MachineID: q.str("machineId"),
		Status:    model.ExtractionStatus(q.str("status")),
		Limit:     q.int("limit"),
	}
	if err := q.err(); err != nil {
		writeError(w, r, err)
		return
	}
	recs, err := h.Screenshots.List(r.Context(), tenant(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, recs)
}

func (h *handlers) verifyExtraction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ExtractedData map[string]string `json:"extractedData"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.Screenshots.Verify(r.Context(), tenant(r), user(r), chi.URLParam(r, "id"), body.ExtractedData)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (h *handlers) deleteExtraction(w http.ResponseWriter, r *http.Request) {
	if err := h.Screenshots.Delete(r.Context(), tenant(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "extraction record deleted")
}

func (h *handlers) listTemplates(w http.ResponseWriter, r *http.Request) {
	ts, err := h.Templates.List(r.Context(), tenant(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ts)
}

func (h *handlers) createTemplate(w http.ResponseWriter, r *http.Request) {
	var in screenshot.TemplateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.Templates.Create(r.Context(), tenant(r), user(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, t)
}

func (h *handlers) defaultTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.Templates.Default(r.Context(), tenant(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

func (h *handlers) getTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.Templates.Get(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

func (h *handlers) updateTemplate(w http.ResponseWriter, r *http.Request) {
	var in screenshot.TemplateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.Templates.Update(r.Context(), tenant(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

func (h *handlers) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.Templates.Delete(r.Context(), tenant(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "template deleted")
}

func (h *handlers) listNameMappings(w http.ResponseWriter, r *http.Request) {
	ms, err := h.Names.List(r.Context(), tenant(r), newQuery(r).bool("activeOnly"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ms)
}

func (h *handlers) createNameMapping(w http.ResponseWriter, r *http.Request) {
	var in screenshot.NameMappingInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.Names.Create(r.Context(), tenant(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, m)
}

func (h *handlers) getNameMapping(w http.ResponseWriter, r *http.Request) {
	m, err := h.Names.Get(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, m)
}

func (h *handlers) updateNameMapping(w http.ResponseWriter, r *http.Request) {
	var in screenshot.NameMappingInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.Names.Update(r.Context(), tenant(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, m)
}

func (h *handlers) deleteNameMapping(w http.ResponseWriter, r *http.Request) {
	if err := h.Names.Delete(r.Context(), tenant(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "worker mapping deleted")
}
