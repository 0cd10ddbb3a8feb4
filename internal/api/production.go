package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/loomtrack/internal/analytics"
	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
	"github.com/sells-group/loomtrack/internal/production"
)

func (h *handlers) submitShift(w http.ResponseWriter, r *http.Request) {
	var in production.ShiftEntry
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.Production.SubmitShift(r.Context(), tenant(r), user(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, rec)
}

func (h *handlers) updateShift(w http.ResponseWriter, r *http.Request) {
	var p production.ShiftPatch
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.Production.UpdateShift(r.Context(), tenant(r), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (h *handlers) deleteShift(w http.ResponseWriter, r *http.Request) {
	if err := h.Production.DeleteShift(r.Context(), tenant(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "production record deleted")
}

func (h *handlers) getShift(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Production.GetShift(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (h *handlers) listShifts(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := model.ShiftFilter{
		From:      q.date("startDate"),
		To:        q.date("endDate"),
		MachineID: q.str("machineId"),
		WorkerID:  q.str("workerId"),
		Shift:     model.Shift(q.str("shift")),
		Limit:     q.int("limit"),
	}
	if err := q.err(); err != nil {
		writeError(w, r, err)
		return
	}
	recs, err := h.Production.ListShifts(r.Context(), tenant(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, recs)
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Production.Stats(r.Context(), tenant(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, st)
}

func (h *handlers) dailySummary(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	date := q.date("date")
	if err := q.err(); err != nil {
		writeError(w, r, err)
		return
	}
	if date.IsZero() {
		date = model.NormalizeDate(h.now())
	}
	sum, err := h.Production.GetSummary(r.Context(), tenant(r), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sum == nil {
		writeError(w, r, apperr.NotFound("daily summary", date.Format(model.DateLayout)))
		return
	}
	writeData(w, http.StatusOK, sum)
}

func (h *handlers) daySnapshot(w http.ResponseWriter, r *http.Request) {
	date, err := model.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, r, apperr.Validation("invalid date", map[string]string{"date": "must be a date in YYYY-MM-DD form"}))
		return
	}
	snap, err := h.Production.DaySnapshot(r.Context(), tenant(r), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

func dateRange(r *http.Request) (model.DateRange, error) {
	q := newQuery(r)
	dr := model.DateRange{From: q.date("startDate"), To: q.date("endDate")}
	return dr, q.err()
}

func (h *handlers) listSummaries(w http.ResponseWriter, r *http.Request) {
	dr, err := dateRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sums, err := h.Production.ListSummaries(r.Context(), tenant(r), dr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sums)
}

func (h *handlers) resync(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	fe := apperr.FieldErrors{}
	var dr model.DateRange
	var err error
	if dr.From, err = model.ParseDate(body.StartDate); err != nil {
		fe.Add("startDate", "must be a date in YYYY-MM-DD form")
	}
	if dr.To, err = model.ParseDate(body.EndDate); err != nil {
		fe.Add("endDate", "must be a date in YYYY-MM-DD form")
	}
	if err := fe.Err(); err != nil {
		writeError(w, r, err)
		return
	}
	dr.From, dr.To = model.NormalizeDate(dr.From), model.NormalizeDate(dr.To)
	res, err := h.Production.Resync(r.Context(), tenant(r), dr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func rangeQuery(r *http.Request) (analytics.RangeQuery, error) {
	q := newQuery(r)
	rq := analytics.RangeQuery{From: q.date("startDate"), To: q.date("endDate"), Days: q.int("days")}
	return rq, q.err()
}

func (h *handlers) workerAnalytics(w http.ResponseWriter, r *http.Request) {
	rq, err := rangeQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := h.Analytics.WorkerAnalytics(r.Context(), tenant(r), chi.URLParam(r, "id"), rq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rep)
}

func (h *handlers) machineAnalytics(w http.ResponseWriter, r *http.Request) {
	rq, err := rangeQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := h.Analytics.MachineAnalytics(r.Context(), tenant(r), chi.URLParam(r, "id"), rq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rep)
}

func (h *handlers) electricityAnalytics(w http.ResponseWriter, r *http.Request) {
	rq, err := rangeQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := h.Analytics.ElectricityAnalytics(r.Context(), tenant(r), rq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rep)
}
