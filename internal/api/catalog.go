package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/loomtrack/internal/catalog"
)

func (h *handlers) machineRoutes(r chi.Router) {
	r.Get("/", h.listMachines)
	r.Post("/", h.createMachine)
	r.Get("/{id}", h.getMachine)
	r.Put("/{id}", h.updateMachine)
	r.Delete("/{id}", h.deleteMachine)
}

func (h *handlers) workerRoutes(r chi.Router) {
	r.Get("/", h.listWorkers)
	r.Post("/", h.createWorker)
	r.Get("/{id}", h.getWorker)
	r.Put("/{id}", h.updateWorker)
	r.Delete("/{id}", h.deleteWorker)
}

func (h *handlers) listMachines(w http.ResponseWriter, r *http.Request) {
	ms, err := h.Catalog.ListMachines(r.Context(), tenant(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ms)
}

func (h *handlers) createMachine(w http.ResponseWriter, r *http.Request) {
	var in catalog.MachineInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.Catalog.CreateMachine(r.Context(), tenant(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, m)
}

func (h *handlers) getMachine(w http.ResponseWriter, r *http.Request) {
	m, err := h.Catalog.GetMachine(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, m)
}

func (h *handlers) updateMachine(w http.ResponseWriter, r *http.Request) {
	var in catalog.MachineInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.Catalog.UpdateMachine(r.Context(), tenant(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, m)
}

func (h *handlers) deleteMachine(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteMachine(r.Context(), tenant(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "machine deleted")
}

func (h *handlers) listWorkers(w http.ResponseWriter, r *http.Request) {
	ws, err := h.Catalog.ListWorkers(r.Context(), tenant(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ws)
}

func (h *handlers) createWorker(w http.ResponseWriter, r *http.Request) {
	var in catalog.WorkerInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	wk, err := h.Catalog.CreateWorker(r.Context(), tenant(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, wk)
}

func (h *handlers) getWorker(w http.ResponseWriter, r *http.Request) {
	wk, err := h.Catalog.GetWorker(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, wk)
}

func (h *handlers) updateWorker(w http.ResponseWriter, r *http.Request) {
	var in catalog.WorkerInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	wk, err := h.Catalog.UpdateWorker(r.Context(), tenant(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, wk)
}

func (h *handlers) deleteWorker(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteWorker(r.Context(), tenant(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "worker deleted")
}
