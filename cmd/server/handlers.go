package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ymiyake/contractintake"
	"github.com/ymiyake/contractintake/export"
	"github.com/ymiyake/contractintake/followup"
	"github.com/ymiyake/contractintake/loader"
)

// maxUploadBytes bounds multipart uploads of meeting notes.
const maxUploadBytes = 32 << 20

type handler struct {
	engine contractintake.Engine
}

func newHandler(engine contractintake.Engine) *handler {
	return &handler{engine: engine}
}

func (h *handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	view := h.engine.StartSession()
	writeJSON(w, http.StatusCreated, view)
}

func (h *handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.Session(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	view, err := h.engine.Extract(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleUpload accepts a multipart file, extracts its text, and runs
// extraction on the session in one step.
func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload")
		return
	}

	text, err := h.engine.LoadFile(data, header.Filename)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	view, err := h.engine.Extract(r.Context(), r.PathValue("id"), text)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) handleAnswers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answers []followup.Answer `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	outcome, err := h.engine.SubmitAnswers(r.Context(), r.PathValue("id"), req.Answers)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *handler) handleApply(w http.ResponseWriter, r *http.Request) {
	view, skipped, err := h.engine.Apply(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": view,
		"skipped": skipped,
	})
}

func (h *handler) handleSetField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	view, err := h.engine.SetField(r.PathValue("id"), req.Field, req.Value)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) handleExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Format string `json:"format"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	path, err := h.engine.Export(r.Context(), r.PathValue("id"), req.Format)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (h *handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	submissions, err := h.engine.History(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"submissions": submissions,
		"count":       len(submissions),
	})
}

func (h *handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ok, detail := h.engine.Healthcheck(r.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ok":     ok,
		"detail": detail,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, contractintake.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, contractintake.ErrSessionTerminated):
		return http.StatusConflict
	case errors.Is(err, export.ErrMissingRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, contractintake.ErrExportUnavailable),
		errors.Is(err, contractintake.ErrEmptyInput),
		errors.Is(err, loader.ErrEmptyFile),
		errors.Is(err, loader.ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
