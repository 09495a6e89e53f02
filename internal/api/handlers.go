package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/kuitang/notes-api/internal/errs"
	"github.com/kuitang/notes-api/internal/notes"
	"github.com/kuitang/notes-api/internal/obs"
)

const (
	// DefaultMaxBodyBytes caps request bodies when the handler is built with 0.
	DefaultMaxBodyBytes = 1 << 20

	MsgInvalidJSON  = "Invalid JSON body"
	MsgBodyTooLarge = "Request body too large"
)

// Handler wraps the notes service and provides HTTP handlers
type Handler struct {
	notesService *notes.Service
	maxBodyBytes int64
}

// NewHandler creates a new API handler with the given notes service.
func NewHandler(notesService *notes.Service, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{notesService: notesService, maxBodyBytes: maxBodyBytes}
}

// RegisterRoutes registers all notes API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /notes", h.ListNotes)
	mux.HandleFunc("GET /notes/{id}", h.GetNote)
	mux.HandleFunc("GET /notes/{id}/html", h.GetNoteHTML)
	mux.HandleFunc("POST /notes", h.CreateNote)
	mux.HandleFunc("PUT /notes/{id}", h.UpdateNote)
	mux.HandleFunc("DELETE /notes/{id}", h.DeleteNote)
	mux.HandleFunc("GET /healthz", h.Health)
}

// ListNotes handles GET /notes - returns every note, or those whose title
// contains ?searchTerm=, oldest first.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	result, err := h.notesService.List(r.Context(), r.URL.Query().Get("searchTerm"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetNote handles GET /notes/{id} - returns a single note by ID
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notesService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// GetNoteHTML handles GET /notes/{id}/html - the note content rendered from
// Markdown to sanitized HTML.
func (h *Handler) GetNoteHTML(w http.ResponseWriter, r *http.Request) {
	note, err := h.notesService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	w.Write(notes.RenderHTML(note.Content))
}

// CreateNote handles POST /notes - creates a new note
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var params notes.CreateNoteParams
	if err := h.decodeBody(w, r, &params); err != nil {
		writeServiceError(w, r, err)
		return
	}

	note, err := h.notesService.Create(r.Context(), params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/notes/"+url.PathEscape(note.ID))
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /notes/{id} - updates an existing note
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.notesService.CheckID(id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	var params notes.UpdateNoteParams
	if err := h.decodeBody(w, r, &params); err != nil {
		writeServiceError(w, r, err)
		return
	}

	note, err := h.notesService.Update(r.Context(), id, params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /notes/{id} - deletes a note
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.notesService.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /healthz - 200 when the store answers a ping.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.notesService.Ping(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody reads a single JSON value into dst. An empty body leaves dst zero.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return errs.Wrap(errs.InvalidArgument, MsgBodyTooLarge, err)
		case errors.Is(err, io.EOF):
			// An empty body decodes to the zero value; field checks reject it.
			return nil
		default:
			return errs.Wrap(errs.InvalidArgument, MsgInvalidJSON, err)
		}
	}
	if dec.More() {
		return errs.New(errs.InvalidArgument, MsgInvalidJSON)
	}
	return nil
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps a coded error to its status. Internal causes are
// logged, never echoed.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		obs.From(r.Context()).Error("request_failed", "pkg", "api", "method", r.Method, "path", r.URL.Path, "code", string(code), "error", err)
	}
	writeError(w, status, errs.MessageOf(err))
}
