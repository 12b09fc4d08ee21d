package handler

import (
	"errors"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"timetravel/internal/auth"
	"timetravel/internal/capsule"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// multipart parts above this size spill to temp files
const formMemory = 32 << 20

type CapsuleHandler struct {
	Svc            *capsule.Service
	MaxUploadBytes int64
	Location       *time.Location
}

// fileSource adapts an uploaded form file to capsule.MediaSource.
type fileSource struct {
	fh *multipart.FileHeader
}

func (f fileSource) FileName() string { return f.fh.Filename }

func (f fileSource) ContentType() string {
	if ct := f.fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ct := mime.TypeByExtension(path.Ext(f.fh.Filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (f fileSource) Size() int64 { return f.fh.Size }

func (f fileSource) Open() (io.ReadCloser, error) { return f.fh.Open() }

func (h *CapsuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "bad multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	d := capsule.NewDraft()
	d.Name = r.FormValue("name")
	if v := strings.TrimSpace(r.FormValue("icon")); v != "" {
		d.Icon = v
	}
	if v := strings.TrimSpace(r.FormValue("color")); v != "" {
		d.Color = v
	}
	if v := strings.TrimSpace(r.FormValue("unlock_at")); v != "" {
		day, ok := capsule.ParseUnlockDate(v, h.Location)
		if !ok {
			http.Error(w, "invalid unlock_at (YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		d.UnlockDate = day
	}
	for _, m := range r.MultipartForm.Value["message"] {
		d.AddMessage(m)
	}
	for _, fh := range r.MultipartForm.File["media"] {
		d.AddMedia(fileSource{fh: fh})
	}

	id, err := h.Svc.CreateCapsule(r.Context(), uid, d)
	if err != nil {
		writeCapsuleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *CapsuleHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	status, err := capsule.ParseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		http.Error(w, "invalid status (all, locked, unlocked)", http.StatusBadRequest)
		return
	}

	views, err := h.Svc.List(r.Context(), uid, status, r.URL.Query().Get("q"))
	if err != nil {
		http.Error(w, "Failed to load capsules", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *CapsuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := capsuleID(w, r)
	if !ok {
		return
	}

	v, err := h.Svc.Get(r.Context(), uid, id)
	if err != nil {
		writeCapsuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *CapsuleHandler) Content(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := capsuleID(w, r)
	if !ok {
		return
	}

	c, err := h.Svc.Content(r.Context(), uid, id)
	if err != nil {
		writeCapsuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CapsuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := capsuleID(w, r)
	if !ok {
		return
	}

	if err := h.Svc.Delete(r.Context(), uid, id); err != nil {
		writeCapsuleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func capsuleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeCapsuleError(w http.ResponseWriter, err error) {
	var ve *capsule.ValidationError
	var ce *capsule.CreateError
	switch {
	case errors.As(err, &ve):
		http.Error(w, ve.Message, http.StatusBadRequest)
	case errors.As(err, &ce):
		http.Error(w, ce.UserMessage(), http.StatusBadGateway)
	case errors.Is(err, capsule.ErrNotFound):
		http.Error(w, "capsule not found", http.StatusNotFound)
	case errors.Is(err, capsule.ErrLocked):
		http.Error(w, "capsule is still locked", http.StatusLocked)
	default:
		log.Printf("capsule request: %v\n", err)
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}
