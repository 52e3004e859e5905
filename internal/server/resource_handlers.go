package server

import (
	"log/slog"
	"net/http"

	"github.com/ashita-ai/tracecrud/internal/resource"
)

// ResourceHandlers adapts HTTP requests to a resource.Service and maps its
// results to status codes and JSON bodies.
type ResourceHandlers[K comparable] struct {
	svc     *resource.Service[K]
	def     resource.Definition[K]
	logger  *slog.Logger
	maxBody int64
}

// NewResourceHandlers creates handlers for svc. maxBody caps request bodies;
// zero disables the cap.
func NewResourceHandlers[K comparable](svc *resource.Service[K], logger *slog.Logger, maxBody int64) *ResourceHandlers[K] {
	return &ResourceHandlers[K]{
		svc:     svc,
		def:     svc.Definition(),
		logger:  logger,
		maxBody: maxBody,
	}
}

// Register adds the five CRUD routes under /<name>.
func (h *ResourceHandlers[K]) Register(mux *http.ServeMux) {
	base := "/" + h.def.Name
	mux.HandleFunc("POST "+base, h.HandleCreate)
	mux.HandleFunc("GET "+base, h.HandleList)
	mux.HandleFunc("GET "+base+"/{id}", h.HandleGet)
	mux.HandleFunc("PUT "+base+"/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE "+base+"/{id}", h.HandleDelete)
}

type createdResponse[K comparable] struct {
	Message string `json:"message"`
	ID      K      `json:"id"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// HandleCreate handles POST /<name>.
func (h *ResourceHandlers[K]) HandleCreate(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(w, r, h.maxBody)
	if err != nil {
		handleDecodeError(w, err)
		return
	}

	res := h.svc.Create(r.Context(), fields)
	if !res.OK() {
		h.writeFailure(w, r, res.Kind(), res.Err())
		return
	}

	h.logSuccess(r, h.def.Label+" created", resource.OpCreate, res.Value())
	writeJSON(w, http.StatusCreated, createdResponse[K]{
		Message: h.def.Label + " created successfully",
		ID:      res.Value(),
	})
}

// HandleList handles GET /<name>.
func (h *ResourceHandlers[K]) HandleList(w http.ResponseWriter, r *http.Request) {
	res := h.svc.ReadAll(r.Context())
	if !res.OK() {
		h.writeFailure(w, r, res.Kind(), res.Err())
		return
	}

	h.logger.InfoContext(r.Context(), "Fetched "+h.def.Name,
		"operation", resource.OpReadAll,
		"count", len(res.Value()),
		"request_id", RequestIDFromContext(r.Context()),
	)
	writeJSON(w, http.StatusOK, res.Value())
}

// HandleGet handles GET /<name>/{id}.
func (h *ResourceHandlers[K]) HandleGet(w http.ResponseWriter, r *http.Request) {
	key, ok := h.parseKey(w, r)
	if !ok {
		return
	}

	res := h.svc.ReadOne(r.Context(), key)
	if !res.OK() {
		h.writeFailure(w, r, res.Kind(), res.Err())
		return
	}

	h.logSuccess(r, "Fetched "+h.def.Singular, resource.OpReadOne, key)
	writeJSON(w, http.StatusOK, res.Value())
}

// HandleUpdate handles PUT /<name>/{id}.
func (h *ResourceHandlers[K]) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	key, ok := h.parseKey(w, r)
	if !ok {
		return
	}
	fields, err := decodeFields(w, r, h.maxBody)
	if err != nil {
		handleDecodeError(w, err)
		return
	}

	res := h.svc.Update(r.Context(), key, fields)
	if !res.OK() {
		h.writeFailure(w, r, res.Kind(), res.Err())
		return
	}

	h.logSuccess(r, h.def.Label+" updated", resource.OpUpdate, key)
	writeJSON(w, http.StatusOK, messageResponse{Message: h.def.Label + " updated successfully"})
}

// HandleDelete handles DELETE /<name>/{id}.
func (h *ResourceHandlers[K]) HandleDelete(w http.ResponseWriter, r *http.Request) {
	key, ok := h.parseKey(w, r)
	if !ok {
		return
	}

	res := h.svc.Delete(r.Context(), key)
	if !res.OK() {
		h.writeFailure(w, r, res.Kind(), res.Err())
		return
	}

	h.logSuccess(r, h.def.Label+" deleted", resource.OpDelete, key)
	writeJSON(w, http.StatusOK, messageResponse{Message: h.def.Label + " deleted successfully"})
}

// HandleField returns a handler for GET /<name>/{id}/<field> that responds
// with {"<field>": value}.
func (h *ResourceHandlers[K]) HandleField(field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := h.parseKey(w, r)
		if !ok {
			return
		}

		res := h.svc.ReadOne(r.Context(), key)
		if !res.OK() {
			h.writeFailure(w, r, res.Kind(), res.Err())
			return
		}
		value, ok := res.Value().Fields[field]
		if !ok {
			writeError(w, http.StatusNotFound, "unknown field "+field)
			return
		}

		h.logSuccess(r, "Fetched "+h.def.Singular+" "+field, resource.OpReadOne, key)
		writeJSON(w, http.StatusOK, map[string]any{field: value})
	}
}

func (h *ResourceHandlers[K]) parseKey(w http.ResponseWriter, r *http.Request) (K, bool) {
	key, err := h.svc.ParseKey(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+h.def.Singular+" id")
		return key, false
	}
	return key, true
}

func (h *ResourceHandlers[K]) writeFailure(w http.ResponseWriter, r *http.Request, kind resource.Kind, err error) {
	switch kind {
	case resource.KindValidation:
		writeError(w, http.StatusBadRequest, err.Error())
	case resource.KindNotFound:
		writeError(w, http.StatusNotFound, h.def.Label+" not found")
	default:
		writeInternalError(h.logger, w, r, h.def.Name+" operation failed", err)
	}
}

// logSuccess runs only after the operation has completed successfully.
func (h *ResourceHandlers[K]) logSuccess(r *http.Request, msg, op string, key K) {
	h.logger.InfoContext(r.Context(), msg,
		"id", key,
		"operation", op,
		"resource", h.def.Name,
		"request_id", RequestIDFromContext(r.Context()),
	)
}
