package handler

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"streamgate/internal/types"
)

// Model is one entry in the static model catalog.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"` // "model"
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the OpenAI-compatible catalog envelope.
type ModelList struct {
	Object string  `json:"object"` // "list"
	Data   []Model `json:"data"`
}

// ListModels returns the configured binding table as a model catalog.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	slugs := h.Bindings.Slugs()
	sort.Strings(slugs)

	created := time.Now().Unix()
	list := ModelList{Object: "list", Data: make([]Model, 0, len(slugs))}
	for _, slug := range slugs {
		list.Data = append(list.Data, Model{
			ID:      slug,
			Object:  "model",
			Created: created,
			OwnedBy: ProviderName,
		})
	}

	writeJSON(w, http.StatusOK, list)
}

// GetModel returns one catalog entry, 404 for ids not explicitly bound.
func (h *Handlers) GetModel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("model")
	if !h.Bindings.Known(id) {
		types.WriteError(w, http.StatusNotFound, types.ErrNotFound("model not found: "+id))
		return
	}

	writeJSON(w, http.StatusOK, Model{
		ID:      id,
		Object:  "model",
		Created: time.Now().Unix(),
		OwnedBy: ProviderName,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
