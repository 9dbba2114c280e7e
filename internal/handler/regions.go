package handler

import (
	"net/http"

	"github.com/kenvote/registry/internal/regions"
)

// RegionsHandler serves the region reference tree.
type RegionsHandler struct {
	loader *regions.Loader
}

// NewRegionsHandler creates a new RegionsHandler.
func NewRegionsHandler(loader *regions.Loader) *RegionsHandler {
	return &RegionsHandler{loader: loader}
}

// Get handles GET /regions.
func (h *RegionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tree, err := h.loader.Load(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, tree)
}
