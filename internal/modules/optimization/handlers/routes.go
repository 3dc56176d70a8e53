package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all optimizer routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimizer", func(r chi.Router) {
		r.Get("/", h.HandleGetStatus)
		r.Post("/frontier", h.HandleBuildFrontier)
		r.Post("/resample", h.HandleResample)
		r.Post("/optimize", h.HandleOptimize)
		r.Post("/compare", h.HandleCompare)
	})
}
