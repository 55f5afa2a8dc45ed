package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/nattapongd/ecoschool-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.authLimiter.Middleware)

			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/logout", h.Logout)
			r.Get("/me", h.Me)

			r.Get("/good-deeds", h.GetGoodDeeds)
			r.Post("/good-deeds", h.CreateGoodDeed)
			r.Patch("/good-deeds/{id}", h.ReviewGoodDeed)

			r.Get("/garbage-transactions", h.GetGarbageTransactions)
			r.Post("/garbage-transactions", h.RecordGarbageDropoff)

			r.Post("/claim-qr", h.ClaimQR)
			r.Post("/qr-codes", h.GenerateDeedCode)

			r.Post("/issues", h.CreateIssue)
			r.Get("/issues", h.GetIssues)

			r.Get("/announcements", h.GetAnnouncements)
			r.Post("/announcements", h.CreateAnnouncement)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
