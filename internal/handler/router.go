package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/kudos-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса кудос.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/teammate/register", h.Register)
		r.Post("/teammate/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/teammate/balance", h.GetBalance)
			r.Get("/teammate/transactions", h.GetTransactions)

			r.Post("/teammate/awards", h.Award)
			r.Post("/teammate/moments", h.CelebrateMoment)
			r.Post("/teammate/kudos", h.GiveKudos)

			r.Get("/rewards", h.GetRewards)
			r.Post("/rewards", h.CreateReward)
			r.Delete("/rewards/{rewardID}", h.DeactivateReward)

			r.Post("/teammate/redemptions", h.CreateRedemption)
			r.Get("/teammate/redemptions", h.GetRedemptions)
			r.Post("/teammate/redemptions/{redemptionID}/cancel", h.CancelRedemption)
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

func idFromURL(r *http.Request, param string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
}
