package devserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func SetupRoutes(h *Hub, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", Handler(h, log))
	r.Get("/healthz", Healthz)
	return r
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
