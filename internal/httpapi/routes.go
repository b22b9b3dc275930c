package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/weatherboard/internal/hub"
	"github.com/DoyleJ11/weatherboard/internal/store"
	"github.com/DoyleJ11/weatherboard/internal/ws"
)

func SetupRoutes(h *hub.Hub, st store.Store, logger *zap.Logger) http.Handler {
	logger = logger.Named("http")
	r := chi.NewRouter()
	r.MethodNotAllowed(MethodNotAllowed)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/rooms", ResidentRooms(h))
	r.Get("/rooms/{room}", Leaderboards(st, logger))
	r.Get("/rooms/{room}/state", RoomState(h))
	r.Get("/rooms/{room}/ws", ws.Handler(h, logger))
	return r
}
