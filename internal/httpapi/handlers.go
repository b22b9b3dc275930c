package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/weatherboard/internal/hub"
	"github.com/DoyleJ11/weatherboard/internal/room"
	"github.com/DoyleJ11/weatherboard/internal/store"
)

// Leaderboards is the diagnostic read path: every persisted leaderboard,
// keyed by storage key. The {room} in the URL only scopes the route.
func Leaderboards(st store.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		boards, err := st.List(ctx, store.KeyPrefix)
		if err != nil {
			logger.Error("list leaderboards", zap.Error(err))
			http.Error(w, "failed to read leaderboards", http.StatusInternalServerError)
			return
		}

		respondJSON(w, boards)
	}
}

// ResidentRooms lists the rooms currently held in memory.
func ResidentRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ids, ok := h.Rooms(ctx)
		if !ok {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		respondJSON(w, map[string][]string{"rooms": ids})
	}
}

// RoomState reports the live view of a resident room. It never creates one.
func RoomState(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		rm := h.Room(ctx, chi.URLParam(r, "room"))
		if rm == nil {
			http.Error(w, "room not resident", http.StatusNotFound)
			return
		}

		reply := make(chan room.View, 1)
		if !rm.Send(room.GetState{Reply: reply}) {
			http.Error(w, "room not resident", http.StatusNotFound)
			return
		}
		select {
		case view := <-reply:
			respondJSON(w, view)
		case <-rm.Done():
			http.Error(w, "room not resident", http.StatusNotFound)
		case <-ctx.Done():
			http.Error(w, "room did not answer", http.StatusServiceUnavailable)
		}
	}
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
