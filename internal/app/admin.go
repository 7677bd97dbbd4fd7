package app

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"riftvale/server/internal/world"
)

// adminCache is the read-only slice of the shared cache the diagnostics
// endpoints expose.
type adminCache interface {
	AreaMembers(ctx context.Context, areaID string) ([]string, error)
	ActorIDByName(ctx context.Context, name string) (string, bool, error)
	ActorSnapshot(ctx context.Context, actorID string) (world.Snapshot, bool, error)
}

// adminHandler serves operator lookups over the shared cache, so a shard can
// be inspected without attaching a game client.
type adminHandler struct {
	cache adminCache
	log   *zap.Logger
}

func newAdminHandler(cache adminCache, log *zap.Logger) *adminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &adminHandler{cache: cache, log: log}
}

type areaRosterResponse struct {
	AreaID string   `json:"areaId"`
	Actors []string `json:"actors"`
}

// serveArea answers GET /admin/area?id=<areaID> with the cached roster.
func (h *adminHandler) serveArea(w http.ResponseWriter, r *http.Request) {
	areaID := r.URL.Query().Get("id")
	if areaID == "" {
		http.Error(w, "missing area id", http.StatusBadRequest)
		return
	}
	actors, err := h.cache.AreaMembers(r.Context(), areaID)
	if err != nil {
		h.log.Warn("area roster read failed", zap.String("area", areaID), zap.Error(err))
		http.Error(w, "cache unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, areaRosterResponse{AreaID: areaID, Actors: actors})
}

// serveActor answers GET /admin/actor?id=<actorID> or ?name=<name> with the
// cached snapshot. Names resolve through the shared name lookup first.
func (h *adminHandler) serveActor(w http.ResponseWriter, r *http.Request) {
	actorID := r.URL.Query().Get("id")
	if actorID == "" {
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "missing actor id or name", http.StatusBadRequest)
			return
		}
		id, found, err := h.cache.ActorIDByName(r.Context(), name)
		if err != nil {
			h.log.Warn("name lookup failed", zap.String("name", name), zap.Error(err))
			http.Error(w, "cache unavailable", http.StatusBadGateway)
			return
		}
		if !found {
			http.Error(w, "unknown actor", http.StatusNotFound)
			return
		}
		actorID = id
	}

	snap, found, err := h.cache.ActorSnapshot(r.Context(), actorID)
	if err != nil {
		h.log.Warn("snapshot read failed", zap.String("actor", actorID), zap.Error(err))
		http.Error(w, "cache unavailable", http.StatusBadGateway)
		return
	}
	if !found {
		http.Error(w, "unknown actor", http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
