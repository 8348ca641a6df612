package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/pokecatch/game"
)

// HandleAdminSpawn forces a spawn. Optional query param species_id picks the
// species; otherwise the weighted draw decides. No-op (409) when a spawn is
// already active.
func (h *Handlers) HandleAdminSpawn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var speciesID *int
	if v := parseIntQuery(r, "species_id", 0); v > 0 {
		speciesID = &v
	}
	spawn, err := h.deps.Engine.SpawnOnce(r.Context(), speciesID)
	if err != nil {
		slog.Error("admin spawn failed", slog.Any("err", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if spawn == nil {
		http.Error(w, "a spawn is already active", http.StatusConflict)
		return
	}
	if h.deps.Queue != nil {
		h.deps.Queue.Enqueue(game.AnnounceSpawn(spawn))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"spawn_id":   spawn.ID,
		"species":    spawn.SpeciesName,
		"rarity":     string(spawn.Rarity),
		"expires_at": spawn.ExpiresAt,
	})
}

// HandleAdminSpawnClear force-expires the active spawn.
func (h *Handlers) HandleAdminSpawnClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cleared, err := h.deps.Engine.ClearSpawn(r.Context())
	if err != nil {
		slog.Error("admin spawn clear failed", slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"cleared": cleared})
}

// HandleAdminCooldownReset clears a participant's catch cooldown.
// Query param: username (required).
func (h *Handlers) HandleAdminCooldownReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "missing username", http.StatusBadRequest)
		return
	}
	h.deps.Engine.ResetCooldown(username)
	w.WriteHeader(http.StatusNoContent)
}
