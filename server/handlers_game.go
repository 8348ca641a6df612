package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HandleLeaderboard returns the top participants by capture totals.
// Query param: limit (default 10, capped at 100).
func (h *Handlers) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := parseIntQuery(r, "limit", 10)
	if limit > 100 {
		limit = 100
	}
	rows, err := h.deps.Engine.Leaderboard(r.Context(), limit)
	if err != nil {
		slog.Error("leaderboard query failed", slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	type entry struct {
		Username string `json:"username"`
		Total    int    `json:"total"`
		Shiny    int    `json:"shiny"`
	}
	out := make([]entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, entry{row.Username, row.Total, row.Shiny})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// HandlePokedex returns one participant's collection. Path: /pokedex/{username}.
func (h *Handlers) HandlePokedex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	username := strings.TrimPrefix(r.URL.Path, "/pokedex/")
	if username == "" || strings.Contains(username, "/") {
		http.Error(w, "missing username", http.StatusBadRequest)
		return
	}
	entries, err := h.deps.Engine.Pokedex(r.Context(), username)
	if err != nil {
		slog.Error("pokedex query failed", slog.String("username", username), slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	type entry struct {
		SpeciesID int    `json:"species_id"`
		Name      string `json:"name"`
		Count     int    `json:"count"`
		Shiny     int    `json:"shiny"`
	}
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, entry{e.SpeciesID, e.SpeciesName, e.Count, e.Shiny})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// HandleActiveSpawn reports the current catchable spawn, if any.
func (h *Handlers) HandleActiveSpawn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	spawn, err := h.deps.Engine.ActiveSpawn(r.Context())
	if err != nil {
		slog.Error("active spawn query failed", slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if spawn == nil {
		_ = json.NewEncoder(w).Encode(map[string]any{"active": false})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"active":     true,
		"species":    spawn.SpeciesName,
		"rarity":     string(spawn.Rarity),
		"expires_at": spawn.ExpiresAt.Format(time.RFC3339),
	})
}
