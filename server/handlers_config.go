package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// HandleAdminConfig handles GET and PUT requests for safe configuration keys.
func (h *Handlers) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	// Only allow GET/PUT for known keys; secrets must not be exposed here.
	safeKeys := map[string]bool{
		"LOG_LEVEL":          true,
		"LOG_FORMAT":         true,
		"SPAWN_MIN_INTERVAL": true,
		"SPAWN_MAX_INTERVAL": true,
		"SPAWN_DURATION":     true,
		"CATCH_COOLDOWN":     true,
		"SHINY_RATE":         true,
		"SEND_SPACING":       true,
		"SEND_ATTEMPTS":      true,
	}
	switch r.Method {
	case http.MethodGet:
		// Return safe keys with values from kv override if present, else env
		out := map[string]string{}
		for k := range safeKeys {
			var v string
			_ = h.db.QueryRowContext(r.Context(), `SELECT value FROM kv WHERE key=$1`, "cfg:"+k).Scan(&v)
			if v == "" {
				v = os.Getenv(k)
			}
			if v != "" {
				out[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodPut:
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", 400)
			return
		}
		for k, v := range body {
			if !safeKeys[k] {
				continue
			}
			if _, err := h.db.ExecContext(
				r.Context(),
				`INSERT INTO kv (key,value,updated_at) VALUES ($1,$2,NOW()) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
				"cfg:"+k,
				strings.TrimSpace(v),
			); err != nil {
				slog.Error("failed to update config", slog.String("key", k), slog.Any("err", err))
				http.Error(w, "failed to update config", http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleStatus returns a lightweight status summary: spawn state, capture
// totals, queue depth, job heartbeats, chat connection phase.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	resp := map[string]any{}

	// Spawn and capture counts
	var totalSpawns, captured, participants int
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM spawns`).Scan(&totalSpawns)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM spawns WHERE captured_by IS NOT NULL`).Scan(&captured)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants`).Scan(&participants)
	resp["spawns_total"] = totalSpawns
	resp["spawns_captured"] = captured
	resp["participants"] = participants

	if spawn, err := h.deps.Engine.ActiveSpawn(ctx); err == nil && spawn != nil {
		resp["active_spawn"] = map[string]any{
			"species":    spawn.SpeciesName,
			"rarity":     string(spawn.Rarity),
			"expires_at": spawn.ExpiresAt,
		}
	}

	if h.deps.Queue != nil {
		resp["outbound_queue_depth"] = h.deps.Queue.Depth()
	}
	if h.deps.ChatState != nil {
		resp["chat_state"] = h.deps.ChatState()
	}

	// Job heartbeats
	for _, job := range []string{"spawn_scheduler", "outbound"} {
		var last string
		_ = h.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, "job_"+job+"_last").Scan(&last)
		if last != "" {
			resp["job_"+job+"_last"] = last
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
