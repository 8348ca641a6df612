package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/pokecatch/config"
	"github.com/onnwee/pokecatch/game"
	"github.com/onnwee/pokecatch/oauth"
	"github.com/onnwee/pokecatch/testutil"
)

func newTestMux(t *testing.T) (http.Handler, *game.Engine, *sql.DB) {
	t.Helper()
	t.Setenv("ADMIN_TOKEN", "")
	t.Setenv("ADMIN_USERNAME", "")
	t.Setenv("ADMIN_PASSWORD", "")
	t.Setenv("RATE_LIMIT_ENABLED", "0")
	dbx := testutil.SetupTestDB(t)
	for _, table := range []string{"pokedex", "spawns", "participants"} {
		if _, err := dbx.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("clean %s: %v", table, err)
		}
	}
	eng, err := game.NewEngine(context.Background(), dbx, game.Options{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := &config.Config{}
	mux := NewMux(ctx, Deps{
		DB:     dbx,
		Cfg:    cfg,
		Engine: eng,
		Tokens: oauth.NewManager(dbx, "cid", "secret"),
	})
	return mux, eng, dbx
}

func TestHealthz(t *testing.T) {
	mux, _, _ := newTestMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("responses should carry a correlation id")
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	mux, _, dbx := newTestMux(t)
	if _, err := dbx.Exec(`INSERT INTO participants (username) VALUES ('ash')`); err != nil {
		t.Fatal(err)
	}
	if _, err := dbx.Exec(`INSERT INTO pokedex (username, species_id, count, shiny_count) VALUES ('ash', 10, 4, 1)`); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leaderboard?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var rows []struct {
		Username string `json:"username"`
		Total    int    `json:"total"`
		Shiny    int    `json:"shiny"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].Username != "ash" || rows[0].Total != 4 || rows[0].Shiny != 1 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestPokedexEndpoint(t *testing.T) {
	mux, _, dbx := newTestMux(t)
	if _, err := dbx.Exec(`INSERT INTO participants (username) VALUES ('misty')`); err != nil {
		t.Fatal(err)
	}
	if _, err := dbx.Exec(`INSERT INTO pokedex (username, species_id, count, shiny_count) VALUES ('misty', 54, 2, 0)`); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pokedex/misty", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var entries []struct {
		SpeciesID int    `json:"species_id"`
		Name      string `json:"name"`
		Count     int    `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "Psyduck" || entries[0].Count != 2 {
		t.Errorf("entries = %+v", entries)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pokedex/", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing username: status = %d, want 400", rec.Code)
	}
}

func TestSpawnEndpointAndAdminFlow(t *testing.T) {
	mux, _, _ := newTestMux(t)

	// No spawn yet.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spawn", nil))
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["active"] != false {
		t.Errorf("active = %v, want false", body["active"])
	}

	// Admin forces a specific species (auth unconfigured in tests).
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/spawn?species_id=25", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("admin spawn status = %d: %s", rec.Code, rec.Body.String())
	}
	var spawned map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&spawned); err != nil {
		t.Fatal(err)
	}
	if spawned["species"] != "Pikachu" {
		t.Errorf("species = %v, want Pikachu", spawned["species"])
	}

	// Second force while active conflicts.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/spawn", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("second admin spawn status = %d, want 409", rec.Code)
	}

	// The spawn shows up on the public endpoint.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spawn", nil))
	body = nil
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["active"] != true || body["species"] != "Pikachu" {
		t.Errorf("spawn body = %+v", body)
	}

	// Clear it.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/spawn/clear", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	var cleared map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&cleared); err != nil {
		t.Fatal(err)
	}
	if !cleared["cleared"] {
		t.Error("clear should report a cleared spawn")
	}
}

func TestStatusEndpoint(t *testing.T) {
	mux, _, _ := newTestMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"spawns_total", "spawns_captured", "participants"} {
		if _, ok := body[key]; !ok {
			t.Errorf("status missing %q", key)
		}
	}
}

func TestOAuthStartUnconfigured(t *testing.T) {
	mux, _, _ := newTestMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/twitch/start", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unconfigured oauth start status = %d, want 400", rec.Code)
	}
}

func TestAdminCooldownReset(t *testing.T) {
	mux, eng, _ := newTestMux(t)
	// Prime a cooldown, then reset it over HTTP.
	if _, err := eng.AttemptCatch(context.Background(), "ash", game.BallPoke); err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/cooldown/reset?username=ash", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("reset status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/cooldown/reset", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing username status = %d, want 400", rec.Code)
	}
}
