package game

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	mrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/pokecatch/telemetry"
)

// maxCatchChance caps the success probability regardless of ball modifier.
const maxCatchChance = 0.99

// Outcome classifies a catch attempt for the caller.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeFailed          Outcome = "failed"
	OutcomeNoSpawn         Outcome = "no_spawn"
	OutcomeAlreadyCaptured Outcome = "already_captured"
	OutcomeCooldown        Outcome = "cooldown"
)

// Spawn is one catchable instance of a species. Rows are never deleted; a
// spawn becomes inert once captured or expired.
type Spawn struct {
	ID          string
	SpeciesID   int
	SpeciesName string
	Rarity      Rarity
	CreatedAt   time.Time
	ExpiresAt   time.Time
	CapturedBy  string
	CapturedAt  *time.Time
}

// CatchResult reports one attempt. Roll and Chance are diagnostics for logs,
// not for display.
type CatchResult struct {
	Outcome     Outcome
	SpeciesName string
	Shiny       bool
	Roll        float64
	Chance      float64
	Retry       time.Duration // populated for OutcomeCooldown
}

// LeaderboardRow aggregates one participant's captures.
type LeaderboardRow struct {
	Username string
	Total    int
	Shiny    int
}

// PokedexEntry is one participant/species collection record.
type PokedexEntry struct {
	SpeciesID   int
	SpeciesName string
	Count       int
	Shiny       int
}

// Options tunes an Engine.
type Options struct {
	SpawnDuration time.Duration
	CatchCooldown time.Duration
	ShinyRate     float64
	Rand          *mrand.Rand // nil gets a crypto-seeded source
	Clock         Clock       // nil gets the real clock
}

// Engine owns the single active spawn and the catch transaction. All state
// races are settled by the database: the active-spawn lookup and the capture
// write happen inside one transaction holding a row lock, so at most one
// concurrent attempt can observe the spawn as capturable and commit.
type Engine struct {
	dbx      *sql.DB
	picker   *Picker
	cooldown *CooldownTable
	byID     map[int]Species

	spawnDuration time.Duration
	shinyRate     float64
	clk           Clock

	spawnMu sync.Mutex // serializes SpawnOnce's check-then-insert

	catchRoll func() float64 // uniform [0,1) draws, overridable in tests
	shinyRoll func() float64
}

// NewEngine seeds and loads the species catalog and wires the engine.
func NewEngine(ctx context.Context, dbx *sql.DB, opts Options) (*Engine, error) {
	if opts.SpawnDuration <= 0 {
		opts.SpawnDuration = 2 * time.Minute
	}
	if opts.CatchCooldown <= 0 {
		opts.CatchCooldown = 15 * time.Second
	}
	if opts.ShinyRate <= 0 {
		opts.ShinyRate = 0.01
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if err := SeedSpecies(ctx, dbx); err != nil {
		return nil, err
	}
	species, err := LoadSpecies(ctx, dbx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]Species, len(species))
	for _, sp := range species {
		byID[sp.ID] = sp
	}
	picker := NewPicker(species, opts.Rand)
	e := &Engine{
		dbx:           dbx,
		picker:        picker,
		cooldown:      NewCooldownTable(opts.CatchCooldown, opts.Clock),
		byID:          byID,
		spawnDuration: opts.SpawnDuration,
		shinyRate:     opts.ShinyRate,
		clk:           opts.Clock,
	}
	e.catchRoll = picker.Roll
	e.shinyRoll = picker.Roll
	return e, nil
}

// ActiveSpawn returns the unique non-expired, uncaptured spawn, or nil.
func (e *Engine) ActiveSpawn(ctx context.Context) (*Spawn, error) {
	row := e.dbx.QueryRowContext(ctx, `SELECT s.id, s.species_id, sp.name, sp.rarity, s.created_at, s.expires_at
		FROM spawns s JOIN species sp ON sp.id = s.species_id
		WHERE s.captured_by IS NULL AND s.expires_at > NOW()
		ORDER BY s.created_at DESC LIMIT 1`)
	var out Spawn
	var rarity string
	err := row.Scan(&out.ID, &out.SpeciesID, &out.SpeciesName, &rarity, &out.CreatedAt, &out.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active spawn lookup: %w", err)
	}
	out.Rarity = Rarity(rarity)
	return &out, nil
}

// SpawnOnce creates a new spawn unless one is already active, in which case it
// returns (nil, nil). speciesID forces the species (admin trigger); when nil
// the rarity-weighted draw decides. The active check and the insert hold
// spawnMu so two concurrent callers (scheduler tick, admin trigger) can't
// both observe no active spawn and double-insert. Catch attempts need no
// such lock: this path only ever inserts, never mutates.
func (e *Engine) SpawnOnce(ctx context.Context, speciesID *int) (*Spawn, error) {
	e.spawnMu.Lock()
	defer e.spawnMu.Unlock()

	active, err := e.ActiveSpawn(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, nil
	}

	var sp Species
	if speciesID != nil {
		var ok bool
		if sp, ok = e.byID[*speciesID]; !ok {
			return nil, fmt.Errorf("unknown species id %d", *speciesID)
		}
	} else {
		sp = e.picker.Pick()
	}

	now := e.clk.Now().UTC()
	spawn := &Spawn{
		ID:          uuid.NewString(),
		SpeciesID:   sp.ID,
		SpeciesName: sp.Name,
		Rarity:      sp.Rarity,
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.spawnDuration),
	}
	if _, err := e.dbx.ExecContext(ctx,
		`INSERT INTO spawns (id, species_id, created_at, expires_at) VALUES ($1,$2,$3,$4)`,
		spawn.ID, spawn.SpeciesID, spawn.CreatedAt, spawn.ExpiresAt); err != nil {
		return nil, fmt.Errorf("insert spawn: %w", err)
	}
	if telemetry.SpawnsCreated != nil {
		telemetry.SpawnsCreated.Inc()
	}
	telemetry.SetSpawnActive(true)
	slog.Info("spawn created", slog.String("spawn_id", spawn.ID), slog.String("species", sp.Name), slog.String("rarity", string(sp.Rarity)), slog.Time("expires_at", spawn.ExpiresAt))
	return spawn, nil
}

// AttemptCatch executes one participant's bid for the active spawn.
//
// The cooldown is checked (and its timestamp refreshed, even on rejection or
// error) before the transaction. Inside the transaction the active spawn row
// is locked with FOR UPDATE; the capture write is the only mutation ever
// applied to a spawn row, which is what guarantees at most one captor.
func (e *Engine) AttemptCatch(ctx context.Context, username string, ball Ball) (*CatchResult, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, errors.New("empty username")
	}
	if telemetry.CatchAttempts != nil {
		telemetry.CatchAttempts.Inc()
	}
	if ok, remaining := e.cooldown.Try(username); !ok {
		return &CatchResult{Outcome: OutcomeCooldown, Retry: remaining}, nil
	}

	start := time.Now()
	res, err := e.attemptCatchTx(ctx, username, ball)
	if telemetry.CatchDuration != nil {
		telemetry.CatchDuration.Observe(time.Since(start).Seconds())
	}
	return res, err
}

func (e *Engine) attemptCatchTx(ctx context.Context, username string, ball Ball) (*CatchResult, error) {
	tx, err := e.dbx.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin catch tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var spawnID string
	var speciesID int
	var speciesName string
	var baseRate float64
	err = tx.QueryRowContext(ctx, `SELECT s.id, s.species_id, sp.name, sp.base_rate
		FROM spawns s JOIN species sp ON sp.id = s.species_id
		WHERE s.captured_by IS NULL AND s.expires_at > NOW()
		ORDER BY s.created_at DESC LIMIT 1
		FOR UPDATE OF s`).Scan(&spawnID, &speciesID, &speciesName, &baseRate)
	if err == sql.ErrNoRows {
		return e.classifyMissingSpawn(ctx, tx)
	}
	if err != nil {
		return nil, fmt.Errorf("lock active spawn: %w", err)
	}

	chance := math.Min(maxCatchChance, baseRate*ball.Modifier())
	roll := e.catchRoll()
	shiny := e.shinyRoll() < e.shinyRate

	if roll >= chance {
		// Miss: no writes to undo, but abort explicitly so no partial state survives.
		_ = tx.Rollback()
		return &CatchResult{Outcome: OutcomeFailed, SpeciesName: speciesName, Roll: roll, Chance: chance}, nil
	}

	now := e.clk.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE spawns SET captured_by=$1, captured_at=$2 WHERE id=$3 AND captured_by IS NULL`,
		username, now, spawnID); err != nil {
		return nil, fmt.Errorf("mark spawn captured: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO participants (username) VALUES ($1) ON CONFLICT (username) DO NOTHING`,
		username); err != nil {
		return nil, fmt.Errorf("upsert participant: %w", err)
	}
	shinyInc := 0
	if shiny {
		shinyInc = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pokedex (username, species_id, count, shiny_count) VALUES ($1,$2,1,$3)
		 ON CONFLICT (username, species_id) DO UPDATE SET count = pokedex.count + 1, shiny_count = pokedex.shiny_count + EXCLUDED.shiny_count`,
		username, speciesID, shinyInc); err != nil {
		return nil, fmt.Errorf("increment pokedex: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit catch: %w", err)
	}
	committed = true

	if telemetry.CatchSuccesses != nil {
		telemetry.CatchSuccesses.Inc()
	}
	if shiny && telemetry.ShinyCaptures != nil {
		telemetry.ShinyCaptures.Inc()
	}
	telemetry.SetSpawnActive(false)
	slog.Info("spawn captured",
		slog.String("spawn_id", spawnID), slog.String("species", speciesName),
		slog.String("username", username), slog.Bool("shiny", shiny))
	return &CatchResult{Outcome: OutcomeSuccess, SpeciesName: speciesName, Shiny: shiny, Roll: roll, Chance: chance}, nil
}

// classifyMissingSpawn distinguishes "nothing spawned" from "you lost the race":
// when the latest spawn is captured but would still be live, the participant
// just missed it.
func (e *Engine) classifyMissingSpawn(ctx context.Context, tx *sql.Tx) (*CatchResult, error) {
	var capturedBy sql.NullString
	var speciesName string
	var expiresAt time.Time
	err := tx.QueryRowContext(ctx, `SELECT s.captured_by, sp.name, s.expires_at
		FROM spawns s JOIN species sp ON sp.id = s.species_id
		ORDER BY s.created_at DESC LIMIT 1`).Scan(&capturedBy, &speciesName, &expiresAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("inspect latest spawn: %w", err)
	}
	if err == nil && capturedBy.Valid && expiresAt.After(e.clk.Now()) {
		return &CatchResult{Outcome: OutcomeAlreadyCaptured, SpeciesName: speciesName}, nil
	}
	return &CatchResult{Outcome: OutcomeNoSpawn}, nil
}

// ClearSpawn force-expires the active spawn (administrative action). Returns
// true when a spawn was cleared.
func (e *Engine) ClearSpawn(ctx context.Context) (bool, error) {
	res, err := e.dbx.ExecContext(ctx,
		`UPDATE spawns SET expires_at = NOW() WHERE captured_by IS NULL AND expires_at > NOW()`)
	if err != nil {
		return false, fmt.Errorf("clear spawn: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		telemetry.SetSpawnActive(false)
	}
	return n > 0, nil
}

// Leaderboard returns the top participants by total captures, shiny totals
// included, username as the stable tiebreaker.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := e.dbx.QueryContext(ctx, `SELECT username, SUM(count) AS total, SUM(shiny_count) AS shiny
		FROM pokedex GROUP BY username ORDER BY total DESC, username ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()
	var out []LeaderboardRow
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.Username, &r.Total, &r.Shiny); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Pokedex returns all collection entries for a participant, species names included.
func (e *Engine) Pokedex(ctx context.Context, username string) ([]PokedexEntry, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	rows, err := e.dbx.QueryContext(ctx, `SELECT p.species_id, sp.name, p.count, p.shiny_count
		FROM pokedex p JOIN species sp ON sp.id = p.species_id
		WHERE p.username = $1 ORDER BY p.species_id`, username)
	if err != nil {
		return nil, fmt.Errorf("pokedex: %w", err)
	}
	defer rows.Close()
	var out []PokedexEntry
	for rows.Next() {
		var e PokedexEntry
		if err := rows.Scan(&e.SpeciesID, &e.SpeciesName, &e.Count, &e.Shiny); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResetCooldown clears a participant's attempt cooldown (admin convenience).
func (e *Engine) ResetCooldown(username string) {
	e.cooldown.Reset(strings.ToLower(strings.TrimSpace(username)))
}
