// Package game implements the spawn/catch engine: the species catalog and its
// rarity model, the weighted spawn draw, the atomic catch transaction, the
// per-user cooldown, the spawn scheduler, and the chat command dispatch.
package game

import (
	"context"
	"database/sql"
	"fmt"
)

// Rarity is the tier classification governing draw weight and catch difficulty.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityLegendary Rarity = "legendary"
)

// Weight returns the relative draw weight for the tier. Unknown tiers draw
// like commons rather than never spawning.
func (r Rarity) Weight() float64 {
	switch r {
	case RarityUncommon:
		return 0.6
	case RarityRare:
		return 0.2
	case RarityLegendary:
		return 0.05
	default:
		return 1.0
	}
}

// Species is immutable reference data seeded once at startup.
type Species struct {
	ID       int
	Name     string
	Rarity   Rarity
	BaseRate float64 // base catch success fraction in [0,1]
}

// defaultCatalog is the seeded species set, keyed by national dex number.
// Base rates follow the tier: commons are easy, legendaries are a long shot.
var defaultCatalog = []Species{
	{1, "Bulbasaur", RarityUncommon, 0.45},
	{4, "Charmander", RarityUncommon, 0.45},
	{7, "Squirtle", RarityUncommon, 0.45},
	{10, "Caterpie", RarityCommon, 0.7},
	{16, "Pidgey", RarityCommon, 0.7},
	{19, "Rattata", RarityCommon, 0.7},
	{21, "Spearow", RarityCommon, 0.65},
	{25, "Pikachu", RarityUncommon, 0.4},
	{27, "Sandshrew", RarityCommon, 0.6},
	{35, "Clefairy", RarityUncommon, 0.4},
	{37, "Vulpix", RarityUncommon, 0.4},
	{41, "Zubat", RarityCommon, 0.7},
	{43, "Oddish", RarityCommon, 0.65},
	{52, "Meowth", RarityCommon, 0.6},
	{54, "Psyduck", RarityCommon, 0.6},
	{58, "Growlithe", RarityUncommon, 0.4},
	{63, "Abra", RarityRare, 0.3},
	{66, "Machop", RarityUncommon, 0.45},
	{74, "Geodude", RarityCommon, 0.65},
	{77, "Ponyta", RarityUncommon, 0.4},
	{81, "Magnemite", RarityUncommon, 0.45},
	{92, "Gastly", RarityRare, 0.3},
	{95, "Onix", RarityRare, 0.25},
	{113, "Chansey", RarityRare, 0.2},
	{123, "Scyther", RarityRare, 0.25},
	{129, "Magikarp", RarityCommon, 0.9},
	{131, "Lapras", RarityRare, 0.2},
	{133, "Eevee", RarityRare, 0.3},
	{143, "Snorlax", RarityRare, 0.2},
	{147, "Dratini", RarityRare, 0.25},
	{144, "Articuno", RarityLegendary, 0.08},
	{145, "Zapdos", RarityLegendary, 0.08},
	{146, "Moltres", RarityLegendary, 0.08},
	{150, "Mewtwo", RarityLegendary, 0.05},
	{151, "Mew", RarityLegendary, 0.05},
}

// SeedSpecies inserts the default catalog rows that are not already present.
// Existing rows are left untouched so operators can tune rates in place.
func SeedSpecies(ctx context.Context, dbx *sql.DB) error {
	for _, sp := range defaultCatalog {
		if _, err := dbx.ExecContext(ctx,
			`INSERT INTO species (id, name, rarity, base_rate) VALUES ($1,$2,$3,$4) ON CONFLICT (id) DO NOTHING`,
			sp.ID, sp.Name, string(sp.Rarity), sp.BaseRate); err != nil {
			return fmt.Errorf("seed species %d (%s): %w", sp.ID, sp.Name, err)
		}
	}
	return nil
}

// LoadSpecies reads the full catalog in id order.
func LoadSpecies(ctx context.Context, dbx *sql.DB) ([]Species, error) {
	rows, err := dbx.QueryContext(ctx, `SELECT id, name, rarity, base_rate FROM species ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load species: %w", err)
	}
	defer rows.Close()
	var out []Species
	for rows.Next() {
		var sp Species
		var rarity string
		if err := rows.Scan(&sp.ID, &sp.Name, &rarity, &sp.BaseRate); err != nil {
			return nil, err
		}
		sp.Rarity = Rarity(rarity)
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("species catalog is empty")
	}
	return out, nil
}
