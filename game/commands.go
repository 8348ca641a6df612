package game

import (
	"context"
	"fmt"
	"strings"
)

// HandleCommand is the single chat-command entry point. It dispatches
// !catch, !pokedex and !leaderboard and returns a reply string, or "" when
// the message is not a command for us.
func (e *Engine) HandleCommand(ctx context.Context, username, text string) (string, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "!") {
		return "", nil
	}
	switch strings.ToLower(fields[0]) {
	case "!catch":
		ball := BallPoke
		if len(fields) > 1 {
			ball = ParseBall(fields[1])
		}
		return e.replyCatch(ctx, username, ball)
	case "!pokedex", "!dex":
		return e.replyPokedex(ctx, username)
	case "!leaderboard", "!top":
		return e.replyLeaderboard(ctx)
	default:
		return "", nil
	}
}

func (e *Engine) replyCatch(ctx context.Context, username string, ball Ball) (string, error) {
	res, err := e.AttemptCatch(ctx, username, ball)
	if err != nil {
		return "", err
	}
	switch res.Outcome {
	case OutcomeSuccess:
		if res.Shiny {
			return fmt.Sprintf("@%s caught a ✨ SHINY %s ✨!", username, res.SpeciesName), nil
		}
		return fmt.Sprintf("@%s caught %s!", username, res.SpeciesName), nil
	case OutcomeFailed:
		return fmt.Sprintf("@%s the %s broke free!", username, res.SpeciesName), nil
	case OutcomeAlreadyCaptured:
		return fmt.Sprintf("@%s too slow, %s was already caught!", username, res.SpeciesName), nil
	case OutcomeCooldown:
		return fmt.Sprintf("@%s easy there, try again in %ds.", username, int(res.Retry.Seconds())+1), nil
	default:
		return fmt.Sprintf("@%s there's nothing to catch right now.", username), nil
	}
}

func (e *Engine) replyPokedex(ctx context.Context, username string) (string, error) {
	entries, err := e.Pokedex(ctx, username)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return fmt.Sprintf("@%s your pokédex is empty. Wait for a spawn and !catch it!", username), nil
	}
	total, shiny := 0, 0
	parts := make([]string, 0, len(entries))
	for _, en := range entries {
		total += en.Count
		shiny += en.Shiny
		parts = append(parts, fmt.Sprintf("%s x%d", en.SpeciesName, en.Count))
	}
	reply := fmt.Sprintf("@%s pokédex: %d caught (%d species", username, total, len(entries))
	if shiny > 0 {
		reply += fmt.Sprintf(", %d shiny", shiny)
	}
	reply += ") — " + strings.Join(parts, ", ")
	return reply, nil
}

func (e *Engine) replyLeaderboard(ctx context.Context) (string, error) {
	rows, err := e.Leaderboard(ctx, 5)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "No captures yet. Be the first!", nil
	}
	parts := make([]string, 0, len(rows))
	for i, r := range rows {
		part := fmt.Sprintf("%d. %s (%d", i+1, r.Username, r.Total)
		if r.Shiny > 0 {
			part += fmt.Sprintf(", %d✨", r.Shiny)
		}
		part += ")"
		parts = append(parts, part)
	}
	return "Top trainers: " + strings.Join(parts, " | "), nil
}

// AnnounceSpawn renders the broadcast line for a fresh spawn.
func AnnounceSpawn(sp *Spawn) string {
	article := "A"
	switch sp.Rarity {
	case RarityLegendary:
		article = "A LEGENDARY"
	case RarityRare:
		article = "A rare"
	}
	secs := int(sp.ExpiresAt.Sub(sp.CreatedAt).Seconds())
	return fmt.Sprintf("%s wild %s appeared! Type !catch to grab it before it flees (%ds).", article, sp.SpeciesName, secs)
}
