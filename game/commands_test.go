package game

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestAnnounceSpawn(t *testing.T) {
	now := time.Now()
	sp := &Spawn{
		SpeciesName: "Pidgey",
		Rarity:      RarityCommon,
		CreatedAt:   now,
		ExpiresAt:   now.Add(2 * time.Minute),
	}
	got := AnnounceSpawn(sp)
	if !strings.Contains(got, "Pidgey") {
		t.Errorf("announcement %q missing species name", got)
	}
	if !strings.Contains(got, "120s") {
		t.Errorf("announcement %q missing flee window", got)
	}

	sp.Rarity = RarityLegendary
	sp.SpeciesName = "Mewtwo"
	if got := AnnounceSpawn(sp); !strings.HasPrefix(got, "A LEGENDARY") {
		t.Errorf("legendary announcement %q should call it out", got)
	}
}

func TestHandleCommandIgnoresNonCommands(t *testing.T) {
	eng := &Engine{} // dispatch happens before any db access
	for _, text := range []string{"", "hello chat", "catch it!", "   "} {
		reply, err := eng.HandleCommand(context.Background(), "ash", text)
		if err != nil {
			t.Fatalf("HandleCommand(%q): %v", text, err)
		}
		if reply != "" {
			t.Errorf("HandleCommand(%q) = %q, want no reply", text, reply)
		}
	}
}

func TestHandleCommandUnknownCommand(t *testing.T) {
	eng := &Engine{}
	reply, err := eng.HandleCommand(context.Background(), "ash", "!dance")
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if reply != "" {
		t.Errorf("unknown command produced reply %q", reply)
	}
}

func TestHandleCatchCommand(t *testing.T) {
	eng, _ := newTestEngine(t, Options{})
	forceSpawn(t, eng, 10)
	eng.catchRoll = func() float64 { return 0.0 }
	eng.shinyRoll = func() float64 { return 0.99 }

	reply, err := eng.HandleCommand(context.Background(), "ash", "!catch")
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if !strings.Contains(reply, "caught Caterpie") {
		t.Errorf("reply = %q, want a caught Caterpie line", reply)
	}
}

func TestHandleCatchCommandWithBallArg(t *testing.T) {
	eng, _ := newTestEngine(t, Options{})
	forceSpawn(t, eng, 150) // base rate 0.05
	eng.catchRoll = func() float64 { return 0.5 }
	eng.shinyRoll = func() float64 { return 0.99 }

	reply, err := eng.HandleCommand(context.Background(), "ash", "!catch master")
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if !strings.Contains(reply, "caught Mewtwo") {
		t.Errorf("reply = %q, want a caught Mewtwo line", reply)
	}
}

func TestHandlePokedexAndLeaderboardCommands(t *testing.T) {
	eng, _ := newTestEngine(t, Options{})
	forceSpawn(t, eng, 10)
	eng.catchRoll = func() float64 { return 0.0 }
	eng.shinyRoll = func() float64 { return 0.99 }
	if _, err := eng.HandleCommand(context.Background(), "ash", "!catch"); err != nil {
		t.Fatal(err)
	}

	reply, err := eng.HandleCommand(context.Background(), "ash", "!pokedex")
	if err != nil {
		t.Fatalf("pokedex: %v", err)
	}
	if !strings.Contains(reply, "Caterpie x1") {
		t.Errorf("pokedex reply = %q, want Caterpie x1", reply)
	}

	reply, err = eng.HandleCommand(context.Background(), "misty", "!leaderboard")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if !strings.Contains(reply, "ash (1") {
		t.Errorf("leaderboard reply = %q, want ash with 1 capture", reply)
	}
}

func TestHandlePokedexEmpty(t *testing.T) {
	eng, _ := newTestEngine(t, Options{})
	reply, err := eng.HandleCommand(context.Background(), "newbie", "!dex")
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if !strings.Contains(reply, "empty") {
		t.Errorf("reply = %q, want empty-pokedex message", reply)
	}
}
