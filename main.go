// Command pokecatch is the main entrypoint for the chat catch game.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the chat connector, the spawn scheduler, the outbound delivery
//     queue, and the OAuth token refresher.
//   - Exposes an HTTP server with /healthz, /status, /metrics, leaderboard and
//     pokédex reads, the OAuth flow, and admin spawn controls.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/pokecatch/chat"
	"github.com/onnwee/pokecatch/config"
	"github.com/onnwee/pokecatch/db"
	"github.com/onnwee/pokecatch/game"
	"github.com/onnwee/pokecatch/oauth"
	"github.com/onnwee/pokecatch/outbound"
	"github.com/onnwee/pokecatch/server"
	"github.com/onnwee/pokecatch/telemetry"
	"github.com/onnwee/pokecatch/twitchapi"
)

// errRouteUnresolved is returned before the connector has cached routing ids.
var errRouteUnresolved = errors.New("chat routing ids not resolved yet")

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("pokecatch", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Run database migrations: versioned migrations first, embedded SQL as the
	// fallback for deployments that predate the schema_migrations table.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to legacy embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("legacy embedded SQL migration completed", slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed", slog.String("component", "db_migrate"))
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Game engine (seeds the species catalog on first run)
	engine, err := game.NewEngine(ctx, database, game.Options{
		SpawnDuration: cfg.SpawnDuration,
		CatchCooldown: cfg.CatchCooldown,
		ShinyRate:     cfg.ShinyRate,
	})
	if err != nil {
		slog.Error("failed to initialize game engine", slog.Any("err", err))
		os.Exit(1)
	}

	tokens := oauth.NewManager(database, cfg.TwitchClientID, cfg.TwitchClientSecret)
	helix := &twitchapi.HelixClient{ClientID: cfg.TwitchClientID}

	// Outbound delivery: routing ids come from the kv cache the connector
	// populates; before that resolves, sends fail and retry.
	route := func(rctx context.Context) (string, string, error) {
		broadcasterID, err := db.GetKV(rctx, database, "cfg:broadcaster_id")
		if err != nil || broadcasterID == "" {
			return "", "", errRouteUnresolved
		}
		senderID, err := db.GetKV(rctx, database, "cfg:bot_user_id")
		if err != nil || senderID == "" {
			return "", "", errRouteUnresolved
		}
		return broadcasterID, senderID, nil
	}
	queue := outbound.NewQueue(helix, tokens, database, route, cfg.SendSpacing, cfg.SendAttempts, 64)
	queue.Start(ctx)

	// Chat ingestion + game wiring
	var chatState func() string
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("chat connector disabled", slog.Any("reason", err))
	} else {
		handleMessage := func(mctx context.Context, username, text string) {
			reply, err := engine.HandleCommand(mctx, username, text)
			if err != nil {
				slog.Error("command failed", slog.String("username", username), slog.Any("err", err))
				return
			}
			if reply != "" {
				queue.Enqueue(reply)
			}
		}

		var connector chat.Connector
		switch cfg.ChatTransport {
		case "irc":
			irc := chat.NewIRCConnector(tokens, cfg.TwitchChannel, cfg.TwitchBotUsername, handleMessage)
			chatState = func() string { return string(irc.State()) }
			connector = irc
		default:
			es := chat.NewEventSubConnector(helix, tokens, database, cfg.TwitchChannel, cfg.TwitchBotUsername, handleMessage)
			chatState = func() string { return string(es.State()) }
			connector = es
		}
		go func() {
			if err := connector.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("chat connector exited", slog.Any("err", err))
			}
		}()

		// Spawn scheduler only runs alongside a live chat feed.
		scheduler := game.NewScheduler(engine, database, func(line string) { queue.Enqueue(line) },
			cfg.SpawnMinInterval, cfg.SpawnMaxInterval, nil)
		scheduler.Start(ctx)
	}

	// Centralized OAuth token refresher
	tokens.StartRefresher(ctx, 5*time.Minute)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics/game reads/admin)
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		deps := server.Deps{
			DB:        database,
			Cfg:       cfg,
			Engine:    engine,
			Queue:     queue,
			Tokens:    tokens,
			ChatState: chatState,
		}
		if err := server.Start(ctx, deps, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
