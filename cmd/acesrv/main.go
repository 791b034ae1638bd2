package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/daralet-ac/ACE-sub005/internal/audit"
	"github.com/daralet-ac/ACE-sub005/internal/command"
	"github.com/daralet-ac/ACE-sub005/internal/config"
	"github.com/daralet-ac/ACE-sub005/internal/console"
	"github.com/daralet-ac/ACE-sub005/internal/core/event"
	coresys "github.com/daralet-ac/ACE-sub005/internal/core/system"
	"github.com/daralet-ac/ACE-sub005/internal/data"
	"github.com/daralet-ac/ACE-sub005/internal/persist"
	"github.com/daralet-ac/ACE-sub005/internal/scripting"
	"github.com/daralet-ac/ACE-sub005/internal/system"
	"github.com/daralet-ac/ACE-sub005/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m        ACE-sub005 world server            \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      object maintenance · audit           \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mServer:\033[0m %s\n\n", serverName)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("ACE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. Audit history database (optional)
	var (
		store   system.ReportStore
		history command.History
	)
	if cfg.Database.Enabled {
		printSection("Database")
		dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		db, err := persist.Open(dbCtx, cfg.Database, log)
		cancel()
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		repo := persist.NewAuditRepo(db)
		store, history = repo, repo
		printOK("PostgreSQL connected, migrations applied")
		fmt.Println()
	}

	// 4. Static data
	printSection("Data")
	weenies, err := data.LoadWeenieTable(cfg.World.WeenieFile)
	if err != nil {
		return fmt.Errorf("load weenie table: %w", err)
	}
	printStat("Weenie templates", weenies.Count())

	spawns, err := data.LoadSpawnList(cfg.World.SpawnFile)
	if err != nil {
		return fmt.Errorf("load spawn list: %w", err)
	}
	printStat("Spawn entries", len(spawns))

	// 5. Scripting
	lua, err := scripting.NewEngine(cfg.Scripting.Dir, log)
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer lua.Close()
	printOK("Lua retaliation rules loaded")

	// 6. World
	bus := event.NewBus()
	w := world.New(world.Options{
		VisibilityRange:  cfg.World.VisibilityRange,
		DestructionDelay: cfg.World.DestructionDelay.Duration,
		WanderChance:     cfg.World.WanderChance,
		AttackChance:     cfg.World.AttackChance,
	}, bus, lua, log)

	spawned := w.SpawnFromList(weenies, spawns, rand.New(rand.NewSource(cfg.Server.StartTime)))
	printStat("Objects spawned", spawned)
	printStat("Landblocks loaded", len(w.Landblocks()))
	fmt.Println()

	// Announcements stop here until a client layer subscribes.
	event.Subscribe(bus, func(e event.ObjectCreated) {
		log.Debug("announce create", zap.Stringer("observer", e.Observer), zap.Stringer("target", e.Target))
	})
	event.Subscribe(bus, func(e event.ObjectDestroyed) {
		log.Debug("announce destroy", zap.Stringer("observer", e.Observer), zap.Stringer("target", e.Target))
	})
	event.Subscribe(bus, func(e event.AuditCompleted) {
		if e.Repairs > 0 {
			log.Info("audit repaired stale entries", zap.Int("holders", e.Holders), zap.Int("repairs", e.Repairs))
		}
	})

	// 7. Systems
	checker, err := audit.NewChecker(w, log.Named("audit"))
	if err != nil {
		return fmt.Errorf("audit checker: %w", err)
	}
	auditSys := system.NewAuditSystem(ctx, checker, store, bus, cfg.World.AuditInterval.Duration, log.Named("audit"))

	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(w, log))
	runner.Register(system.NewAISystem(w, log))
	runner.Register(system.NewVisibilitySystem(w, cfg.World.VisibilityTicks, log))
	runner.Register(system.NewOutputSystem(bus))
	runner.Register(auditSys)
	runner.Register(system.NewCleanupSystem(w, log))

	// 8. Operator console
	if cfg.Console.Enabled {
		dispatcher := command.New(w, auditSys, history, log.Named("command"), command.WithSubmit(w.Submit))
		srv, err := console.NewServer(cfg.Console, dispatcher, log.Named("console"))
		if err != nil {
			return fmt.Errorf("console: %w", err)
		}
		go srv.AcceptLoop(ctx)
		defer srv.Shutdown()
		printReady(fmt.Sprintf("Console listening on %s", srv.Addr()))
	}

	// 9. Tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.World.TickRate.Duration)
	defer ticker.Stop()

	printReady(fmt.Sprintf("World ticking every %v", cfg.World.TickRate.Duration))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.World.TickRate.Duration)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			stop()
			if auditSys.Running() {
				log.Info("waiting for audit pass to stop")
				for auditSys.Running() {
					time.Sleep(10 * time.Millisecond)
				}
			}
			log.Info("server stopped")
			return nil
		}
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console", "":
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	default:
		return nil, errors.New("logging.format must be json or console")
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
