package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mlindholt/discord-guildbot/internal/auction"
	"github.com/mlindholt/discord-guildbot/internal/bot"
	"github.com/mlindholt/discord-guildbot/internal/bot/commands"
	"github.com/mlindholt/discord-guildbot/internal/catalog"
	"github.com/mlindholt/discord-guildbot/internal/clan"
	"github.com/mlindholt/discord-guildbot/internal/clock"
	"github.com/mlindholt/discord-guildbot/internal/config"
	"github.com/mlindholt/discord-guildbot/internal/economy"
	"github.com/mlindholt/discord-guildbot/internal/health"
	"github.com/mlindholt/discord-guildbot/internal/inventory"
	"github.com/mlindholt/discord-guildbot/internal/leader"
	"github.com/mlindholt/discord-guildbot/internal/milestone"
	"github.com/mlindholt/discord-guildbot/internal/mission"
	"github.com/mlindholt/discord-guildbot/internal/shop"
	"github.com/mlindholt/discord-guildbot/internal/store"
	"github.com/mlindholt/discord-guildbot/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/mlindholt/discord-guildbot/internal/store/memstore"
	_ "github.com/mlindholt/discord-guildbot/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	logger.InfoContext(ctx, "catalog loaded",
		slog.Int("items", len(cat.Items())),
		slog.String("path", cfg.Catalog.Path),
	)

	// Open store using the configured driver (memory or postgres).
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to store", slog.String("driver", cfg.Database.Driver))

	// The Discord session is created first: the effect sink that all
	// managers write through is built on top of it.
	session, err := bot.NewSession(cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("creating discord session: %w", err)
	}
	sink := bot.NewSink(session, cfg.Discord.GuildID, logger)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	economyMgr := economy.NewManager(repos.Players, repos.Events, logger, tp.TracerProvider)
	inventoryMgr := inventory.NewManager(repos.Inventories, cat, sink, logger, tp.TracerProvider)
	clanMgr := clan.NewManager(repos.Players, repos.Clans, repos.Invites, repos.Events, sink, cfg.Clans.NameBlocklist, logger, tp.TracerProvider)
	milestoneMgr := milestone.NewManager(repos.Players, repos.Inventories, cat, repos.Events, sink, cfg.Discord.AnnounceChannel, logger, tp.TracerProvider)
	missionMgr := mission.NewManager(repos.Missions, repos.Players, cat, economyMgr, inventoryMgr, milestoneMgr, repos.Events, sink, cfg.Discord.AnnounceChannel, rng, logger, tp.TracerProvider)
	shopMgr := shop.NewManager(cat, economyMgr, inventoryMgr, clk, cfg.Shop.WindowLength, cfg.Shop.Slots, rng, logger, tp.TracerProvider)
	auctionMgr := auction.NewManager(cat, economyMgr, inventoryMgr, repos.Players, repos.Events, sink, clk, logger, tp.TracerProvider)

	handlers := commands.NewHandlers(
		economyMgr, inventoryMgr, clanMgr, missionMgr, milestoneMgr,
		shopMgr, auctionMgr, cat, cfg.Discord, logger, tp.TracerProvider,
	)

	healthHandler := health.NewHandler(clk, health.StoreProbe(repos.Ping))

	// Health endpoints run on all replicas, leader or not.
	mux := http.NewServeMux()
	healthHandler.Register(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting health server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "health server error", slog.Any("error", listenErr))
		}
	}()

	// startBot is the core work that only the leader should run.
	startBot := func(ctx context.Context) {
		// Replay the auction journal so an in-flight auction survives
		// leader failover.
		if recoverErr := auctionMgr.Recover(ctx); recoverErr != nil {
			logger.ErrorContext(ctx, "auction recovery failed", slog.Any("error", recoverErr))
		}

		discordBot := bot.New(session, cfg.Discord, handlers, logger)
		if botErr := discordBot.Start(ctx); botErr != nil {
			logger.ErrorContext(ctx, "starting bot failed", slog.Any("error", botErr))
			return
		}

		go settleLoop(ctx, auctionMgr, logger)
		go dailyRolloverLoop(ctx, missionMgr, economyMgr, clanMgr, clk, logger)

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "guildbot is running", slog.String("version", version))

		// Block until leadership is lost or the process is shutting down.
		<-ctx.Done()

		healthHandler.SetReady(false)
		if stopErr := discordBot.Stop(); stopErr != nil {
			logger.Error("bot shutdown error", slog.Any("error", stopErr))
		}
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, startBot, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		startBot(ctx)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}

// settleLoop closes the live auction once its deadline passes.
func settleLoop(ctx context.Context, auctionMgr *auction.Manager, logger *slog.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, _, err := auctionMgr.Tick(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "auction tick failed", slog.Any("error", err))
				continue
			}
			if res != nil {
				logger.InfoContext(ctx, "auction settled",
					slog.String("item_id", res.ItemID),
					slog.String("winner_id", res.WinnerID),
					slog.Int("amount", res.Amount),
					slog.Bool("forfeited", res.Forfeited),
				)
			}
		}
	}
}

// dailyRolloverLoop runs the once-per-UTC-day maintenance: it clears every
// player's mission set (fresh missions are assigned lazily on the next
// /missions call) and credits clan members a day of presence.
func dailyRolloverLoop(ctx context.Context, missionMgr *mission.Manager, economyMgr *economy.Manager, clanMgr *clan.Manager, clk clock.Clock, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	day := clk.Now().UTC().YearDay()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := clk.Now().UTC()
			if now.YearDay() == day {
				continue
			}
			day = now.YearDay()

			players, err := economyMgr.List(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "listing players for mission reset", slog.Any("error", err))
				continue
			}
			for _, p := range players {
				if err := missionMgr.Reset(ctx, p.ID); err != nil {
					logger.ErrorContext(ctx, "resetting missions",
						slog.String("player_id", p.ID),
						slog.Any("error", err),
					)
				}
			}
			if err := clanMgr.RecordDailyPresence(ctx); err != nil {
				logger.ErrorContext(ctx, "recording clan presence", slog.Any("error", err))
			}
			logger.InfoContext(ctx, "daily rollover", slog.Int("players", len(players)))
		}
	}
}
