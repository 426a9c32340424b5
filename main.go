/* main.go
 * The "main" method for running the service. It wires the store, the api, the background triggers, the HTTP server
 * and the Discord bot, and runs them until interrupted
 * Usage: go run . -memory="false" -bot="true"
 * Authors: Zachary Bower
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inhouse-bot/api/api"
	"inhouse-bot/api/external"
	"inhouse-bot/api/store"
	"inhouse-bot/api/triggers"
	"inhouse-bot/bot"
	"inhouse-bot/config"
	"inhouse-bot/web"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type runOptions struct {
	memory bool
	bot    bool
}

func main() {
	//Flags
	memoryPtr := flag.String("memory", "false", "Use the in-memory store instead of MongoDB: takes true or false as argument")
	botPtr := flag.String("bot", "true", "Run the Discord bot: takes true or false as argument")
	debugPtr := flag.String("debug", "false", "Enable debug logging: takes true or false as argument")
	flag.Parse()

	var opts runOptions
	var debug bool
	for _, f := range []struct {
		name string
		raw  string
		dst  *bool
	}{
		{"memory", *memoryPtr, &opts.memory},
		{"bot", *botPtr, &opts.bot},
		{"debug", *debugPtr, &debug},
	} {
		v, err := parseToggle(f.raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid %q flag: %v\n", f.name, err)
			os.Exit(2)
		}
		*f.dst = v
	}

	logger, err := newLogger(debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Fatal("service stopped", zap.Error(err))
	}
	logger.Info("service stopped")
}

// Function that runs every component until ctx is done or one of them fails
// Preconditions: Receives the lifetime context, the configuration, the flags and a logger
// Postconditions: Returns nil after a clean shutdown, or the first component error
func run(ctx context.Context, cfg *config.Config, opts runOptions, logger *zap.Logger) error {
	s, err := openStore(ctx, cfg, opts.memory, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Close(closeCtx); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	a, err := api.NewAPI(s, newCommandSender(cfg, logger), newRosterResolver(cfg, logger), cfg.APIConfig(), cfg.Rules(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize API: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	scheduler := triggers.NewScheduler(gctx, a, logger)
	a.SetLeaderScheduler(scheduler)
	g.Go(func() error {
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	watcher := triggers.NewWatcher(s, a.Rules, a, logger)
	g.Go(func() error { return watcher.Run(gctx) })

	g.Go(func() error {
		return web.Start(gctx, web.Config{
			Addr:      cfg.HTTPAddr,
			API:       a,
			JWTSecret: cfg.JWTSecret,
			Logger:    logger,
		})
	})

	if opts.bot {
		if cfg.DiscordToken == "" {
			logger.Warn("DISCORD_TOKEN is not set, the Discord bot is disabled")
		} else {
			b, err := bot.NewBot(cfg.DiscordToken, a, cfg.DiscordAdminIDs, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize bot: %w", err)
			}
			g.Go(func() error { return b.Run(gctx) })
		}
	}

	return g.Wait()
}

// Function that picks the store implementation
// Preconditions: Receives context, the configuration, whether the memory store was requested and a logger
// Postconditions: Returns the store, or an error if MongoDB was requested but could not be reached
func openStore(ctx context.Context, cfg *config.Config, memory bool, logger *zap.Logger) (store.Interface, error) {
	if memory {
		logger.Warn("using the in-memory store, nothing survives a restart")
		return store.NewMemoryStore(), nil
	}
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is not set, pass -memory=\"true\" to run without MongoDB")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	s, err := store.NewStore(connectCtx, cfg.MongoDB, cfg.MongoURI, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	return s, nil
}

// Function that builds the game server command client. Without credentials server starts fail with FAILED
func newCommandSender(cfg *config.Config, logger *zap.Logger) external.CommandSender {
	if !cfg.HasDatHost() {
		logger.Warn("DATHOST_USER, DATHOST_PASSWORD or GAME_SERVER_ID is not set, game server commands are disabled")
		return nil
	}
	return external.NewDatHostClient(cfg.DatHostURL, cfg.DatHostUser, cfg.DatHostPassword)
}

// Function that builds the roster resolver. Without a Steam key players are shown by their Steam id
func newRosterResolver(cfg *config.Config, logger *zap.Logger) external.RosterResolver {
	if cfg.SteamAPIKey == "" {
		logger.Warn("STEAM_API_KEY is not set, players are named by their Steam id")
		return external.StaticResolver{UseIDFallback: true}
	}
	return external.NewSteamResolver("", cfg.SteamAPIKey)
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
