// Package main is the entry point for the dispatchsyncd daemon.
// dispatchsyncd maintains the dispatcher-side conversation state: it
// subscribes to the backend push channel, reconciles events into the
// shared stores, and serves local UI surfaces over a socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ridewire/dispatchsync/internal/config"
	"github.com/ridewire/dispatchsync/internal/daemon"
	"github.com/ridewire/dispatchsync/internal/db"
	"github.com/ridewire/dispatchsync/internal/engine"
	"github.com/ridewire/dispatchsync/internal/events"
	"github.com/ridewire/dispatchsync/internal/logging"
	"github.com/ridewire/dispatchsync/internal/router"
	"github.com/ridewire/dispatchsync/internal/store"
	"github.com/ridewire/dispatchsync/internal/transport"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	backend := flag.String("backend", "", "backend channel address override")
	listen := flag.String("listen", "", "surface socket address override")
	configFile := flag.String("config", "", "config file (default is $HOME/.config/dispatchsync/config.yaml)")
	logLevel := flag.String("log-level", "", "override logging level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "override logging format (json, console)")
	noCache := flag.Bool("no-cache", false, "disable the on-disk session cache")
	flag.Parse()

	cfg, loader, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *backend != "" {
		cfg.Channel.Address = *backend
	}
	if *listen != "" {
		cfg.Daemon.Listen = *listen
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}

	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	logger := logging.Component("dispatchsyncd")

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Warn().Err(err).Msg("failed to create directories")
	}

	if cfgUsed := loader.ConfigFileUsed(); cfgUsed != "" {
		logger.Debug().Str("config_file", cfgUsed).Msg("loaded config file")
	}

	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", date).
		Msg("dispatchsyncd starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Session cache is optional: the backend remains the source of truth,
	// so a broken cache degrades to losing unsent drafts across restarts.
	var (
		database    *db.DB
		sessionRepo *db.SessionRepository
		eventRepo   *db.EventRepository
	)
	if !*noCache {
		database, err = db.Open(cfg.CachePath(), cfg.Cache.BusyTimeoutMs)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.CachePath()).Msg("session cache unavailable, continuing without")
		} else {
			defer database.Close()
			sessionRepo = db.NewSessionRepository(database)
			eventRepo = db.NewEventRepository(database)
		}
	}

	var publisherOpts []events.PublisherOption
	if eventRepo != nil {
		publisherOpts = append(publisherOpts, events.WithRepository(eventRepo))
	}
	publisher := events.NewInMemoryPublisher(publisherOpts...)
	defer publisher.Close()

	messages := store.NewMessageStore()
	surfaces := store.NewSurfaceRegistry()
	unread := store.NewUnreadIndex(messages, surfaces)

	client, err := transport.NewClient(transport.Config{
		Address:           cfg.Channel.Address,
		DialTimeout:       cfg.Channel.DialTimeout,
		ReconnectInterval: cfg.Channel.ReconnectInterval,
		CommandTimeout:    cfg.Channel.CommandTimeout,
	}, nil)
	if err != nil {
		logger.Error().Err(err).Msg("invalid backend address")
		os.Exit(1)
	}

	engineOpts := []engine.Option{engine.WithHistorian(client)}
	if sessionRepo != nil {
		engineOpts = append(engineOpts, engine.WithSessionCache(sessionRepo))
	}
	eng := engine.New(messages, unread, surfaces, publisher, client, engineOpts...)

	rt := router.New(eng, publisher)
	client.SetSink(rt)

	poller := router.NewPoller(router.PollerConfig{Interval: cfg.Polling.Interval}, rt, client)
	rt.AttachPoller(poller)

	if err := eng.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to restore session state")
	}

	var serverOpts []daemon.ServerOption
	if eventRepo != nil {
		serverOpts = append(serverOpts, daemon.WithEventJournal(eventRepo))
	}
	server := daemon.NewServer(eng, rt, publisher, serverOpts...)
	if err := server.Start(ctx, cfg.DaemonListen()); err != nil {
		logger.Error().Err(err).Msg("failed to start surface server")
		os.Exit(1)
	}
	defer server.Stop()

	if err := poller.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to start poller")
		os.Exit(1)
	}
	defer func() { _ = poller.Stop() }()

	if err := client.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to start channel subscription")
		os.Exit(1)
	}
	defer client.Stop()

	<-ctx.Done()
	logger.Info().Msg("dispatchsyncd shutting down")
}

func loadConfig(path string) (*config.Config, *config.Loader, error) {
	loader := config.NewLoader()
	if path != "" {
		loader.SetConfigFile(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}
