package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/walnadz/solatsyncmy/internal/api"
	"github.com/walnadz/solatsyncmy/internal/azan"
	"github.com/walnadz/solatsyncmy/internal/config"
	"github.com/walnadz/solatsyncmy/internal/ha"
	"github.com/walnadz/solatsyncmy/internal/mqtt"
	"github.com/walnadz/solatsyncmy/internal/plugins/reset"
	"github.com/walnadz/solatsyncmy/internal/prayertime"
	"github.com/walnadz/solatsyncmy/internal/state"
	"github.com/walnadz/solatsyncmy/internal/store"
	"github.com/walnadz/solatsyncmy/internal/waktusolat"
	"github.com/walnadz/solatsyncmy/pkg/plugin"

	// Import plugins to trigger their init() registration
	_ "github.com/walnadz/solatsyncmy/internal/plugins/azan"
	_ "github.com/walnadz/solatsyncmy/internal/plugins/schedule"
)

// mqttPlayTimeout bounds an azan requested over MQTT
const mqttPlayTimeout = 2 * time.Minute

func (a *App) buildRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the service until interrupted",
		Long: `Connect to Home Assistant, keep the prayer helpers up to date, play the
azan at each enabled prayer and serve the HTTP API. Stops on SIGINT or SIGTERM.`,
		RunE: a.runService,
	}
}

func (a *App) runService(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireHomeAssistant(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := startService(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start", zap.Error(err))
		return err
	}

	logger.Info("solatsync running. Press Ctrl+C to exit.",
		zap.String("zone", cfg.WaktuSolat.Zone),
		zap.Bool("read_only", cfg.HomeAssistant.ReadOnly))

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")
	svc.shutdown()
	return nil
}

// service owns everything started by the run command
type service struct {
	logger      *zap.Logger
	haClient    *ha.Client
	store       store.Store
	publisher   *mqtt.Publisher
	plugins     []plugin.Plugin
	coordinator *reset.Coordinator
	server      *api.Server
}

// startService wires the service together. Anything already started is
// shut down again when a later step fails.
func startService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*service, error) {
	svc := &service{logger: logger}
	started := false
	defer func() {
		if !started {
			svc.shutdown()
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	readOnly := cfg.HomeAssistant.ReadOnly

	logger.Info("Starting solatsync",
		zap.String("version", Version),
		zap.String("ha_url", cfg.HomeAssistant.URL),
		zap.String("zone", cfg.WaktuSolat.Zone),
		zap.String("timezone", loc.String()),
		zap.Bool("read_only", readOnly))

	// Home Assistant
	svc.haClient = ha.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)
	if err := svc.haClient.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to Home Assistant: %w", err)
	}
	logger.Info("Connected to Home Assistant")

	stateManager := state.NewManager(svc.haClient, logger, readOnly)
	if err := stateManager.SyncFromHA(); err != nil {
		return nil, fmt.Errorf("failed to sync state from Home Assistant: %w", err)
	}

	// Schedule cache, with a persistent second level when available
	st, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		logger.Warn("Schedule store unavailable, caching in memory only",
			zap.String("backend", cfg.Cache.Backend),
			zap.Error(err))
		st = store.NewMemory()
	}
	svc.store = st

	var sunrise *prayertime.SunriseCheck
	if cfg.HasCoordinates() {
		sunrise = &prayertime.SunriseCheck{
			Latitude:  cfg.Coordinates.Latitude,
			Longitude: cfg.Coordinates.Longitude,
		}
	}

	fetcher := waktusolat.NewClient(waktusolat.ClientConfig{
		BaseURL: cfg.WaktuSolat.BaseURL,
		Timeout: cfg.WaktuSolat.Timeout,
	}, logger)
	cache := prayertime.NewCache(prayertime.Options{
		Zone:     cfg.WaktuSolat.Zone,
		Location: loc,
		Fetcher:  fetcher,
		Store:    svc.store,
		Sunrise:  sunrise,
	}, logger)

	// Azan playback
	profiles := config.NewLoader(cfg.Azan.ProfilesFile, logger)
	if err := profiles.LoadPlaybackConfig(); err != nil {
		return nil, err
	}
	player := azan.NewPlayer(azan.Options{
		Client:   svc.haClient,
		Profiles: profiles,
		Source: azan.Source{
			Kind:          cfg.Azan.AudioSource,
			BaseURL:       cfg.AudioBaseURL(),
			RemoteAzanURL: cfg.Azan.RemoteAzanURL,
			RemoteFajrURL: cfg.Azan.RemoteFajrURL,
		},
		MediaPlayer: cfg.Azan.MediaPlayer,
		Volume:      cfg.Azan.Volume,
		ReadOnly:    readOnly,
	}, logger)

	pctx := plugin.NewContext(svc.haClient, stateManager, cache, logger, readOnly, loc)
	pctx.Player = player
	pctx.Config = cfg

	// MQTT discovery is optional and never fatal
	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.Connect(cfg.MQTT, cfg.WaktuSolat.Zone, logger)
		if err != nil {
			logger.Warn("MQTT disabled", zap.Error(err))
		} else {
			svc.publisher = pub
			pctx.Publisher = pub
			if err := pub.OnPlay(playHandler(ctx, player, logger)); err != nil {
				logger.Warn("Failed to subscribe to MQTT play commands", zap.Error(err))
			}
		}
	}

	// Plugins
	logger.Info("Registered plugins", zap.Strings("plugins", plugin.Names()))
	plugins, err := plugin.CreateAll(pctx)
	if err != nil {
		return nil, err
	}
	if err := plugin.StartAll(plugins); err != nil {
		return nil, err
	}
	svc.plugins = plugins

	// Reset: profiles first, then the cache, then each plugin
	resettables := []reset.PluginWithName{
		{Name: "playback-profiles", Plugin: reset.ResetFunc(profiles.Reset)},
		{Name: "cache", Plugin: reset.ResetFunc(func() error {
			cache.Invalidate()
			return nil
		})},
	}
	var refresher api.Refresher
	for _, p := range svc.plugins {
		if r, ok := p.(plugin.Resettable); ok {
			resettables = append(resettables, reset.PluginWithName{Name: p.Name(), Plugin: r})
		}
		if r, ok := p.(api.Refresher); ok && refresher == nil {
			refresher = r
		}
	}
	svc.coordinator = reset.NewCoordinator(stateManager, logger, readOnly, resettables)
	if err := svc.coordinator.Start(); err != nil {
		return nil, fmt.Errorf("failed to start reset coordinator: %w", err)
	}

	// HTTP API
	audioDir := ""
	if cfg.Azan.AudioSource == config.AudioBundled {
		audioDir = cfg.Azan.AudioDir
	}
	svc.server = api.NewServer(api.Options{
		StateManager: stateManager,
		Cache:        cache,
		Player:       player,
		Shadow:       pctx.Shadow,
		Refresher:    refresher,
		Resetter:     svc.coordinator,
		AudioDir:     audioDir,
		StaleAfter:   2 * cfg.WaktuSolat.PollInterval,
		Port:         cfg.Server.Port,
	}, logger)
	if err := svc.server.Start(); err != nil {
		return nil, err
	}

	started = true
	return svc, nil
}

// playHandler plays the azan for prayer commands received over MQTT
func playHandler(ctx context.Context, player *azan.Player, logger *zap.Logger) mqtt.PlayHandler {
	return func(name string) {
		prayer, err := prayertime.ParsePrayer(name)
		if err != nil {
			logger.Warn("Ignoring MQTT play command", zap.String("payload", name), zap.Error(err))
			return
		}
		// paho runs handlers on its router goroutine; never block it
		go func() {
			playCtx, cancel := context.WithTimeout(ctx, mqttPlayTimeout)
			defer cancel()
			if _, err := player.Play(playCtx, azan.Request{Prayer: prayer}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MQTT azan playback failed", zap.String("prayer", string(prayer)), zap.Error(err))
			}
		}()
	}
}

// shutdown stops everything in reverse start order
func (s *service) shutdown() {
	if s.server != nil {
		if err := s.server.Stop(context.Background()); err != nil {
			s.logger.Warn("HTTP server shutdown failed", zap.Error(err))
		}
	}
	if s.coordinator != nil {
		s.coordinator.Stop()
	}
	plugin.StopAll(s.plugins)
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("Failed to close schedule store", zap.Error(err))
		}
	}
	if s.haClient != nil {
		if err := s.haClient.Disconnect(); err != nil {
			s.logger.Debug("Disconnect failed", zap.Error(err))
		}
	}
	s.logger.Info("Shutdown complete")
}
