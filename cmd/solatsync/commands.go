package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/walnadz/solatsyncmy/internal/azan"
	"github.com/walnadz/solatsyncmy/internal/config"
	"github.com/walnadz/solatsyncmy/internal/ha"
	"github.com/walnadz/solatsyncmy/internal/logging"
	"github.com/walnadz/solatsyncmy/internal/output"
	"github.com/walnadz/solatsyncmy/internal/parser"
	"github.com/walnadz/solatsyncmy/internal/prayertime"
	"github.com/walnadz/solatsyncmy/internal/store"
	"github.com/walnadz/solatsyncmy/internal/waktusolat"
)

// commandTimeout bounds the network work of one-shot commands
const commandTimeout = 30 * time.Second

// commandLogger only reports warnings so command output stays readable
func commandLogger() *zap.Logger {
	logger, err := logging.New("warn", true)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openCache builds a cache for one-shot commands. The persistent store is
// shared with a running service when the backend allows it; otherwise the
// month is fetched again.
func openCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*prayertime.Cache, func(), error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		logger.Debug("Schedule store unavailable", zap.Error(err))
		st = store.NewMemory()
	}

	cache := prayertime.NewCache(prayertime.Options{
		Zone:     cfg.WaktuSolat.Zone,
		Location: loc,
		Fetcher: waktusolat.NewClient(waktusolat.ClientConfig{
			BaseURL: cfg.WaktuSolat.BaseURL,
			Timeout: cfg.WaktuSolat.Timeout,
		}, logger),
		Store: st,
	}, logger)

	return cache, func() { _ = st.Close() }, nil
}

func (a *App) buildZonesCmd() *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "List JAKIM zone codes",
		Long: `List the JAKIM zone codes accepted by --zone and waktusolat.zone.

With --remote the list is fetched from the waktusolat API instead of the
built-in table.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := a.formatter(cmd)
			if err != nil {
				return err
			}
			if !remote {
				return out.PrintZones(waktusolat.Zones())
			}

			cfg, err := config.LoadForDisplay(a.v, a.cfgFile)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			client := waktusolat.NewClient(waktusolat.ClientConfig{
				BaseURL: cfg.WaktuSolat.BaseURL,
				Timeout: cfg.WaktuSolat.Timeout,
			}, commandLogger())

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			infos, err := client.FetchZones(ctx)
			if err != nil {
				return err
			}
			zones := make([]waktusolat.Zone, 0, len(infos))
			for _, info := range infos {
				zones = append(zones, waktusolat.Zone{Code: info.Code, State: info.Negeri, Description: info.Daerah})
			}
			return out.PrintZones(zones)
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "fetch the zone list from the API")
	return cmd
}

func (a *App) buildTodayCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "today",
		Short: "Print the prayer times for a day",
		Long: `Print the prayer times for today, or for --date.

--date accepts YYYY-MM-DD or natural language such as "tomorrow" or
"next friday".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			out, err := a.formatter(cmd)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			now := time.Now().In(loc)
			day, err := parser.ParseDate(date, now, loc)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			cache, closeCache, err := openCache(ctx, cfg, commandLogger())
			if err != nil {
				return err
			}
			defer closeCache()

			daily, err := cache.GetDailyTimes(ctx, day)
			if err != nil {
				return err
			}

			var next *prayertime.NextPrayerInfo
			if day.Equal(midnight(now)) {
				if n, err := cache.GetNextPrayer(ctx, now); err == nil {
					next = n
				}
			}
			return out.PrintSchedule(daily, next, now)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", `day to show, e.g. 2025-06-10 or "tomorrow"`)
	return cmd
}

func (a *App) buildNextCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Print the next prayer",
		Long: `Print the next prayer and the time remaining, relative to now or to --at.

--at accepts "2025-06-10 21:30" or natural language such as "9pm".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			out, err := a.formatter(cmd)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			when, err := parser.ParseWhen(at, time.Now(), loc)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			cache, closeCache, err := openCache(ctx, cfg, commandLogger())
			if err != nil {
				return err
			}
			defer closeCache()

			next, err := cache.GetNextPrayer(ctx, when)
			if err != nil {
				return err
			}
			return out.PrintNext(*next, when)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", `reference time, e.g. "9pm"`)
	return cmd
}

func (a *App) buildPlayCmd() *cobra.Command {
	var (
		mediaPlayer string
		volume      float64
		file        string
	)
	cmd := &cobra.Command{
		Use:   "play <prayer>",
		Short: "Play the azan once through Home Assistant",
		Long: `Play the azan for a prayer right away, ignoring the enable switches.

The prayer may be given by its API name (fajr, dhuhr, asr, maghrib, isha)
or its Malay name (Subuh, Zohor, Asar, Maghrib, Isyak).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireHomeAssistant(); err != nil {
				return err
			}
			out, err := a.formatter(cmd)
			if err != nil {
				return err
			}

			prayer, err := prayertime.ParsePrayer(args[0])
			if err != nil {
				return err
			}

			logger := commandLogger()
			client := ha.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)
			if err := client.Connect(); err != nil {
				return fmt.Errorf("failed to connect to Home Assistant: %w", err)
			}
			defer func() { _ = client.Disconnect() }()

			profiles := config.NewLoader(cfg.Azan.ProfilesFile, logger)
			if err := profiles.LoadPlaybackConfig(); err != nil {
				return err
			}
			player := azan.NewPlayer(azan.Options{
				Client:   client,
				Profiles: profiles,
				Source: azan.Source{
					Kind:          cfg.Azan.AudioSource,
					BaseURL:       cfg.AudioBaseURL(),
					RemoteAzanURL: cfg.Azan.RemoteAzanURL,
					RemoteFajrURL: cfg.Azan.RemoteFajrURL,
				},
				MediaPlayer: cfg.Azan.MediaPlayer,
				Volume:      cfg.Azan.Volume,
				ReadOnly:    cfg.HomeAssistant.ReadOnly,
			}, logger)

			req := azan.Request{Prayer: prayer, MediaPlayer: mediaPlayer, File: file}
			if cmd.Flags().Changed("volume") {
				req.Volume = &volume
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			result, err := player.Play(ctx, req)
			if err != nil {
				return err
			}
			return out.PrintPlayback(result)
		},
	}
	cmd.Flags().StringVar(&mediaPlayer, "media-player", "", "media_player entity (default from config)")
	cmd.Flags().Float64Var(&volume, "volume", 0, "volume between 0 and 1 (default from config)")
	cmd.Flags().StringVar(&file, "file", "", "audio file name to play instead of the prayer's azan")
	return cmd
}

func (a *App) buildConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Display the effective configuration",
		Long: `Display the effective configuration with sensitive data masked.

This shows the values that would be used if the service were started,
including the config file, environment variables and CLI flags.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadForDisplay(a.v, a.cfgFile)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			out, err := a.formatter(cmd)
			if err != nil {
				return err
			}

			if err := out.PrintSettings(cfg.MaskedConfig().Settings()); err != nil {
				return err
			}
			if out.Format == output.FormatCLI {
				if err := cfg.Validate(); err != nil {
					out.Warning(err.Error())
				}
			}
			return nil
		},
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
