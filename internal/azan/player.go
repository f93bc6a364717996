// Package azan plays the call to prayer on a Home Assistant media player.
package azan

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/walnadz/solatsyncmy/internal/clock"
	"github.com/walnadz/solatsyncmy/internal/config"
	"github.com/walnadz/solatsyncmy/internal/ha"
	"github.com/walnadz/solatsyncmy/internal/prayertime"
	"github.com/walnadz/solatsyncmy/internal/waktusolat"
)

const (
	FileAzan      = "azan.mp3"
	FileFajr      = "azanfajr.mp3"
	DefaultVolume = 0.7
)

var (
	// ErrPlaybackInProgress is returned while another Play call is running
	ErrPlaybackInProgress = errors.New("azan playback already in progress")
	// ErrNoMediaPlayer is returned when neither the request nor the
	// configuration names a media player
	ErrNoMediaPlayer = errors.New("no media player configured")
	// ErrNoAzan is returned for syuruk, which has no call to prayer
	ErrNoAzan = errors.New("prayer has no azan")
)

// FileFor returns the bundled audio file for a prayer
func FileFor(p prayertime.Prayer) string {
	if p == prayertime.Fajr {
		return FileFajr
	}
	return FileAzan
}

// Source resolves the audio URL handed to the media player
type Source struct {
	Kind          string // config.AudioBundled or config.AudioRemote
	BaseURL       string
	RemoteAzanURL string
	RemoteFajrURL string
}

// Resolve returns the media URL and file name for a prayer. A non-empty
// file overrides the prayer's default file for bundled audio.
func (s Source) Resolve(p prayertime.Prayer, file string) (url, name string) {
	if s.Kind == config.AudioRemote && file == "" {
		url = s.RemoteAzanURL
		if p == prayertime.Fajr && s.RemoteFajrURL != "" {
			url = s.RemoteFajrURL
		}
		return url, path.Base(url)
	}
	if file == "" {
		file = FileFor(p)
	}
	return strings.TrimRight(s.BaseURL, "/") + "/audio/" + file, file
}

// render fills the {base_url}, {file} and {url} placeholders
func render(template, baseURL, file, url string) string {
	return strings.NewReplacer(
		"{base_url}", strings.TrimRight(baseURL, "/"),
		"{file}", file,
		"{url}", url,
	).Replace(template)
}

// ProfileSource picks the playback profile for a media player
type ProfileSource interface {
	ProfileFor(entityID string) config.PlaybackProfile
}

// Request asks for one azan playback
type Request struct {
	Prayer      prayertime.Prayer `json:"prayer"`
	MediaPlayer string            `json:"media_player,omitempty"`
	// Volume overrides the configured volume when set
	Volume *float64 `json:"volume,omitempty"`
	// File plays another bundled file instead of the prayer's azan
	File string `json:"file,omitempty"`
}

// Result describes the attempt that succeeded
type Result struct {
	Prayer      prayertime.Prayer `json:"prayer"`
	MediaPlayer string            `json:"media_player"`
	Profile     string            `json:"profile"`
	URL         string            `json:"url"`
	ContentType string            `json:"content_type"`
	Attempt     int               `json:"attempt"`
	Volume      float64           `json:"volume"`
	DryRun      bool              `json:"dry_run,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
}

// Options configures a Player
type Options struct {
	Client      ha.HAClient
	Profiles    ProfileSource
	Source      Source
	MediaPlayer string
	Volume      float64
	ReadOnly    bool
	Clock       clock.Clock
}

// Player sends turn_on, volume_set and play_media calls to Home Assistant.
// Only one playback runs at a time.
type Player struct {
	client      ha.HAClient
	profiles    ProfileSource
	source      Source
	mediaPlayer string
	volume      float64
	readOnly    bool
	clock       clock.Clock
	logger      *zap.Logger
	playing     atomic.Bool
}

// NewPlayer creates a Player
func NewPlayer(opts Options, logger *zap.Logger) *Player {
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}
	if opts.Profiles == nil {
		opts.Profiles = (*config.PlaybackConfig)(nil)
	}
	return &Player{
		client:      opts.Client,
		profiles:    opts.Profiles,
		source:      opts.Source,
		mediaPlayer: opts.MediaPlayer,
		volume:      opts.Volume,
		readOnly:    opts.ReadOnly,
		clock:       opts.Clock,
		logger:      logger.Named("azan"),
	}
}

// MediaPlayer returns the configured default media player
func (p *Player) MediaPlayer() string {
	return p.mediaPlayer
}

// Playing reports whether a playback is in progress
func (p *Player) Playing() bool {
	return p.playing.Load()
}

func (p *Player) resolve(req Request) (string, float64, error) {
	if !req.Prayer.HasAzan() && req.File == "" {
		return "", 0, fmt.Errorf("%w: %s", ErrNoAzan, req.Prayer)
	}

	entity := req.MediaPlayer
	if entity == "" {
		entity = p.mediaPlayer
	}
	if entity == "" {
		return "", 0, ErrNoMediaPlayer
	}
	if !strings.HasPrefix(entity, "media_player.") {
		return "", 0, &waktusolat.ConfigurationError{
			Field:  "media_player",
			Value:  entity,
			Reason: "must be a media_player entity",
		}
	}

	volume := p.volume
	if req.Volume != nil {
		volume = *req.Volume
	}
	if volume < 0 || volume > 1 {
		return "", 0, &waktusolat.ConfigurationError{
			Field:  "volume",
			Value:  fmt.Sprintf("%g", volume),
			Reason: "must be between 0 and 1",
		}
	}
	if req.File != "" && (path.Base(req.File) != req.File || !strings.HasSuffix(req.File, ".mp3")) {
		return "", 0, &waktusolat.ConfigurationError{
			Field:  "file",
			Value:  req.File,
			Reason: "must be a bare .mp3 file name",
		}
	}
	return entity, volume, nil
}

// Play plays the azan for req.Prayer. Each attempt of the matched profile is
// tried in order and the first accepted play_media call wins. When every
// attempt fails the combined error is returned.
func (p *Player) Play(ctx context.Context, req Request) (*Result, error) {
	entity, volume, err := p.resolve(req)
	if err != nil {
		return nil, err
	}

	if !p.playing.CompareAndSwap(false, true) {
		return nil, ErrPlaybackInProgress
	}
	defer p.playing.Store(false)

	if _, err := p.client.GetState(entity); err != nil {
		return nil, fmt.Errorf("media player %s not found: %w", entity, err)
	}

	url, file := p.source.Resolve(req.Prayer, req.File)
	profile := p.profiles.ProfileFor(entity)

	logger := p.logger.With(
		zap.String("prayer", string(req.Prayer)),
		zap.String("media_player", entity),
		zap.String("profile", profile.Name),
		zap.String("url", url))

	result := &Result{
		Prayer:      req.Prayer,
		MediaPlayer: entity,
		Profile:     profile.Name,
		Volume:      volume,
		StartedAt:   p.clock.Now(),
	}

	if p.readOnly {
		first := profile.Attempts[0]
		result.URL = render(first.URL, p.source.BaseURL, file, url)
		result.ContentType = first.ContentType
		result.Attempt = 1
		result.DryRun = true
		logger.Info("READ-ONLY mode: Would play azan",
			zap.String("content_type", first.ContentType),
			zap.Float64("volume", volume))
		return result, nil
	}

	if !profile.SkipTurnOn {
		if err := p.client.CallService(ctx, "media_player", "turn_on", map[string]interface{}{
			"entity_id": entity,
		}); err != nil {
			logger.Warn("Failed to turn on media player, continuing", zap.Error(err))
		}
	}

	if err := p.client.CallService(ctx, "media_player", "volume_set", map[string]interface{}{
		"entity_id":    entity,
		"volume_level": volume,
	}); err != nil {
		logger.Warn("Failed to set volume, continuing", zap.Error(err))
	}

	var errs error
	for i, attempt := range profile.Attempts {
		if err := ctx.Err(); err != nil {
			return nil, multierr.Append(errs, err)
		}

		mediaURL := render(attempt.URL, p.source.BaseURL, file, url)
		err := p.client.CallService(ctx, "media_player", "play_media", map[string]interface{}{
			"entity_id":          entity,
			"media_content_id":   mediaURL,
			"media_content_type": attempt.ContentType,
		})
		if err != nil {
			logger.Debug("Playback attempt failed",
				zap.Int("attempt", i+1),
				zap.String("media_url", mediaURL),
				zap.String("content_type", attempt.ContentType),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("attempt %d (%s as %s): %w", i+1, mediaURL, attempt.ContentType, err))
			continue
		}

		result.URL = mediaURL
		result.ContentType = attempt.ContentType
		result.Attempt = i + 1
		logger.Info("Azan playing",
			zap.Int("attempt", result.Attempt),
			zap.String("content_type", attempt.ContentType),
			zap.Float64("volume", volume))
		return result, nil
	}

	logger.Error("All playback attempts failed",
		zap.Int("attempts", len(profile.Attempts)),
		zap.Error(errs))
	return nil, fmt.Errorf("playing azan on %s: %w", entity, errs)
}
