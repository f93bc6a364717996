package config

import (
	"fmt"
	"os"
	"path"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultProfileName names the profile used when no other profile matches
const DefaultProfileName = "default"

// PlaybackAttempt is one media_player.play_media call. URL is a template
// that may use {base_url}, {file} and {url}.
type PlaybackAttempt struct {
	URL         string `yaml:"url" json:"url"`
	ContentType string `yaml:"content_type" json:"content_type"`
}

// PlaybackProfile describes how to play audio on a family of media players
type PlaybackProfile struct {
	Name string `yaml:"name" json:"name"`
	// Match holds entity ID globs such as "media_player.nest_*"
	Match      []string          `yaml:"match" json:"match"`
	SkipTurnOn bool              `yaml:"skip_turn_on" json:"skip_turn_on"`
	Attempts   []PlaybackAttempt `yaml:"attempts" json:"attempts"`
}

// PlaybackConfig represents the playback profiles YAML file
type PlaybackConfig struct {
	Profiles []PlaybackProfile `yaml:"profiles"`
	// Raw data for any additional fields
	Raw map[string]interface{} `yaml:",inline"`
}

// DefaultProfile tries the resolved URL as music first, then as audio/mpeg
func DefaultProfile() PlaybackProfile {
	return PlaybackProfile{
		Name: DefaultProfileName,
		Attempts: []PlaybackAttempt{
			{URL: "{url}", ContentType: "music"},
			{URL: "{url}", ContentType: "audio/mpeg"},
		},
	}
}

// ProfileFor returns the first profile whose globs match entityID
func (c *PlaybackConfig) ProfileFor(entityID string) PlaybackProfile {
	if c != nil {
		for _, p := range c.Profiles {
			for _, pattern := range p.Match {
				if ok, _ := path.Match(pattern, entityID); ok {
					return p
				}
			}
		}
		for _, p := range c.Profiles {
			if p.Name == DefaultProfileName {
				return p
			}
		}
	}
	return DefaultProfile()
}

func (c *PlaybackConfig) validate() error {
	for i, p := range c.Profiles {
		if p.Name == "" {
			return fmt.Errorf("profile %d: name is required", i)
		}
		if len(p.Attempts) == 0 {
			return fmt.Errorf("profile %s: at least one attempt is required", p.Name)
		}
		for j, a := range p.Attempts {
			if a.URL == "" || a.ContentType == "" {
				return fmt.Errorf("profile %s: attempt %d needs url and content_type", p.Name, j)
			}
		}
		for _, pattern := range p.Match {
			if _, err := path.Match(pattern, ""); err != nil {
				return fmt.Errorf("profile %s: bad match pattern %q: %w", p.Name, pattern, err)
			}
		}
	}
	return nil
}

// Loader manages loading and reloading of the playback profiles file
type Loader struct {
	path     string
	logger   *zap.Logger
	mu       sync.RWMutex
	playback *PlaybackConfig
}

// NewLoader creates a new loader. An empty path uses the built-in default profile.
func NewLoader(path string, logger *zap.Logger) *Loader {
	return &Loader{
		path:     path,
		logger:   logger.Named("config"),
		playback: &PlaybackConfig{},
	}
}

// LoadPlaybackConfig loads the playback profiles file
func (l *Loader) LoadPlaybackConfig() error {
	if l.path == "" {
		l.logger.Debug("No playback profiles file configured, using default profile")
		return nil
	}

	l.logger.Debug("Loading playback profiles", zap.String("path", l.path))

	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("failed to read playback profiles: %w", err)
	}

	var config PlaybackConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse playback profiles: %w", err)
	}
	if err := config.validate(); err != nil {
		return fmt.Errorf("invalid playback profiles: %w", err)
	}

	l.mu.Lock()
	l.playback = &config
	l.mu.Unlock()

	l.logger.Info("Playback profiles loaded successfully",
		zap.Int("profiles", len(config.Profiles)))
	return nil
}

// GetPlaybackConfig returns the loaded playback configuration
func (l *Loader) GetPlaybackConfig() *PlaybackConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.playback
}

// ProfileFor returns the profile for a media player entity
func (l *Loader) ProfileFor(entityID string) PlaybackProfile {
	return l.GetPlaybackConfig().ProfileFor(entityID)
}

// Reset reloads the profiles file, keeping the previous profiles on failure
func (l *Loader) Reset() error {
	l.logger.Info("Reloading playback profiles")
	if err := l.LoadPlaybackConfig(); err != nil {
		l.logger.Error("Failed to reload playback profiles", zap.Error(err))
		return err
	}
	return nil
}
