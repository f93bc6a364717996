// Package config loads the service configuration.
// Configuration is loaded in order: YAML file → .env file → ENV vars → CLI flags.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/walnadz/solatsyncmy/internal/store"
	"github.com/walnadz/solatsyncmy/internal/waktusolat"
)

// Audio sources for azan playback
const (
	AudioBundled = "bundled"
	AudioRemote  = "remote"
)

var loadEnvOnce sync.Once

// loadDotEnv loads .env file if it exists (does not override existing env vars).
func loadDotEnv() {
	loadEnvOnce.Do(func() {
		for _, f := range []string{".env", "configs/.env"} {
			if _, err := os.Stat(f); err == nil {
				_ = godotenv.Load(f)
				return
			}
		}
	})
}

// mustBindEnv binds an environment variable to a config key, panicking on error.
// viper.BindEnv only fails if the key is empty, which is a programming error.
func mustBindEnv(v *viper.Viper, key string, envVars ...string) {
	if err := v.BindEnv(append([]string{key}, envVars...)...); err != nil {
		panic(fmt.Sprintf("failed to bind env var for key %s: %v", key, err))
	}
}

// Config holds all configuration for the service.
type Config struct {
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant"`
	WaktuSolat    WaktuSolatConfig    `mapstructure:"waktusolat"`
	Azan          AzanConfig          `mapstructure:"azan"`
	Server        ServerConfig        `mapstructure:"server"`
	Cache         CacheConfig         `mapstructure:"cache"`
	MQTT          MQTTConfig          `mapstructure:"mqtt"`
	Coordinates   CoordinatesConfig   `mapstructure:"location"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// HomeAssistantConfig holds Home Assistant connection settings.
type HomeAssistantConfig struct {
	URL      string `mapstructure:"url"`
	Token    string `mapstructure:"token"`
	ReadOnly bool   `mapstructure:"read_only"`
}

// WaktuSolatConfig holds the upstream API and zone settings.
type WaktuSolatConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Zone         string        `mapstructure:"zone"`
	Timezone     string        `mapstructure:"timezone"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// AzanConfig holds playback settings.
type AzanConfig struct {
	MediaPlayer   string  `mapstructure:"media_player"`
	Volume        float64 `mapstructure:"volume"`
	AudioSource   string  `mapstructure:"audio_source"`
	AudioBaseURL  string  `mapstructure:"audio_base_url"`
	AudioDir      string  `mapstructure:"audio_dir"`
	RemoteAzanURL string  `mapstructure:"remote_azan_url"`
	RemoteFajrURL string  `mapstructure:"remote_fajr_url"`
	ProfilesFile  string  `mapstructure:"profiles_file"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CacheConfig selects where fetched month schedules are persisted.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	Path    string        `mapstructure:"path"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MQTTConfig holds MQTT discovery settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker          string `mapstructure:"broker"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	ClientID        string `mapstructure:"client_id"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
}

// CoordinatesConfig enables the syuruk sanity check when set.
type CoordinatesConfig struct {
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("homeassistant.url", "ws://homeassistant.local:8123/api/websocket")
	v.SetDefault("homeassistant.token", "")
	v.SetDefault("homeassistant.read_only", false)

	v.SetDefault("waktusolat.base_url", waktusolat.DefaultBaseURL)
	v.SetDefault("waktusolat.timeout", waktusolat.DefaultTimeout)
	v.SetDefault("waktusolat.zone", "SGR01")
	v.SetDefault("waktusolat.timezone", "Asia/Kuala_Lumpur")
	v.SetDefault("waktusolat.poll_interval", 15*time.Minute)

	v.SetDefault("azan.media_player", "")
	v.SetDefault("azan.volume", 0.7)
	v.SetDefault("azan.audio_source", AudioBundled)
	v.SetDefault("azan.audio_base_url", "")
	v.SetDefault("azan.audio_dir", "audio")
	v.SetDefault("azan.remote_azan_url", "")
	v.SetDefault("azan.remote_fajr_url", "")
	v.SetDefault("azan.profiles_file", "")

	v.SetDefault("server.port", 8081)

	v.SetDefault("cache.backend", store.BackendBadger)
	v.SetDefault("cache.path", "")
	v.SetDefault("cache.ttl", store.DefaultTTL)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "solatsync")
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
	v.SetDefault("mqtt.topic_prefix", "solatsync")

	v.SetDefault("location.latitude", 0.0)
	v.SetDefault("location.longitude", 0.0)

	v.SetDefault("logging.level", "info")
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	mustBindEnv(v, "homeassistant.url", "HA_URL")
	mustBindEnv(v, "homeassistant.token", "HA_TOKEN")
	mustBindEnv(v, "homeassistant.read_only", "READ_ONLY")

	mustBindEnv(v, "waktusolat.base_url", "SOLAT_API_URL")
	mustBindEnv(v, "waktusolat.timeout", "SOLAT_API_TIMEOUT")
	mustBindEnv(v, "waktusolat.zone", "SOLAT_ZONE")
	mustBindEnv(v, "waktusolat.timezone", "SOLAT_TIMEZONE")
	mustBindEnv(v, "waktusolat.poll_interval", "SOLAT_POLL_INTERVAL")

	mustBindEnv(v, "azan.media_player", "AZAN_MEDIA_PLAYER")
	mustBindEnv(v, "azan.volume", "AZAN_VOLUME")
	mustBindEnv(v, "azan.audio_source", "AZAN_AUDIO_SOURCE")
	mustBindEnv(v, "azan.audio_base_url", "AZAN_AUDIO_BASE_URL")
	mustBindEnv(v, "azan.audio_dir", "AZAN_AUDIO_DIR")
	mustBindEnv(v, "azan.remote_azan_url", "AZAN_REMOTE_URL")
	mustBindEnv(v, "azan.remote_fajr_url", "AZAN_REMOTE_FAJR_URL")
	mustBindEnv(v, "azan.profiles_file", "AZAN_PROFILES_FILE")

	mustBindEnv(v, "server.port", "SOLATSYNC_PORT")

	mustBindEnv(v, "cache.backend", "CACHE_BACKEND")
	mustBindEnv(v, "cache.path", "CACHE_PATH")
	mustBindEnv(v, "cache.redis.addr", "REDIS_ADDR")
	mustBindEnv(v, "cache.redis.username", "REDIS_USERNAME")
	mustBindEnv(v, "cache.redis.password", "REDIS_PASSWORD")
	mustBindEnv(v, "cache.redis.db", "REDIS_DB")

	mustBindEnv(v, "mqtt.broker", "MQTT_BROKER")
	mustBindEnv(v, "mqtt.username", "MQTT_USERNAME")
	mustBindEnv(v, "mqtt.password", "MQTT_PASSWORD")
	mustBindEnv(v, "mqtt.discovery_prefix", "MQTT_DISCOVERY_PREFIX")

	mustBindEnv(v, "location.latitude", "LATITUDE")
	mustBindEnv(v, "location.longitude", "LONGITUDE")

	mustBindEnv(v, "logging.level", "LOG_LEVEL")
}

// Load loads configuration from YAML file, environment variables, and CLI flags.
// Priority: CLI flags > ENV vars > .env file > YAML file > defaults.
// The configFile parameter is the path to the YAML config file (can be empty).
func Load(configFile string) (*Config, error) {
	return LoadWithViper(viper.New(), configFile)
}

// LoadWithViper loads configuration using a pre-configured viper instance.
// This allows CLI flags to be bound before loading.
func LoadWithViper(v *viper.Viper, configFile string) (*Config, error) {
	cfg, err := load(v, configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadForDisplay loads configuration without validation, for display purposes.
func LoadForDisplay(v *viper.Viper, configFile string) (*Config, error) {
	return load(v, configFile)
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	loadDotEnv()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	bindEnv(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.WaktuSolat.Zone = strings.ToUpper(strings.TrimSpace(cfg.WaktuSolat.Zone))
	return cfg, nil
}

// Validate checks the settings every command depends on. Home Assistant
// credentials are checked separately by RequireHomeAssistant.
func (c *Config) Validate() error {
	code, err := waktusolat.ValidateZone(c.WaktuSolat.Zone)
	if err != nil {
		return err
	}
	c.WaktuSolat.Zone = code
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Azan.Volume < 0 || c.Azan.Volume > 1 {
		return &waktusolat.ConfigurationError{
			Field:  "azan.volume",
			Value:  fmt.Sprintf("%g", c.Azan.Volume),
			Reason: "must be between 0 and 1",
		}
	}
	switch c.Azan.AudioSource {
	case AudioBundled:
	case AudioRemote:
		if c.Azan.RemoteAzanURL == "" {
			return &waktusolat.ConfigurationError{
				Field:  "azan.remote_azan_url",
				Reason: "required when audio_source is remote",
			}
		}
	default:
		return &waktusolat.ConfigurationError{
			Field:  "azan.audio_source",
			Value:  c.Azan.AudioSource,
			Reason: "must be bundled or remote",
		}
	}
	if c.WaktuSolat.PollInterval < time.Minute {
		return &waktusolat.ConfigurationError{
			Field:  "waktusolat.poll_interval",
			Value:  c.WaktuSolat.PollInterval.String(),
			Reason: "must be at least 1m",
		}
	}
	if _, err := url.Parse(c.WaktuSolat.BaseURL); err != nil || c.WaktuSolat.BaseURL == "" {
		return &waktusolat.ConfigurationError{
			Field:  "waktusolat.base_url",
			Value:  c.WaktuSolat.BaseURL,
			Reason: "must be a valid URL",
		}
	}
	switch c.Cache.Backend {
	case store.BackendMemory, store.BackendBadger, store.BackendRedis:
	default:
		return &waktusolat.ConfigurationError{
			Field:  "cache.backend",
			Value:  c.Cache.Backend,
			Reason: "must be memory, badger or redis",
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	return nil
}

// RequireHomeAssistant checks the settings needed to connect to Home Assistant.
func (c *Config) RequireHomeAssistant() error {
	if c.HomeAssistant.URL == "" {
		return fmt.Errorf("homeassistant.url is required")
	}
	if c.HomeAssistant.Token == "" {
		return fmt.Errorf("homeassistant.token is required (set via HA_TOKEN env var, --ha-token flag, or config file)")
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.WaktuSolat.Timezone)
	if err != nil || c.WaktuSolat.Timezone == "" {
		return nil, &waktusolat.ConfigurationError{
			Field:  "waktusolat.timezone",
			Value:  c.WaktuSolat.Timezone,
			Reason: "unknown timezone",
		}
	}
	return loc, nil
}

// HasCoordinates reports whether coordinates for the sunrise check are set.
func (c *Config) HasCoordinates() bool {
	return c.Coordinates.Latitude != 0 || c.Coordinates.Longitude != 0
}

// AudioBaseURL returns the URL media players use to reach this service.
func (c *Config) AudioBaseURL() string {
	if c.Azan.AudioBaseURL != "" {
		return strings.TrimRight(c.Azan.AudioBaseURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.Server.Port)
}

// StoreOptions maps the cache settings onto store options.
func (c *Config) StoreOptions() store.Options {
	path := c.Cache.Path
	if path == "" && c.Cache.Backend == store.BackendBadger {
		path = store.DefaultPath()
	}
	return store.Options{
		Backend: c.Cache.Backend,
		Path:    path,
		TTL:     c.Cache.TTL,
		Redis: store.RedisOptions{
			Addr:     c.Cache.Redis.Addr,
			Username: c.Cache.Redis.Username,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
			TTL:      c.Cache.TTL,
		},
	}
}

// MaskedConfig returns a copy of the config with sensitive data masked.
func (c *Config) MaskedConfig() Config {
	masked := *c
	if masked.HomeAssistant.Token != "" {
		masked.HomeAssistant.Token = maskToken(masked.HomeAssistant.Token)
	}
	if masked.Cache.Redis.Password != "" {
		masked.Cache.Redis.Password = maskToken(masked.Cache.Redis.Password)
	}
	if masked.MQTT.Password != "" {
		masked.MQTT.Password = maskToken(masked.MQTT.Password)
	}
	return masked
}

// Settings flattens the config into dotted keys for display.
func (c Config) Settings() map[string]interface{} {
	return map[string]interface{}{
		"homeassistant.url":       c.HomeAssistant.URL,
		"homeassistant.token":     c.HomeAssistant.Token,
		"homeassistant.read_only": c.HomeAssistant.ReadOnly,

		"waktusolat.base_url":      c.WaktuSolat.BaseURL,
		"waktusolat.timeout":       c.WaktuSolat.Timeout.String(),
		"waktusolat.zone":          c.WaktuSolat.Zone,
		"waktusolat.timezone":      c.WaktuSolat.Timezone,
		"waktusolat.poll_interval": c.WaktuSolat.PollInterval.String(),

		"azan.media_player":    c.Azan.MediaPlayer,
		"azan.volume":          c.Azan.Volume,
		"azan.audio_source":    c.Azan.AudioSource,
		"azan.audio_base_url":  c.AudioBaseURL(),
		"azan.audio_dir":       c.Azan.AudioDir,
		"azan.remote_azan_url": c.Azan.RemoteAzanURL,
		"azan.remote_fajr_url": c.Azan.RemoteFajrURL,
		"azan.profiles_file":   c.Azan.ProfilesFile,

		"server.port": c.Server.Port,

		"cache.backend":        c.Cache.Backend,
		"cache.path":           c.Cache.Path,
		"cache.ttl":            c.Cache.TTL.String(),
		"cache.redis.addr":     c.Cache.Redis.Addr,
		"cache.redis.password": c.Cache.Redis.Password,

		"mqtt.broker":           c.MQTT.Broker,
		"mqtt.username":         c.MQTT.Username,
		"mqtt.password":         c.MQTT.Password,
		"mqtt.discovery_prefix": c.MQTT.DiscoveryPrefix,
		"mqtt.topic_prefix":     c.MQTT.TopicPrefix,

		"location.latitude":  c.Coordinates.Latitude,
		"location.longitude": c.Coordinates.Longitude,

		"logging.level": c.Logging.Level,
	}
}

// maskToken masks a token, showing only the first 4 and last 4 characters.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}
