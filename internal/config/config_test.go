package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walnadz/solatsyncmy/internal/store"
	"github.com/walnadz/solatsyncmy/internal/waktusolat"
)

// clearEnv blanks every variable the loader binds so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	for _, name := range []string{
		"HA_URL", "HA_TOKEN", "READ_ONLY",
		"SOLAT_API_URL", "SOLAT_API_TIMEOUT", "SOLAT_ZONE", "SOLAT_TIMEZONE", "SOLAT_POLL_INTERVAL",
		"AZAN_MEDIA_PLAYER", "AZAN_VOLUME", "AZAN_AUDIO_SOURCE", "AZAN_AUDIO_BASE_URL", "AZAN_AUDIO_DIR",
		"AZAN_REMOTE_URL", "AZAN_REMOTE_FAJR_URL", "AZAN_PROFILES_FILE",
		"SOLATSYNC_PORT", "SERVER_PORT",
		"CACHE_BACKEND", "CACHE_PATH", "REDIS_ADDR", "REDIS_USERNAME", "REDIS_PASSWORD", "REDIS_DB",
		"MQTT_BROKER", "MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_DISCOVERY_PREFIX",
		"LATITUDE", "LONGITUDE", "LOG_LEVEL",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "SGR01", cfg.WaktuSolat.Zone)
	assert.Equal(t, "Asia/Kuala_Lumpur", cfg.WaktuSolat.Timezone)
	assert.Equal(t, 15*time.Minute, cfg.WaktuSolat.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.WaktuSolat.Timeout)
	assert.Equal(t, waktusolat.DefaultBaseURL, cfg.WaktuSolat.BaseURL)
	assert.Equal(t, 0.7, cfg.Azan.Volume)
	assert.Equal(t, AudioBundled, cfg.Azan.AudioSource)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, store.BackendBadger, cfg.Cache.Backend)
	assert.Equal(t, "homeassistant", cfg.MQTT.DiscoveryPrefix)
	assert.False(t, cfg.HomeAssistant.ReadOnly)
	assert.False(t, cfg.HasCoordinates())
	assert.Equal(t, "http://localhost:8081", cfg.AudioBaseURL())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kuala_Lumpur", loc.String())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOLAT_ZONE", " wly01 ")
	t.Setenv("SOLAT_POLL_INTERVAL", "30m")
	t.Setenv("AZAN_VOLUME", "0.4")
	t.Setenv("READ_ONLY", "true")
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("HA_TOKEN", "abcdefghijklmnop")
	t.Setenv("LATITUDE", "3.139")
	t.Setenv("LONGITUDE", "101.6869")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "WLY01", cfg.WaktuSolat.Zone)
	assert.Equal(t, 30*time.Minute, cfg.WaktuSolat.PollInterval)
	assert.Equal(t, 0.4, cfg.Azan.Volume)
	assert.True(t, cfg.HomeAssistant.ReadOnly)
	assert.Equal(t, store.BackendMemory, cfg.Cache.Backend)
	assert.True(t, cfg.HasCoordinates())
	assert.NoError(t, cfg.RequireHomeAssistant())
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "solatsync.yaml")
	content := `waktusolat:
  zone: JHR02
  poll_interval: 5m
azan:
  media_player: media_player.ruang_tamu
  audio_base_url: http://192.168.1.20:8081/
server:
  port: 9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "JHR02", cfg.WaktuSolat.Zone)
	assert.Equal(t, 5*time.Minute, cfg.WaktuSolat.PollInterval)
	assert.Equal(t, "media_player.ruang_tamu", cfg.Azan.MediaPlayer)
	assert.Equal(t, "http://192.168.1.20:8081", cfg.AudioBaseURL())
	assert.Equal(t, 9000, cfg.Server.Port)

	// Environment wins over the file
	t.Setenv("SOLAT_ZONE", "KTN01")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "KTN01", cfg.WaktuSolat.Zone)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"unknown zone", map[string]string{"SOLAT_ZONE": "XXX99"}, "zone"},
		{"bad timezone", map[string]string{"SOLAT_TIMEZONE": "Mars/Olympus"}, "waktusolat.timezone"},
		{"volume too high", map[string]string{"AZAN_VOLUME": "1.5"}, "azan.volume"},
		{"volume negative", map[string]string{"AZAN_VOLUME": "-0.1"}, "azan.volume"},
		{"bad audio source", map[string]string{"AZAN_AUDIO_SOURCE": "cdrom"}, "azan.audio_source"},
		{"remote without url", map[string]string{"AZAN_AUDIO_SOURCE": "remote"}, "azan.remote_azan_url"},
		{"poll too fast", map[string]string{"SOLAT_POLL_INTERVAL": "10s"}, "waktusolat.poll_interval"},
		{"bad backend", map[string]string{"CACHE_BACKEND": "sqlite"}, "cache.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			require.Error(t, err)
			assert.ErrorIs(t, err, waktusolat.ErrConfiguration)

			var cfgErr *waktusolat.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	t.Run("bad port", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SOLATSYNC_PORT", "70000")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("remote with url", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AZAN_AUDIO_SOURCE", "remote")
		t.Setenv("AZAN_REMOTE_URL", "https://cdn.example.com/azan.mp3")
		_, err := Load("")
		assert.NoError(t, err)
	})
}

func TestValidate_NormalizesZone(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.WaktuSolat.Zone = "  wly01 "
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "WLY01", cfg.WaktuSolat.Zone)
}

func TestLoadForDisplay_SkipsValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOLAT_ZONE", "XXX99")

	cfg, err := LoadForDisplay(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "XXX99", cfg.WaktuSolat.Zone)
}

func TestRequireHomeAssistant(t *testing.T) {
	cfg := &Config{HomeAssistant: HomeAssistantConfig{URL: "ws://ha:8123/api/websocket"}}
	err := cfg.RequireHomeAssistant()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")

	cfg.HomeAssistant.URL = ""
	assert.Error(t, cfg.RequireHomeAssistant())
}

func TestMaskedConfig(t *testing.T) {
	cfg := &Config{
		HomeAssistant: HomeAssistantConfig{Token: "eyJhbGciOiJIUzI1NiJ9.secret"},
		Cache:         CacheConfig{Redis: RedisConfig{Password: "short"}},
		MQTT:          MQTTConfig{Password: "mqtt-password-123"},
	}

	masked := cfg.MaskedConfig()
	assert.Equal(t, "eyJh****cret", masked.HomeAssistant.Token)
	assert.Equal(t, "****", masked.Cache.Redis.Password)
	assert.Equal(t, "mqtt****-123", masked.MQTT.Password)

	// Original untouched
	assert.Equal(t, "short", cfg.Cache.Redis.Password)
}

func TestSettings_MaskedForDisplay(t *testing.T) {
	clearEnv(t)
	t.Setenv("HA_TOKEN", "eyJhbGciOiJIUzI1NiJ9.secret")

	cfg, err := Load("")
	require.NoError(t, err)

	settings := cfg.MaskedConfig().Settings()
	assert.Equal(t, "eyJh****cret", settings["homeassistant.token"])
	assert.Equal(t, "SGR01", settings["waktusolat.zone"])
	assert.Equal(t, "15m0s", settings["waktusolat.poll_interval"])
	assert.Equal(t, "http://localhost:8081", settings["azan.audio_base_url"])
}

func TestStoreOptions(t *testing.T) {
	cfg := &Config{Cache: CacheConfig{Backend: store.BackendBadger, TTL: time.Hour}}
	opts := cfg.StoreOptions()
	assert.Equal(t, store.DefaultPath(), opts.Path)
	assert.Equal(t, time.Hour, opts.Redis.TTL)

	cfg.Cache.Backend = store.BackendMemory
	assert.Empty(t, cfg.StoreOptions().Path)
}
