package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeProfiles(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "playback_profiles.yaml")
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}

const sampleProfiles = `profiles:
  - name: cast
    match:
      - "media_player.nest_*"
    attempts:
      - url: "{url}"
        content_type: "audio/mp3"
  - name: sonos
    match:
      - "media_player.sonos_*"
    skip_turn_on: true
    attempts:
      - url: "{base_url}/audio/{file}"
        content_type: "music"
`

func TestLoader_NoFileUsesDefault(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	loader := NewLoader("", logger)

	require.NoError(t, loader.LoadPlaybackConfig())

	profile := loader.ProfileFor("media_player.anything")
	assert.Equal(t, DefaultProfileName, profile.Name)
	require.Len(t, profile.Attempts, 2)
	assert.Equal(t, "music", profile.Attempts[0].ContentType)
	assert.Equal(t, "audio/mpeg", profile.Attempts[1].ContentType)
	assert.Equal(t, "{url}", profile.Attempts[1].URL)
}

func TestLoader_LoadPlaybackConfig(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	loader := NewLoader(writeProfiles(t, sampleProfiles), logger)

	err := loader.LoadPlaybackConfig()
	require.NoError(t, err)

	config := loader.GetPlaybackConfig()
	require.NotNil(t, config)
	assert.Len(t, config.Profiles, 2)

	t.Run("glob match", func(t *testing.T) {
		profile := loader.ProfileFor("media_player.nest_kitchen")
		assert.Equal(t, "cast", profile.Name)
		assert.False(t, profile.SkipTurnOn)
	})

	t.Run("second profile", func(t *testing.T) {
		profile := loader.ProfileFor("media_player.sonos_bilik")
		assert.Equal(t, "sonos", profile.Name)
		assert.True(t, profile.SkipTurnOn)
		assert.Equal(t, "{base_url}/audio/{file}", profile.Attempts[0].URL)
	})

	t.Run("falls back to built-in default", func(t *testing.T) {
		profile := loader.ProfileFor("media_player.ruang_tamu")
		assert.Equal(t, DefaultProfileName, profile.Name)
		assert.Len(t, profile.Attempts, 2)
	})
}

func TestLoader_FileDefaultProfile(t *testing.T) {
	content := sampleProfiles + `  - name: default
    attempts:
      - url: "{url}"
        content_type: "audio/mpeg"
`
	loader := NewLoader(writeProfiles(t, content), zap.NewNop())
	require.NoError(t, loader.LoadPlaybackConfig())

	profile := loader.ProfileFor("media_player.ruang_tamu")
	assert.Equal(t, DefaultProfileName, profile.Name)
	require.Len(t, profile.Attempts, 1)
	assert.Equal(t, "audio/mpeg", profile.Attempts[0].ContentType)
}

func TestLoader_InvalidFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{"bad yaml", "profiles: [", "failed to parse"},
		{"no name", "profiles:\n  - attempts:\n      - url: x\n        content_type: music\n", "name is required"},
		{"no attempts", "profiles:\n  - name: empty\n", "at least one attempt"},
		{"missing content type", "profiles:\n  - name: x\n    attempts:\n      - url: \"{url}\"\n", "needs url and content_type"},
		{"bad glob", "profiles:\n  - name: x\n    match: [\"media_player.[\"]\n    attempts:\n      - url: a\n        content_type: music\n", "bad match pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := NewLoader(writeProfiles(t, tt.content), zap.NewNop())
			err := loader.LoadPlaybackConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		loader := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"), zap.NewNop())
		err := loader.LoadPlaybackConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read")
	})
}

func TestLoader_ResetKeepsPreviousOnFailure(t *testing.T) {
	path := writeProfiles(t, sampleProfiles)
	loader := NewLoader(path, zap.NewNop())
	require.NoError(t, loader.LoadPlaybackConfig())

	require.NoError(t, os.WriteFile(path, []byte("profiles: ["), 0644))
	assert.Error(t, loader.Reset())
	assert.Equal(t, "cast", loader.ProfileFor("media_player.nest_kitchen").Name)

	require.NoError(t, os.WriteFile(path, []byte("profiles:\n  - name: only\n    match: [\"*\"]\n    attempts:\n      - url: \"{url}\"\n        content_type: music\n"), 0644))
	require.NoError(t, loader.Reset())
	assert.Equal(t, "only", loader.ProfileFor("media_player.nest_kitchen").Name)
}

func TestPlaybackConfig_NilSafe(t *testing.T) {
	var config *PlaybackConfig
	assert.Equal(t, DefaultProfileName, config.ProfileFor("media_player.x").Name)
}
