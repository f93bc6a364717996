package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := NewApp()
	var out bytes.Buffer
	app.rootCmd.SetOut(&out)
	app.rootCmd.SetErr(&out)
	app.rootCmd.SetArgs(args)
	err := app.Execute()
	return out.String(), err
}

func TestNewApp_Commands(t *testing.T) {
	app := NewApp()

	names := make(map[string]bool)
	for _, cmd := range app.rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"run", "zones", "today", "next", "play", "config"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	for _, flag := range []string{"config", "ha-url", "ha-token", "zone", "port", "read-only", "format", "color"} {
		assert.NotNil(t, app.rootCmd.PersistentFlags().Lookup(flag), "missing flag --%s", flag)
	}
}

func TestZonesCommand_JSON(t *testing.T) {
	out, err := run(t, "zones", "--format", "json")
	require.NoError(t, err)

	var zones []struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &zones))
	require.NotEmpty(t, zones)

	found := false
	for _, z := range zones {
		if z.Code == "SGR01" {
			found = true
			assert.Equal(t, "Selangor", z.State)
		}
	}
	assert.True(t, found, "SGR01 not listed")
}

func TestConfigCommand_MasksToken(t *testing.T) {
	out, err := run(t, "config", "--color", "never",
		"--zone", "wly01", "--ha-token", "abcdefghijklmnop")
	require.NoError(t, err)

	assert.Contains(t, out, "WLY01")
	assert.Contains(t, out, "abcd****mnop")
	assert.NotContains(t, out, "abcdefghijklmnop")
}

func TestPlayCommand_RequiresPrayer(t *testing.T) {
	_, err := run(t, "play")
	assert.Error(t, err)
}

func TestFormatFlag_Invalid(t *testing.T) {
	_, err := run(t, "zones", "--format", "xml")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "xml"))
}
