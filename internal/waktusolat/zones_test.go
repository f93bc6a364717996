package waktusolat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZones(t *testing.T) {
	all := Zones()
	require.Len(t, all, 59)
	assert.Equal(t, "JHR01", all[0].Code)
	assert.Equal(t, "WLY02", all[len(all)-1].Code)
}

func TestValidateZone(t *testing.T) {
	code, err := ValidateZone(" sgr01 ")
	require.NoError(t, err)
	assert.Equal(t, "SGR01", code)

	z, ok := LookupZone("WLY01")
	require.True(t, ok)
	assert.Equal(t, "Wilayah Persekutuan", z.State)

	_, err = ValidateZone("XYZ99")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "zone", cfgErr.Field)
	assert.False(t, IsRetryable(err))
}
