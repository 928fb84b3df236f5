package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, int64(100), c.VlanStart())
	assert.Equal(t, int64(1), c.NumNetworks())
	assert.Equal(t, int64(256), c.NetworkSize())
	assert.Equal(t, int64(5), c.CreateUniqueMacAddressAttempts())
	assert.Equal(t, 600*time.Second, c.FixedIPDisassociateTimeout())
	assert.False(t, c.MultiHost())
	assert.Equal(t, int64(3), c.SchedulerMaxAttempts())
}

func TestLoad_Overrides(t *testing.T) {
	c, err := config.Load(map[string]string{
		config.OptVlanStart:                   "200",
		config.OptMultiHost:                   "true",
		config.OptFixedIPDisassociateTimeout:  "30",
		config.OptSchedulerMaxAttempts:        "1",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(200), c.VlanStart())
	assert.True(t, c.MultiHost())
	assert.Equal(t, 30*time.Second, c.FixedIPDisassociateTimeout())
	assert.Equal(t, int64(1), c.SchedulerMaxAttempts())
}

func TestLoad_InvalidKeyIsDroppedNotFatal(t *testing.T) {
	c, err := config.Load(map[string]string{
		config.OptSchedulerMaxAttempts: "0",
	})
	require.NoError(t, err) // SafeLoad never errors, just logs and drops.
	assert.Equal(t, int64(3), c.SchedulerMaxAttempts())
}
