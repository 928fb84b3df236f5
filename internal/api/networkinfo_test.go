package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/api"
)

func TestDeriveIPv6_Deterministic(t *testing.T) {
	addr1, err := api.DeriveIPv6("fd00:1::/64", "aa:bb:cc:dd:ee:ff", "proj-1")
	require.NoError(t, err)

	addr2, err := api.DeriveIPv6("fd00:1::/64", "aa:bb:cc:dd:ee:ff", "proj-1")
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2)
	assert.True(t, addr1.To16() != nil)
}

func TestDeriveIPv6_DiffersByInput(t *testing.T) {
	base, err := api.DeriveIPv6("fd00:1::/64", "aa:bb:cc:dd:ee:ff", "proj-1")
	require.NoError(t, err)

	otherMAC, err := api.DeriveIPv6("fd00:1::/64", "aa:bb:cc:dd:ee:00", "proj-1")
	require.NoError(t, err)
	assert.NotEqual(t, base, otherMAC)

	otherProject, err := api.DeriveIPv6("fd00:1::/64", "aa:bb:cc:dd:ee:ff", "proj-2")
	require.NoError(t, err)
	assert.NotEqual(t, base, otherProject)
}

func TestDeriveIPv6_InvalidCIDR(t *testing.T) {
	_, err := api.DeriveIPv6("not-a-cidr", "aa:bb:cc:dd:ee:ff", "proj-1")
	assert.Error(t, err)
}
