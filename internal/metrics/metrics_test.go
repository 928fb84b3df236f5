package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/metrics"
)

func TestPoolExhaustion_CountsByLabel(t *testing.T) {
	metrics.PoolExhaustion.WithLabelValues("fixed_ip").Inc()

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)

	var found bool
	for _, fam := range families {
		if fam.GetName() != "fleetnet_pool_exhaustion_total" {
			continue
		}

		for _, m := range fam.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "pool" && l.GetValue() == "fixed_ip" {
					found = true
					assert.GreaterOrEqual(t, m.GetCounter().GetValue(), 1.0)
				}
			}
		}
	}

	assert.True(t, found, "expected a fleetnet_pool_exhaustion_total sample labeled pool=fixed_ip")
}
