package scheduler_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/scheduler"
)

func fiveEqualHosts() []*scheduler.HostState {
	hosts := make([]*scheduler.HostState, 5)
	for i := range hosts {
		hosts[i] = &scheduler.HostState{
			Host:      string(rune('A' + i)),
			Node:      "node-" + string(rune('A'+i)),
			Resources: map[string]int64{"memory_mb": 4096},
		}
	}

	return hosts
}

func newScheduler(hosts []*scheduler.HostState, maxAttempts int64) *scheduler.FilterScheduler {
	hm := &scheduler.HostManager{
		Provider: func(ctx context.Context) ([]*scheduler.HostState, error) { return hosts, nil },
		Filters:  []scheduler.Filter{scheduler.ResourceFilter},
		Weighers: []scheduler.Weigher{scheduler.RAMWeigher},
	}

	return &scheduler.FilterScheduler{Hosts: hm, MaxAttempts: maxAttempts}
}

// TestFilterScheduler_BatchConsumesSequentially is scenario S4: 5 hosts
// with equal initial weights, 3 instances; without virtual consumption
// all 3 would pick host A, but consuming 1024MB per pick after each
// selection makes the next pick prefer a different, still-full host.
func TestFilterScheduler_BatchConsumesSequentially(t *testing.T) {
	hosts := fiveEqualHosts()
	s := newScheduler(hosts, 3)

	spec := scheduler.RequestSpec{
		InstanceType: scheduler.InstanceType{Resources: map[string]int64{"memory_mb": 1024}},
	}

	instanceUUIDs := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	props := &scheduler.FilterProperties{}

	selected, err := s.Schedule(context.Background(), spec, props, instanceUUIDs)
	require.NoError(t, err)
	require.Len(t, selected, 3)

	seen := map[string]bool{}
	for _, h := range selected {
		assert.False(t, seen[h.Host], "each pick in the batch should land on a distinct host")
		seen[h.Host] = true
	}

	assert.Empty(t, props.Retry.Hosts, "retry ledger is untouched by a single in-pass Schedule call")
}

// TestFilterScheduler_RetryExhaustion is scenario S5: max_attempts=3,
// num_attempts=3 on entry increments to 4 and raises NoValidHost before
// any filtering runs (the host list is never even fetched).
func TestFilterScheduler_RetryExhaustion(t *testing.T) {
	hosts := fiveEqualHosts()
	fetched := false
	hm := &scheduler.HostManager{
		Provider: func(ctx context.Context) ([]*scheduler.HostState, error) {
			fetched = true
			return hosts, nil
		},
	}

	s := &scheduler.FilterScheduler{Hosts: hm, MaxAttempts: 3}

	props := &scheduler.FilterProperties{Retry: &scheduler.Retry{NumAttempts: 3}}
	spec := scheduler.RequestSpec{InstanceType: scheduler.InstanceType{Resources: map[string]int64{"memory_mb": 1024}}}

	_, err := s.Schedule(context.Background(), spec, props, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, scheduler.ErrNoValidHost)
	assert.Equal(t, 4, props.Retry.NumAttempts)
	assert.False(t, fetched, "retry budget must be enforced before host states are fetched")
}

// TestFilterScheduler_MaxAttemptsOneDisablesRetryTracking covers
// "scheduler_max_attempts = 1 ⇒ retry dict never recorded".
func TestFilterScheduler_MaxAttemptsOneDisablesRetryTracking(t *testing.T) {
	hosts := fiveEqualHosts()
	s := newScheduler(hosts, 1)

	props := &scheduler.FilterProperties{}
	spec := scheduler.RequestSpec{InstanceType: scheduler.InstanceType{Resources: map[string]int64{"memory_mb": 1024}}}

	_, err := s.Schedule(context.Background(), spec, props, []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 0, props.Retry.NumAttempts)
}

func TestFilterScheduler_ResourceFilterExcludesUndersizedHosts(t *testing.T) {
	hosts := []*scheduler.HostState{
		{Host: "small", Resources: map[string]int64{"memory_mb": 512}},
		{Host: "big", Resources: map[string]int64{"memory_mb": 8192}},
	}

	s := newScheduler(hosts, 3)
	props := &scheduler.FilterProperties{}
	spec := scheduler.RequestSpec{InstanceType: scheduler.InstanceType{Resources: map[string]int64{"memory_mb": 4096}}}

	selected, err := s.Schedule(context.Background(), spec, props, []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "big", selected[0].Host)
}

func TestFilterScheduler_NoHostsFitRaisesNoValidHost(t *testing.T) {
	hosts := []*scheduler.HostState{{Host: "tiny", Resources: map[string]int64{"memory_mb": 1}}}
	s := newScheduler(hosts, 3)

	props := &scheduler.FilterProperties{}
	spec := scheduler.RequestSpec{InstanceType: scheduler.InstanceType{Resources: map[string]int64{"memory_mb": 4096}}}

	_, err := s.Schedule(context.Background(), spec, props, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, scheduler.ErrNoValidHost)
}

func TestFilterScheduler_RunInstances_EmitsNotificationsAndPlaces(t *testing.T) {
	hosts := fiveEqualHosts()
	s := newScheduler(hosts, 3)

	var events []string
	s.Notify = func(event string, payload map[string]any) { events = append(events, event) }

	spec := scheduler.RequestSpec{InstanceType: scheduler.InstanceType{Resources: map[string]int64{"memory_mb": 1024}}}
	instanceUUIDs := []uuid.UUID{uuid.New(), uuid.New()}
	props := &scheduler.FilterProperties{}

	placements, err := s.RunInstances(context.Background(), spec, props, instanceUUIDs)
	require.NoError(t, err)
	require.Len(t, placements, 2)

	assert.Equal(t, []string{
		scheduler.EventRunInstanceStart,
		scheduler.EventRunInstanceScheduled,
		scheduler.EventRunInstanceScheduled,
		scheduler.EventRunInstanceEnd,
	}, events)

	// The retry ledger is scrubbed to hold only the last instance's
	// own pick, not an accumulation across the batch.
	require.Len(t, props.Retry.Hosts, 1)
	assert.Equal(t, placements[1].Host, props.Retry.Hosts[0].Host)
}

func TestFilterScheduler_RunInstances_PartialBatchRecordsErrors(t *testing.T) {
	hosts := []*scheduler.HostState{{Host: "only", Resources: map[string]int64{"memory_mb": 1024}}}
	s := newScheduler(hosts, 3)

	var failed []uuid.UUID
	s.ErrorHook = func(ctx context.Context, instanceUUID uuid.UUID, err error) {
		failed = append(failed, instanceUUID)
	}

	spec := scheduler.RequestSpec{InstanceType: scheduler.InstanceType{Resources: map[string]int64{"memory_mb": 1024}}}
	instanceUUIDs := []uuid.UUID{uuid.New(), uuid.New()}
	props := &scheduler.FilterProperties{}

	placements, err := s.RunInstances(context.Background(), spec, props, instanceUUIDs)
	require.NoError(t, err)
	require.Len(t, placements, 1)
	require.Len(t, failed, 1)
	assert.Equal(t, instanceUUIDs[1], failed[0])
}
