// Package scheduler implements the Filter Scheduler core of spec.md
// §4.6: a stateless placement engine that filters and weighs a snapshot
// of host states, virtually consuming resources between picks so a
// single scheduling pass never oversubscribes one host, and enforcing a
// retry budget across re-scheduling attempts.
package scheduler

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/hostfleet/fleetnet/internal/logger"
	"github.com/hostfleet/fleetnet/internal/metrics"
)

// ErrNoValidHost is raised when the retry budget is exhausted before
// filtering runs, or when the very first instance of a batch cannot be
// placed against any host.
var ErrNoValidHost = errors.New("no valid host")

// InstanceType describes the resources one instance of a batch consumes,
// keyed the way HostState.Resources is (e.g. "vcpus", "memory_mb",
// "disk_gb"), so filters/weighers/consumption all share one vocabulary.
type InstanceType struct {
	Name      string
	Resources map[string]int64
}

// RequestSpec is the scheduling request, spec.md §4.6's request_spec.
type RequestSpec struct {
	ProjectID    string
	OSType       string
	InstanceType InstanceType
	// NumInstances is used when instanceUUIDs is empty (a dry-run sizing
	// call); otherwise N is len(instanceUUIDs).
	NumInstances int
}

// RetryEntry is one (host, node) pair already tried for this instance.
type RetryEntry struct {
	Host string
	Node string
}

// Retry is filter_properties['retry']: the cross-call retry ledger.
type Retry struct {
	NumAttempts int
	Hosts       []RetryEntry
}

// FilterProperties is the mutable bag threaded through one scheduling
// pass, spec.md §4.6 step 2. Filters and weighers read it; Schedule and
// RunInstances populate and mutate it as described in the algorithm.
type FilterProperties struct {
	RequestSpec   RequestSpec
	ConfigOptions map[string]string
	InstanceType  InstanceType
	ProjectID     string
	OSType        string
	Retry         *Retry
	Limits        map[string]int64
}

// Placement is one instance's scheduling result.
type Placement struct {
	InstanceUUID uuid.UUID
	Host         string
	Node         string
}

// FilterScheduler is the placement engine. MaxAttempts is
// config.NetworkConfig.SchedulerMaxAttempts(); Hosts supplies and
// filters/weighs host state snapshots; Notify and ErrorHook are
// injectable seams exactly like netmanager.Manager's L3Driver/DNS/
// SecurityGroupRefresher fields.
type FilterScheduler struct {
	Hosts       *HostManager
	MaxAttempts int64
	Notify      Notifier
	// ErrorHook records a per-instance placement failure in batch mode
	// (spec.md §7: "NoValidHost ... in batch mode, per-instance errors
	// are caught and recorded without aborting the batch"). May be nil.
	ErrorHook func(ctx context.Context, instanceUUID uuid.UUID, err error)
}

// Schedule implements spec.md §4.6's five-step algorithm for one
// scheduling pass over instanceUUIDs (or RequestSpec.NumInstances slots
// when instanceUUIDs is empty). It returns one HostState per instance
// that could be placed; a partial batch (fewer selections than
// requested) is not itself an error — RunInstances is what decides
// whether partial placement should be surfaced as ErrNoValidHost.
func (s *FilterScheduler) Schedule(ctx context.Context, spec RequestSpec, props *FilterProperties, instanceUUIDs []uuid.UUID) ([]*HostState, error) {
	if props.Retry == nil {
		props.Retry = &Retry{}
	}

	// Step 1: enforce the retry budget. Disabled entirely when
	// max_attempts==1 ("do not record").
	if s.MaxAttempts != 1 {
		props.Retry.NumAttempts++
		if int64(props.Retry.NumAttempts) > s.MaxAttempts {
			metrics.SchedulerRetries.WithLabelValues("exhausted").Inc()
			return nil, ErrNoValidHost
		}

		metrics.SchedulerRetries.WithLabelValues("ok").Inc()
	}

	// Step 2: inject request context into filter_properties.
	props.RequestSpec = spec
	props.InstanceType = spec.InstanceType
	props.ProjectID = spec.ProjectID
	props.OSType = spec.OSType

	// Step 3.
	hosts, err := s.Hosts.GetAllHostStates(ctx)
	if err != nil {
		return nil, err
	}

	n := len(instanceUUIDs)
	if n == 0 {
		n = spec.NumInstances
	}

	selected := make([]*HostState, 0, n)

	for i := 0; i < n; i++ {
		filtered := s.Hosts.GetFilteredHosts(hosts, props)
		if len(filtered) == 0 {
			break
		}

		weighed := s.Hosts.GetWeighedHosts(filtered, props)
		best := weighed[0].Host

		selected = append(selected, best)
		best.ConsumeFromInstance(props.InstanceType)
	}

	if len(selected) == 0 && n > 0 {
		return nil, ErrNoValidHost
	}

	return selected, nil
}

// RunInstances wraps Schedule with the notification and retry-ledger
// bookkeeping described after spec.md §4.6's algorithm: one envelope id
// per batch (ulid, monotonic and sortable), a retry-ledger append and
// limits attachment per successful placement scrubbed between
// instances, and per-instance error absorption for any instance the
// batch could not place.
func (s *FilterScheduler) RunInstances(ctx context.Context, spec RequestSpec, props *FilterProperties, instanceUUIDs []uuid.UUID) ([]Placement, error) {
	envelopeID := ulid.Make().String()
	s.emit(EventRunInstanceStart, map[string]any{"envelope_id": envelopeID, "request_spec": spec})

	selected, err := s.Schedule(ctx, spec, props, instanceUUIDs)
	if err != nil {
		s.emit(EventRunInstanceEnd, map[string]any{"envelope_id": envelopeID, "placed": 0, "error": err.Error()})
		return nil, err
	}

	placements := make([]Placement, 0, len(selected))
	for i, host := range selected {
		instanceUUID := instanceUUIDs[i]

		// Scrub the retry ledger to empty between instances in one
		// batch so each instance starts with a fresh try list, then
		// record this pick and the host's oversubscription limits. With
		// MaxAttempts==1 retries are disabled and no pick is recorded.
		if s.MaxAttempts != 1 {
			props.Retry = &Retry{Hosts: []RetryEntry{{Host: host.Host, Node: host.Node}}}
		}
		props.Limits = host.Limits

		placements = append(placements, Placement{InstanceUUID: instanceUUID, Host: host.Host, Node: host.Node})
		s.emit(EventRunInstanceScheduled, map[string]any{
			"envelope_id":   envelopeID,
			"instance_uuid": instanceUUID,
			"host":          host.Host,
			"node":          host.Node,
		})
	}

	for _, instanceUUID := range instanceUUIDs[len(selected):] {
		if s.ErrorHook != nil {
			s.ErrorHook(ctx, instanceUUID, ErrNoValidHost)
		} else {
			logger.Warn("instance could not be placed", logger.Ctx{"instance": instanceUUID, "err": ErrNoValidHost})
		}
	}

	metrics.SchedulerPlacements.Add(float64(len(placements)))
	s.emit(EventRunInstanceEnd, map[string]any{"envelope_id": envelopeID, "placed": len(placements)})
	return placements, nil
}

func (s *FilterScheduler) emit(event string, payload map[string]any) {
	notify := s.Notify
	if notify == nil {
		notify = DefaultNotifier
	}

	notify(event, payload)
}
