package scheduler

import (
	"context"
	"sort"
)

// HostState is a per-host resource snapshot, spec.md §3's HostState
// entity: "built per scheduling pass; mutated by consume_from_instance
// between picks within one pass; discarded at pass end." Resources and
// Limits share a vocabulary with InstanceType.Resources (e.g.
// "vcpus", "memory_mb", "disk_gb").
type HostState struct {
	Host      string
	Node      string
	Resources map[string]int64
	Limits    map[string]int64
}

// ConsumeFromInstance mutates h in place, subtracting one instance's
// resource footprint so the next iteration of the same scheduling pass
// sees reduced capacity and may prefer a different host.
func (h *HostState) ConsumeFromInstance(instanceType InstanceType) {
	if h.Resources == nil {
		h.Resources = map[string]int64{}
	}

	for k, v := range instanceType.Resources {
		h.Resources[k] -= v
	}
}

// clone returns a deep-enough copy so GetAllHostStates callers can
// safely reuse a cached host list across scheduling passes without one
// pass's consumption leaking into the next.
func (h *HostState) clone() *HostState {
	c := &HostState{Host: h.Host, Node: h.Node}

	c.Resources = make(map[string]int64, len(h.Resources))
	for k, v := range h.Resources {
		c.Resources[k] = v
	}

	c.Limits = make(map[string]int64, len(h.Limits))
	for k, v := range h.Limits {
		c.Limits[k] = v
	}

	return c
}

// Filter excludes a candidate host from a scheduling pass, spec.md
// §4.6 step 4's get_filtered_hosts.
type Filter func(host *HostState, props *FilterProperties) bool

// Weigher scores a surviving candidate; higher wins, spec.md §4.6
// step 4's get_weighed_hosts.
type Weigher func(host *HostState, props *FilterProperties) float64

// WeighedHost pairs a host with its computed weight.
type WeighedHost struct {
	Host   *HostState
	Weight float64
}

// StateProvider supplies the current host population for a scheduling
// pass, spec.md §4.6 step 3's get_all_host_states(elevated). Injectable
// the same way netmanager.Manager takes an L3Driver: the scheduler has
// no opinion on where capacity numbers come from (a cluster heartbeat
// payload, a capacity-tracker table, a static config list).
type StateProvider func(ctx context.Context) ([]*HostState, error)

// HostManager holds one scheduling pass's filter/weigh pipeline,
// spec.md §4.6's HostManager. Filters run in order, short-circuiting on
// the first rejection; Weighers' scores are summed per host.
type HostManager struct {
	Provider StateProvider
	Filters  []Filter
	Weighers []Weigher
}

// GetAllHostStates returns a fresh, independently-mutable snapshot so a
// scheduling pass's ConsumeFromInstance calls never bleed into another
// concurrent pass sharing the same Provider.
func (m *HostManager) GetAllHostStates(ctx context.Context) ([]*HostState, error) {
	hosts, err := m.Provider(ctx)
	if err != nil {
		return nil, err
	}

	cloned := make([]*HostState, len(hosts))
	for i, h := range hosts {
		cloned[i] = h.clone()
	}

	return cloned, nil
}

// GetFilteredHosts returns the hosts that pass every configured Filter.
func (m *HostManager) GetFilteredHosts(hosts []*HostState, props *FilterProperties) []*HostState {
	if len(m.Filters) == 0 {
		return hosts
	}

	out := make([]*HostState, 0, len(hosts))
	for _, h := range hosts {
		pass := true
		for _, f := range m.Filters {
			if !f(h, props) {
				pass = false
				break
			}
		}

		if pass {
			out = append(out, h)
		}
	}

	return out
}

// GetWeighedHosts scores hosts with every configured Weigher and
// returns them sorted highest-weight first (index 0 is best_host).
func (m *HostManager) GetWeighedHosts(hosts []*HostState, props *FilterProperties) []WeighedHost {
	weighed := make([]WeighedHost, len(hosts))
	for i, h := range hosts {
		var total float64
		for _, w := range m.Weighers {
			total += w(h, props)
		}

		weighed[i] = WeighedHost{Host: h, Weight: total}
	}

	sort.SliceStable(weighed, func(i, j int) bool { return weighed[i].Weight > weighed[j].Weight })

	return weighed
}
