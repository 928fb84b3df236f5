package netmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hostfleet/fleetnet/internal/api"
	"github.com/hostfleet/fleetnet/internal/cluster"
	"github.com/hostfleet/fleetnet/internal/logger"
)

// RemoteCaller is the narrow RPC-forwarding surface the Router needs;
// internal/rpcclient supplies the real implementation, tests supply a
// fake (spec.md §9: "Cyclic references ... broken by constructor
// injection of narrow interfaces rather than back-references").
type RemoteCaller interface {
	Forward(ctx context.Context, host string, op string, args any) (any, error)
}

// Router is the Network Ownership Router of spec.md §4.2: it decides,
// for any network-bound mutation, which host is authoritative, and
// either executes locally or forwards via RPC.
type Router struct {
	localHost        string
	nodes            cluster.Store
	offlineThreshold time.Duration
	caller           RemoteCaller
}

// NewRouter returns a Router bound to localHost.
func NewRouter(localHost string, nodes cluster.Store, offlineThreshold time.Duration, caller RemoteCaller) *Router {
	return &Router{localHost: localHost, nodes: nodes, offlineThreshold: offlineThreshold, caller: caller}
}

// Decision is the outcome of resolving a network-bound operation's
// authoritative host.
type Decision struct {
	Host    string
	Local   bool
	Offline bool
}

// Resolve computes the authoritative host per spec.md §4.2:
//
//	if network.multi_host: host = instanceHost   # per-instance sharding
//	else:                  host = network.Host    # per-network sharding
func (r *Router) Resolve(ctx context.Context, n api.Network, instanceHost string) (Decision, error) {
	host := n.Host
	if n.MultiHost {
		host = instanceHost
	}

	if host == "" {
		return Decision{}, fmt.Errorf("Network %s has no owning host recorded and none was supplied", n.ID)
	}

	if host == r.localHost {
		return Decision{Host: host, Local: true}, nil
	}

	offline, err := r.isOffline(ctx, host)
	if err != nil {
		return Decision{}, err
	}

	return Decision{Host: host, Local: false, Offline: offline}, nil
}

func (r *Router) isOffline(ctx context.Context, host string) (bool, error) {
	nodes, err := r.nodes.Nodes(ctx)
	if err != nil {
		return false, fmt.Errorf("Failed to list cluster members: %w", err)
	}

	for _, n := range nodes {
		if n.Name == host {
			return n.IsOffline(r.offlineThreshold), nil
		}
	}

	// Unknown host: treat as offline rather than silently routing to a
	// peer the Router cannot account for.
	return true, nil
}

// Dispatch executes fn locally if decision.Local, otherwise forwards op
// with args to decision.Host. Teardown-only callers should instead use
// DispatchTeardown to get the stale-heartbeat degradation of spec.md §4.2.
func (r *Router) Dispatch(ctx context.Context, decision Decision, op string, args any, fn func(ctx context.Context) (any, error)) (any, error) {
	if decision.Local {
		return fn(ctx)
	}

	if decision.Offline {
		return nil, fmt.Errorf("Cannot allocate on offline host %q", decision.Host)
	}

	return r.caller.Forward(ctx, decision.Host, op, args)
}

// decodeForwardedString unwraps a Dispatch/DispatchTeardown result that is
// known to carry a single string: the local path returns fn's real Go
// value, but rpcclient.Client.Forward leaves its result as json.RawMessage
// since it doesn't know the shape of any given op's reply.
func decodeForwardedString(result any) (string, error) {
	switch v := result.(type) {
	case string:
		return v, nil
	case json.RawMessage:
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", fmt.Errorf("Failed to decode forwarded result: %w", err)
		}

		return s, nil
	default:
		return "", fmt.Errorf("unexpected forwarded result type %T", result)
	}
}

// DispatchTeardown is Dispatch's deallocation-path variant: when the
// target host's heartbeat is stale, it degrades to executing localFn
// (the pure-DB mutation, teardown=false semantics) rather than failing,
// per spec.md §4.2's "Special degradation" rule. A live remote host is
// still forwarded to normally so the driver runs on the host that owns
// the resource.
func (r *Router) DispatchTeardown(ctx context.Context, decision Decision, op string, args any, fn func(ctx context.Context) (any, error), localFn func(ctx context.Context) (any, error)) (any, error) {
	if decision.Local {
		return fn(ctx)
	}

	if decision.Offline {
		logger.Warn("target host offline, degrading teardown to local db mutation", logger.Ctx{"host": decision.Host, "op": op})
		return localFn(ctx)
	}

	return r.caller.Forward(ctx, decision.Host, op, args)
}
