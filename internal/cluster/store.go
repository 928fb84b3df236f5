package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/canonical/go-dqlite/client"
)

// Store tracks the fleet's NodeInfo rows: add/update a heartbeat, and list
// all known peers. A production deployment backs this with the same
// dqlite-replicated store the gateway uses for cluster membership
// (github.com/canonical/go-dqlite/client.NodeStore); a single-node or test
// deployment uses MemStore.
type Store interface {
	Nodes(ctx context.Context) ([]NodeInfo, error)
	Heartbeat(ctx context.Context, name, address string) error
}

// MemStore is an in-process Store, used for single-node deployments and
// tests.
type MemStore struct {
	mu    sync.Mutex
	nodes map[string]NodeInfo
	next  int64
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{nodes: make(map[string]NodeInfo)}
}

// Nodes returns every known NodeInfo.
func (s *MemStore) Nodes(ctx context.Context) ([]NodeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]NodeInfo, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}

	return out, nil
}

// Heartbeat records that name (at address) is alive as of now, assigning
// it a fresh ID the first time it's seen.
func (s *MemStore) Heartbeat(ctx context.Context, name, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[name]
	if !ok {
		s.next++
		n = NodeInfo{ID: s.next, Name: name}
	}

	n.Address = address
	n.Heartbeat = time.Now()
	s.nodes[name] = n

	return nil
}

// DqliteNodeStore adapts a github.com/canonical/go-dqlite/client.NodeStore
// — the same address-discovery store the dqlite driver itself uses to find
// the current cluster leader — into the set of peer addresses the
// Notifier dispatches to. It does not itself persist heartbeats; Nodes
// merges the dqlite address list with heartbeat timestamps tracked
// in-process, since heartbeat staleness (spec.md §4.2) is a network-
// manager-level concept that dqlite's own store doesn't model.
type DqliteNodeStore struct {
	dqlite client.NodeStore
	mem    *MemStore
}

// NewDqliteNodeStore wraps dqlite's node store.
func NewDqliteNodeStore(store client.NodeStore) *DqliteNodeStore {
	return &DqliteNodeStore{dqlite: store, mem: NewMemStore()}
}

// Nodes lists the dqlite-known cluster addresses, annotated with whatever
// heartbeat this process has observed for each.
func (s *DqliteNodeStore) Nodes(ctx context.Context) ([]NodeInfo, error) {
	members, err := s.dqlite.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("Failed to list dqlite cluster members: %w", err)
	}

	known, err := s.mem.Nodes(ctx)
	if err != nil {
		return nil, err
	}

	byAddress := make(map[string]NodeInfo, len(known))
	for _, n := range known {
		byAddress[n.Address] = n
	}

	out := make([]NodeInfo, 0, len(members))
	for _, m := range members {
		if n, ok := byAddress[m.Address]; ok {
			out = append(out, n)
			continue
		}

		out = append(out, NodeInfo{ID: int64(m.ID), Address: m.Address})
	}

	return out, nil
}

// Heartbeat records a liveness timestamp for name/address.
func (s *DqliteNodeStore) Heartbeat(ctx context.Context, name, address string) error {
	return s.mem.Heartbeat(ctx, name, address)
}
