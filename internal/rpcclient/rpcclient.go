// Package rpcclient is the client-side mirror of internal/rpcapi: it
// implements netmanager.RemoteCaller so the Ownership Router
// (spec.md §4.2) can forward an operation to the host that actually
// owns the resource. The wire format is the same non-goal of spec.md
// §1 that internal/rpcapi documents; this package is simply the other
// end of that one concrete choice.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hostfleet/fleetnet/internal/cluster"
	"github.com/hostfleet/fleetnet/internal/logger"
	"github.com/hostfleet/fleetnet/internal/rpcapi"
)

// envelope mirrors rpcapi's response shape; only the fields a caller
// needs to unwrap a Forward result are read back out.
type envelope struct {
	Type       string          `json:"type"`
	StatusCode int             `json:"status_code"`
	Metadata   json.RawMessage `json:"metadata"`
	Error      string          `json:"error"`
}

// Client forwards RPC surface calls to the node that owns them,
// resolving host names to addresses through the same cluster.Store the
// Ownership Router already holds.
type Client struct {
	nodes      cluster.Store
	httpClient *http.Client
}

// New returns a Client that resolves forwarded hosts against nodes.
func New(nodes cluster.Store) *Client {
	return &Client{nodes: nodes, httpClient: &http.Client{}}
}

// Forward implements netmanager.RemoteCaller: it resolves host to an
// address, POSTs args as JSON to its rpcapi.Server, and returns the
// decoded metadata (left as json.RawMessage — the caller already knows
// the expected shape for the op it asked to forward).
func (c *Client) Forward(ctx context.Context, host string, op string, args any) (any, error) {
	addr, err := c.resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("http://%s/%s/rpc/%s", addr, rpcapi.Version, op)

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(args); err != nil {
		return nil, fmt.Errorf("Failed to encode forwarded rpc args: %w", err)
	}

	logger.Debug("forwarding rpc call", logger.Ctx{"host": host, "op": op, "url": url})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Failed to forward rpc call %q to host %q: %w", op, host, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("Failed to decode forwarded rpc response: %w", err)
	}

	if env.Type == "error" {
		return nil, fmt.Errorf("remote rpc %q on host %q failed: %s", op, host, env.Error)
	}

	return env.Metadata, nil
}

func (c *Client) resolve(ctx context.Context, host string) (string, error) {
	nodes, err := c.nodes.Nodes(ctx)
	if err != nil {
		return "", fmt.Errorf("Failed to list cluster members: %w", err)
	}

	for _, n := range nodes {
		if n.Name == host {
			return n.Address, nil
		}
	}

	return "", fmt.Errorf("no known address for host %q", host)
}
