// Package api defines the data-model entities of spec.md §3 (Network,
// FixedIP, VIF, FloatingIP, DNSDomain) and the read-only NetworkInfo model
// returned to callers per spec.md §6. Struct tags follow the teacher's
// shared/api convention: json tags on every field, yaml tags with
// omitempty on optional pointer fields.
package api

import (
	"time"

	"github.com/google/uuid"
)

// NetworkScope distinguishes private (availability-zone scoped) from
// public (project scoped) DNS domains.
type NetworkScope string

// Possible DNSDomain scopes.
const (
	ScopePrivate NetworkScope = "private"
	ScopePublic  NetworkScope = "public"
)

// Network is a single L2/L3 broadcast domain managed by fleetnet.
type Network struct {
	ID             uuid.UUID `json:"id" yaml:"id"`
	NumericID      int64     `json:"numeric_id" yaml:"numeric_id"`
	Label          string    `json:"label" yaml:"label"`
	CIDR           string    `json:"cidr,omitempty" yaml:"cidr,omitempty"`
	CIDRv6         string    `json:"cidr_v6,omitempty" yaml:"cidr_v6,omitempty"`
	Gateway        string    `json:"gateway,omitempty" yaml:"gateway,omitempty"`
	GatewayV6      string    `json:"gateway_v6,omitempty" yaml:"gateway_v6,omitempty"`
	Bridge         string    `json:"bridge" yaml:"bridge"`
	BridgeInterface string   `json:"bridge_interface,omitempty" yaml:"bridge_interface,omitempty"`
	DNS            []string  `json:"dns,omitempty" yaml:"dns,omitempty"`
	VlanTag        *int64    `json:"vlan,omitempty" yaml:"vlan,omitempty"`
	VPNPublicAddr  string    `json:"vpn_public_address,omitempty" yaml:"vpn_public_address,omitempty"`
	VPNPrivateAddr string    `json:"vpn_private_address,omitempty" yaml:"vpn_private_address,omitempty"`
	VPNPublicPort  *int64    `json:"vpn_public_port,omitempty" yaml:"vpn_public_port,omitempty"`
	MultiHost      bool      `json:"multi_host" yaml:"multi_host"`
	Host           string    `json:"host,omitempty" yaml:"host,omitempty"`
	ProjectID      string    `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
}

// FixedIP is a single address drawn from a Network's CIDR.
type FixedIP struct {
	Address      string     `json:"address" yaml:"address"`
	NetworkID    uuid.UUID  `json:"network_id" yaml:"network_id"`
	Reserved     bool       `json:"reserved" yaml:"reserved"`
	Allocated    bool       `json:"allocated" yaml:"allocated"`
	Leased       bool       `json:"leased" yaml:"leased"`
	InstanceUUID *uuid.UUID `json:"instance_uuid,omitempty" yaml:"instance_uuid,omitempty"`
	VIFID        *uuid.UUID `json:"vif_id,omitempty" yaml:"vif_id,omitempty"`
	Host         *string    `json:"host,omitempty" yaml:"host,omitempty"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" yaml:"updated_at"`
}

// VIF is the (MAC, instance, network) tuple recorded for an instance's
// attachment to a Network.
type VIF struct {
	ID          uuid.UUID `json:"id" yaml:"id"`
	MACAddress  string    `json:"mac_address" yaml:"mac_address"`
	InstanceUUID uuid.UUID `json:"instance_uuid" yaml:"instance_uuid"`
	NetworkID   uuid.UUID `json:"network_id" yaml:"network_id"`
}

// FloatingIP is a publicly routable address dynamically associated with a
// FixedIP.
type FloatingIP struct {
	Address      string     `json:"address" yaml:"address"`
	FixedIPAddr  *string    `json:"fixed_ip_address,omitempty" yaml:"fixed_ip_address,omitempty"`
	ProjectID    *string    `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Pool         string     `json:"pool" yaml:"pool"`
	AutoAssigned bool       `json:"auto_assigned" yaml:"auto_assigned"`
	Host         *string    `json:"host,omitempty" yaml:"host,omitempty"`
	Interface    *string    `json:"interface,omitempty" yaml:"interface,omitempty"`
}

// DNSDomain describes a DNS zone eligible for A-record fanout.
type DNSDomain struct {
	Domain           string       `json:"domain" yaml:"domain"`
	Scope            NetworkScope `json:"scope" yaml:"scope"`
	AvailabilityZone string       `json:"availability_zone,omitempty" yaml:"availability_zone,omitempty"`
	ProjectID        string       `json:"project_id,omitempty" yaml:"project_id,omitempty"`
}
