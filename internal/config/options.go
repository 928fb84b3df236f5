package config

import (
	"os/exec"
	"strconv"
)

// Option names, exactly as enumerated in spec.md §6.
const (
	OptNetworkDriver               = "network_driver"
	OptFlatNetworkBridge           = "flat_network_bridge"
	OptFlatInterface               = "flat_interface"
	OptFlatInjected                = "flat_injected"
	OptFlatNetworkDNS              = "flat_network_dns"
	OptVlanStart                   = "vlan_start"
	OptVlanInterface                = "vlan_interface"
	OptNumNetworks                 = "num_networks"
	OptVPNIP                       = "vpn_ip"
	OptVPNStart                    = "vpn_start"
	OptCntVPNClients               = "cnt_vpn_clients"
	OptNetworkSize                 = "network_size"
	OptFloatingRange               = "floating_range"
	OptDefaultFloatingPool         = "default_floating_pool"
	OptFixedRange                  = "fixed_range"
	OptFixedRangeV6                = "fixed_range_v6"
	OptGateway                     = "gateway"
	OptGatewayV6                   = "gateway_v6"
	OptMultiHost                   = "multi_host"
	OptFixedIPDisassociateTimeout  = "fixed_ip_disassociate_timeout"
	OptCreateUniqueMacAddrAttempts = "create_unique_mac_address_attempts"
	OptAutoAssignFloatingIP        = "auto_assign_floating_ip"
	OptForceDHCPRelease            = "force_dhcp_release"
	OptShareDHCPAddress            = "share_dhcp_address"
	OptUpdateDNSEntries            = "update_dns_entries"
	OptDHCPDomain                  = "dhcp_domain"
	OptSchedulerMaxAttempts        = "scheduler_max_attempts"
)

// Schema_ is the concrete configuration schema for fleetnet, enumerating
// exactly the recognized options of spec.md §6.
var Schema_ = NewSchema(map[string]Key{
	OptNetworkDriver: {
		Type:      String,
		Default:   "none",
		Validator: availableExecutable,
	},
	OptFlatNetworkBridge:  {Type: String, Default: "br100"},
	OptFlatInterface:      {Type: String, Default: ""},
	OptFlatInjected:       {Type: Bool, Default: "false"},
	OptFlatNetworkDNS:     {Type: String, Default: "8.8.4.4"},
	OptVlanStart:          {Type: Int64, Default: "100"},
	OptVlanInterface:      {Type: String, Default: ""},
	OptNumNetworks:        {Type: Int64, Default: "1"},
	OptVPNIP:              {Type: String, Default: ""},
	OptVPNStart:           {Type: Int64, Default: "1000"},
	OptCntVPNClients:      {Type: Int64, Default: "0"},
	OptNetworkSize:        {Type: Int64, Default: "256"},
	OptFloatingRange:      {Type: String, Default: ""},
	OptDefaultFloatingPool: {Type: String, Default: "nova"},
	OptFixedRange:          {Type: String, Default: "10.0.0.0/8"},
	OptFixedRangeV6:        {Type: String, Default: "fd00::/48"},
	OptGateway:             {Type: String, Default: ""},
	OptGatewayV6:           {Type: String, Default: ""},
	OptMultiHost:           {Type: Bool, Default: "false"},
	OptFixedIPDisassociateTimeout: {
		Type:    Duration,
		Default: "600",
	},
	OptCreateUniqueMacAddrAttempts: {Type: Int64, Default: "5"},
	OptAutoAssignFloatingIP:        {Type: Bool, Default: "false"},
	OptForceDHCPRelease:            {Type: Bool, Default: "true"},
	OptShareDHCPAddress:            {Type: Bool, Default: "false"},
	OptUpdateDNSEntries:            {Type: Bool, Default: "false"},
	OptDHCPDomain:                  {Type: String, Default: "novalocal"},
	OptSchedulerMaxAttempts: {
		Type:    Int64,
		Default: "3",
		Validator: func(value string) error {
			if n, err := strconv.ParseInt(value, 10, 64); err == nil && n < 1 {
				return errSchedulerMaxAttemptsTooLow
			}

			return nil
		},
	},
})

var errSchedulerMaxAttemptsTooLow = schedulerMaxAttemptsError{}

type schedulerMaxAttemptsError struct{}

func (schedulerMaxAttemptsError) Error() string { return "scheduler_max_attempts must be >= 1" }

func availableExecutable(value string) error {
	if value == "none" || value == "" {
		return nil
	}

	_, err := exec.LookPath(value)
	return err
}
