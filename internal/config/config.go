package config

import "time"

// NetworkConfig is the typed view over Schema_ that the rest of fleetnet
// depends on, so call sites never string-key into a Map directly.
type NetworkConfig struct {
	m Map
}

// Load validates raw into a NetworkConfig using Schema_.
func Load(raw map[string]string) (NetworkConfig, error) {
	m, err := SafeLoad(Schema_, raw)
	return NetworkConfig{m: m}, err
}

func (c NetworkConfig) NetworkDriver() string    { return c.m.GetString(OptNetworkDriver) }
func (c NetworkConfig) FlatNetworkBridge() string { return c.m.GetString(OptFlatNetworkBridge) }
func (c NetworkConfig) FlatInterface() string     { return c.m.GetString(OptFlatInterface) }
func (c NetworkConfig) FlatInjected() bool        { return c.m.GetBool(OptFlatInjected) }
func (c NetworkConfig) FlatNetworkDNS() string    { return c.m.GetString(OptFlatNetworkDNS) }
func (c NetworkConfig) VlanStart() int64          { return c.m.GetInt64(OptVlanStart) }
func (c NetworkConfig) VlanInterface() string     { return c.m.GetString(OptVlanInterface) }
func (c NetworkConfig) NumNetworks() int64        { return c.m.GetInt64(OptNumNetworks) }
func (c NetworkConfig) VPNStart() int64           { return c.m.GetInt64(OptVPNStart) }
func (c NetworkConfig) CntVPNClients() int64      { return c.m.GetInt64(OptCntVPNClients) }
func (c NetworkConfig) NetworkSize() int64        { return c.m.GetInt64(OptNetworkSize) }
func (c NetworkConfig) Gateway() string           { return c.m.GetString(OptGateway) }
func (c NetworkConfig) GatewayV6() string         { return c.m.GetString(OptGatewayV6) }
func (c NetworkConfig) MultiHost() bool           { return c.m.GetBool(OptMultiHost) }

func (c NetworkConfig) FixedIPDisassociateTimeout() time.Duration {
	return c.m.GetDuration(OptFixedIPDisassociateTimeout)
}

func (c NetworkConfig) CreateUniqueMacAddressAttempts() int64 {
	return c.m.GetInt64(OptCreateUniqueMacAddrAttempts)
}

func (c NetworkConfig) AutoAssignFloatingIP() bool { return c.m.GetBool(OptAutoAssignFloatingIP) }
func (c NetworkConfig) ForceDHCPRelease() bool     { return c.m.GetBool(OptForceDHCPRelease) }
func (c NetworkConfig) ShareDHCPAddress() bool     { return c.m.GetBool(OptShareDHCPAddress) }
func (c NetworkConfig) UpdateDNSEntries() bool     { return c.m.GetBool(OptUpdateDNSEntries) }
func (c NetworkConfig) DHCPDomain() string         { return c.m.GetString(OptDHCPDomain) }

func (c NetworkConfig) SchedulerMaxAttempts() int64 {
	return c.m.GetInt64(OptSchedulerMaxAttempts)
}
