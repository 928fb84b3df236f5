package scheduler

// RAMWeigher favors hosts with more free memory, mirroring Nova's
// default ram_weigher: spreading a batch across hosts rather than
// stacking every instance onto the first candidate. Combined with
// ConsumeFromInstance mutating the in-memory snapshot between picks,
// this is what produces a round-robin-like selection sequence across
// equally-weighted hosts within one pass.
func RAMWeigher(host *HostState, props *FilterProperties) float64 {
	return float64(host.Resources["memory_mb"])
}
