package scheduler

// ResourceFilter excludes any host that does not have at least the
// requested amount of every resource key named in the instance type
// being scheduled (the default, near-universal Nova filter: cores/
// ram/disk fit).
func ResourceFilter(host *HostState, props *FilterProperties) bool {
	for k, want := range props.InstanceType.Resources {
		if host.Resources[k] < want {
			return false
		}
	}

	return true
}

// RetryFilter excludes any host already recorded in the retry ledger
// for this instance, so a re-schedule after a build failure never picks
// the same host twice.
func RetryFilter(host *HostState, props *FilterProperties) bool {
	if props.Retry == nil {
		return true
	}

	for _, tried := range props.Retry.Hosts {
		if tried.Host == host.Host && tried.Node == host.Node {
			return false
		}
	}

	return true
}
