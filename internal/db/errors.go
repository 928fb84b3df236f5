package db

import "errors"

// Sentinel errors returned by the storage layer, matching spec.md §7's
// abstract error taxonomy at the persistence boundary.
var (
	ErrNotFound            = errors.New("not found")
	ErrNoMoreFixedIPs      = errors.New("no more fixed ips")
	ErrFixedIPAlreadyInUse = errors.New("fixed ip already in use")
	ErrMACAddressInUse     = errors.New("mac address already in use")
)
