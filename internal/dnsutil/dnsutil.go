// Package dnsutil fans out A-record creation/removal for instance and
// uuid domains (spec.md §4.3 step 4, §6 DNSDomain), built on
// github.com/miekg/dns for record construction.
package dnsutil

import (
	"context"
	"fmt"
	"net"

	"github.com/miekg/dns"

	"github.com/hostfleet/fleetnet/internal/logger"
)

// Updater is the collaborator that actually applies a zone update
// (dnsmasq hosts-file rewrite, a DNS server's dynamic-update API, etc.);
// deliberately out of scope per spec.md §1, so fleetnet only defines the
// interface.
type Updater interface {
	AddRecord(ctx context.Context, rr dns.RR) error
	RemoveRecord(ctx context.Context, name string) error
}

// Fanout builds instance/uuid A-records under a configured domain suffix
// and fans them out to every registered Updater, per spec.md §6:
// "update_dns_entries: fan out DNS updates to all hosts."
type Fanout struct {
	domain   string
	updaters []Updater
}

// New returns a Fanout that suffixes names with domain (e.g.
// "novalocal") and applies updates to every updater.
func New(domain string, updaters ...Updater) *Fanout {
	return &Fanout{domain: domain, updaters: updaters}
}

// AddInstanceRecords creates A-records for both displayName.<domain> and
// instanceUUID.<domain> pointing at address, per spec.md's S1 scenario
// ("DNS A-records I1.novalocal and <uuid>.novalocal → 10.0.0.2").
func (f *Fanout) AddInstanceRecords(displayName, instanceUUID, address, projectID string) {
	for _, name := range []string{displayName, instanceUUID} {
		if name == "" {
			continue
		}

		rr, err := f.buildA(name, address)
		if err != nil {
			logger.Warn("failed to build dns record", logger.Ctx{"name": name, "err": err})
			continue
		}

		for _, u := range f.updaters {
			if err := u.AddRecord(context.Background(), rr); err != nil {
				logger.Warn("failed to add dns record", logger.Ctx{"name": name, "err": err})
			}
		}
	}
}

// RemoveInstanceRecords removes both records created by
// AddInstanceRecords.
func (f *Fanout) RemoveInstanceRecords(displayName, instanceUUID string) {
	for _, name := range []string{displayName, instanceUUID} {
		if name == "" {
			continue
		}

		fqdn := f.fqdn(name)
		for _, u := range f.updaters {
			if err := u.RemoveRecord(context.Background(), fqdn); err != nil {
				logger.Warn("failed to remove dns record", logger.Ctx{"name": name, "err": err})
			}
		}
	}
}

func (f *Fanout) fqdn(name string) string {
	return dns.Fqdn(fmt.Sprintf("%s.%s", name, f.domain))
}

func (f *Fanout) buildA(name, address string) (dns.RR, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return nil, fmt.Errorf("Failed to parse address %q as an ip", address)
	}

	hdr := dns.RR_Header{Name: f.fqdn(name), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300}
	if ip4 := ip.To4(); ip4 != nil {
		return &dns.A{Hdr: hdr, A: ip4}, nil
	}

	hdr.Rrtype = dns.TypeAAAA
	return &dns.AAAA{Hdr: hdr, AAAA: ip}, nil
}
