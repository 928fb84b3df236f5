package dnsutil_test

import (
	"context"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfleet/fleetnet/internal/dnsutil"
)

type recordingUpdater struct {
	added   []dns.RR
	removed []string
}

func (u *recordingUpdater) AddRecord(ctx context.Context, rr dns.RR) error {
	u.added = append(u.added, rr)
	return nil
}

func (u *recordingUpdater) RemoveRecord(ctx context.Context, name string) error {
	u.removed = append(u.removed, name)
	return nil
}

func TestFanout_AddInstanceRecords_BothNames(t *testing.T) {
	upd := &recordingUpdater{}
	f := dnsutil.New("novalocal", upd)

	f.AddInstanceRecords("I1", "5b38ef1a-0000-0000-0000-000000000000", "10.0.0.2", "proj")

	require.Len(t, upd.added, 2)
	a, ok := upd.added[0].(*dns.A)
	require.True(t, ok)
	assert.Equal(t, "I1.novalocal.", a.Hdr.Name)
	assert.Equal(t, "10.0.0.2", a.A.String())
}

func TestFanout_RemoveInstanceRecords(t *testing.T) {
	upd := &recordingUpdater{}
	f := dnsutil.New("novalocal", upd)

	f.RemoveInstanceRecords("I1", "uuid1")
	assert.Equal(t, []string{"I1.novalocal.", "uuid1.novalocal."}, upd.removed)
}
