package adb

import "net/netip"

// AddrInfo is a cheap, read-only view of one resolved address, handed
// out as part of a Find's Result. Its SRTT, UDPSize and Quota fields are
// copied from the entry when the find is populated and do not change as
// the entry is updated by later fetches; it also keeps a pointer to the
// live entry, returned by Entry.
type AddrInfo struct {
	Addr netip.AddrPort
	Port uint16

	SRTT    int64
	UDPSize uint32
	Quota   uint32

	entry *Entry
}

// NewAddrInfo snapshots entry into an AddrInfo for addr:port.
func NewAddrInfo(e *Entry, port uint16) *AddrInfo {
	return &AddrInfo{
		Addr:    e.Addr,
		Port:    port,
		SRTT:    e.SRTT(),
		UDPSize: e.UDPSize(),
		Quota:   e.Quota(),
		entry:   e,
	}
}

// Entry returns the live entry backing this address, for callers (e.g.
// the resolver) that need to record a fresh RTT sample or fetch outcome.
func (a *AddrInfo) Entry() *Entry { return a.entry }
