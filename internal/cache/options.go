package cache

// FindOptions is the option bit-mask accepted by Find (§4.3).
type FindOptions uint32

const (
	// PendingOK allows a DNAME/delegation found mid-walk to be returned
	// even though it has not yet been confirmed live.
	PendingOK FindOptions = 1 << iota
	// GlueOK permits glue-trust records to satisfy the lookup.
	GlueOK
	// AdditionalOK permits additional-trust records to satisfy the lookup.
	AdditionalOK
	// StaleOK permits an expired-but-within-window header to count as
	// active for this lookup.
	StaleOK
	// StaleStart marks the beginning of a stale-serve window.
	StaleStart
	// StaleEnabled reports that stale-serve is enabled database-wide.
	StaleEnabled
	// StaleTimeout permits stale data when driven by a refresh timeout
	// rather than an outright failure.
	StaleTimeout
	// CoveringNSEC requests a covering-NSEC search on NOTFOUND (§4.4).
	CoveringNSEC
)

func (o FindOptions) has(flag FindOptions) bool { return o&flag != 0 }
