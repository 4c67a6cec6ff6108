package cache

// Result is the outcome of a Find call, per the outcome map in §4.3 step 7
// and the result set named in §6.
type Result int

const (
	NotFound Result = iota
	Success
	CNAME
	DNAME
	Delegation
	NCacheNXDomain
	NCacheNXRRSet
	CoveringNSECResult
	PartialMatch
)

func (r Result) String() string {
	switch r {
	case NotFound:
		return "NOTFOUND"
	case Success:
		return "SUCCESS"
	case CNAME:
		return "CNAME"
	case DNAME:
		return "DNAME"
	case Delegation:
		return "DELEGATION"
	case NCacheNXDomain:
		return "NCACHE_NXDOMAIN"
	case NCacheNXRRSet:
		return "NCACHE_NXRRSET"
	case CoveringNSECResult:
		return "COVERINGNSEC"
	case PartialMatch:
		return "PARTIALMATCH"
	default:
		return "UNKNOWN"
	}
}

// FindResult is the full return value of Find: result code, the name the
// answer actually binds to (may differ from the query name on DNAME/
// delegation/covering-NSEC), the answering rdataset, and its RRSIG if any.
//
// A result carrying a non-nil Rdataset/SigRdataset holds an external
// reference (Node.Newref) on the node those headers live on, taken while
// Find had the node locked; callers done with the result must pass it to
// Cache.Release so the node can be reclaimed once nothing else is using it
// (§4.6 dead-node reclamation, §8 invariant #1).
type FindResult struct {
	Result      Result
	FoundName   string
	Rdataset    *Header
	SigRdataset *Header

	node *Node
}
