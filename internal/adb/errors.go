// Package adb implements the Address Database: a nameserver-name-to-
// address cache with per-address health metrics and concurrency quotas,
// coordinating in-flight A/AAAA fetches so concurrent lookups for the
// same name share work.
package adb

import "errors"

// ErrADB is a package-level sentinel for adb errors (§7). The errors below
// are independent sentinels and do not wrap it.
var ErrADB = errors.New("adb error")

var (
	// ErrShuttingDown is returned by CreateFind after Shutdown.
	ErrShuttingDown = errors.New("adb: shutting down")
	// ErrAlias is returned by CreateFind when the name resolves to an
	// unexpired CNAME/DNAME target; the target is filled into the find.
	ErrAlias = errors.New("adb: alias")
	// ErrCanceled is the error a Resolver puts in a FetchResponse for a
	// canceled fetch. A canceled find is reported through StatusCanceled
	// in its V4Status/V6Status fields, not through this error.
	ErrCanceled = errors.New("adb: canceled")
	// ErrUnexpected covers resolver responses this package cannot
	// classify into NXDOMAIN/NXRRSET/FAILURE/TIMEDOUT.
	ErrUnexpected = errors.New("adb: unexpected response")
)

// FamilyStatus is the per-family error/status code carried by an ADB name
// and copied into a find's result fields (§3, §4.8, §7).
type FamilyStatus int

const (
	StatusUnset FamilyStatus = iota
	StatusOK
	StatusNXDomain
	StatusNXRRSet
	StatusFailure
	StatusTimedOut
	StatusCanceled
	StatusUnexpected
)
