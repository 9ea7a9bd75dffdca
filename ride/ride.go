// Package ride holds the canonical ride record and its lifecycle rules. Ride state lives only
// on the ledger; this package never persists anything.
package ride

import (
	"math/big"

	"github.com/goccy/go-json"
)

// Ride is the decoded form of the ledger's positional ride tuple.
type Ride struct {
	ID uint64
	// Rider is the checksummed address that created the ride and funded the escrow.
	Rider string
	// Driver is empty until the ride is accepted.
	Driver   string
	Pickup   string
	Drop     string
	PriceWei *big.Int
	// DistanceKm is truncated to whole kilometres at creation.
	DistanceKm uint64

	Accepted  bool
	Completed bool
	Cancelled bool
}

type Status int

const (
	Pending Status = iota
	Accepted
	Completed
	Cancelled
	// Deleted rides are removed from the ledger; reads of them report not found.
	Deleted
)

func (s Status) String() string {
	return [...]string{"pending", "accepted", "completed", "cancelled", "deleted"}[s]
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == Completed || s == Cancelled || s == Deleted
}

// Status derives the lifecycle state from the ledger flags.
func (r Ride) Status() Status {
	switch {
	case r.Completed:
		return Completed
	case r.Cancelled:
		return Cancelled
	case r.Accepted:
		return Accepted
	}
	return Pending
}

// Available reports whether a driver may still pick the ride up.
func (r Ride) Available() bool {
	return !r.Accepted && !r.Completed && !r.Cancelled
}

// Consistent reports whether the record satisfies the ledger invariants.
func (r Ride) Consistent() bool {
	if r.Completed && r.Cancelled {
		return false
	}
	if r.Accepted && r.Driver == "" {
		return false
	}
	if r.Completed && !r.Accepted {
		return false
	}
	return true
}

// OwnedBy reports whether addr created the ride. Addresses compare case-insensitively.
func (r Ride) OwnedBy(addr string) bool {
	return sameAddress(r.Rider, addr)
}

// DrivenBy reports whether addr is the bound driver.
func (r Ride) DrivenBy(addr string) bool {
	return r.Driver != "" && sameAddress(r.Driver, addr)
}
