package vdh

import (
	"fmt"

	"github.com/vkngwrapper/arsenal/vdh/slots"
)

// Address is a location in either the host's or the device's address space
type Address uint64

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// Handle is one record of a Registry's backing range, as returned by Registry.AllocHandle. Handles
// are values: copies refer to the same record, and the record stays reserved until one of them is
// passed to Registry.FreeHandle. The zero Handle is not valid.
type Handle struct {
	ref      slots.Ref
	registry *Registry
	kind     RangeKind

	index       int
	local       Address
	remote      Address
	remoteValid bool
}

// Index returns the position of this handle's record within the registry's range
func (h Handle) Index() int {
	return h.index
}

// Kind returns the kind of record this handle addresses
func (h Handle) Kind() RangeKind {
	return h.kind
}

// LocalAddress returns the host address of this handle's record
func (h Handle) LocalAddress() Address {
	return h.local
}

// RemoteAddress returns the device address of this handle's record. The second return value is
// false when the handle came from a registry that is not remote-visible.
func (h Handle) RemoteAddress() (Address, bool) {
	return h.remote, h.remoteValid
}

// IsValid returns false for the zero Handle and for handles that were cleared by FreeHandle
func (h Handle) IsValid() bool {
	return !h.ref.IsZero()
}

// Registry returns the registry this handle was allocated from, or nil for an invalid handle
func (h Handle) Registry() *Registry {
	return h.registry
}
