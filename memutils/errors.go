package memutils

import "github.com/cockroachdb/errors"

var (
	// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
	PowerOfTwoError error = errors.New("number must be a power of two")

	// ErrInvalidCapacity is returned when a slot allocator is initialized with a capacity that is negative
	// or that does not fit in the slot index space
	ErrInvalidCapacity = errors.New("invalid slot capacity")
	// ErrAlreadyInitialized is returned when Init is called on a slot allocator that has not been terminated
	ErrAlreadyInitialized = errors.New("slot allocator is already initialized")
	// ErrCapacityExhausted is returned when an allocation is requested and no free slot remains
	ErrCapacityExhausted = errors.New("no free slots remain")
	// ErrInvalidSlot is returned when a slot reference is stale, has already been freed, or belongs to
	// a different allocator
	ErrInvalidSlot = errors.New("slot reference is not live in this allocator")

	// ErrMissingInput is returned when a required collaborator was not provided
	ErrMissingInput = errors.New("required input was not provided")
	// ErrInvalidDescriptor is returned when a range descriptor cannot be satisfied
	ErrInvalidDescriptor = errors.New("invalid range descriptor")
	// ErrOverRelease is returned when a registry is released more times than it was referenced
	ErrOverRelease = errors.New("registry was released more times than it was referenced")
	// ErrRegistryDestroyed is returned when a registry is used after its last reference was released
	ErrRegistryDestroyed = errors.New("registry has been destroyed")
)
