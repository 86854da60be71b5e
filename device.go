package vdh

//go:generate mockgen -source device.go -destination ./mocks/device.go -package mocks

// Device is the graphics device that owns the memory backing a Registry. The vdh/vulkan package
// provides an implementation over vkngwrapper device memory.
type Device interface {
	// CreateRange creates a contiguous block of desc.Count uniformly-sized records of kind desc.Kind.
	// If desc.Flags contains RangeCreateRemoteVisible, the block must be reachable from the device's
	// address space as well as the host's.
	CreateRange(desc RangeDescriptor) (Range, error)
	// ElementStride returns the size in bytes between consecutive records of the provided kind
	ElementStride(kind RangeKind) int
}

// Range is a block created by Device.CreateRange
type Range interface {
	// LocalBase returns the host address of the first record in the range
	LocalBase() Address
	// RemoteBase returns the device address of the first record in the range. It is only valid for
	// ranges created with RangeCreateRemoteVisible, and implementations should return an error for
	// any other range.
	RemoteBase() (Address, error)
	// Destroy releases the range. The range must not be used afterward.
	Destroy() error
}
