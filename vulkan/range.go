package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/vdh"
	"github.com/vkngwrapper/arsenal/vdh/memutils"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Range is a persistently-mapped memory object holding the records of one registry
type Range struct {
	parent *Device
	memory core1_0.DeviceMemory

	memoryTypeIndex int
	size            int
	mapped          unsafe.Pointer
	remoteVisible   bool
	coherent        bool
}

var _ vdh.Range = &Range{}

// LocalBase returns the host address of the first record
func (r *Range) LocalBase() vdh.Address {
	return vdh.Address(uintptr(r.mapped))
}

// RemoteBase returns the device-side address of the first record. Records are addressed on the
// device as byte offsets into the memory object, so the base is always zero.
func (r *Range) RemoteBase() (vdh.Address, error) {
	if !r.remoteVisible {
		return 0, errors.Wrap(memutils.ErrInvalidDescriptor, "range was not created remote-visible")
	}
	return 0, nil
}

// VulkanDeviceMemory returns the memory object backing this range, for binding
func (r *Range) VulkanDeviceMemory() core1_0.DeviceMemory {
	return r.memory
}

func (r *Range) MemoryTypeIndex() int {
	return r.memoryTypeIndex
}

// Size returns the size in bytes of the memory object, which may exceed count*stride
func (r *Range) Size() int {
	return r.size
}

func (r *Range) IsCoherent() bool {
	return r.coherent
}

// Flush makes host writes to the range visible to the device. It does nothing for ranges in
// coherent memory.
func (r *Range) Flush() (common.VkResult, error) {
	if r.coherent {
		return core1_0.VKSuccess, nil
	}

	return r.parent.device.FlushMappedMemoryRanges([]core1_0.MappedMemoryRange{
		{
			Memory: r.memory,
			Offset: 0,
			Size:   -1,
		},
	})
}

// FlushRegion makes host writes to the bytes [offset, offset+size) visible to the device. The
// region is widened to the device's nonCoherentAtomSize. It does nothing for ranges in coherent
// memory.
func (r *Range) FlushRegion(offset, size int) (common.VkResult, error) {
	if offset < 0 || size < 0 || offset+size > r.size {
		return core1_0.VKErrorUnknown, errors.Newf("region at offset %d of size %d does not fit in a range of size %d", offset, size, r.size)
	}

	if r.coherent || size == 0 {
		return core1_0.VKSuccess, nil
	}

	atomSize := uint(r.parent.nonCoherentAtomSize)
	start := memutils.AlignDown(offset, atomSize)
	end := memutils.AlignUp(offset+size, atomSize)
	if end > r.size {
		end = r.size
	}

	return r.parent.device.FlushMappedMemoryRanges([]core1_0.MappedMemoryRange{
		{
			Memory: r.memory,
			Offset: start,
			Size:   end - start,
		},
	})
}

// Destroy unmaps and frees the range's memory
func (r *Range) Destroy() error {
	if !r.parent.removeRange(r) {
		return errors.New("range has already been destroyed")
	}

	r.release()
	return nil
}

func (r *Range) release() {
	r.memory.Unmap()
	r.memory.Free(r.parent.callbacks)
	r.mapped = nil
}
