package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/arsenal/vdh"
	"github.com/vkngwrapper/arsenal/vdh/internal/utils"
	"github.com/vkngwrapper/arsenal/vdh/memutils"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
	"golang.org/x/exp/slog"
)

// ErrNoSuitableMemoryType is returned when the physical device exposes no memory type that can
// back a range with the requested visibility
var ErrNoSuitableMemoryType = errors.New("no memory type can back the requested range")

var defaultDescriptorSizes = map[vdh.RangeKind]int{
	vdh.RangeKindShaderResource: 64,
	vdh.RangeKindSampler:        32,
	vdh.RangeKindRenderTarget:   32,
	vdh.RangeKindDepthStencil:   32,
}

// CreateOptions contains optional settings when creating a Device
type CreateOptions struct {
	// Flags indicates specific device behaviors to activate or deactivate. CreateExternallySynchronized
	// disables the lock around the device's set of live ranges.
	Flags vdh.CreateFlags

	// DescriptorSizes overrides the size in bytes of a single record for each kind. Kinds that are
	// not present use a default size. Every size must be a power of two.
	DescriptorSizes map[vdh.RangeKind]int

	// VulkanCallbacks is an optional set of callbacks that will be executed from Vulkan when
	// range memory is allocated and freed
	VulkanCallbacks *driver.AllocationCallbacks
}

// Device creates vdh ranges out of Vulkan device memory. Each range is a single persistently-mapped
// memory object. Host addresses are pointers into the mapping, and remote addresses are byte offsets
// into the memory object, suitable for descriptor buffer offsets.
type Device struct {
	logger    *slog.Logger
	device    core1_0.Device
	callbacks *driver.AllocationCallbacks

	memoryProperties    *core1_0.PhysicalDeviceMemoryProperties
	nonCoherentAtomSize int
	strides             map[vdh.RangeKind]int

	mutex  utils.OptionalMutex
	ranges *swiss.Map[*Range, struct{}]
}

var _ vdh.Device = &Device{}

// New creates a new Device
//
// logger - Receives debug traces
//
// physicalDevice - The PhysicalDevice that owns the provided Device
//
// device - The Device that range memory will be allocated into
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, physicalDevice core1_0.PhysicalDevice, device core1_0.Device, options CreateOptions) (*Device, error) {
	if logger == nil || physicalDevice == nil || device == nil {
		return nil, errors.Wrap(memutils.ErrMissingInput, "a logger, physical device, and device are required to create a vulkan device")
	}

	properties, err := physicalDevice.Properties()
	if err != nil {
		return nil, err
	}

	atomSize := 1
	if properties.Limits != nil && properties.Limits.NonCoherentAtomSize > 0 {
		atomSize = properties.Limits.NonCoherentAtomSize
	}
	err = memutils.CheckPow2(atomSize, "device nonCoherentAtomSize")
	if err != nil {
		return nil, err
	}

	strides := make(map[vdh.RangeKind]int, len(defaultDescriptorSizes))
	for kind, size := range defaultDescriptorSizes {
		strides[kind] = size
	}
	for kind, size := range options.DescriptorSizes {
		err = memutils.CheckPow2(size, kind.String()+" descriptor size")
		if err != nil {
			return nil, err
		}
		strides[kind] = size
	}

	return &Device{
		logger:    logger,
		device:    device,
		callbacks: options.VulkanCallbacks,

		memoryProperties:    physicalDevice.MemoryProperties(),
		nonCoherentAtomSize: atomSize,
		strides:             strides,

		mutex:  utils.OptionalMutex{UseMutex: options.Flags&vdh.CreateExternallySynchronized == 0},
		ranges: swiss.NewMap[*Range, struct{}](16),
	}, nil
}

// ElementStride returns the size in bytes of a single record of the provided kind
func (d *Device) ElementStride(kind vdh.RangeKind) int {
	return d.strides[kind]
}

// CreateRange allocates and maps a memory object large enough to hold desc.Count records
func (d *Device) CreateRange(desc vdh.RangeDescriptor) (vdh.Range, error) {
	remoteVisible := desc.Flags&vdh.RangeCreateRemoteVisible != 0

	memoryTypeIndex, err := d.findMemoryTypeIndex(remoteVisible)
	if err != nil {
		return nil, errors.Wrapf(err, "could not back a %s range", desc.Kind)
	}

	stride := d.ElementStride(desc.Kind)
	memutils.DebugCheckPow2(stride, "descriptor size")

	// Zero-sized allocations are invalid in vulkan, so even empty ranges get a single atom
	size := desc.Count * stride
	if size < 1 {
		size = 1
	}
	size = memutils.AlignUp(size, uint(d.nonCoherentAtomSize))

	d.logger.Debug("VulkanDevice::CreateRange",
		slog.String("Kind", desc.Kind.String()),
		slog.Int("Size", size),
		slog.Int("MemoryTypeIndex", memoryTypeIndex),
	)

	memory, _, err := d.device.AllocateMemory(d.callbacks, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to allocate %d bytes for a %s range", size, desc.Kind)
	}

	mapped, _, err := memory.Map(0, -1, 0)
	if err != nil {
		memory.Free(d.callbacks)
		return nil, errors.Wrapf(err, "failed to map the memory of a %s range", desc.Kind)
	}

	flags := d.memoryProperties.MemoryTypes[memoryTypeIndex].PropertyFlags
	r := &Range{
		parent:          d,
		memory:          memory,
		memoryTypeIndex: memoryTypeIndex,
		size:            size,
		mapped:          mapped,
		remoteVisible:   remoteVisible,
		coherent:        flags&core1_0.MemoryPropertyHostCoherent != 0,
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.ranges.Put(r, struct{}{})

	return r, nil
}

// findMemoryTypeIndex returns the first host-visible memory type, preferring coherent memory.
// Remote-visible ranges must also be device-local.
func (d *Device) findMemoryTypeIndex(remoteVisible bool) (int, error) {
	required := core1_0.MemoryPropertyHostVisible
	if remoteVisible {
		required |= core1_0.MemoryPropertyDeviceLocal
	}
	preferred := required | core1_0.MemoryPropertyHostCoherent

	fallback := -1
	for index, memoryType := range d.memoryProperties.MemoryTypes {
		if memoryType.PropertyFlags&preferred == preferred {
			return index, nil
		}

		if fallback < 0 && memoryType.PropertyFlags&required == required {
			fallback = index
		}
	}

	if fallback < 0 {
		return -1, ErrNoSuitableMemoryType
	}

	return fallback, nil
}

func (d *Device) removeRange(r *Range) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.ranges.Has(r) {
		return false
	}
	d.ranges.Delete(r)
	return true
}

// LiveRangeCount returns the number of ranges that have been created and not yet destroyed
func (d *Device) LiveRangeCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.ranges.Count()
}

// Destroy frees any range that was never destroyed. Registries built over those ranges must not
// be used afterward.
func (d *Device) Destroy() {
	d.mutex.Lock()
	var leaked []*Range
	d.ranges.Iter(func(r *Range, _ struct{}) bool {
		leaked = append(leaked, r)
		return false
	})
	d.ranges = swiss.NewMap[*Range, struct{}](16)
	d.mutex.Unlock()

	for _, r := range leaked {
		d.logger.Error("range was not destroyed before its device",
			slog.Int("Size", r.size),
			slog.Int("MemoryTypeIndex", r.memoryTypeIndex),
		)
		r.release()
	}
}
