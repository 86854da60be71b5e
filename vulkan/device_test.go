package vulkan_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/vdh"
	"github.com/vkngwrapper/arsenal/vdh/memutils"
	"github.com/vkngwrapper/arsenal/vdh/vulkan"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
	"golang.org/x/exp/slog"
)

type fakePhysicalDevice struct {
	core1_0.PhysicalDevice

	properties core1_0.PhysicalDeviceProperties
	memory     core1_0.PhysicalDeviceMemoryProperties
}

func (d *fakePhysicalDevice) Properties() (*core1_0.PhysicalDeviceProperties, error) {
	return &d.properties, nil
}

func (d *fakePhysicalDevice) MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties {
	return &d.memory
}

type fakeDeviceMemory struct {
	core1_0.DeviceMemory

	data     []byte
	mapped   bool
	freed    bool
	mapError error
}

func (m *fakeDeviceMemory) Map(offset int, size int, flags core1_0.MemoryMapFlags) (unsafe.Pointer, common.VkResult, error) {
	if m.mapError != nil {
		return nil, core1_0.VKErrorMemoryMapFailed, m.mapError
	}
	m.mapped = true
	return unsafe.Pointer(&m.data[offset]), core1_0.VKSuccess, nil
}

func (m *fakeDeviceMemory) Unmap() {
	m.mapped = false
}

func (m *fakeDeviceMemory) Free(callbacks *driver.AllocationCallbacks) {
	m.freed = true
}

type fakeDevice struct {
	core1_0.Device

	allocations []core1_0.MemoryAllocateInfo
	memories    []*fakeDeviceMemory
	flushes     [][]core1_0.MappedMemoryRange
	mapError    error
}

func (d *fakeDevice) AllocateMemory(callbacks *driver.AllocationCallbacks, o core1_0.MemoryAllocateInfo) (core1_0.DeviceMemory, common.VkResult, error) {
	d.allocations = append(d.allocations, o)
	memory := &fakeDeviceMemory{data: make([]byte, o.AllocationSize), mapError: d.mapError}
	d.memories = append(d.memories, memory)
	return memory, core1_0.VKSuccess, nil
}

func (d *fakeDevice) FlushMappedMemoryRanges(ranges []core1_0.MappedMemoryRange) (common.VkResult, error) {
	d.flushes = append(d.flushes, ranges)
	return core1_0.VKSuccess, nil
}

func standardPhysicalDevice(atomSize int) *fakePhysicalDevice {
	return &fakePhysicalDevice{
		properties: core1_0.PhysicalDeviceProperties{
			DriverType: core1_0.PhysicalDeviceTypeDiscreteGPU,
			Limits: &core1_0.PhysicalDeviceLimits{
				BufferImageGranularity: 1,
				NonCoherentAtomSize:    atomSize,
			},
		},
		memory: core1_0.PhysicalDeviceMemoryProperties{
			MemoryTypes: []core1_0.MemoryType{
				{
					PropertyFlags: core1_0.MemoryPropertyDeviceLocal,
					HeapIndex:     0,
				},
				{
					PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCached,
					HeapIndex:     1,
				},
				{
					PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
					HeapIndex:     1,
				},
				{
					PropertyFlags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
					HeapIndex:     2,
				},
			},
			MemoryHeaps: []core1_0.MemoryHeap{
				{Size: 8000000000, Flags: core1_0.MemoryHeapDeviceLocal},
				{Size: 16000000000, Flags: 0},
				{Size: 200000000, Flags: core1_0.MemoryHeapDeviceLocal},
			},
		},
	}
}

func testLogger() *slog.Logger {
	return slog.Default()
}

func TestCreateRangeMemoryTypes(t *testing.T) {
	device := &fakeDevice{}
	vkDevice, err := vulkan.New(testLogger(), standardPhysicalDevice(64), device, vulkan.CreateOptions{})
	require.NoError(t, err)

	local, err := vkDevice.CreateRange(vdh.RangeDescriptor{Kind: vdh.RangeKindRenderTarget, Count: 3})
	require.NoError(t, err)
	remote, err := vkDevice.CreateRange(vdh.RangeDescriptor{Kind: vdh.RangeKindShaderResource, Count: 3, Flags: vdh.RangeCreateRemoteVisible})
	require.NoError(t, err)

	require.Equal(t, []core1_0.MemoryAllocateInfo{
		{AllocationSize: 128, MemoryTypeIndex: 2},
		{AllocationSize: 192, MemoryTypeIndex: 3},
	}, device.allocations)

	require.Equal(t, 2, local.(*vulkan.Range).MemoryTypeIndex())
	require.Equal(t, 128, local.(*vulkan.Range).Size())
	require.True(t, local.(*vulkan.Range).IsCoherent())
	require.Equal(t, vdh.Address(uintptr(unsafe.Pointer(&device.memories[0].data[0]))), local.LocalBase())

	_, err = local.RemoteBase()
	require.ErrorIs(t, err, memutils.ErrInvalidDescriptor)

	remoteBase, err := remote.RemoteBase()
	require.NoError(t, err)
	require.Equal(t, vdh.Address(0), remoteBase)

	require.Equal(t, 2, vkDevice.LiveRangeCount())
	require.NoError(t, local.Destroy())
	require.NoError(t, remote.Destroy())
	require.Equal(t, 0, vkDevice.LiveRangeCount())

	for _, memory := range device.memories {
		require.False(t, memory.mapped)
		require.True(t, memory.freed)
	}

	require.Error(t, local.Destroy())
}

func TestCreateRangeNonCoherentFallback(t *testing.T) {
	physicalDevice := standardPhysicalDevice(1)
	physicalDevice.memory.MemoryTypes = physicalDevice.memory.MemoryTypes[:2]

	device := &fakeDevice{}
	vkDevice, err := vulkan.New(testLogger(), physicalDevice, device, vulkan.CreateOptions{})
	require.NoError(t, err)

	backing, err := vkDevice.CreateRange(vdh.RangeDescriptor{Kind: vdh.RangeKindSampler, Count: 2})
	require.NoError(t, err)

	r := backing.(*vulkan.Range)
	require.Equal(t, 1, r.MemoryTypeIndex())
	require.False(t, r.IsCoherent())

	_, err = r.Flush()
	require.NoError(t, err)
	require.Len(t, device.flushes, 1)
	require.Equal(t, -1, device.flushes[0][0].Size)

	_, err = vkDevice.CreateRange(vdh.RangeDescriptor{Kind: vdh.RangeKindShaderResource, Count: 2, Flags: vdh.RangeCreateRemoteVisible})
	require.ErrorIs(t, err, vulkan.ErrNoSuitableMemoryType)

	require.NoError(t, backing.Destroy())
}

func TestFlushRegionAlignsToAtoms(t *testing.T) {
	physicalDevice := standardPhysicalDevice(64)
	physicalDevice.memory.MemoryTypes = physicalDevice.memory.MemoryTypes[:2]

	device := &fakeDevice{}
	vkDevice, err := vulkan.New(testLogger(), physicalDevice, device, vulkan.CreateOptions{})
	require.NoError(t, err)

	backing, err := vkDevice.CreateRange(vdh.RangeDescriptor{Kind: vdh.RangeKindSampler, Count: 8})
	require.NoError(t, err)

	r := backing.(*vulkan.Range)
	require.Equal(t, 256, r.Size())

	_, err = r.FlushRegion(70, 20)
	require.NoError(t, err)
	_, err = r.FlushRegion(200, 56)
	require.NoError(t, err)
	_, err = r.FlushRegion(0, 0)
	require.NoError(t, err)

	require.Len(t, device.flushes, 2)
	require.Equal(t, 64, device.flushes[0][0].Offset)
	require.Equal(t, 64, device.flushes[0][0].Size)
	require.Equal(t, 192, device.flushes[1][0].Offset)
	require.Equal(t, 64, device.flushes[1][0].Size)

	_, err = r.FlushRegion(250, 10)
	require.Error(t, err)
	_, err = r.FlushRegion(-1, 10)
	require.Error(t, err)
	require.Len(t, device.flushes, 2)

	require.NoError(t, backing.Destroy())
}

func TestFlushRegionCoherent(t *testing.T) {
	device := &fakeDevice{}
	vkDevice, err := vulkan.New(testLogger(), standardPhysicalDevice(64), device, vulkan.CreateOptions{})
	require.NoError(t, err)

	backing, err := vkDevice.CreateRange(vdh.RangeDescriptor{Kind: vdh.RangeKindSampler, Count: 8})
	require.NoError(t, err)

	_, err = backing.(*vulkan.Range).FlushRegion(0, 32)
	require.NoError(t, err)
	require.Empty(t, device.flushes)

	require.NoError(t, backing.Destroy())
}

func TestDescriptorSizes(t *testing.T) {
	vkDevice, err := vulkan.New(testLogger(), standardPhysicalDevice(1), &fakeDevice{}, vulkan.CreateOptions{
		DescriptorSizes: map[vdh.RangeKind]int{
			vdh.RangeKindSampler: 16,
		},
	})
	require.NoError(t, err)

	require.Equal(t, 64, vkDevice.ElementStride(vdh.RangeKindShaderResource))
	require.Equal(t, 16, vkDevice.ElementStride(vdh.RangeKindSampler))

	_, err = vulkan.New(testLogger(), standardPhysicalDevice(1), &fakeDevice{}, vulkan.CreateOptions{
		DescriptorSizes: map[vdh.RangeKind]int{
			vdh.RangeKindSampler: 24,
		},
	})
	require.ErrorIs(t, err, memutils.PowerOfTwoError)

	_, err = vulkan.New(testLogger(), standardPhysicalDevice(48), &fakeDevice{}, vulkan.CreateOptions{})
	require.ErrorIs(t, err, memutils.PowerOfTwoError)

	_, err = vulkan.New(nil, standardPhysicalDevice(1), &fakeDevice{}, vulkan.CreateOptions{})
	require.ErrorIs(t, err, memutils.ErrMissingInput)
}

func TestCreateRangeMapFailureFreesMemory(t *testing.T) {
	device := &fakeDevice{mapError: core1_0.VKErrorMemoryMapFailed.ToError()}
	vkDevice, err := vulkan.New(testLogger(), standardPhysicalDevice(1), device, vulkan.CreateOptions{})
	require.NoError(t, err)

	_, err = vkDevice.CreateRange(vdh.RangeDescriptor{Kind: vdh.RangeKindSampler, Count: 2})
	require.Error(t, err)
	require.Len(t, device.memories, 1)
	require.True(t, device.memories[0].freed)
	require.Equal(t, 0, vkDevice.LiveRangeCount())
}

func TestDeviceDestroyFreesLeakedRanges(t *testing.T) {
	device := &fakeDevice{}
	vkDevice, err := vulkan.New(testLogger(), standardPhysicalDevice(1), device, vulkan.CreateOptions{})
	require.NoError(t, err)

	_, err = vkDevice.CreateRange(vdh.RangeDescriptor{Kind: vdh.RangeKindSampler, Count: 2})
	require.NoError(t, err)

	vkDevice.Destroy()
	require.Equal(t, 0, vkDevice.LiveRangeCount())
	require.True(t, device.memories[0].freed)
}

func TestRegistryOverVulkanRange(t *testing.T) {
	device := &fakeDevice{}
	vkDevice, err := vulkan.New(testLogger(), standardPhysicalDevice(256), device, vulkan.CreateOptions{})
	require.NoError(t, err)

	registry, err := vdh.Create(testLogger(), vkDevice, vdh.RangeDescriptor{
		Kind:  vdh.RangeKindShaderResource,
		Count: 16,
		Flags: vdh.RangeCreateRemoteVisible,
		Name:  "bindless",
	}, vdh.CreateOptions{})
	require.NoError(t, err)
	require.Equal(t, 1024, device.allocations[0].AllocationSize)

	base := vdh.Address(uintptr(unsafe.Pointer(&device.memories[0].data[0])))
	for i := 0; i < 16; i++ {
		handle, err := registry.AllocHandle()
		require.NoError(t, err)
		require.Equal(t, base+vdh.Address(i*64), handle.LocalAddress())

		remote, ok := handle.RemoteAddress()
		require.True(t, ok)
		require.Equal(t, vdh.Address(i*64), remote)
	}

	require.NoError(t, registry.Release())
	require.True(t, device.memories[0].freed)
	require.Equal(t, 0, vkDevice.LiveRangeCount())
}
