package vdh

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/vdh/memutils"
	"github.com/vkngwrapper/arsenal/vdh/slots"
	"github.com/vkngwrapper/core/v2/common"
	"golang.org/x/exp/slog"
)

// RangeKind identifies the sort of record held by a range. The device decides how large each
// kind of record is.
type RangeKind uint32

const (
	// RangeKindShaderResource holds constant buffer, shader resource, and storage views
	RangeKindShaderResource RangeKind = iota
	// RangeKindSampler holds samplers
	RangeKindSampler
	// RangeKindRenderTarget holds render target views. It can never be remote-visible.
	RangeKindRenderTarget
	// RangeKindDepthStencil holds depth stencil views. It can never be remote-visible.
	RangeKindDepthStencil
)

var rangeKindMapping = map[RangeKind]string{
	RangeKindShaderResource: "ShaderResource",
	RangeKindSampler:        "Sampler",
	RangeKindRenderTarget:   "RenderTarget",
	RangeKindDepthStencil:   "DepthStencil",
}

func (k RangeKind) String() string {
	return rangeKindMapping[k]
}

// SupportsRemoteVisibility returns true for kinds that may be created with RangeCreateRemoteVisible
func (k RangeKind) SupportsRemoteVisibility() bool {
	return k == RangeKindShaderResource || k == RangeKindSampler
}

// RangeCreateFlags indicate how a range should be created
type RangeCreateFlags int32

var rangeCreateFlagsMapping = common.NewFlagStringMapping[RangeCreateFlags]()

func (f RangeCreateFlags) Register(str string) {
	rangeCreateFlagsMapping.Register(f, str)
}
func (f RangeCreateFlags) String() string {
	return rangeCreateFlagsMapping.FlagsToString(f)
}

const (
	// RangeCreateRemoteVisible requests a range whose records are reachable from the device as well
	// as the host. Handles allocated from such a range have a RemoteAddress.
	RangeCreateRemoteVisible RangeCreateFlags = 1 << iota
)

// CreateFlags indicate specific registry behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	createFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return createFlagsMapping.FlagsToString(f)
}

const (
	// CreateExternallySynchronized ensures that registries will not be synchronized internally when
	// allocating and freeing handles. The consumer must guarantee that AllocHandle and FreeHandle are
	// called from only one goroutine at a time. Reference counting is always atomic.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	RangeCreateRemoteVisible.Register("RangeCreateRemoteVisible")
	CreateExternallySynchronized.Register("CreateExternallySynchronized")
}

// RangeDescriptor describes the range backing a Registry
type RangeDescriptor struct {
	// Kind is the sort of record the range holds
	Kind RangeKind
	// Count is the number of records in the range, and the number of handles the registry can hand out
	Count int
	// Flags controls how the range is created
	Flags RangeCreateFlags
	// Name is an optional name that appears in logs and statistics
	Name string
}

func (d RangeDescriptor) validate() error {
	_, knownKind := rangeKindMapping[d.Kind]
	if !knownKind {
		return errors.Wrapf(memutils.ErrInvalidDescriptor, "unknown range kind %d", uint32(d.Kind))
	}

	if d.Count < 0 || d.Count > slots.MaxCapacity {
		return errors.Wrapf(memutils.ErrInvalidDescriptor, "range count is %d", d.Count)
	}

	if d.Flags&RangeCreateRemoteVisible != 0 && !d.Kind.SupportsRemoteVisibility() {
		return errors.Wrapf(memutils.ErrInvalidDescriptor, "%s ranges cannot be remote-visible", d.Kind)
	}

	return nil
}

// RangeCallbackOptions is an optional set of callbacks that will be executed when a registry
// creates or destroys its backing range
type RangeCallbackOptions struct {
	Create   func(registry *Registry, backing Range, desc RangeDescriptor, userData any)
	Destroy  func(registry *Registry, backing Range, desc RangeDescriptor, userData any)
	UserData any
}

func (o *RangeCallbackOptions) create(registry *Registry) {
	if o != nil && o.Create != nil {
		o.Create(registry, registry.backing, registry.desc, o.UserData)
	}
}

func (o *RangeCallbackOptions) destroy(registry *Registry) {
	if o != nil && o.Destroy != nil {
		o.Destroy(registry, registry.backing, registry.desc, o.UserData)
	}
}

// CreateOptions contains optional settings when creating a registry
type CreateOptions struct {
	// Flags indicates specific registry behaviors to activate or deactivate
	Flags CreateFlags
	// Callbacks is executed when the backing range is created and destroyed
	Callbacks *RangeCallbackOptions
}

// Create builds a Registry over a new range created from device. The registry begins with a
// reference count of 1; the range is destroyed when the final reference is released.
//
// logger - Receives debug traces and reports of handles that were never freed
//
// device - Creates the backing range and reports the stride of its records
//
// desc - The kind, size, and visibility of the range
//
// options - Optional parameters: it is valid to leave all the fields blank
func Create(logger *slog.Logger, device Device, desc RangeDescriptor, options CreateOptions) (*Registry, error) {
	if logger == nil {
		return nil, errors.Wrap(memutils.ErrMissingInput, "a logger is required to create a registry")
	}
	if device == nil {
		return nil, errors.Wrap(memutils.ErrMissingInput, "a device is required to create a registry")
	}

	logger.Debug("Registry::Create",
		slog.String("Kind", desc.Kind.String()),
		slog.Int("Count", desc.Count),
		slog.String("Flags", desc.Flags.String()),
	)

	err := desc.validate()
	if err != nil {
		return nil, err
	}

	stride := device.ElementStride(desc.Kind)
	if stride <= 0 {
		return nil, errors.Wrapf(memutils.ErrInvalidDescriptor, "device reported a stride of %d for %s records", stride, desc.Kind)
	}

	backing, err := device.CreateRange(desc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create a %s range of %d records", desc.Kind, desc.Count)
	}
	if backing == nil {
		return nil, errors.Wrap(memutils.ErrMissingInput, "device returned no range")
	}

	registry := &Registry{
		logger:        logger,
		backing:       backing,
		callbacks:     options.Callbacks,
		desc:          desc,
		stride:        stride,
		remoteVisible: desc.Flags&RangeCreateRemoteVisible != 0,
		localBase:     backing.LocalBase(),
	}

	if registry.remoteVisible {
		registry.remoteBase, err = backing.RemoteBase()
		if err != nil {
			registry.destroyBackingAfterFailure()
			return nil, errors.Wrap(err, "failed to retrieve the remote base of a remote-visible range")
		}
	}

	var slotFlags slots.CreateFlags
	if options.Flags&CreateExternallySynchronized != 0 {
		slotFlags |= slots.CreateExternallySynchronized
	}

	registry.slots = slots.New[Handle](slots.CreateOptions{Flags: slotFlags})
	err = registry.slots.Init(desc.Count)
	if err != nil {
		registry.destroyBackingAfterFailure()
		return nil, err
	}

	registry.refCount.Store(1)
	registry.callbacks.create(registry)

	return registry, nil
}

func (r *Registry) destroyBackingAfterFailure() {
	destroyErr := r.backing.Destroy()
	if destroyErr != nil {
		r.logger.Error("error attempting to destroy range after registry creation failure", slog.Any("error", destroyErr))
	}
}
