package vdh

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/vdh/memutils"
	"github.com/vkngwrapper/arsenal/vdh/slots"
	"golang.org/x/exp/slog"
)

// Registry hands out Handle values for the records of a single range. It is shared between
// any number of owners through AddRef and Release, and destroys its range when the last owner
// releases it.
type Registry struct {
	logger    *slog.Logger
	backing   Range
	callbacks *RangeCallbackOptions
	desc      RangeDescriptor

	refCount  atomic.Int32
	destroyed atomic.Bool

	slots         *slots.Allocator[Handle]
	stride        int
	remoteVisible bool
	localBase     Address
	remoteBase    Address
}

var _ memutils.Validatable = &Registry{}

// AddRef adds an owner to the registry
func (r *Registry) AddRef() {
	r.logger.Debug("Registry::AddRef")

	for {
		current := r.refCount.Load()
		if current <= 0 {
			r.logger.Error("attempted to add a reference to a registry that has already been destroyed", slog.String("Name", r.desc.Name))
			return
		}

		if r.refCount.CompareAndSwap(current, current+1) {
			return
		}
	}
}

// Release removes an owner from the registry. When the final owner is removed, the registry's
// range is destroyed and any handles that were never freed are reported to the logger.
// Releasing a registry more times than it has been referenced returns memutils.ErrOverRelease.
func (r *Registry) Release() error {
	r.logger.Debug("Registry::Release")

	for {
		current := r.refCount.Load()
		if current <= 0 {
			return errors.Wrapf(memutils.ErrOverRelease, "registry %q", r.desc.Name)
		}

		if r.refCount.CompareAndSwap(current, current-1) {
			if current == 1 {
				return r.destroy()
			}
			return nil
		}
	}
}

func (r *Registry) destroy() error {
	r.destroyed.Store(true)

	if r.slots.UsedCount() > 0 {
		err := r.slots.Visit(func(ref slots.Ref, handle *Handle) error {
			r.logUnreleasedHandle(handle)
			return nil
		})
		if err != nil {
			r.logger.LogAttrs(context.Background(),
				slog.LevelError,
				"[UNRELEASED HANDLE] error while iterating unreleased handles",
				slog.Any("error", err))
		}
	}

	memutils.DebugValidate(r.slots)
	r.slots.Term()
	r.callbacks.destroy(r)

	err := r.backing.Destroy()
	if err != nil {
		return errors.Wrapf(err, "failed to destroy the range backing registry %q", r.desc.Name)
	}

	return nil
}

func (r *Registry) logUnreleasedHandle(handle *Handle) {
	name := r.desc.Name
	if name == "" {
		name = "(unnamed)"
	}

	r.logger.LogAttrs(context.Background(),
		slog.LevelError,
		"[UNRELEASED HANDLE] a handle was never freed before its registry was destroyed",
		slog.String("Registry", name),
		slog.String("Kind", r.desc.Kind.String()),
		slog.Int("Index", handle.index),
		slog.String("LocalAddress", handle.local.String()),
	)
}

// AllocHandle reserves a record in the range and returns its handle. The record's local address is
// the range's local base plus index*stride; its remote address is computed the same way, but only
// when the range is remote-visible. memutils.ErrCapacityExhausted is returned when every record
// is reserved.
func (r *Registry) AllocHandle() (Handle, error) {
	r.logger.Debug("Registry::AllocHandle")

	if r.destroyed.Load() {
		return Handle{}, errors.Wrapf(memutils.ErrRegistryDestroyed, "registry %q", r.desc.Name)
	}

	value, ref, err := r.slots.Alloc(r.initHandle)
	if err != nil {
		r.logger.Debug("    Registry::AllocHandle FAILED", slog.Int("Capacity", r.slots.Size()))
		return Handle{}, errors.Wrapf(err, "registry %q could not allocate a %s handle", r.desc.Name, r.desc.Kind)
	}

	handle := *value
	handle.ref = ref
	return handle, nil
}

func (r *Registry) initHandle(index int, handle *Handle) {
	offset := Address(uint64(index) * uint64(r.stride))

	handle.registry = r
	handle.kind = r.desc.Kind
	handle.index = index
	handle.local = r.localBase + offset

	// Remote bases do not exist for ranges that are not remote-visible
	if r.remoteVisible {
		handle.remote = r.remoteBase + offset
		handle.remoteValid = true
	}
}

// FreeHandle returns a handle's record to the registry and clears *handle. A nil handle or one
// that has already been freed is ignored. A handle from another registry returns
// memutils.ErrInvalidSlot.
func (r *Registry) FreeHandle(handle *Handle) error {
	r.logger.Debug("Registry::FreeHandle")

	if handle == nil || !handle.IsValid() {
		return nil
	}

	if handle.registry != r {
		return errors.Wrapf(memutils.ErrInvalidSlot, "handle %d was not allocated from registry %q", handle.index, r.desc.Name)
	}

	if r.destroyed.Load() {
		return errors.Wrapf(memutils.ErrRegistryDestroyed, "registry %q", r.desc.Name)
	}

	err := r.slots.Free(&handle.ref)
	if err != nil {
		return errors.Wrapf(err, "registry %q could not free handle %d", r.desc.Name, handle.index)
	}

	*handle = Handle{}
	return nil
}

// AvailableCount returns the number of handles that can still be allocated
func (r *Registry) AvailableCount() int {
	return r.slots.AvailableCount()
}

// AllocatedCount returns the number of handles that are currently allocated
func (r *Registry) AllocatedCount() int {
	return r.slots.UsedCount()
}

// Capacity returns the number of records in the backing range
func (r *Registry) Capacity() int {
	return r.slots.Size()
}

// BackingRange returns the range this registry hands out records from, for binding
func (r *Registry) BackingRange() Range {
	return r.backing
}

func (r *Registry) Kind() RangeKind {
	return r.desc.Kind
}

func (r *Registry) Stride() int {
	return r.stride
}

func (r *Registry) IsRemoteVisible() bool {
	return r.remoteVisible
}

func (r *Registry) Name() string {
	return r.desc.Name
}

// AddStatistics sums this registry's handle usage into the provided statistics
func (r *Registry) AddStatistics(stats *memutils.SlotStatistics) {
	r.slots.AddStatistics(stats)
}

// Validate checks the internal consistency of the registry's handle bookkeeping
func (r *Registry) Validate() error {
	return r.slots.Validate()
}

// PrintDetailedMap writes a json object describing the registry's range and every live handle
func (r *Registry) PrintDetailedMap(writer *jwriter.Writer) {
	var stats memutils.SlotStatistics
	r.slots.AddStatistics(&stats)

	obj := writer.Object()
	defer obj.End()

	obj.Name("Name").String(r.desc.Name)
	obj.Name("Kind").String(r.desc.Kind.String())
	obj.Name("Flags").String(r.desc.Flags.String())
	obj.Name("Stride").Int(r.stride)
	obj.Name("References").Int(int(r.refCount.Load()))
	obj.Name("Capacity").Int(stats.Capacity)
	obj.Name("Allocated").Int(stats.Used)
	obj.Name("PeakAllocated").Int(stats.PeakUsed)
	obj.Name("FailedAllocations").Int(stats.FailedAllocCount)
	obj.Name("LocalBase").String(r.localBase.String())
	if r.remoteVisible {
		obj.Name("RemoteBase").String(r.remoteBase.String())
	}

	handles := obj.Name("Handles").Array()
	defer handles.End()

	err := r.slots.Visit(func(ref slots.Ref, handle *Handle) error {
		handleObj := handles.Object()
		defer handleObj.End()

		handleObj.Name("Index").Int(handle.index)
		handleObj.Name("LocalAddress").String(handle.local.String())
		if handle.remoteValid {
			handleObj.Name("RemoteAddress").String(handle.remote.String())
		}
		return nil
	})
	if err != nil {
		r.logger.Error("error while iterating handles for the detailed map", slog.Any("error", err))
	}
}

// BuildStatsString returns the output of PrintDetailedMap as a string
func (r *Registry) BuildStatsString() string {
	r.logger.Debug("Registry::BuildStatsString")

	writer := jwriter.NewWriter()
	r.PrintDetailedMap(&writer)
	return string(writer.Bytes())
}
