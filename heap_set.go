package vdh

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/vdh/internal/utils"
	"github.com/vkngwrapper/arsenal/vdh/memutils"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// HeapSetOptions describes the registries a HeapSet should create
type HeapSetOptions struct {
	// Flags are passed to every registry the set creates. CreateExternallySynchronized also
	// disables the set's own lock.
	Flags CreateFlags
	// Callbacks are passed to every registry the set creates
	Callbacks *RangeCallbackOptions
	// Ranges contains one descriptor per registry. Each kind may appear at most once.
	Ranges []RangeDescriptor
}

// HeapSet owns one Registry per RangeKind. It is meant to be created once per device and passed
// to every resource that needs handles, rather than kept in package-level state.
type HeapSet struct {
	logger     *slog.Logger
	mutex      utils.OptionalRWMutex
	registries *swiss.Map[RangeKind, *Registry]
}

// NewHeapSet creates a registry for each descriptor in options.Ranges. If any registry cannot be
// created, the ones that were already created are released and the error is returned.
func NewHeapSet(logger *slog.Logger, device Device, options HeapSetOptions) (*HeapSet, error) {
	if logger == nil {
		return nil, errors.Wrap(memutils.ErrMissingInput, "a logger is required to create a heap set")
	}

	logger.Debug("HeapSet::New", slog.Int("RangeCount", len(options.Ranges)))

	set := &HeapSet{
		logger:     logger,
		mutex:      utils.OptionalRWMutex{UseMutex: options.Flags&CreateExternallySynchronized == 0},
		registries: swiss.NewMap[RangeKind, *Registry](8),
	}

	for _, desc := range options.Ranges {
		if set.registries.Has(desc.Kind) {
			set.releaseAfterFailure()
			return nil, errors.Wrapf(memutils.ErrInvalidDescriptor, "more than one %s range was requested", desc.Kind)
		}

		registry, err := Create(logger, device, desc, CreateOptions{
			Flags:     options.Flags,
			Callbacks: options.Callbacks,
		})
		if err != nil {
			set.releaseAfterFailure()
			return nil, err
		}

		set.registries.Put(desc.Kind, registry)
	}

	return set, nil
}

func (s *HeapSet) releaseAfterFailure() {
	err := s.releaseAll()
	if err != nil {
		s.logger.Error("error attempting to release registries after heap set creation failure", slog.Any("error", err))
	}
}

func (s *HeapSet) releaseAll() error {
	var err error
	for _, kind := range s.sortedKinds() {
		registry, _ := s.registries.Get(kind)
		err = errors.CombineErrors(err, registry.Release())
	}
	s.registries = swiss.NewMap[RangeKind, *Registry](8)

	return err
}

func (s *HeapSet) sortedKinds() []RangeKind {
	kinds := make([]RangeKind, 0, s.registries.Count())
	s.registries.Iter(func(kind RangeKind, registry *Registry) bool {
		kinds = append(kinds, kind)
		return false
	})
	slices.Sort(kinds)
	return kinds
}

func (s *HeapSet) registry(kind RangeKind) (*Registry, error) {
	registry, ok := s.registries.Get(kind)
	if !ok {
		return nil, errors.Wrapf(memutils.ErrInvalidDescriptor, "the heap set has no %s range", kind)
	}
	return registry, nil
}

// Registry returns the registry for the provided kind with an added reference. The caller must
// call Release on it when finished.
func (s *HeapSet) Registry(kind RangeKind) (*Registry, error) {
	s.logger.Debug("HeapSet::Registry", slog.String("Kind", kind.String()))

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	registry, err := s.registry(kind)
	if err != nil {
		return nil, err
	}

	registry.AddRef()
	return registry, nil
}

// AllocHandle allocates a handle from the registry for the provided kind
func (s *HeapSet) AllocHandle(kind RangeKind) (Handle, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	registry, err := s.registry(kind)
	if err != nil {
		return Handle{}, err
	}

	return registry.AllocHandle()
}

// FreeHandle returns a handle to the registry it was allocated from and clears *handle
func (s *HeapSet) FreeHandle(handle *Handle) error {
	if handle == nil || !handle.IsValid() {
		return nil
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	registry, err := s.registry(handle.kind)
	if err != nil {
		return err
	}

	return registry.FreeHandle(handle)
}

// AddStatistics sums the handle usage of every registry in the set into the provided statistics
func (s *HeapSet) AddStatistics(stats *memutils.SlotStatistics) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	s.registries.Iter(func(kind RangeKind, registry *Registry) bool {
		registry.AddStatistics(stats)
		return false
	})
}

// BuildStatsString returns a json object with one entry per registry, keyed by kind
func (s *HeapSet) BuildStatsString() string {
	s.logger.Debug("HeapSet::BuildStatsString")

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	writer := jwriter.NewWriter()
	obj := writer.Object()

	var total memutils.SlotStatistics
	s.registries.Iter(func(kind RangeKind, registry *Registry) bool {
		registry.AddStatistics(&total)
		return false
	})

	totalObj := obj.Name("Total").Object()
	totalObj.Name("Registries").Int(total.AllocatorCount)
	totalObj.Name("Capacity").Int(total.Capacity)
	totalObj.Name("Allocated").Int(total.Used)
	totalObj.Name("Available").Int(total.Available())
	totalObj.End()

	registriesObj := obj.Name("Registries").Object()
	for _, kind := range s.sortedKinds() {
		registry, _ := s.registries.Get(kind)
		registry.PrintDetailedMap(registriesObj.Name(kind.String()))
	}
	registriesObj.End()

	obj.End()
	return string(writer.Bytes())
}

// Destroy releases the set's reference to each of its registries. Registries that were retrieved
// with Registry and not yet released remain alive until their other owners release them.
func (s *HeapSet) Destroy() error {
	s.logger.Debug("HeapSet::Destroy")

	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.releaseAll()
}
