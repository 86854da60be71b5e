package slots

import (
	"math"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/vdh/internal/utils"
	"github.com/vkngwrapper/arsenal/vdh/memutils"
	"github.com/vkngwrapper/core/v2/common"
)

// CreateFlags indicate specific slot allocator behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	createFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return createFlagsMapping.FlagsToString(f)
}

const (
	// CreateExternallySynchronized ensures that the allocator will not be synchronized internally.
	// The consumer must guarantee that Init, Term, Alloc, Free, Get, and Visit are called from only one
	// goroutine at a time or are synchronized by some other mechanism.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	CreateExternallySynchronized.Register("CreateExternallySynchronized")
}

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	Flags CreateFlags
}

// MaxCapacity is the largest capacity accepted by Init
const MaxCapacity = math.MaxInt32

type slotIndex int32

const noSlot slotIndex = -1

// owner ids are never 0, so the zero Ref never resolves
var nextOwnerID uint32

// Ref identifies a single allocated slot. It is returned from Allocator.Alloc and is required to free
// the slot. A Ref stops resolving as soon as the slot it names is freed, even if the slot is later
// reused, and every Ref from an allocator stops resolving when the allocator is terminated.
type Ref struct {
	owner      uint32
	index      slotIndex
	generation uint32
}

// Index returns the stable index of the slot this Ref names
func (r Ref) Index() int {
	return int(r.index)
}

// IsZero returns true for the zero Ref, which is what Free leaves behind
func (r Ref) IsZero() bool {
	return r.owner == 0
}

type slot[T any] struct {
	value      T
	index      slotIndex
	generation uint32
	active     bool

	// While active, prev/next link the active list. While free, next links the free stack and prev is unused.
	prev slotIndex
	next slotIndex
}

// Allocator is a fixed-capacity store of values of type T. Each slot has a stable index that is assigned
// by Init and never changes. Live slots are kept in a doubly-linked list in allocation order, free slots
// in a LIFO stack, so the most recently freed slot is always the next one handed out.
//
// Allocators must be created with New.
type Allocator[T any] struct {
	mutex utils.OptionalMutex

	initialized bool
	owner       uint32
	slots       []slot[T]

	activeHead slotIndex
	activeTail slotIndex
	freeHead   slotIndex

	capacity atomic.Int32
	used     atomic.Int32

	peakUsed     int
	allocCount   int
	freeCount    int
	failedAllocs int
}

// New creates an allocator that is ready for Init
func New[T any](options CreateOptions) *Allocator[T] {
	return &Allocator[T]{
		mutex: utils.OptionalMutex{
			UseMutex: options.Flags&CreateExternallySynchronized == 0,
		},
		activeHead: noSlot,
		activeTail: noSlot,
		freeHead:   noSlot,
	}
}

// Init allocates storage for capacity slots and places all of them on the free stack so that
// a fresh allocator hands out indices in ascending order. A capacity of 0 is legal and produces
// an allocator whose Alloc always fails. Init must not be called again without a Term in between.
func (a *Allocator[T]) Init(capacity int) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.initialized {
		return errors.Wrapf(memutils.ErrAlreadyInitialized, "allocator already holds %d slots", len(a.slots))
	}

	if capacity < 0 || capacity > MaxCapacity {
		return errors.Wrapf(memutils.ErrInvalidCapacity, "capacity is %d", capacity)
	}

	a.slots = make([]slot[T], capacity)
	for i := range a.slots {
		s := &a.slots[i]
		s.index = slotIndex(i)
		s.generation = 1
		s.prev = noSlot
		s.next = slotIndex(i + 1)
	}

	a.freeHead = noSlot
	if capacity > 0 {
		a.slots[capacity-1].next = noSlot
		a.freeHead = 0
	}
	a.activeHead = noSlot
	a.activeTail = noSlot

	a.owner = atomic.AddUint32(&nextOwnerID, 1)
	if a.owner == 0 {
		a.owner = atomic.AddUint32(&nextOwnerID, 1)
	}

	a.peakUsed = 0
	a.allocCount = 0
	a.freeCount = 0
	a.failedAllocs = 0
	a.used.Store(0)
	a.capacity.Store(int32(capacity))
	a.initialized = true

	return nil
}

// Term releases the allocator's storage. Every Ref and value pointer handed out before the call
// becomes invalid. The allocator may be initialized again afterward.
func (a *Allocator[T]) Term() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.slots = nil
	a.activeHead = noSlot
	a.activeTail = noSlot
	a.freeHead = noSlot
	a.owner = 0
	a.initialized = false
	a.capacity.Store(0)
	a.used.Store(0)
}

// Alloc takes the slot at the top of the free stack, resets its value to the zero T, and appends it
// to the active list. If ctor is not nil, it is called with the slot's stable index and value before
// Alloc returns. ctor runs while the allocator's lock is held and must not call back into this allocator.
//
// The returned pointer belongs to the caller until the slot is freed. memutils.ErrCapacityExhausted
// is returned when every slot is in use.
func (a *Allocator[T]) Alloc(ctor func(index int, value *T)) (*T, Ref, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if !a.initialized {
		return nil, Ref{}, errors.Wrap(memutils.ErrCapacityExhausted, "allocator is not initialized")
	}

	used := int(a.used.Load())
	if a.freeHead == noSlot || used >= len(a.slots) {
		a.failedAllocs++
		return nil, Ref{}, errors.Wrapf(memutils.ErrCapacityExhausted, "all %d slots are allocated", len(a.slots))
	}

	s := &a.slots[a.freeHead]
	a.freeHead = s.next

	s.prev = a.activeTail
	s.next = noSlot
	if a.activeTail != noSlot {
		a.slots[a.activeTail].next = s.index
	} else {
		a.activeHead = s.index
	}
	a.activeTail = s.index
	s.active = true

	var zero T
	s.value = zero

	used++
	a.used.Store(int32(used))
	a.allocCount++
	if used > a.peakUsed {
		a.peakUsed = used
	}

	if ctor != nil {
		ctor(int(s.index), &s.value)
	}

	a.debugValidate()

	return &s.value, Ref{owner: a.owner, index: s.index, generation: s.generation}, nil
}

// Free returns the slot named by ref to the top of the free stack and resets *ref to the zero Ref.
// The slot's value is reset to the zero T so that anything it references can be collected.
// A nil ref or a zero Ref is ignored. A Ref that was already freed, was issued before the last
// Term, or was issued by another allocator produces memutils.ErrInvalidSlot and changes nothing.
func (a *Allocator[T]) Free(ref *Ref) error {
	if ref == nil || ref.IsZero() {
		return nil
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	s, err := a.liveSlot(*ref)
	if err != nil {
		return err
	}

	if s.prev != noSlot {
		a.slots[s.prev].next = s.next
	} else {
		a.activeHead = s.next
	}

	if s.next != noSlot {
		a.slots[s.next].prev = s.prev
	} else {
		a.activeTail = s.prev
	}

	var zero T
	s.value = zero
	s.active = false
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}

	s.prev = noSlot
	s.next = a.freeHead
	a.freeHead = s.index

	a.used.Add(-1)
	a.freeCount++
	*ref = Ref{}

	a.debugValidate()

	return nil
}

// Get returns the value held by a live slot
func (a *Allocator[T]) Get(ref Ref) (*T, bool) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	s, err := a.liveSlot(ref)
	if err != nil {
		return nil, false
	}

	return &s.value, true
}

func (a *Allocator[T]) liveSlot(ref Ref) (*slot[T], error) {
	if !a.initialized || ref.owner != a.owner {
		return nil, errors.Wrapf(memutils.ErrInvalidSlot, "slot %d was not issued by this allocator", ref.index)
	}

	if ref.index < 0 || int(ref.index) >= len(a.slots) {
		return nil, errors.Wrapf(memutils.ErrInvalidSlot, "slot %d is out of range for capacity %d", ref.index, len(a.slots))
	}

	s := &a.slots[ref.index]
	if !s.active || s.generation != ref.generation {
		return nil, errors.Wrapf(memutils.ErrInvalidSlot, "slot %d has been freed since it was allocated", ref.index)
	}

	return s, nil
}

// Size returns the capacity the allocator was initialized with
func (a *Allocator[T]) Size() int {
	return int(a.capacity.Load())
}

// UsedCount returns the number of allocated slots
func (a *Allocator[T]) UsedCount() int {
	return int(a.used.Load())
}

// AvailableCount returns the number of free slots. It does not take the allocator's lock, so
// while other goroutines are allocating it is only a snapshot.
func (a *Allocator[T]) AvailableCount() int {
	return int(a.capacity.Load()) - int(a.used.Load())
}

// Visit calls the provided callback once for each allocated slot, oldest allocation first, stopping
// at the first error. The callback runs while the allocator's lock is held and must not call back
// into this allocator.
func (a *Allocator[T]) Visit(visit func(ref Ref, value *T) error) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	for index := a.activeHead; index != noSlot; index = a.slots[index].next {
		s := &a.slots[index]
		err := visit(Ref{owner: a.owner, index: s.index, generation: s.generation}, &s.value)
		if err != nil {
			return err
		}
	}

	return nil
}

// AddStatistics sums this allocator's occupancy into the provided statistics
func (a *Allocator[T]) AddStatistics(stats *memutils.SlotStatistics) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	stats.AllocatorCount++
	stats.Capacity += len(a.slots)
	stats.Used += int(a.used.Load())
	stats.PeakUsed += a.peakUsed
	stats.AllocCount += a.allocCount
	stats.FreeCount += a.freeCount
	stats.FailedAllocCount += a.failedAllocs
}
