package slots

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/vdh/memutils"
)

var _ memutils.Validatable = &Allocator[int]{}

// Validate walks the active list and the free stack and verifies that every slot is a member of
// exactly one of them and that the counters agree with the lists. It is O(capacity) and intended
// for diagnostics and tests.
func (a *Allocator[T]) Validate() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.validate()
}

// debugValidate runs validate when built with debug_mem_utils. The caller must hold the lock.
func (a *Allocator[T]) debugValidate() {
	if !memutils.DebugEnabled {
		return
	}

	err := a.validate()
	if err != nil {
		panic(err)
	}
}

func (a *Allocator[T]) validate() error {
	capacity := len(a.slots)
	if int(a.capacity.Load()) != capacity {
		return errors.Errorf("the allocator reports a capacity of %d, but holds %d slots", a.capacity.Load(), capacity)
	}

	if !a.initialized {
		if capacity != 0 || a.used.Load() != 0 {
			return errors.New("an uninitialized allocator must not hold slots")
		}
		return nil
	}

	used := int(a.used.Load())
	if used < 0 || used > capacity {
		return errors.Errorf("used count %d is outside of [0, %d]", used, capacity)
	}

	seen := make([]bool, capacity)

	activeCount := 0
	prev := noSlot
	for index := a.activeHead; index != noSlot; index = a.slots[index].next {
		if index < 0 || int(index) >= capacity {
			return errors.Errorf("active list refers to slot %d, which is out of range", index)
		}
		if seen[index] {
			return errors.Errorf("slot %d appears in the active list more than once", index)
		}
		seen[index] = true

		s := &a.slots[index]
		if s.index != index {
			return errors.Errorf("slot at position %d believes its index is %d", index, s.index)
		}
		if !s.active {
			return errors.Errorf("slot %d is in the active list but is not marked active", index)
		}
		if s.prev != prev {
			return errors.Errorf("slot %d lists slot %d as its previous slot, but was reached from slot %d", index, s.prev, prev)
		}

		activeCount++
		prev = index
	}

	if a.activeTail != prev {
		return errors.Errorf("the active list tail is slot %d, but the list ends at slot %d", a.activeTail, prev)
	}

	freeCount := 0
	for index := a.freeHead; index != noSlot; index = a.slots[index].next {
		if index < 0 || int(index) >= capacity {
			return errors.Errorf("free stack refers to slot %d, which is out of range", index)
		}
		if seen[index] {
			return errors.Errorf("slot %d is reachable from more than one list", index)
		}
		seen[index] = true

		if a.slots[index].active {
			return errors.Errorf("slot %d is in the free stack but is marked active", index)
		}

		freeCount++
	}

	if activeCount != used {
		return errors.Errorf("the used count of the allocator is %d, but the active list holds %d slots", used, activeCount)
	}

	if activeCount+freeCount != capacity {
		return errors.Errorf("the active list (%d) and free stack (%d) do not account for all %d slots", activeCount, freeCount, capacity)
	}

	return nil
}
