package memutils

// SlotStatistics summarizes the occupancy of one or more slot allocators
type SlotStatistics struct {
	// AllocatorCount is the number of slot allocators that have been summed into these statistics
	AllocatorCount int
	// Capacity is the total number of slots
	Capacity int
	// Used is the number of slots that are currently allocated
	Used int
	// PeakUsed is the largest value Used has reached. When several allocators are summed, it is
	// the sum of their individual peaks.
	PeakUsed int
	// AllocCount is the number of successful allocations since initialization
	AllocCount int
	// FreeCount is the number of successful frees since initialization
	FreeCount int
	// FailedAllocCount is the number of allocations that were refused for lack of a free slot
	FailedAllocCount int
}

func (s *SlotStatistics) Clear() {
	s.AllocatorCount = 0
	s.Capacity = 0
	s.Used = 0
	s.PeakUsed = 0
	s.AllocCount = 0
	s.FreeCount = 0
	s.FailedAllocCount = 0
}

// Available returns the number of slots that are not currently allocated
func (s *SlotStatistics) Available() int {
	return s.Capacity - s.Used
}

func (s *SlotStatistics) AddStatistics(other *SlotStatistics) {
	s.AllocatorCount += other.AllocatorCount
	s.Capacity += other.Capacity
	s.Used += other.Used
	s.PeakUsed += other.PeakUsed
	s.AllocCount += other.AllocCount
	s.FreeCount += other.FreeCount
	s.FailedAllocCount += other.FailedAllocCount
}
