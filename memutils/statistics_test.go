package memutils_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/vdh/memutils"
)

func TestSlotStatisticsAdd(t *testing.T) {
	stats := memutils.SlotStatistics{
		AllocatorCount: 1,
		Capacity:       8,
		Used:           3,
		PeakUsed:       5,
		AllocCount:     7,
		FreeCount:      4,
	}

	stats.AddStatistics(&memutils.SlotStatistics{
		AllocatorCount:   1,
		Capacity:         4,
		Used:             4,
		PeakUsed:         4,
		AllocCount:       4,
		FailedAllocCount: 2,
	})

	require.Equal(t, memutils.SlotStatistics{
		AllocatorCount:   2,
		Capacity:         12,
		Used:             7,
		PeakUsed:         9,
		AllocCount:       11,
		FreeCount:        4,
		FailedAllocCount: 2,
	}, stats)
	require.Equal(t, 5, stats.Available())

	stats.Clear()
	require.Equal(t, memutils.SlotStatistics{}, stats)
}

func TestCheckPow2(t *testing.T) {
	require.NoError(t, memutils.CheckPow2(64, "stride"))
	require.NoError(t, memutils.CheckPow2(uint(1), "stride"))

	err := memutils.CheckPow2(48, "stride")
	require.ErrorIs(t, err, memutils.PowerOfTwoError)
	require.ErrorContains(t, err, "stride is 48")

	require.ErrorIs(t, memutils.CheckPow2(0, "stride"), memutils.PowerOfTwoError)
}

func TestAlign(t *testing.T) {
	require.Equal(t, 256, memutils.AlignUp(200, 64))
	require.Equal(t, 256, memutils.AlignUp(256, 64))
	require.Equal(t, 192, memutils.AlignDown(200, 64))
	require.Equal(t, 200, memutils.AlignUp(200, 1))
}
