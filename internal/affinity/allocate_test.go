package affinity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cpusOf(assignments []Assignment) [][]int {
	out := make([][]int, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, a.CPUs)
	}
	return out
}

func TestAllocate_SingleCoreRoundRobin(t *testing.T) {
	for coreCount := 1; coreCount <= 9; coreCount++ {
		got, err := Allocate(coreCount, 20, Policy{Mode: ModeSingle})
		require.NoError(t, err)
		require.Len(t, got, 20)
		for i, a := range got {
			assert.Equal(t, i, a.Index)
			assert.Equal(t, []int{i % coreCount}, a.CPUs, "cores=%d process=%d", coreCount, i)
		}
	}
}

func TestAllocate_SingleCoreExcluding(t *testing.T) {
	tests := []struct {
		name      string
		exclude   Exclusion
		coreCount int
		want      [][]int
	}{
		{"skip cpu0", ExcludeCPU0, 4, [][]int{{1}, {2}, {3}, {1}, {2}}},
		{"skip cpu0 with two cores", ExcludeCPU0, 2, [][]int{{1}, {1}, {1}, {1}, {1}}},
		{"skip cpu0 and cpu1", ExcludeCPU0And1, 5, [][]int{{2}, {3}, {4}, {2}, {3}}},
		{"skip cpu0 and cpu1 with three cores", ExcludeCPU0And1, 3, [][]int{{2}, {2}, {2}, {2}, {2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Allocate(tt.coreCount, 5, Policy{Mode: ModeSingle, Exclude: tt.exclude})
			require.NoError(t, err)
			assert.Equal(t, tt.want, cpusOf(got))
		})
	}
}

func TestAllocate_InsufficientResources(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		coreCount int
	}{
		{"no cores", Policy{Mode: ModeSingle}, 0},
		{"skip cpu0 on one core", Policy{Mode: ModeSingle, Exclude: ExcludeCPU0}, 1},
		{"skip cpu0 and cpu1 on two cores", Policy{Mode: ModeSingle, Exclude: ExcludeCPU0And1}, 2},
		{"skip cpu0 and cpu1 on one core", Policy{Mode: ModeSingle, Exclude: ExcludeCPU0And1}, 1},
		{"group on no cores", Policy{Mode: ModeGroup, GroupSize: 2}, 0},
		{"group skip cpu0 and cpu1 on two cores", Policy{Mode: ModeGroup, Exclude: ExcludeCPU0And1, GroupSize: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Allocate(tt.coreCount, 3, tt.policy)
			assert.ErrorIs(t, err, ErrInsufficientResources)
		})
	}
}

func TestAllocate_CoreCheckPrecedesProcessCheck(t *testing.T) {
	_, err := Allocate(2, 0, Policy{Mode: ModeSingle, Exclude: ExcludeCPU0And1})
	assert.ErrorIs(t, err, ErrInsufficientResources)
}

func TestAllocate_NoTargetProcesses(t *testing.T) {
	for _, info := range Policies(DefaultGroupSize) {
		t.Run(info.Name, func(t *testing.T) {
			got, err := Allocate(8, 0, info.Policy)
			assert.ErrorIs(t, err, ErrNoTargetProcesses)
			assert.Nil(t, got)
		})
	}
}

func TestAllocate_GroupCoreRawArithmetic(t *testing.T) {
	got, err := Allocate(3, 3, Policy{Mode: ModeGroup, GroupSize: 2})
	require.NoError(t, err)
	// Process 1 starts at (1*2) mod 3 = 2 and keeps the unclipped core 3.
	assert.Equal(t, [][]int{{0, 1}, {2, 3}, {1, 2}}, cpusOf(got))
}

func TestAllocate_GroupCoreEvenSplit(t *testing.T) {
	got, err := Allocate(8, 5, Policy{Mode: ModeGroup, GroupSize: 2})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1}, {2, 3}, {4, 5}, {6, 7}, {0, 1}}, cpusOf(got))
}

func TestAllocate_GroupCoreExcludingSlices(t *testing.T) {
	got, err := Allocate(5, 3, Policy{Mode: ModeGroup, Exclude: ExcludeCPU0, GroupSize: 2})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {1, 2}}, cpusOf(got))
}

func TestAllocate_GroupCoreExcludingTruncatesAtEnd(t *testing.T) {
	tests := []struct {
		name      string
		exclude   Exclusion
		coreCount int
		size      int
		want      [][]int
	}{
		// available [1,2,3]: starts 0, 2, 1 (4 mod 3), 0
		{"skip cpu0 odd count", ExcludeCPU0, 4, 2, [][]int{{1, 2}, {3}, {2, 3}, {1, 2}}},
		// available [2,3,4]: starts 0, 2, 1
		{"skip cpu0 and cpu1", ExcludeCPU0And1, 5, 2, [][]int{{2, 3}, {4}, {3, 4}, {2, 3}}},
		// group larger than available
		{"group wider than available", ExcludeCPU0, 3, 4, [][]int{{1, 2}, {1, 2}, {1, 2}, {1, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Allocate(tt.coreCount, 4, Policy{Mode: ModeGroup, Exclude: tt.exclude, GroupSize: tt.size})
			require.NoError(t, err)
			assert.Equal(t, tt.want, cpusOf(got))
		})
	}
}

func TestAllocate_ExcludingGroupsStayInAvailable(t *testing.T) {
	for coreCount := 3; coreCount <= 12; coreCount++ {
		for size := 1; size <= 4; size++ {
			for _, ex := range []Exclusion{ExcludeCPU0, ExcludeCPU0And1} {
				got, err := Allocate(coreCount, 10, Policy{Mode: ModeGroup, Exclude: ex, GroupSize: size})
				require.NoError(t, err)
				for _, a := range got {
					require.NotEmpty(t, a.CPUs)
					assert.LessOrEqual(t, len(a.CPUs), size)
					for _, cpu := range a.CPUs {
						assert.GreaterOrEqual(t, cpu, int(ex))
						assert.Less(t, cpu, coreCount)
					}
				}
			}
		}
	}
}

func TestAllocate_Deterministic(t *testing.T) {
	p := Policy{Mode: ModeGroup, Exclude: ExcludeCPU0, GroupSize: 3}
	first, err := Allocate(7, 9, p)
	require.NoError(t, err)
	second, err := Allocate(7, 9, p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAllocate_InvalidPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
	}{
		{"zero group size", Policy{Mode: ModeGroup, GroupSize: 0}},
		{"negative group size", Policy{Mode: ModeGroup, Exclude: ExcludeCPU0, GroupSize: -1}},
		{"unknown mode", Policy{Mode: "spread"}},
		{"unknown exclusion", Policy{Mode: ModeSingle, Exclude: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Allocate(8, 2, tt.policy)
			assert.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestAvailable(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2, 3}, Available(4, ExcludeNone))
	assert.Equal(t, []int{1, 2, 3, 4}, Available(5, ExcludeCPU0))
	assert.Equal(t, []int{2}, Available(3, ExcludeCPU0And1))
	assert.Empty(t, Available(2, ExcludeCPU0And1))
	assert.Empty(t, Available(0, ExcludeNone))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("  Core-Group-Skip-CPU0 ", 3)
	require.NoError(t, err)
	assert.Equal(t, Policy{Mode: ModeGroup, Exclude: ExcludeCPU0, GroupSize: 3}, p)
	assert.Equal(t, "core-group-skip-cpu0", p.Name())

	p, err = ParsePolicy("single-core-skip-cpu01", 0)
	require.NoError(t, err)
	assert.Equal(t, Policy{Mode: ModeSingle, Exclude: ExcludeCPU0And1}, p)

	_, err = ParsePolicy("core-group", 0)
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	_, err = ParsePolicy("numa", 2)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	assert.Contains(t, err.Error(), "single-core-skip-cpu0")
}

func TestPolicies_NamesRoundTrip(t *testing.T) {
	infos := Policies(DefaultGroupSize)
	require.Len(t, infos, 6)
	for _, info := range infos {
		assert.Equal(t, info.Name, info.Policy.Name())
		assert.NoError(t, info.Policy.Validate())
	}
}

func TestPolicy_Summary(t *testing.T) {
	assert.Equal(t, "Auto affinity set for 3 processes.", Policy{Mode: ModeSingle}.Summary(3))
	assert.Equal(t, "Affinity set for 2 processes, excluding CPU 0.",
		Policy{Mode: ModeSingle, Exclude: ExcludeCPU0}.Summary(2))
	assert.Equal(t, "Affinity set for 4 processes to core groups.",
		Policy{Mode: ModeGroup, GroupSize: 2}.Summary(4))
	assert.Equal(t, "Affinity set for 1 processes, excluding CPU 0 and CPU 1.",
		Policy{Mode: ModeGroup, Exclude: ExcludeCPU0And1, GroupSize: 2}.Summary(1))
}
