package affinity

import (
	"fmt"
	"strings"
)

const (
	nameSingle       = "single-core"
	nameSingleSkip0  = "single-core-skip-cpu0"
	nameSingleSkip01 = "single-core-skip-cpu01"
	nameGroup        = "core-group"
	nameGroupSkip0   = "core-group-skip-cpu0"
	nameGroupSkip01  = "core-group-skip-cpu01"
)

// Allocate computes one core set per process for the given policy. Process i
// of processCount is assigned Assignment{Index: i}.
//
// Group policies without exclusion use absolute core numbers, so a group that
// starts near the end may name cores >= coreCount. Group policies with an
// exclusion slice the available cores and return a shorter group instead.
func Allocate(coreCount, processCount int, p Policy) ([]Assignment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	available := Available(coreCount, p.Exclude)
	if len(available) == 0 {
		return nil, fmt.Errorf("%w: %d CPUs, %s", ErrInsufficientResources, coreCount, p.Exclude)
	}
	if processCount <= 0 {
		return nil, ErrNoTargetProcesses
	}

	assignments := make([]Assignment, 0, processCount)
	for i := 0; i < processCount; i++ {
		var cpus []int
		switch {
		case p.Mode == ModeSingle:
			cpus = []int{available[i%len(available)]}
		case p.Exclude == ExcludeNone:
			start := (i * p.GroupSize) % coreCount
			cpus = make([]int, 0, p.GroupSize)
			for c := start; c < start+p.GroupSize; c++ {
				cpus = append(cpus, c)
			}
		default:
			start := (i * p.GroupSize) % len(available)
			end := start + p.GroupSize
			if end > len(available) {
				end = len(available)
			}
			cpus = make([]int, end-start)
			copy(cpus, available[start:end])
		}
		assignments = append(assignments, Assignment{Index: i, CPUs: cpus})
	}

	return assignments, nil
}

// Available lists the cores a policy with the given exclusion may use.
func Available(coreCount int, ex Exclusion) []int {
	first := int(ex)
	if coreCount <= first {
		return []int{}
	}
	cores := make([]int, 0, coreCount-first)
	for c := first; c < coreCount; c++ {
		cores = append(cores, c)
	}
	return cores
}

func (p Policy) Validate() error {
	switch p.Exclude {
	case ExcludeNone, ExcludeCPU0, ExcludeCPU0And1:
	default:
		return fmt.Errorf("%w: unknown exclusion %d", ErrInvalidPolicy, int(p.Exclude))
	}
	switch p.Mode {
	case ModeSingle:
		return nil
	case ModeGroup:
		if p.GroupSize < 1 {
			return fmt.Errorf("%w: group size must be at least 1, got %d", ErrInvalidPolicy, p.GroupSize)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, string(p.Mode))
	}
}

func (p Policy) Name() string {
	switch {
	case p.Mode == ModeSingle && p.Exclude == ExcludeNone:
		return nameSingle
	case p.Mode == ModeSingle && p.Exclude == ExcludeCPU0:
		return nameSingleSkip0
	case p.Mode == ModeSingle && p.Exclude == ExcludeCPU0And1:
		return nameSingleSkip01
	case p.Mode == ModeGroup && p.Exclude == ExcludeNone:
		return nameGroup
	case p.Mode == ModeGroup && p.Exclude == ExcludeCPU0:
		return nameGroupSkip0
	case p.Mode == ModeGroup && p.Exclude == ExcludeCPU0And1:
		return nameGroupSkip01
	}
	return "unknown"
}

// Summary is the status line reported after applying the policy to n processes.
func (p Policy) Summary(n int) string {
	switch {
	case p.Exclude != ExcludeNone:
		return fmt.Sprintf("Affinity set for %d processes, %s.", n, p.Exclude)
	case p.Mode == ModeGroup:
		return fmt.Sprintf("Affinity set for %d processes to core groups.", n)
	default:
		return fmt.Sprintf("Auto affinity set for %d processes.", n)
	}
}

func (e Exclusion) String() string {
	switch e {
	case ExcludeNone:
		return "using all CPUs"
	case ExcludeCPU0:
		return "excluding CPU 0"
	case ExcludeCPU0And1:
		return "excluding CPU 0 and CPU 1"
	}
	return fmt.Sprintf("excluding %d CPUs", int(e))
}

// ParsePolicy resolves a policy name. groupSize is ignored by single-core
// policies.
func ParsePolicy(name string, groupSize int) (Policy, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, info := range Policies(groupSize) {
		if info.Name == normalized {
			return info.Policy, info.Policy.Validate()
		}
	}
	return Policy{}, fmt.Errorf("%w: %q (valid: %s)", ErrInvalidPolicy, name, strings.Join(PolicyNames(), ", "))
}

// Policies lists every selectable policy in menu order.
func Policies(groupSize int) []PolicyInfo {
	return []PolicyInfo{
		{
			Name:        nameSingle,
			Description: "One core per process, round-robin over all CPUs",
			Policy:      Policy{Mode: ModeSingle, Exclude: ExcludeNone},
		},
		{
			Name:        nameSingleSkip0,
			Description: "One core per process, round-robin, CPU 0 left free",
			Policy:      Policy{Mode: ModeSingle, Exclude: ExcludeCPU0},
		},
		{
			Name:        nameSingleSkip01,
			Description: "One core per process, round-robin, CPUs 0 and 1 left free",
			Policy:      Policy{Mode: ModeSingle, Exclude: ExcludeCPU0And1},
		},
		{
			Name:        nameGroup,
			Description: fmt.Sprintf("Groups of %d consecutive cores per process", groupSize),
			Policy:      Policy{Mode: ModeGroup, Exclude: ExcludeNone, GroupSize: groupSize},
		},
		{
			Name:        nameGroupSkip0,
			Description: fmt.Sprintf("Groups of %d cores per process, CPU 0 left free", groupSize),
			Policy:      Policy{Mode: ModeGroup, Exclude: ExcludeCPU0, GroupSize: groupSize},
		},
		{
			Name:        nameGroupSkip01,
			Description: fmt.Sprintf("Groups of %d cores per process, CPUs 0 and 1 left free", groupSize),
			Policy:      Policy{Mode: ModeGroup, Exclude: ExcludeCPU0And1, GroupSize: groupSize},
		},
	}
}

func PolicyNames() []string {
	infos := Policies(DefaultGroupSize)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names
}
