package affinity

import "errors"

type Mode string

const (
	ModeSingle Mode = "single"
	ModeGroup  Mode = "group"
)

// Exclusion is the number of leading CPUs a policy keeps free.
type Exclusion int

const (
	ExcludeNone     Exclusion = 0
	ExcludeCPU0     Exclusion = 1
	ExcludeCPU0And1 Exclusion = 2
)

const DefaultGroupSize = 2

var (
	ErrInsufficientResources = errors.New("insufficient CPU cores available")
	ErrNoTargetProcesses     = errors.New("no target processes")
	ErrInvalidPolicy         = errors.New("invalid policy")
)

type Policy struct {
	Mode      Mode
	Exclude   Exclusion
	GroupSize int
}

type Assignment struct {
	Index int
	CPUs  []int
}

// PolicyInfo describes one selectable policy for listings and help output.
type PolicyInfo struct {
	Name        string
	Description string
	Policy      Policy
}
