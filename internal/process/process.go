package process

import (
	"errors"
	"fmt"
	"math"

	gops "github.com/shirou/gopsutil/v3/process"

	"procaffinity/internal/topology"
)

type Process struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

func (p Process) DisplayName() string {
	return fmt.Sprintf("%s (PID: %d)", p.Name, p.PID)
}

var (
	ErrAccessDenied  = errors.New("access denied")
	ErrNoSuchProcess = errors.New("no such process")
	ErrEmptyCoreSet  = errors.New("empty core set")
	ErrUnsupported   = errors.New("CPU affinity is only supported on Linux")
)

// Linux truncates the comm name reported by /proc/<pid>/stat to 15 bytes.
const commNameLimit = 15

// System is the host implementation of process enumeration and affinity
// control.
type System struct{}

func NewSystem() *System {
	return &System{}
}

// Enumerate returns every running process named name, in the order the host
// lists them.
func (s *System) Enumerate(name string) ([]Process, error) {
	procs, err := gops.Processes()
	if err != nil {
		return nil, fmt.Errorf("unable to list processes: %w", err)
	}

	candidates := make([]candidate, 0, len(procs))
	for _, proc := range procs {
		candidates = append(candidates, candidate{pid: int(proc.Pid), name: proc.Name})
	}
	return matchName(candidates, name), nil
}

// Lookup resolves a single PID.
func (s *System) Lookup(pid int) (Process, error) {
	if pid <= 0 || pid > math.MaxInt32 {
		return Process{}, fmt.Errorf("%w: invalid PID %d", ErrNoSuchProcess, pid)
	}
	proc, err := gops.NewProcess(int32(pid))
	if err != nil {
		if errors.Is(err, gops.ErrorProcessNotRunning) {
			return Process{}, fmt.Errorf("%w: PID %d", ErrNoSuchProcess, pid)
		}
		return Process{}, err
	}
	name, err := proc.Name()
	if err != nil {
		return Process{}, fmt.Errorf("%w: PID %d: %v", ErrNoSuchProcess, pid, err)
	}
	return Process{PID: pid, Name: name}, nil
}

func (s *System) Affinity(pid int) ([]int, error) {
	return getAffinity(pid)
}

func (s *System) SetAffinity(pid int, cpus []int) error {
	if len(cpus) == 0 {
		return ErrEmptyCoreSet
	}
	for _, cpu := range cpus {
		if cpu < 0 {
			return fmt.Errorf("invalid CPU index %d", cpu)
		}
	}
	return setAffinity(pid, cpus)
}

func (s *System) CPUCount() (int, error) {
	return topology.CPUCount()
}

func (s *System) OnlineCPUs() ([]int, error) {
	return topology.Online()
}

type candidate struct {
	pid  int
	name func() (string, error)
}

func matchName(candidates []candidate, name string) []Process {
	matched := make([]Process, 0)
	seen := make(map[int]struct{})
	for _, c := range candidates {
		procName, err := c.name()
		if err != nil {
			// exited while listing
			continue
		}
		if !nameMatches(procName, name) {
			continue
		}
		if _, ok := seen[c.pid]; ok {
			continue
		}
		seen[c.pid] = struct{}{}
		matched = append(matched, Process{PID: c.pid, Name: procName})
	}
	return matched
}

func nameMatches(procName, want string) bool {
	if procName == want {
		return true
	}
	return len(want) > commNameLimit && procName == want[:commNameLimit]
}
