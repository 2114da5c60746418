//go:build linux

package process

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"procaffinity/internal/affinity"
)

// cpuSetSize matches the kernel's CPU_SETSIZE as exposed by unix.CPUSet.
const cpuSetSize = affinity.MaxCPUs

func getAffinity(pid int) ([]int, error) {
	var mask unix.CPUSet
	if err := unix.SchedGetaffinity(pid, &mask); err != nil {
		return nil, classify(pid, err)
	}

	cpus := make([]int, 0, mask.Count())
	for cpu := 0; cpu < cpuSetSize; cpu++ {
		if mask.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}
	return cpus, nil
}

func setAffinity(pid int, cpus []int) error {
	var mask unix.CPUSet
	mask.Zero()
	for _, cpu := range cpus {
		if cpu >= cpuSetSize {
			return fmt.Errorf("CPU %d exceeds the affinity mask size %d", cpu, cpuSetSize)
		}
		mask.Set(cpu)
	}
	if err := unix.SchedSetaffinity(pid, &mask); err != nil {
		return classify(pid, err)
	}
	return nil
}

func classify(pid int, err error) error {
	switch {
	case errors.Is(err, unix.ESRCH):
		return fmt.Errorf("%w: PID %d", ErrNoSuchProcess, pid)
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		return fmt.Errorf("%w: PID %d", ErrAccessDenied, pid)
	case errors.Is(err, unix.EINVAL):
		return fmt.Errorf("PID %d: core set contains no usable CPU: %w", pid, err)
	}
	return fmt.Errorf("PID %d: %w", pid, err)
}
