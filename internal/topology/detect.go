package topology

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/shirou/gopsutil/v3/cpu"
)

var ErrTopologyUnavailable = errors.New("topology unavailable")

// cpuCounts is swapped out in tests.
var cpuCounts = cpu.Counts

// Detect reads the CPU layout from sysfs, falling back to gopsutil counts on
// hosts without it.
func Detect() (*CPUTopology, error) {
	return detect(SysfsBasePath)
}

// CPUCount returns the number of online logical CPUs.
func CPUCount() (int, error) {
	return cpuCount(SysfsBasePath)
}

// Online returns the IDs of the online logical CPUs. They need not be
// consecutive.
func Online() ([]int, error) {
	return online(SysfsBasePath)
}

func cpuCount(root string) (int, error) {
	cpus, err := online(root)
	if err != nil {
		return 0, err
	}
	return len(cpus), nil
}

func online(root string) ([]int, error) {
	cpus, err := OnlineCPUs(root)
	if err == nil && len(cpus) > 0 {
		return cpus, nil
	}
	if errors.Is(err, os.ErrPermission) {
		return nil, err
	}

	logical, cerr := cpuCounts(true)
	if cerr != nil {
		return nil, fmt.Errorf("%w: %v", ErrTopologyUnavailable, cerr)
	}
	if logical < 1 {
		return nil, fmt.Errorf("%w: no CPUs reported", ErrTopologyUnavailable)
	}
	cpus = make([]int, logical)
	for i := range cpus {
		cpus[i] = i
	}
	return cpus, nil
}

func detect(root string) (*CPUTopology, error) {
	topo, err := detectSysfs(root)
	if err == nil {
		return topo, nil
	}
	if errors.Is(err, os.ErrPermission) {
		return nil, err
	}

	fallback, ferr := detectCounts()
	if ferr != nil {
		return nil, fmt.Errorf("%w: %v (sysfs: %v)", ErrTopologyUnavailable, ferr, err)
	}
	return fallback, nil
}

func detectSysfs(root string) (*CPUTopology, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: sysfs base path not found", ErrTopologyUnavailable)
		}
		if os.IsPermission(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTopologyUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: sysfs base path not a directory", ErrTopologyUnavailable)
	}

	present, err := ListCPUs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTopologyUnavailable, err)
	}
	online, err := OnlineCPUs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTopologyUnavailable, err)
	}
	if len(online) == 0 {
		return nil, fmt.Errorf("%w: no CPUs found", ErrTopologyUnavailable)
	}

	infos := make([]CPUInfo, 0, len(online))
	for _, id := range online {
		info, err := readCPUInfo(root, id)
		if err != nil {
			if errors.Is(err, os.ErrPermission) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrTopologyUnavailable, err)
		}
		infos = append(infos, *info)
	}

	cores := groupCores(infos)
	packages := make(map[int]struct{})
	for _, c := range cores {
		packages[c.PackageID] = struct{}{}
	}

	return &CPUTopology{
		TotalCPUs:    len(online),
		TotalCores:   len(cores),
		Packages:     len(packages),
		HasSMT:       len(online) > len(cores),
		Online:       online,
		Offline:      difference(present, online),
		Cores:        cores,
		DetectMethod: "sysfs",
	}, nil
}

func detectCounts() (*CPUTopology, error) {
	logical, err := cpuCounts(true)
	if err != nil {
		return nil, err
	}
	if logical < 1 {
		return nil, errors.New("no CPUs reported")
	}
	physical, err := cpuCounts(false)
	if err != nil || physical < 1 {
		physical = logical
	}

	online := make([]int, logical)
	for i := range online {
		online[i] = i
	}
	return &CPUTopology{
		TotalCPUs:    logical,
		TotalCores:   physical,
		Packages:     1,
		HasSMT:       logical > physical,
		Online:       online,
		DetectMethod: "gopsutil",
	}, nil
}

func readCPUInfo(root string, cpuID int) (*CPUInfo, error) {
	packageID, err := readOptionalInt(cpuPath(root, cpuID, "physical_package_id"), 0)
	if err != nil {
		return nil, err
	}
	coreID, err := readOptionalInt(cpuPath(root, cpuID, "core_id"), cpuID)
	if err != nil {
		return nil, err
	}
	siblings, err := readOptionalList(cpuPath(root, cpuID, "thread_siblings_list"), []int{cpuID})
	if err != nil {
		return nil, err
	}

	return &CPUInfo{
		ID:             cpuID,
		PackageID:      packageID,
		CoreID:         coreID,
		ThreadSiblings: siblings,
	}, nil
}

func groupCores(infos []CPUInfo) []Core {
	type key struct {
		pkgID  int
		coreID int
	}
	byKey := make(map[key]*Core)
	for _, info := range infos {
		k := key{pkgID: info.PackageID, coreID: info.CoreID}
		c, ok := byKey[k]
		if !ok {
			c = &Core{PackageID: info.PackageID, CoreID: info.CoreID}
			byKey[k] = c
		}
		c.Threads = append(c.Threads, info.ID)
	}

	cores := make([]Core, 0, len(byKey))
	for _, c := range byKey {
		sort.Ints(c.Threads)
		cores = append(cores, *c)
	}
	sort.Slice(cores, func(i, j int) bool {
		return cores[i].Threads[0] < cores[j].Threads[0]
	})
	return cores
}

func difference(all, subset []int) []int {
	in := make(map[int]struct{}, len(subset))
	for _, v := range subset {
		in[v] = struct{}{}
	}
	var out []int
	for _, v := range all {
		if _, ok := in[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
