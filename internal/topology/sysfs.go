package topology

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"procaffinity/internal/affinity"
)

const SysfsBasePath = "/sys/devices/system/cpu"

func ReadIntFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return 0, errors.New("empty file")
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

// ReadListFile parses a sysfs CPU list such as "0-3,8-11". An empty file is
// an empty list.
func ReadListFile(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return []int{}, nil
	}
	return affinity.ParseCPUs(raw)
}

func ListCPUs(root string) ([]int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	cpus := make([]int, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		suffix := strings.TrimPrefix(entry.Name(), "cpu")
		if suffix == entry.Name() || suffix == "" {
			continue
		}
		id, err := strconv.Atoi(suffix)
		if err != nil || id < 0 {
			// cpufreq, cpuidle and friends
			continue
		}
		cpus = append(cpus, id)
	}

	sort.Ints(cpus)
	return cpus, nil
}

// OnlineCPUs reads <root>/online, falling back to every cpuN directory when
// the file is missing.
func OnlineCPUs(root string) ([]int, error) {
	online, err := ReadListFile(filepath.Join(root, "online"))
	if err == nil && len(online) > 0 {
		return online, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return ListCPUs(root)
}

func cpuPath(root string, cpuID int, element string) string {
	return filepath.Join(root, "cpu"+strconv.Itoa(cpuID), "topology", element)
}

func readOptionalInt(path string, defaultValue int) (int, error) {
	value, err := ReadIntFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultValue, nil
		}
		return 0, err
	}
	return value, nil
}

func readOptionalList(path string, defaultValue []int) ([]int, error) {
	values, err := ReadListFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			copyValue := make([]int, len(defaultValue))
			copy(copyValue, defaultValue)
			return copyValue, nil
		}
		return nil, err
	}
	if len(values) == 0 {
		return append([]int(nil), defaultValue...), nil
	}
	return values, nil
}
