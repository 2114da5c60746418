package affinity

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var ErrInvalidCPUList = errors.New("invalid CPU list")

// MaxCPUs is the size of the kernel affinity mask (CPU_SETSIZE). No CPU index
// at or above it can be named in a core set.
const MaxCPUs = 1024

// FormatCPUs renders cores in the compact range form used by taskset and
// sysfs, e.g. "0-3,6".
func FormatCPUs(cpus []int) string {
	if len(cpus) == 0 {
		return ""
	}
	sorted := make([]int, len(cpus))
	copy(sorted, cpus)
	sort.Ints(sorted)
	sorted = dedupeSorted(sorted)

	parts := make([]string, 0, len(sorted))
	start := sorted[0]
	prev := sorted[0]
	for i := 1; i < len(sorted); i++ {
		current := sorted[i]
		if current == prev+1 {
			prev = current
			continue
		}
		parts = append(parts, formatRange(start, prev))
		start = current
		prev = current
	}
	parts = append(parts, formatRange(start, prev))

	return strings.Join(parts, ",")
}

// ParseCPUs is the inverse of FormatCPUs. The result is sorted and
// deduplicated.
func ParseCPUs(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidCPUList)
	}

	values := make([]int, 0)
	for _, part := range strings.Split(raw, ",") {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		if strings.Contains(item, "-") {
			bounds := strings.SplitN(item, "-", 2)
			start, err := parseCPU(bounds[0])
			if err != nil {
				return nil, err
			}
			end, err := parseCPU(bounds[1])
			if err != nil {
				return nil, err
			}
			if end < start {
				return nil, fmt.Errorf("%w: range %q ends before it starts", ErrInvalidCPUList, item)
			}
			for i := start; i <= end; i++ {
				values = append(values, i)
			}
			continue
		}
		cpu, err := parseCPU(item)
		if err != nil {
			return nil, err
		}
		values = append(values, cpu)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCPUList, raw)
	}

	sort.Ints(values)
	return dedupeSorted(values), nil
}

func parseCPU(s string) (int, error) {
	cpu, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || cpu < 0 {
		return 0, fmt.Errorf("%w: %q is not a CPU index", ErrInvalidCPUList, strings.TrimSpace(s))
	}
	if cpu >= MaxCPUs {
		return 0, fmt.Errorf("%w: CPU %d exceeds the affinity mask size %d", ErrInvalidCPUList, cpu, MaxCPUs)
	}
	return cpu, nil
}

func formatRange(start, end int) string {
	if start == end {
		return strconv.Itoa(start)
	}
	return strconv.Itoa(start) + "-" + strconv.Itoa(end)
}

func dedupeSorted(values []int) []int {
	if len(values) == 0 {
		return values
	}
	result := make([]int, 0, len(values))
	last := values[0] - 1
	for _, value := range values {
		if value == last {
			continue
		}
		result = append(result, value)
		last = value
	}
	return result
}
