package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procaffinity/internal/affinity"
	"procaffinity/internal/process"
	"procaffinity/internal/topology"
)

type fakeSystem struct {
	procs    []process.Process
	cores    int
	online   []int
	affinity map[int][]int
	failures map[int]error
	sets     map[int][]int
}

func newFakeSystem(cores int, pids ...int) *fakeSystem {
	s := &fakeSystem{
		cores:    cores,
		affinity: make(map[int][]int),
		failures: make(map[int]error),
		sets:     make(map[int][]int),
	}
	for _, pid := range pids {
		s.procs = append(s.procs, process.Process{PID: pid, Name: "so2game.exe"})
		s.affinity[pid] = []int{0, 1}
	}
	return s
}

func (s *fakeSystem) Enumerate(name string) ([]process.Process, error) {
	var out []process.Process
	for _, p := range s.procs {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeSystem) Lookup(pid int) (process.Process, error) {
	for _, p := range s.procs {
		if p.PID == pid {
			return p, nil
		}
	}
	return process.Process{}, fmt.Errorf("%w: PID %d", process.ErrNoSuchProcess, pid)
}

func (s *fakeSystem) Affinity(pid int) ([]int, error) {
	if err := s.failures[pid]; err != nil {
		return nil, err
	}
	return s.affinity[pid], nil
}

func (s *fakeSystem) SetAffinity(pid int, cpus []int) error {
	if err := s.failures[pid]; err != nil {
		return err
	}
	s.sets[pid] = cpus
	return nil
}

func (s *fakeSystem) CPUCount() (int, error) {
	return s.cores, nil
}

func (s *fakeSystem) OnlineCPUs() ([]int, error) {
	if s.online != nil {
		return s.online, nil
	}
	cpus := make([]int, s.cores)
	for i := range cpus {
		cpus[i] = i
	}
	return cpus, nil
}

func useSystem(t *testing.T, sys *fakeSystem) {
	t.Helper()
	orig := newSystem
	newSystem = func() System { return sys }
	t.Cleanup(func() { newSystem = orig })
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAuto_AppliesPolicy(t *testing.T) {
	sys := newFakeSystem(5, 10, 11, 12)
	useSystem(t, sys)

	out, err := run(t, "auto", "--policy", "core-group-skip-cpu0", "--json")
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, sys.sets[10])
	assert.Equal(t, []int{3, 4}, sys.sets[11])
	assert.Equal(t, []int{1, 2}, sys.sets[12])

	var decoded struct {
		Policy    string `json:"policy"`
		Status    string `json:"status"`
		Attempted int    `json:"attempted"`
		Results   []struct {
			Outcome string `json:"outcome"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "core-group-skip-cpu0", decoded.Policy)
	assert.Equal(t, 3, decoded.Attempted)
	assert.Equal(t, "Affinity set for 3 processes, excluding CPU 0.", decoded.Status)
	assert.Len(t, decoded.Results, 3)
}

func TestAuto_GroupSizeAndName(t *testing.T) {
	sys := newFakeSystem(8)
	sys.procs = []process.Process{{PID: 7, Name: "worker"}, {PID: 8, Name: "worker"}}
	useSystem(t, sys)

	_, err := run(t, "auto", "--name", "worker", "--policy", "core-group", "--group-size", "3")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, sys.sets[7])
	assert.Equal(t, []int{3, 4, 5}, sys.sets[8])
}

func TestAuto_DryRun(t *testing.T) {
	sys := newFakeSystem(4, 10)
	useSystem(t, sys)

	out, err := run(t, "auto", "--policy", "single-core", "--dry-run")
	require.NoError(t, err)
	assert.Empty(t, sys.sets)
	assert.Contains(t, out, "Dry run")
}

func TestAuto_Errors(t *testing.T) {
	tests := []struct {
		name string
		sys  *fakeSystem
		args []string
		want error
	}{
		{"missing policy", newFakeSystem(4, 1), []string{"auto"}, ErrInvalidArguments},
		{"unknown policy", newFakeSystem(4, 1), []string{"auto", "--policy", "spread"}, affinity.ErrInvalidPolicy},
		{"bad group size", newFakeSystem(4, 1), []string{"auto", "--policy", "core-group", "--group-size", "0"}, ErrInvalidArguments},
		{"no targets", newFakeSystem(4), []string{"auto", "--policy", "single-core"}, affinity.ErrNoTargetProcesses},
		{"too few cores", newFakeSystem(2, 1), []string{"auto", "--policy", "single-core-skip-cpu01"}, affinity.ErrInsufficientResources},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useSystem(t, tt.sys)
			_, err := run(t, tt.args...)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, tt.sys.sets)
		})
	}
}

func TestAuto_PartialFailureIsReported(t *testing.T) {
	sys := newFakeSystem(4, 10, 11)
	sys.failures[10] = fmt.Errorf("%w: PID 10", process.ErrAccessDenied)
	useSystem(t, sys)

	out, err := run(t, "auto", "--policy", "single-core")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, sys.sets[11])
	assert.Contains(t, out, "Access denied to process 10")
}

func TestSet(t *testing.T) {
	sys := newFakeSystem(8, 42)
	useSystem(t, sys)

	out, err := run(t, "set", "--pid", "42", "--cpus", "2-3,6")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 6}, sys.sets[42])
	assert.Contains(t, out, "Affinity set for PID 42.")
}

func TestSet_Errors(t *testing.T) {
	sys := newFakeSystem(4, 42)
	useSystem(t, sys)

	_, err := run(t, "set", "--cpus", "1")
	assert.ErrorIs(t, err, ErrInvalidArguments)

	_, err = run(t, "set", "--pid", "42", "--cpus", "x")
	assert.ErrorIs(t, err, ErrInvalidArguments)
	assert.ErrorIs(t, err, affinity.ErrInvalidCPUList)

	_, err = run(t, "set", "--pid", "42", "--cpus", "9")
	assert.ErrorIs(t, err, affinity.ErrInvalidCPUList)

	_, err = run(t, "set", "--pid", "77", "--cpus", "1")
	assert.ErrorIs(t, err, process.ErrNoSuchProcess)

	assert.Empty(t, sys.sets)
}

func TestSet_OnlineCPUsWithGaps(t *testing.T) {
	sys := newFakeSystem(3, 42)
	sys.online = []int{0, 2, 3}
	useSystem(t, sys)

	_, err := run(t, "set", "--pid", "42", "--cpus", "3")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, sys.sets[42])

	_, err = run(t, "set", "--pid", "42", "--cpus", "1")
	assert.ErrorIs(t, err, affinity.ErrInvalidCPUList)
}

func TestSet_HugeRangeIsRejected(t *testing.T) {
	sys := newFakeSystem(4, 42)
	useSystem(t, sys)

	_, err := run(t, "set", "--pid", "42", "--cpus", "0-2147483647")
	assert.ErrorIs(t, err, ErrInvalidArguments)
	assert.ErrorIs(t, err, affinity.ErrInvalidCPUList)
	assert.Empty(t, sys.sets)
}

func TestLogFileClosedWhenCommandFails(t *testing.T) {
	sys := newFakeSystem(4)
	useSystem(t, sys)
	path := filepath.Join(t.TempDir(), "procaffinity.log")

	_, err := run(t, "--log-file", path, "--log-level", "debug", "auto", "--policy", "single-core")
	require.ErrorIs(t, err, affinity.ErrNoTargetProcesses)
	assert.Nil(t, logFile)
	assert.FileExists(t, path)

	_, err = run(t, "--log-file", path, "set", "--pid", "42", "--cpus", "1")
	require.ErrorIs(t, err, process.ErrNoSuchProcess)
	assert.Nil(t, logFile)
}

func TestShowAndList(t *testing.T) {
	sys := newFakeSystem(4, 10, 11)
	sys.failures[11] = fmt.Errorf("%w: PID 11", process.ErrAccessDenied)
	useSystem(t, sys)

	out, err := run(t, "show", "--pid", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "so2game.exe (PID: 10)")
	assert.Contains(t, out, "0-1")

	out, err = run(t, "list", "--json")
	require.NoError(t, err)
	var entries []struct {
		Process process.Process `json:"process"`
		CPUs    []int           `json:"cpus"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, []int{0, 1}, entries[0].CPUs)
	assert.Contains(t, entries[1].Error, "access denied")

	_, err = run(t, "show")
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestConfigFileDefaults(t *testing.T) {
	sys := newFakeSystem(6)
	sys.procs = []process.Process{{PID: 5, Name: "render"}, {PID: 6, Name: "render"}}
	useSystem(t, sys)

	path := filepath.Join(t.TempDir(), "procaffinity.yaml")
	require.NoError(t, os.WriteFile(path, []byte("process: render\ngroup_size: 3\n"), 0o644))

	_, err := run(t, "--config", path, "auto", "--policy", "core-group")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, sys.sets[5])
	assert.Equal(t, []int{3, 4, 5}, sys.sets[6])

	// flags win over the file
	_, err = run(t, "--config", path, "auto", "--policy", "core-group", "--group-size", "1")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, sys.sets[6])
}

func TestTopology(t *testing.T) {
	orig := detectTopology
	detectTopology = func() (*topology.CPUTopology, error) {
		return &topology.CPUTopology{TotalCPUs: 4, TotalCores: 2, Packages: 1, HasSMT: true, Online: []int{0, 1, 2, 3}, DetectMethod: "sysfs"}, nil
	}
	t.Cleanup(func() { detectTopology = orig })

	out, err := run(t, "topology", "--json")
	require.NoError(t, err)
	var topo topology.CPUTopology
	require.NoError(t, json.Unmarshal([]byte(out), &topo))
	assert.Equal(t, 4, topo.TotalCPUs)
	assert.True(t, topo.HasSMT)
}

func TestPolicies(t *testing.T) {
	out, err := run(t, "policies", "--group-size", "4")
	require.NoError(t, err)
	for _, name := range affinity.PolicyNames() {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "Groups of 4")
}
