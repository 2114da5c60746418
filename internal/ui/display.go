package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"procaffinity/internal/affinity"
	"procaffinity/internal/apply"
	"procaffinity/internal/process"
	"procaffinity/internal/topology"
)

// ProcessAffinity pairs a process with its current core set, or the reason
// it could not be read.
type ProcessAffinity struct {
	Process process.Process `json:"process"`
	CPUs    []int           `json:"cpus,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func PrintTopology(w io.Writer, topo *topology.CPUTopology) {
	if topo == nil {
		fmt.Fprintln(w, errorBoxStyle.Render("CPU topology unavailable"))
		return
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("CPU Topology"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  %s %d    %s %d    %s %d    %s %s    %s %s\n",
		vcpuStyle.Render("CPUs:"), topo.TotalCPUs,
		coreStyle.Render("Cores:"), topo.TotalCores,
		dimStyle.Render("Packages:"), topo.Packages,
		dimStyle.Render("SMT:"), formatBool(topo.HasSMT),
		dimStyle.Render("Method:"), highlightStyle.Render(topo.DetectMethod)))
	b.WriteString(fmt.Sprintf("  %s %s\n", dimStyle.Render("Online:"), vcpuStyle.Render(affinity.FormatCPUs(topo.Online))))
	if len(topo.Offline) > 0 {
		b.WriteString(fmt.Sprintf("  %s %s\n", dimStyle.Render("Offline:"), failStyle.Render(affinity.FormatCPUs(topo.Offline))))
	}

	if len(topo.Cores) > 0 {
		b.WriteString("\n")
		for i, core := range topo.Cores {
			prefix := "├─"
			if i == len(topo.Cores)-1 {
				prefix = "└─"
			}
			b.WriteString(fmt.Sprintf("  %s %s %s\n", prefix,
				dimStyle.Render(fmt.Sprintf("pkg %d core %-3d", core.PackageID, core.CoreID)),
				vcpuStyle.Render(affinity.FormatCPUs(core.Threads))))
		}
	}

	fmt.Fprintln(w, boxStyle.Render(b.String()))
}

func PrintProcesses(w io.Writer, name string, entries []ProcessAffinity) {
	fmt.Fprintln(w, subtitleStyle.Render(fmt.Sprintf("Processes named %q", name)))
	fmt.Fprintln(w)

	if len(entries) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  No processes found"))
		return
	}

	for i, e := range entries {
		cpus := vcpuStyle.Render(affinity.FormatCPUs(e.CPUs))
		if e.Error != "" {
			cpus = failStyle.Render(e.Error)
		}
		fmt.Fprintf(w, "  [%d] %-8d %-20s %s\n", i+1, e.Process.PID, e.Process.Name, cpus)
	}
	fmt.Fprintln(w)
}

func PrintAffinity(w io.Writer, proc process.Process, cpus []int) {
	content := fmt.Sprintf("%s\n\n  CPUs: %s", highlightStyle.Render(proc.DisplayName()), vcpuStyle.Render(affinity.FormatCPUs(cpus)))
	fmt.Fprintln(w, boxStyle.Render(content))
}

func PrintPolicies(w io.Writer, groupSize int) {
	fmt.Fprintln(w, subtitleStyle.Render("Allocation Policies"))
	fmt.Fprintln(w)
	for i, info := range affinity.Policies(groupSize) {
		fmt.Fprintf(w, "  [%d] %s\n", i+1, highlightStyle.Render(info.Name))
		fmt.Fprintf(w, "      %s\n", dimStyle.Render(info.Description))
	}
	fmt.Fprintln(w)
}

func PrintReport(w io.Writer, report *apply.Report) {
	var b strings.Builder
	for _, res := range report.Results {
		mark := coreStyle.Render("✓")
		if !res.OK() {
			mark = failStyle.Render("✗")
		}
		b.WriteString(fmt.Sprintf("  %s %-8d %-10s %s\n", mark, res.Process.PID,
			vcpuStyle.Render(affinity.FormatCPUs(res.CPUs)), dimStyle.Render(res.Message())))
	}
	b.WriteString("\n")
	b.WriteString(report.Status())

	style := successBoxStyle
	if report.Failed() > 0 {
		style = errorBoxStyle
	}
	fmt.Fprintln(w, style.Render(b.String()))
}

func PrintResult(w io.Writer, res apply.Result) {
	content := fmt.Sprintf("%s\n\n  %s\n  CPUs: %s", res.Message(), res.Process.DisplayName(), affinity.FormatCPUs(res.CPUs))
	if res.OK() {
		fmt.Fprintln(w, successBoxStyle.Render("✓ "+content))
		return
	}
	fmt.Fprintln(w, errorBoxStyle.Render("✗ "+content))
}

func PrintError(err error) {
	content := fmt.Sprintf("✗ Error: %v", err)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, errorBoxStyle.Render(content))
	fmt.Fprintln(os.Stderr)
}

func formatBool(b bool) string {
	if b {
		return coreStyle.Render("Yes")
	}
	return dimStyle.Render("No")
}
