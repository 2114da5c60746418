package apply

import (
	"fmt"
	"strings"

	"procaffinity/internal/affinity"
	"procaffinity/internal/process"
)

type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeDryRun        Outcome = "dry-run"
	OutcomeAccessDenied  Outcome = "access-denied"
	OutcomeNoSuchProcess Outcome = "no-such-process"
	OutcomeFailed        Outcome = "failed"
)

type Result struct {
	Process process.Process `json:"process"`
	CPUs    []int           `json:"cpus"`
	Outcome Outcome         `json:"outcome"`
	Err     error           `json:"-"`
}

func (r Result) OK() bool {
	return r.Outcome == OutcomeApplied || r.Outcome == OutcomeDryRun
}

// Message is the one-line status for a single result.
func (r Result) Message() string {
	pid := r.Process.PID
	switch r.Outcome {
	case OutcomeApplied:
		return fmt.Sprintf("Affinity set for PID %d.", pid)
	case OutcomeDryRun:
		return fmt.Sprintf("Would set PID %d to CPUs %s.", pid, affinity.FormatCPUs(r.CPUs))
	case OutcomeAccessDenied:
		return fmt.Sprintf("Access denied to process %d. Run as root.", pid)
	case OutcomeNoSuchProcess:
		return fmt.Sprintf("Process %d no longer exists.", pid)
	}
	return fmt.Sprintf("An error occurred: %v", r.Err)
}

type Report struct {
	Policy    affinity.Policy `json:"-"`
	CoreCount int             `json:"core_count"`
	DryRun    bool            `json:"dry_run"`
	Attempted int             `json:"attempted"`
	Results   []Result        `json:"results"`
}

func (r *Report) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// NeedsRefresh reports whether any target exited after enumeration.
func (r *Report) NeedsRefresh() bool {
	return r.Count(OutcomeNoSuchProcess) > 0
}

func (r *Report) Status() string {
	status := r.Policy.Summary(r.Attempted)
	if r.DryRun {
		status = "Dry run: " + status
	}
	failed := r.Failed()
	if failed == 0 {
		return status
	}

	var parts []string
	if n := r.Count(OutcomeAccessDenied); n > 0 {
		parts = append(parts, fmt.Sprintf("%d access denied", n))
	}
	if n := r.Count(OutcomeNoSuchProcess); n > 0 {
		parts = append(parts, fmt.Sprintf("%d exited", n))
	}
	if n := r.Count(OutcomeFailed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d other", n))
	}
	return fmt.Sprintf("%s %d failed: %s.", status, failed, strings.Join(parts, ", "))
}
