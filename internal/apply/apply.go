package apply

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"procaffinity/internal/affinity"
	"procaffinity/internal/process"
)

// Setter changes the core set of one process.
type Setter interface {
	SetAffinity(pid int, cpus []int) error
}

// Host is everything a Runner needs from the machine.
type Host interface {
	Setter
	Enumerate(name string) ([]process.Process, error)
	CPUCount() (int, error)
	OnlineCPUs() ([]int, error)
}

type Runner struct {
	host   Host
	dryRun bool
	log    *logrus.Entry
}

type Option func(*Runner)

func WithDryRun(dryRun bool) Option {
	return func(r *Runner) { r.dryRun = dryRun }
}

func WithLogger(log *logrus.Entry) Option {
	return func(r *Runner) { r.log = log }
}

func NewRunner(host Host, opts ...Option) *Runner {
	r := &Runner{
		host: host,
		log:  logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CoreCount reads the host core count at call time. A missing count is
// reported as affinity.ErrInsufficientResources.
func (r *Runner) CoreCount() (int, error) {
	n, err := r.host.CPUCount()
	if err != nil {
		return 0, fmt.Errorf("%w: could not determine CPU count: %v", affinity.ErrInsufficientResources, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: could not determine CPU count", affinity.ErrInsufficientResources)
	}
	return n, nil
}

// Auto enumerates the live processes named name and applies policy to them.
func (r *Runner) Auto(name string, policy affinity.Policy) (*Report, error) {
	coreCount, err := r.CoreCount()
	if err != nil {
		return nil, err
	}
	procs, err := r.host.Enumerate(name)
	if err != nil {
		return nil, err
	}
	report, err := r.Run(procs, coreCount, policy)
	if errors.Is(err, affinity.ErrNoTargetProcesses) {
		return nil, fmt.Errorf("%w: no processes found with name '%s'", affinity.ErrNoTargetProcesses, name)
	}
	return report, err
}

// Run applies policy to procs in order. Allocation errors are returned before
// any process is touched; per-process failures are recorded in the report and
// never stop the batch.
func (r *Runner) Run(procs []process.Process, coreCount int, policy affinity.Policy) (*Report, error) {
	assignments, err := affinity.Allocate(coreCount, len(procs), policy)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Policy:    policy,
		CoreCount: coreCount,
		DryRun:    r.dryRun,
		Attempted: len(procs),
		Results:   make([]Result, 0, len(procs)),
	}
	for _, a := range assignments {
		report.Results = append(report.Results, r.apply(procs[a.Index], a.CPUs))
	}

	r.log.WithFields(logrus.Fields{
		"policy":    policy.Name(),
		"attempted": report.Attempted,
		"failed":    report.Failed(),
	}).Info("policy applied")
	return report, nil
}

// Set applies a manually chosen core set to one process.
func (r *Runner) Set(proc process.Process, cpus []int) Result {
	if len(cpus) == 0 {
		return r.record(Result{Process: proc, Outcome: OutcomeFailed, Err: process.ErrEmptyCoreSet})
	}
	online, err := r.host.OnlineCPUs()
	if err != nil || len(online) == 0 {
		err = fmt.Errorf("%w: could not determine online CPUs: %v", affinity.ErrInsufficientResources, err)
		return r.record(Result{Process: proc, CPUs: cpus, Outcome: OutcomeFailed, Err: err})
	}
	usable := make(map[int]struct{}, len(online))
	for _, cpu := range online {
		usable[cpu] = struct{}{}
	}
	for _, cpu := range cpus {
		if _, ok := usable[cpu]; !ok {
			err := fmt.Errorf("%w: CPU %d is not online (online: %s)", affinity.ErrInvalidCPUList, cpu, affinity.FormatCPUs(online))
			return r.record(Result{Process: proc, CPUs: cpus, Outcome: OutcomeFailed, Err: err})
		}
	}
	return r.apply(proc, cpus)
}

func (r *Runner) apply(proc process.Process, cpus []int) Result {
	res := Result{Process: proc, CPUs: cpus}
	if r.dryRun {
		res.Outcome = OutcomeDryRun
		return r.record(res)
	}

	err := r.host.SetAffinity(proc.PID, cpus)
	res.Err = err
	switch {
	case err == nil:
		res.Outcome = OutcomeApplied
	case errors.Is(err, process.ErrAccessDenied):
		res.Outcome = OutcomeAccessDenied
	case errors.Is(err, process.ErrNoSuchProcess):
		res.Outcome = OutcomeNoSuchProcess
	default:
		res.Outcome = OutcomeFailed
	}
	return r.record(res)
}

func (r *Runner) record(res Result) Result {
	entry := r.log.WithFields(logrus.Fields{
		"pid":     res.Process.PID,
		"cpus":    affinity.FormatCPUs(res.CPUs),
		"outcome": res.Outcome,
	})
	switch res.Outcome {
	case OutcomeApplied, OutcomeDryRun:
		entry.Info("affinity set")
	case OutcomeAccessDenied:
		entry.Warn("access denied, run as root")
	case OutcomeNoSuchProcess:
		entry.Warn("process no longer exists")
	default:
		entry.WithError(res.Err).Error("failed to set affinity")
	}
	return res
}
