package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"procaffinity/internal/affinity"
	"procaffinity/internal/apply"
	"procaffinity/internal/config"
	"procaffinity/internal/topology"
	"procaffinity/internal/ui"
)

func newListCommand(opts *Options, cfg *config.Config) *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "List matching processes and their current affinity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := cfg.Process
			sys := newSystem()
			procs, err := sys.Enumerate(name)
			if err != nil {
				return err
			}

			entries := make([]ui.ProcessAffinity, 0, len(procs))
			for _, p := range procs {
				entry := ui.ProcessAffinity{Process: p}
				cpus, err := sys.Affinity(p.PID)
				if err != nil {
					entry.Error = err.Error()
				} else {
					entry.CPUs = cpus
				}
				entries = append(entries, entry)
			}

			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			ui.PrintProcesses(cmd.OutOrStdout(), name, entries)
			return nil
		},
	}
	c.Flags().BoolVar(&opts.JSON, "json", false, "Output in JSON format")
	return c
}

func newShowCommand(opts *Options) *cobra.Command {
	c := &cobra.Command{
		Use:   "show",
		Short: "Show the current affinity of one process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePID(opts.PID); err != nil {
				return err
			}
			sys := newSystem()
			proc, err := sys.Lookup(opts.PID)
			if err != nil {
				return err
			}
			cpus, err := sys.Affinity(proc.PID)
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), ui.ProcessAffinity{Process: proc, CPUs: cpus})
			}
			ui.PrintAffinity(cmd.OutOrStdout(), proc, cpus)
			return nil
		},
	}
	c.Flags().IntVarP(&opts.PID, "pid", "p", 0, "Target process ID")
	c.Flags().BoolVar(&opts.JSON, "json", false, "Output in JSON format")
	return c
}

func newSetCommand(opts *Options, cfg *config.Config) *cobra.Command {
	c := &cobra.Command{
		Use:     "set",
		Short:   "Set the affinity of one process",
		Example: "  procaffinity set --pid 4242 --cpus 0-3,6",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePID(opts.PID); err != nil {
				return err
			}
			cpus, err := affinity.ParseCPUs(opts.CPUs)
			if err != nil {
				return fmt.Errorf("%w: --cpus: %w", ErrInvalidArguments, err)
			}

			sys := newSystem()
			proc, err := sys.Lookup(opts.PID)
			if err != nil {
				return err
			}
			res := newRunner(sys, *cfg).Set(proc, cpus)
			ui.PrintResult(cmd.OutOrStdout(), res)
			if !res.OK() {
				return res.Err
			}
			return nil
		},
	}
	c.Flags().IntVarP(&opts.PID, "pid", "p", 0, "Target process ID")
	c.Flags().StringVarP(&opts.CPUs, "cpus", "c", "", "CPU list, e.g. 0-3,6")
	return c
}

func newAutoCommand(opts *Options, cfg *config.Config) *cobra.Command {
	c := &cobra.Command{
		Use:   "auto",
		Short: "Distribute all matching processes over the cores with a policy",
		Long: "Every matching process gets a core set from the chosen policy. A process that\n" +
			"cannot be changed is reported and the remaining processes are still handled.",
		Example: "  procaffinity auto --policy core-group-skip-cpu0 --group-size 2",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Policy == "" {
				return fmt.Errorf("%w: --policy is required (valid: %s)", ErrInvalidArguments, policyList())
			}
			policy, err := affinity.ParsePolicy(opts.Policy, cfg.GroupSize)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
			}

			report, err := newRunner(newSystem(), *cfg).Auto(cfg.Process, policy)
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), struct {
					Policy string `json:"policy"`
					Status string `json:"status"`
					*apply.Report
				}{policy.Name(), report.Status(), report})
			}
			ui.PrintReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	c.Flags().StringVar(&opts.Policy, "policy", "", "Policy: "+policyList())
	c.Flags().BoolVar(&opts.JSON, "json", false, "Output in JSON format")
	return c
}

func newPoliciesCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List the allocation policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ui.PrintPolicies(cmd.OutOrStdout(), cfg.GroupSize)
			return nil
		},
	}
}

func newTopologyCommand(opts *Options) *cobra.Command {
	c := &cobra.Command{
		Use:   "topology",
		Short: "Show the CPU topology of this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			topo, err := detectTopology()
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), topo)
			}
			ui.PrintTopology(cmd.OutOrStdout(), topo)
			return nil
		},
	}
	c.Flags().BoolVar(&opts.JSON, "json", false, "Output in JSON format")
	return c
}

// detectTopology is replaced in tests.
var detectTopology = topology.Detect

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func policyList() string {
	return strings.Join(affinity.PolicyNames(), ", ")
}
