package main

import (
	"errors"
	"os"

	"procaffinity/cmd"
	"procaffinity/internal/affinity"
	"procaffinity/internal/config"
	"procaffinity/internal/process"
	"procaffinity/internal/topology"
	"procaffinity/internal/ui"
)

func main() {
	if err := cmd.Execute(); err != nil {
		exitWithError(err)
	}
}

func exitWithError(err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, cmd.ErrInvalidArguments), errors.Is(err, config.ErrInvalidConfig):
		ui.PrintError(err)
		os.Exit(2)
	case errors.Is(err, affinity.ErrInsufficientResources):
		ui.PrintError(errors.New("Insufficient CPU cores available."))
		os.Exit(3)
	case errors.Is(err, topology.ErrTopologyUnavailable):
		ui.PrintError(errors.New("Cannot read CPU topology. Are you running on a Linux system?"))
		os.Exit(3)
	case errors.Is(err, affinity.ErrNoTargetProcesses), errors.Is(err, process.ErrNoSuchProcess):
		ui.PrintError(err)
		os.Exit(4)
	case errors.Is(err, process.ErrAccessDenied) || errors.Is(err, os.ErrPermission):
		ui.PrintError(errors.New("Permission denied. Try running with sudo."))
		os.Exit(5)
	default:
		ui.PrintError(err)
		os.Exit(1)
	}
}
