package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sensorprop",
		Short: "Projection propagation of charge deposited in pixel sensors",
		Long: `sensorprop projects charge carriers deposited inside semiconductor sensors
onto their readout surface.

Drift time comes from a linear electric field, diffusion is a Gaussian
offset in the readout plane and recombination is a single survival draw
from the SRH and Auger lifetime.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("input", "i", "config", "run configuration in toml format")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: error, warn, info, debug, trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newCheckCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
