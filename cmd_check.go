package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Set up every detector without propagating",
		Long: `Check resolves the configuration of every detector, loads its model
and builds its field and lifetime description. Detectors that cannot be
set up are reported with the reason; the command fails when none can.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := newSession(cfg, cmd.ErrOrStderr())
			report(cmd.OutOrStdout(), s, cfg.DetectorNames())
			return err
		},
	}
}

func report(w io.Writer, s *session, names []string) {
	for _, name := range names {
		if err, failed := s.failures[name]; failed {
			fmt.Fprintf(w, "%s: FAILED: %v\n", name, err)
			continue
		}
		prop := s.propagators[name]
		fieldMap := prop.Field()
		lifetime := "recombination on"
		if !prop.LifetimeActive() {
			lifetime = "recombination off"
		}
		fmt.Fprintf(w, "%s: ok: carrier %s, depleted from z = %g m to %g m, mu0 = %g m^2/Vs, %s\n",
			name, prop.Carrier(), fieldMap.DepletionEdge(), fieldMap.Top(), prop.Mobility().Mu0, lifetime)

		det := prop.Detector()
		geometry := det.Model()
		position := det.Position()
		surfaceVelocity := prop.Mobility().Velocity(prop.Carrier().Sign() * fieldMap.At(fieldMap.Top()))
		fmt.Fprintf(w, "  %dx%d pixels of %gx%g m at (%g, %g, %g) m, drift velocity at the readout surface %g m/s\n",
			geometry.NumberOfPixels[0], geometry.NumberOfPixels[1], geometry.PixelSize[0], geometry.PixelSize[1],
			position.X, position.Y, position.Z, surfaceVelocity)
	}
}
