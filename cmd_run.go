package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wildstyl3r/sensorprop/internal/config"
	"github.com/wildstyl3r/sensorprop/internal/events"
	"github.com/wildstyl3r/sensorprop/internal/model"
	"github.com/wildstyl3r/sensorprop/internal/output"
	"github.com/wildstyl3r/sensorprop/internal/store"
	"github.com/wildstyl3r/sensorprop/internal/utils"
)

const (
	chargesFile = "charges.csv"
	summaryFile = "summary.csv"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Propagate the deposits of every event",
		Long: `Propagate reads the deposits file, projects every deposit of every
configured detector onto its readout surface and writes the propagated
charges, the per detector loss summary and, where requested, histograms.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("deposits") {
				cfg.Deposits, _ = cmd.Flags().GetString("deposits")
			}
			if cmd.Flags().Changed("threads") {
				cfg.Threads, _ = cmd.Flags().GetInt("threads")
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed, _ = cmd.Flags().GetUint64("seed")
			}
			if cfg.Deposits == "" {
				return errors.New("no deposits file given")
			}
			cfg.Deposits = utils.ResolvePath(cfg.Path(), cfg.Deposits)

			writeCharges, _ := cmd.Flags().GetBool("charges")
			writeSummary, _ := cmd.Flags().GetBool("summary")
			dbPath, _ := cmd.Flags().GetString("db")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, cfg, runOptions{
				charges: writeCharges,
				summary: writeSummary,
				db:      dbPath,
			})
		},
	}

	cmd.Flags().String("deposits", "", "deposits file in csv format (overrides Deposits)")
	cmd.Flags().Int("threads", 0, "number of workers (overrides Threads)")
	cmd.Flags().Uint64("seed", 0, "random seed (overrides Seed)")
	cmd.Flags().String("db", "", "also store the results in this sqlite database")
	cmd.Flags().Bool("charges", true, "write "+chargesFile)
	cmd.Flags().Bool("summary", true, "write "+summaryFile)
	return cmd
}

type runOptions struct {
	charges bool
	summary bool
	db      string
}

func run(ctx context.Context, cmd *cobra.Command, cfg config.Config, opts runOptions) error {
	out := cmd.OutOrStdout()
	startTime := time.Now()
	fmt.Fprintf(out, "Current time: %s\n", startTime.UTC().Format(time.UnixDate))

	s, err := newSession(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	rows, err := events.Load(cfg.Deposits)
	if err != nil {
		return err
	}
	evs, unknown, err := events.Group(rows, s.detectors(), cfg.InputUnits)
	if err != nil {
		return fmt.Errorf("%s: %w", cfg.Deposits, err)
	}
	for name, count := range unknown {
		s.logger.Warn("deposits of unknown detector ignored", "detector", name, "rows", count)
	}
	s.logger.Info("deposits loaded", "rows", len(rows), "events", len(evs), "threads", cfg.Threads, "seed", cfg.Seed)

	if err := os.MkdirAll(cfg.OutputDir, 0750); err != nil {
		return fmt.Errorf("creating %s: %w", cfg.OutputDir, err)
	}

	var charges *output.ChargeWriter
	if opts.charges {
		charges, err = output.NewChargeWriter(cfg.OutputDir, chargesFile)
		if err != nil {
			return err
		}
		defer charges.Close()
	}

	// the store outlives an interrupt so that the completed events are kept
	storeCtx := context.WithoutCancel(ctx)
	var db *store.Store
	var runID int64
	if opts.db != "" {
		db, err = store.Open(storeCtx, opts.db)
		if err != nil {
			return err
		}
		defer db.Close()
		runID, err = db.BeginRun(storeCtx, cfg.Path(), cfg.Seed, cfg.Threads)
		if err != nil {
			return err
		}
	}

	var plots *output.Plots
	if s.plotsRequested() {
		plots = output.NewPlots()
	}

	tallies := make(map[string]model.Tally, len(s.order))
	for _, name := range s.order {
		tallies[name] = model.Tally{}
	}
	processed, failed := 0, 0

	emit := func(result eventResult) error {
		processed++
		failed += result.failed
		for name, tally := range result.tallies {
			total := tallies[name]
			total.Add(tally)
			tallies[name] = total
		}
		if plots != nil {
			for _, name := range s.order {
				plots.Add(name, result.samples[name])
			}
		}
		if charges != nil {
			if err := charges.Write(result.records); err != nil {
				return err
			}
		}
		if db != nil {
			if err := db.SaveCharges(storeCtx, runID, result.records); err != nil {
				return err
			}
		}
		return nil
	}

	fmt.Fprintf(out, "\rDone:[0/%d]", len(evs))
	dataflow := s.propagateEvents(ctx, evs, cfg.Threads)
	err = collect(dataflow, emit, func(done int) {
		fmt.Fprintf(out, "\rDone:[%d/%d]", done, len(evs))
	})
	fmt.Fprintln(out)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		s.logger.Warn("interrupted", "processed", processed, "events", len(evs))
	}
	if failed > 0 {
		s.logger.Warn("some detector events were aborted", "count", failed)
	}
	for _, name := range s.order {
		if t := tallies[name]; !t.Balanced() {
			s.logger.Error("charge not conserved", "detector", name, "tally", t)
		}
	}

	if opts.summary {
		if err := output.WriteSummary(cfg.OutputDir, summaryFile, tallies); err != nil {
			return err
		}
	}
	if plots != nil {
		if err := plots.Save(cfg.OutputDir, cfg.OutputUnits); err != nil {
			return err
		}
	}
	if db != nil {
		if err := db.SaveTallies(storeCtx, runID, tallies); err != nil {
			return err
		}
		if err := db.FinishRun(storeCtx, runID, processed); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Elapsed time: %v\n", time.Since(startTime))
	return nil
}
