package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/sensorprop/internal/config"
	"github.com/wildstyl3r/sensorprop/internal/detector"
	"github.com/wildstyl3r/sensorprop/internal/logging"
	"github.com/wildstyl3r/sensorprop/internal/model"
	"github.com/wildstyl3r/sensorprop/internal/utils"
)

// session is a loaded run configuration with every detector that could be
// set up.
type session struct {
	config      config.Config
	logger      *slog.Logger
	parameters  map[string]config.DetectorParameters
	propagators map[string]*model.Propagator
	order       []string // usable detectors, natural order
	failures    map[string]error
}

// loadConfig reads the configuration named by --input and applies the
// environment and the persistent flags on top of it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	input, _ := cmd.Flags().GetString("input")
	cfg, err := config.LoadConfig(input)
	if err != nil {
		return cfg, err
	}

	var runtimeEnv config.Runtime
	if err := config.ParseEnv(&runtimeEnv); err != nil {
		return cfg, err
	}
	runtimeEnv.Apply(&cfg)

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	return cfg, nil
}

func newSession(cfg config.Config, logOutput io.Writer) (*session, error) {
	s := &session{
		config:      cfg,
		logger:      logging.NewLogger(cfg.LogLevel, logOutput),
		parameters:  map[string]config.DetectorParameters{},
		propagators: map[string]*model.Propagator{},
		failures:    map[string]error{},
	}
	magneticField := r3.Vec{X: cfg.MagneticField[0], Y: cfg.MagneticField[1], Z: cfg.MagneticField[2]}

	for _, name := range cfg.DetectorNames() {
		prop, params, err := setupDetector(&cfg, name, magneticField, s.logger)
		if err != nil {
			s.logger.Error("detector skipped", "detector", name, "err", err)
			s.failures[name] = err
			continue
		}
		s.parameters[name] = params
		s.propagators[name] = prop
		s.order = append(s.order, name)
	}
	if len(s.order) == 0 {
		return s, fmt.Errorf("none of %d detectors could be set up", len(s.failures))
	}
	return s, nil
}

func setupDetector(cfg *config.Config, name string, magneticField r3.Vec, logger *slog.Logger) (*model.Propagator, config.DetectorParameters, error) {
	params, err := cfg.CheckAndUnify(name)
	if err != nil {
		return nil, params, err
	}
	geometry, err := detector.LoadModel(utils.ResolvePath(cfg.Path(), params.Model), params.LengthScale())
	if err != nil {
		return nil, params, err
	}

	prop, err := model.New(model.Setup{
		Detector:      detector.New(params, geometry),
		Parameters:    params,
		MagneticField: magneticField,
		Logger:        logger,
	})
	if err != nil {
		return nil, params, err
	}
	return prop, params, nil
}

// detectors maps the usable detector names to their geometry.
func (s *session) detectors() map[string]*detector.Detector {
	dets := make(map[string]*detector.Detector, len(s.propagators))
	for name, prop := range s.propagators {
		dets[name] = prop.Detector()
	}
	return dets
}

func (s *session) plotsRequested() bool {
	for _, params := range s.parameters {
		if params.OutputPlots {
			return true
		}
	}
	return false
}
