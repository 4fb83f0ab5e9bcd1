package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/sensorprop/internal/config"
	"github.com/wildstyl3r/sensorprop/internal/detector"
	"github.com/wildstyl3r/sensorprop/internal/doping"
	"github.com/wildstyl3r/sensorprop/internal/field"
	"github.com/wildstyl3r/sensorprop/internal/logging"
)

var (
	ErrMagneticField     = errors.New("magnetic field is not supported by projection")
	ErrInvalidParameters = errors.New("invalid propagation parameters")
)

// boundaryOffset places relocated batches just inside the depleted region.
const boundaryOffset = 1e-9 // [m]

// Setup is everything a Propagator needs for one detector.
type Setup struct {
	Detector      *detector.Detector
	Parameters    config.DetectorParameters
	MagneticField r3.Vec // [T], global frame
	Logger        *slog.Logger
}

// Propagator projects deposits of one detector onto its readout surface. It
// is immutable after New and may be shared between goroutines.
type Propagator struct {
	detector *detector.Detector
	params   config.DetectorParameters
	carrier  CarrierType
	field    *field.Map
	lifetime *LifetimeModel
	mobility Mobility
	d0       float64 // low-field diffusion coefficient [m^2/s]
	logger   *slog.Logger
}

// Samples are per-batch quantities kept for histograms.
type Samples struct {
	DriftTime   []float64 // [s]
	Diffusion   []float64 // lateral offset [m]
	Lifetime    []float64 // [s]
	ArrivalTime []float64 // local [s]
}

type Result struct {
	Charges []PropagatedCharge
	Tally   Tally
	Samples *Samples
}

func New(setup Setup) (*Propagator, error) {
	p := setup.Parameters
	logger := setup.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("detector", p.Name())
	if setup.Detector == nil {
		return nil, fmt.Errorf("detector %s has no geometry: %w", p.Name(), ErrInvalidParameters)
	}
	if p.ChargePerStep <= 0 {
		return nil, fmt.Errorf("charge_per_step %d: %w", p.ChargePerStep, ErrInvalidParameters)
	}
	if !(p.Temperature > 0) {
		return nil, fmt.Errorf("temperature %g: %w", p.Temperature, ErrInvalidParameters)
	}
	if !(p.IntegrationTime > 0) {
		return nil, fmt.Errorf("integration_time %g: %w", p.IntegrationTime, ErrInvalidParameters)
	}
	if setup.MagneticField != (r3.Vec{}) {
		if !p.IgnoreMagneticField {
			return nil, fmt.Errorf("B = %v T: %w", setup.MagneticField, ErrMagneticField)
		}
		logger.Warn("ignoring magnetic field", "B", setup.MagneticField)
	}

	fieldMap, err := field.Build(p.ElectricField, setup.Detector.Thickness())
	if err != nil {
		return nil, fmt.Errorf("electric field: %w", err)
	}

	carrier := Electron
	if p.PropagateHoles {
		carrier = Hole
	}
	if err := checkPolarity(fieldMap, carrier); err != nil {
		return nil, err
	}

	prop := &Propagator{
		detector: setup.Detector,
		params:   p,
		carrier:  carrier,
		field:    fieldMap,
		mobility: NewMobility(carrier, p.Temperature),
		logger:   logger,
	}
	prop.d0 = DiffusionCoefficient(prop.mobility.Mu0, p.Temperature)

	switch profile, err := doping.Build(p.Doping, setup.Detector.Thickness()); {
	case err == nil:
		prop.lifetime = NewLifetimeModel(carrier, profile)
	case p.Doping.Model == "":
		logger.Debug("no doping profile, recombination disabled")
	case errors.Is(err, doping.ErrUnsupportedProfile):
		logger.Warn("doping profile is not constant, recombination disabled", "model", p.Doping.Model)
	default:
		return nil, fmt.Errorf("doping: %w", err)
	}

	logger.Info("propagator ready",
		"carrier", carrier,
		"mu0", prop.mobility.Mu0,
		"critical_field", prop.mobility.CriticalField,
		"depletion_edge", fieldMap.DepletionEdge(),
		"lifetime", prop.lifetime != nil,
	)
	return prop, nil
}

// checkPolarity requires the effective field to be non-negative everywhere
// and positive at the readout surface.
func checkPolarity(m *field.Map, carrier CarrierType) error {
	sign := carrier.Sign()
	for _, seg := range m.Segments() {
		eff := orient(seg, sign)
		if eff.At(seg.ZMin) < 0 || eff.At(seg.ZMax) < 0 {
			return fmt.Errorf("%s in [%g, %g]: %w", carrier, seg.ZMin, seg.ZMax, ErrAgainstField)
		}
	}
	if sign*m.At(m.Top()) <= 0 {
		return fmt.Errorf("%s at the readout surface: %w", carrier, ErrAgainstField)
	}
	return nil
}

func (p *Propagator) Carrier() CarrierType {
	return p.carrier
}

func (p *Propagator) Detector() *detector.Detector {
	return p.detector
}

func (p *Propagator) Field() *field.Map {
	return p.field
}

func (p *Propagator) Mobility() Mobility {
	return p.mobility
}

// LifetimeActive reports whether recombination is modelled.
func (p *Propagator) LifetimeActive() bool {
	return p.lifetime != nil
}

// Propagate projects deposits onto the readout surface drawing every random
// number from s. Deposits of the other carrier type are skipped.
func (p *Propagator) Propagate(deposits []Deposit, s *Stream) (Result, error) {
	var result Result
	if p.params.OutputPlots {
		result.Samples = &Samples{}
	}
	step := uint64(p.params.ChargePerStep)
	for i, deposit := range deposits {
		if deposit.Carrier != p.carrier {
			result.Tally.Skipped += deposit.Charge
			continue
		}
		result.Tally.Deposited += deposit.Charge
		for remaining := deposit.Charge; remaining > 0; {
			charge := min(remaining, step)
			remaining -= charge
			result.Tally.Batches++
			if err := p.propagateBatch(&result, i, deposit, charge, s); err != nil {
				return result, fmt.Errorf("deposit %d: %w", i, err)
			}
		}
	}
	return result, nil
}

func (p *Propagator) trace(msg string, args ...any) {
	if p.logger.Enabled(context.Background(), logging.LevelTrace) {
		p.logger.Log(context.Background(), logging.LevelTrace, msg, args...)
	}
}

func (p *Propagator) propagateBatch(result *Result, index int, deposit Deposit, charge uint64, s *Stream) error {
	position := deposit.Local
	offset := 0.0

	if _, depleted := p.field.Lookup(position.Z); !depleted || !p.detector.IsWithinSensor(position) {
		if !p.params.DiffuseDeposit || !p.detector.IsWithinSensor(position) {
			p.trace("undepleted", "deposit", index, "z", position.Z)
			result.Tally.Undepleted += charge
			return nil
		}
		position, offset = p.relocate(position, s)
		p.trace("relocated", "deposit", index, "z", position.Z, "time", offset)
	}

	drift, err := driftPath(p.field, position.Z, p.carrier, p.mobility)
	switch {
	case errors.Is(err, ErrVanishingField):
		p.trace("vanishing field", "deposit", index, "z", position.Z)
		result.Tally.MissedIntegration += charge
		return nil
	case err != nil:
		return err
	}

	arrival := deposit.LocalTime + offset + drift.time
	if arrival > p.params.IntegrationTime {
		p.trace("missed integration", "deposit", index, "arrival", arrival)
		result.Tally.MissedIntegration += charge
		return nil
	}

	mu := (p.mobility.At(drift.startField) + p.mobility.At(drift.endField)) / 2
	sigma := DiffusionSigma(mu, p.params.Temperature, drift.time)
	lateral := Diffuse2D(s, sigma)
	surface := r3.Vec{
		X: position.X + lateral.X,
		Y: position.Y + lateral.Y,
		Z: p.field.Top(),
	}

	tau := math.Inf(1)
	if p.lifetime != nil {
		tau = p.lifetime.At(position.Z)
		if !Survives(s, drift.time, tau) {
			p.trace("recombined", "deposit", index, "drift_time", drift.time, "lifetime", tau)
			result.Tally.Recombined += charge
			return nil
		}
	}

	if result.Samples != nil {
		result.Samples.DriftTime = append(result.Samples.DriftTime, drift.time)
		result.Samples.Diffusion = append(result.Samples.Diffusion, math.Hypot(lateral.X, lateral.Y))
		if !math.IsInf(tau, 1) {
			result.Samples.Lifetime = append(result.Samples.Lifetime, tau)
		}
		result.Samples.ArrivalTime = append(result.Samples.ArrivalTime, arrival)
	}

	result.Tally.Propagated += charge
	result.Charges = append(result.Charges, PropagatedCharge{
		Local:      surface,
		Global:     p.detector.ToGlobal(surface),
		Carrier:    p.carrier,
		Charge:     charge,
		LocalTime:  arrival,
		GlobalTime: deposit.GlobalTime + offset + drift.time,
		Deposit:    index,
	})
	return nil
}

// relocate diffuses a batch from the undepleted bulk for the integration
// time and moves it onto the depletion edge. The elapsed time is that of
// diffusing over the remaining distance to the edge, or over the initial
// one when the step already crossed it.
func (p *Propagator) relocate(position r3.Vec, s *Stream) (r3.Vec, float64) {
	sigma := math.Sqrt(2 * p.d0 * p.params.IntegrationTime)
	moved := r3.Add(position, Diffuse3D(s, sigma))
	edge := p.field.DepletionEdge()

	distance := math.Abs(edge - position.Z)
	if moved.Z < edge {
		distance = edge - moved.Z
	}
	moved.Z = math.Min(edge+boundaryOffset, p.field.Top())
	return moved, distance * distance / (2 * p.d0)
}
