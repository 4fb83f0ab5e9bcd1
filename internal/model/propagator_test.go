package model

import (
	"bytes"
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/sensorprop/internal/config"
	"github.com/wildstyl3r/sensorprop/internal/detector"
	"github.com/wildstyl3r/sensorprop/internal/doping"
	"github.com/wildstyl3r/sensorprop/internal/field"
	"github.com/wildstyl3r/sensorprop/internal/logging"
)

const sensorThickness = 300e-6

func testSensor(position [3]float64) *detector.Detector {
	return detector.New(config.DetectorParameters{Position: position}, detector.Model{
		Type:            "hybrid",
		NumberOfPixels:  []int{64, 64},
		PixelSize:       []float64{55e-6, 55e-6},
		SensorThickness: sensorThickness,
	})
}

func testParameters() config.DetectorParameters {
	return config.DetectorParameters{
		Temperature:     293.15,
		ChargePerStep:   10,
		IntegrationTime: 25e-9,
		ElectricField:   config.ElectricField{Model: "constant", BiasVoltage: -100},
	}
}

func newTestPropagator(t *testing.T, p config.DetectorParameters) *Propagator {
	t.Helper()
	prop, err := New(Setup{Detector: testSensor([3]float64{}), Parameters: p})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return prop
}

func electrons(z float64, charge uint64) Deposit {
	return Deposit{Local: r3.Vec{Z: z}, Carrier: Electron, Charge: charge}
}

func TestPropagateBatches(t *testing.T) {
	prop := newTestPropagator(t, testParameters())
	res, err := prop.Propagate([]Deposit{electrons(0, 25)}, NewStream(1, 0))
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if res.Tally.Batches != 3 {
		t.Fatalf("Batches = %d, want 3", res.Tally.Batches)
	}
	want := []uint64{10, 10, 5}
	if len(res.Charges) != len(want) {
		t.Fatalf("got %d charges, want %d", len(res.Charges), len(want))
	}
	for i, c := range res.Charges {
		if c.Charge != want[i] {
			t.Errorf("batch %d charge = %d, want %d", i, c.Charge, want[i])
		}
		if c.Deposit != 0 || c.Carrier != Electron {
			t.Errorf("batch %d = %+v", i, c)
		}
		if c.Local.Z != sensorThickness/2 {
			t.Errorf("batch %d z = %g, want readout surface", i, c.Local.Z)
		}
	}
	if res.Tally.Propagated != 25 || !res.Tally.Balanced() {
		t.Fatalf("tally = %+v", res.Tally)
	}
	if res.Samples != nil {
		t.Fatal("samples recorded without output_plots")
	}
}

func TestPropagateDeterministic(t *testing.T) {
	p := testParameters()
	p.OutputPlots = true
	prop := newTestPropagator(t, p)
	deposits := []Deposit{electrons(-100e-6, 33), electrons(50e-6, 7), electrons(149e-6, 12)}

	a, err := prop.Propagate(deposits, NewStream(42, 7))
	if err != nil {
		t.Fatal(err)
	}
	b, err := prop.Propagate(deposits, NewStream(42, 7))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("equal seeds gave different results")
	}
	c, err := prop.Propagate(deposits, NewStream(42, 8))
	if err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(a.Charges, c.Charges) {
		t.Fatal("different events gave identical charges")
	}
	if len(a.Samples.DriftTime) != len(a.Charges) || len(a.Samples.ArrivalTime) != len(a.Charges) {
		t.Fatalf("samples = %d, charges = %d", len(a.Samples.DriftTime), len(a.Charges))
	}
}

func TestPropagateIntegrationBoundaryInclusive(t *testing.T) {
	probe := newTestPropagator(t, testParameters())
	z := -120e-6
	drift, err := driftPath(probe.Field(), z, Electron, probe.Mobility())
	if err != nil {
		t.Fatal(err)
	}

	p := testParameters()
	p.IntegrationTime = drift.time
	res, err := newTestPropagator(t, p).Propagate([]Deposit{electrons(z, 5)}, NewStream(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Tally.Propagated != 5 {
		t.Fatalf("arrival == integration_time dropped: %+v", res.Tally)
	}
	if res.Charges[0].LocalTime != p.IntegrationTime {
		t.Fatalf("LocalTime = %g, want %g", res.Charges[0].LocalTime, p.IntegrationTime)
	}

	p.IntegrationTime = math.Nextafter(drift.time, 0)
	res, err = newTestPropagator(t, p).Propagate([]Deposit{electrons(z, 5)}, NewStream(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Tally.MissedIntegration != 5 || len(res.Charges) != 0 {
		t.Fatalf("late arrival kept: %+v", res.Tally)
	}
}

func TestPropagateLocalTimeCountsTowardsWindow(t *testing.T) {
	prop := newTestPropagator(t, testParameters())
	d := electrons(0, 10)
	d.LocalTime = 24e-9
	res, err := prop.Propagate([]Deposit{d}, NewStream(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Tally.MissedIntegration != 10 {
		t.Fatalf("tally = %+v", res.Tally)
	}
}

func partiallyDepleted() config.DetectorParameters {
	p := testParameters()
	p.ElectricField = config.ElectricField{Model: "linear", BiasVoltage: -25, DepletionVoltage: -100}
	return p
}

func TestPropagateUndepletedDropped(t *testing.T) {
	prop := newTestPropagator(t, partiallyDepleted())
	res, err := prop.Propagate([]Deposit{electrons(-100e-6, 20)}, NewStream(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Charges) != 0 || res.Tally.Undepleted != 20 || !res.Tally.Balanced() {
		t.Fatalf("charges = %d, tally = %+v", len(res.Charges), res.Tally)
	}
}

func TestPropagateOutsideSensorIsUndepleted(t *testing.T) {
	p := testParameters()
	p.DiffuseDeposit = true
	prop := newTestPropagator(t, p)
	res, err := prop.Propagate([]Deposit{{Local: r3.Vec{X: 1, Z: 0}, Carrier: Electron, Charge: 3}}, NewStream(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Tally.Undepleted != 3 {
		t.Fatalf("tally = %+v", res.Tally)
	}
}

func TestRelocate(t *testing.T) {
	p := partiallyDepleted()
	p.DiffuseDeposit = true
	prop := newTestPropagator(t, p)
	edge := prop.Field().DepletionEdge()
	start := r3.Vec{X: 1e-6, Y: -2e-6, Z: -100e-6}
	sigma := math.Sqrt(2 * prop.d0 * p.IntegrationTime)

	s, replay := NewStream(9, 9), NewStream(9, 9)
	for range 100 {
		moved, elapsed := prop.relocate(start, s)
		step := Diffuse3D(replay, sigma)
		if moved.Z != edge+boundaryOffset {
			t.Fatalf("relocated z = %g, want %g", moved.Z, edge+boundaryOffset)
		}
		if moved.X != start.X+step.X || moved.Y != start.Y+step.Y {
			t.Fatalf("lateral position = %+v, want step %+v", moved, step)
		}
		distance := edge - start.Z
		if z := start.Z + step.Z; z < edge {
			distance = edge - z
		}
		if want := distance * distance / (2 * prop.d0); !relClose(elapsed, want, 1e-12) {
			t.Fatalf("elapsed = %g, want %g", elapsed, want)
		}
	}
}

func TestPropagateDiffuseDepositConserves(t *testing.T) {
	p := partiallyDepleted()
	p.DiffuseDeposit = true
	p.IntegrationTime = 2e-6
	prop := newTestPropagator(t, p)
	res, err := prop.Propagate([]Deposit{electrons(-10e-6, 40), electrons(-140e-6, 40)}, NewStream(5, 5))
	if err != nil {
		t.Fatal(err)
	}
	if res.Tally.Undepleted != 0 || !res.Tally.Balanced() {
		t.Fatalf("tally = %+v", res.Tally)
	}
	for _, c := range res.Charges {
		if c.LocalTime > p.IntegrationTime {
			t.Fatalf("charge after window: %+v", c)
		}
	}
}

func TestPropagateVanishingFieldMissed(t *testing.T) {
	p := testParameters()
	p.ElectricField = config.ElectricField{Model: "segments", Segments: []config.FieldSegment{
		{From: -150e-6, To: 150e-6, FieldFrom: 0, FieldTo: -1e5},
	}}
	prop := newTestPropagator(t, p)
	res, err := prop.Propagate([]Deposit{electrons(-150e-6, 4)}, NewStream(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Tally.MissedIntegration != 4 {
		t.Fatalf("tally = %+v", res.Tally)
	}
}

func TestPropagateSkipsOtherCarrier(t *testing.T) {
	prop := newTestPropagator(t, testParameters())
	deposits := []Deposit{
		{Local: r3.Vec{}, Carrier: Hole, Charge: 8},
		electrons(0, 2),
	}
	res, err := prop.Propagate(deposits, NewStream(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Tally.Skipped != 8 || res.Tally.Deposited != 2 || res.Tally.Propagated != 2 {
		t.Fatalf("tally = %+v", res.Tally)
	}
	if res.Charges[0].Deposit != 1 {
		t.Fatalf("Deposit index = %d, want 1", res.Charges[0].Deposit)
	}
}

func TestPropagateHoles(t *testing.T) {
	p := testParameters()
	p.PropagateHoles = true
	p.ElectricField.BiasVoltage = 100
	prop := newTestPropagator(t, p)
	res, err := prop.Propagate([]Deposit{{Local: r3.Vec{Z: 100e-6}, Carrier: Hole, Charge: 10}}, NewStream(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Tally.Propagated != 10 || res.Charges[0].Carrier != Hole {
		t.Fatalf("tally = %+v", res.Tally)
	}
}

func TestPropagateRecombination(t *testing.T) {
	p := testParameters()
	p.Doping = config.Doping{Model: "constant", Concentration: 1e26}
	prop := newTestPropagator(t, p)
	if !prop.LifetimeActive() {
		t.Fatal("lifetime model should be active")
	}
	res, err := prop.Propagate([]Deposit{electrons(-140e-6, 50)}, NewStream(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Tally.Recombined != 50 || !res.Tally.Balanced() {
		t.Fatalf("tally = %+v", res.Tally)
	}
}

func TestPropagateConservation(t *testing.T) {
	p := partiallyDepleted()
	p.DiffuseDeposit = true
	p.ChargePerStep = 3
	p.Doping = config.Doping{Model: "constant", Concentration: 3e22}
	prop := newTestPropagator(t, p)

	rng := rand.New(rand.NewPCG(11, 0))
	s := NewStream(11, 1)
	for i := range 200 {
		d := Deposit{
			Local:     r3.Vec{X: (rng.Float64() - 0.5) * 1e-3, Y: (rng.Float64() - 0.5) * 1e-3, Z: (rng.Float64() - 0.5) * sensorThickness},
			Carrier:   Electron,
			Charge:    uint64(rng.IntN(50)),
			LocalTime: rng.Float64() * 5e-9,
		}
		res, err := prop.Propagate([]Deposit{d}, s)
		if err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
		if !res.Tally.Balanced() || res.Tally.Deposited != d.Charge {
			t.Fatalf("deposit %d: tally = %+v", i, res.Tally)
		}
		var emitted uint64
		for _, c := range res.Charges {
			emitted += c.Charge
		}
		if emitted != res.Tally.Propagated {
			t.Fatalf("deposit %d: emitted %d, propagated %d", i, emitted, res.Tally.Propagated)
		}
	}
}

func TestPropagateGlobalPlacement(t *testing.T) {
	p := testParameters()
	prop, err := New(Setup{Detector: testSensor([3]float64{1e-3, 2e-3, 0.5}), Parameters: p})
	if err != nil {
		t.Fatal(err)
	}
	d := electrons(0, 10)
	d.GlobalTime = 1e-6
	res, err := prop.Propagate([]Deposit{d}, NewStream(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	c := res.Charges[0]
	want := r3.Add(c.Local, r3.Vec{X: 1e-3, Y: 2e-3, Z: 0.5})
	if r3.Norm(r3.Sub(c.Global, want)) > 1e-15 {
		t.Fatalf("Global = %+v, want %+v", c.Global, want)
	}
	if !relClose(c.GlobalTime-d.GlobalTime, c.LocalTime, 1e-6) {
		t.Fatalf("GlobalTime = %g, LocalTime = %g", c.GlobalTime, c.LocalTime)
	}
}

func TestNewFatal(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Setup)
		want   error
	}{
		{"magnetic field", func(s *Setup) { s.MagneticField = r3.Vec{Z: 1} }, ErrMagneticField},
		{"non-linear field", func(s *Setup) { s.Parameters.ElectricField.Model = "mesh" }, field.ErrNonLinearField},
		{"polarity", func(s *Setup) { s.Parameters.ElectricField.BiasVoltage = 100 }, ErrAgainstField},
		{"hole polarity", func(s *Setup) { s.Parameters.PropagateHoles = true }, ErrAgainstField},
		{"zero charge per step", func(s *Setup) { s.Parameters.ChargePerStep = 0 }, ErrInvalidParameters},
		{"zero temperature", func(s *Setup) { s.Parameters.Temperature = 0 }, ErrInvalidParameters},
		{"negative integration time", func(s *Setup) { s.Parameters.IntegrationTime = -1 }, ErrInvalidParameters},
		{"no detector", func(s *Setup) { s.Detector = nil }, ErrInvalidParameters},
		{"doping depth beyond the sensor", func(s *Setup) {
			s.Parameters.Doping = config.Doping{Model: "constant", Concentration: 1e18, DopingDepth: 2 * sensorThickness}
		}, doping.ErrInvalidProfile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup := Setup{Detector: testSensor([3]float64{}), Parameters: testParameters()}
			tt.modify(&setup)
			if _, err := New(setup); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewIgnoresMagneticFieldWhenAsked(t *testing.T) {
	p := testParameters()
	p.IgnoreMagneticField = true
	if _, err := New(Setup{Detector: testSensor([3]float64{}), Parameters: p, MagneticField: r3.Vec{Z: 2}}); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestNewNonConstantDopingWarnsOnce(t *testing.T) {
	tests := []struct {
		name   string
		profile config.Doping
	}{
		{"mesh", config.Doping{Model: "mesh"}},
		{"regions", config.Doping{Model: "regions", Concentration: 1e18}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := testParameters()
			p.Doping = tt.profile
			prop, err := New(Setup{Detector: testSensor([3]float64{}), Parameters: p, Logger: logging.NewLogger("info", &buf)})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if prop.LifetimeActive() {
				t.Fatal("a non-constant doping profile must disable the lifetime model")
			}
			if n := strings.Count(buf.String(), "recombination disabled"); n != 1 {
				t.Fatalf("got %d warnings:\n%s", n, buf.String())
			}
			if !strings.Contains(buf.String(), "level=WARN") {
				t.Fatalf("expected a warning:\n%s", buf.String())
			}

			res, err := prop.Propagate([]Deposit{electrons(-140e-6, 30)}, NewStream(1, 1))
			if err != nil {
				t.Fatal(err)
			}
			if res.Tally.Recombined != 0 {
				t.Fatalf("recombination with disabled lifetime: %+v", res.Tally)
			}
		})
	}
}
