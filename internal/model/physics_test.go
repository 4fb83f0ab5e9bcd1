package model

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"

	"github.com/wildstyl3r/sensorprop/internal/doping"
)

func TestMobility(t *testing.T) {
	tests := []struct {
		carrier  CarrierType
		min, max float64
	}{
		{Electron, 0.13, 0.17},
		{Hole, 0.04, 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.carrier.String(), func(t *testing.T) {
			m := NewMobility(tt.carrier, 300)
			if m.Mu0 < tt.min || m.Mu0 > tt.max {
				t.Fatalf("Mu0 = %g m^2/Vs, want in [%g, %g]", m.Mu0, tt.min, tt.max)
			}
			if got := m.At(m.CriticalField); !relClose(got, m.Mu0/2, 1e-12) {
				t.Fatalf("At(Ec) = %g, want %g", got, m.Mu0/2)
			}
			if got := m.At(-m.CriticalField); !relClose(got, m.Mu0/2, 1e-12) {
				t.Fatalf("At(-Ec) = %g, want %g", got, m.Mu0/2)
			}
		})
	}
	if NewMobility(Electron, 250).Mu0 <= NewMobility(Electron, 300).Mu0 {
		t.Error("mobility should grow when cooling")
	}
}

func TestDiffusionCoefficientEinsteinRelation(t *testing.T) {
	// kT/q at 300 K is 25.852 mV
	got := DiffusionCoefficient(0.1, 300)
	if want := 0.1 * 0.0258520; math.Abs(got-want) > 1e-6*want {
		t.Fatalf("D = %g, want %g", got, want)
	}
}

func TestVelocitySaturates(t *testing.T) {
	m := NewMobility(Electron, 300)
	low := m.Velocity(1)
	if math.Abs(low-m.Mu0) > 1e-5*m.Mu0 {
		t.Errorf("low field velocity %g, want mu0 %g", low, m.Mu0)
	}
	vsat := m.Mu0 * m.CriticalField
	if v := m.Velocity(1e4 * m.CriticalField); v > vsat || v < 0.999*vsat {
		t.Errorf("high field velocity %g, want close to %g", v, vsat)
	}
	if v := m.Velocity(-1e5); v >= 0 {
		t.Errorf("velocity %g does not follow the field sign", v)
	}
}

func TestDiffusionSpread(t *testing.T) {
	mu, temperature, drift := 0.14, 293.15, 5e-9
	sigma := DiffusionSigma(mu, temperature, drift)
	if want := math.Sqrt(2 * mu * 8.617333262e-5 * temperature * drift); !relClose(sigma, want, 1e-12) {
		t.Fatalf("sigma = %g, want %g", sigma, want)
	}

	s := NewStream(1, 1)
	const n = 20000
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := range n {
		v := Diffuse2D(s, sigma)
		xs[i], ys[i] = v.X, v.Y
	}
	for name, sample := range map[string][]float64{"x": xs, "y": ys} {
		if sd := stat.StdDev(sample, nil); !relClose(sd, sigma, 0.03) {
			t.Errorf("%s std = %g, want %g", name, sd, sigma)
		}
		if mean := stat.Mean(sample, nil); math.Abs(mean) > 4*sigma/math.Sqrt(n) {
			t.Errorf("%s mean = %g", name, mean)
		}
	}
}

func TestDiffuse3DSpread(t *testing.T) {
	s := NewStream(2, 9)
	const n = 20000
	zs := make([]float64, n)
	for i := range n {
		zs[i] = Diffuse3D(s, 1e-6).Z
	}
	if sd := stat.StdDev(zs, nil); !relClose(sd, 1e-6, 0.03) {
		t.Fatalf("z std = %g", sd)
	}
}

func TestSurvivalFractionIsLinear(t *testing.T) {
	s := NewStream(3, 0)
	const n = 40000
	survived := 0
	for range n {
		if Survives(s, 0.5, 1) {
			survived++
		}
	}
	fraction := float64(survived) / n
	if math.Abs(fraction-0.5) > 0.015 {
		t.Fatalf("survival fraction = %g, want 0.5", fraction)
	}
}

func TestSurvivalAlwaysConsumesDraw(t *testing.T) {
	a, b := NewStream(4, 2), NewStream(4, 2)
	if !Survives(a, 1, math.Inf(1)) {
		t.Fatal("infinite lifetime must survive")
	}
	b.Uniform()
	if a.Uniform() != b.Uniform() {
		t.Fatal("Survives did not consume exactly one draw")
	}
}

func TestSurvivalBeyondLifetime(t *testing.T) {
	s := NewStream(5, 0)
	for range 100 {
		if Survives(s, 2, 1) {
			t.Fatal("t > tau must recombine")
		}
	}
}

func TestLifetime(t *testing.T) {
	profile, err := doping.NewProfile([]doping.Segment{{Concentration: -1e22, ZMin: -1, ZMax: 1}})
	if err != nil {
		t.Fatal(err)
	}
	l := NewLifetimeModel(Electron, profile)
	if got := l.Lifetime(0); !relClose(got, 1e-5, 1e-12) {
		t.Errorf("Lifetime(0) = %g, want tau0", got)
	}
	want := 1 / (2/1e-5 + 2.8e-43*1e22)
	if got := l.At(0); !relClose(got, want, 1e-12) {
		t.Errorf("At(0) = %g, want %g", got, want)
	}

	h := NewLifetimeModel(Hole, profile)
	want = 1 / ((1+1e22/7.1e21)/4e-4 + 9.9e-44*1e22)
	if got := h.At(0); !relClose(got, want, 1e-12) {
		t.Errorf("hole At(0) = %g, want %g", got, want)
	}
	if h.At(0) <= l.At(0) {
		t.Error("hole lifetime should exceed electron lifetime")
	}
}

func TestStreamReproducible(t *testing.T) {
	a, b := NewStream(10, 3), NewStream(10, 3)
	c := NewStream(10, 4)
	same := true
	for range 10 {
		x, y, z := a.Normal(1), b.Normal(1), c.Normal(1)
		if x != y {
			t.Fatal("equal seeds diverged")
		}
		if x != z {
			same = false
		}
	}
	if same {
		t.Fatal("different events share a stream")
	}
}

func TestParseCarrier(t *testing.T) {
	tests := []struct {
		in   string
		want CarrierType
		ok   bool
	}{
		{"e", Electron, true},
		{"Electron", Electron, true},
		{"h", Hole, true},
		{" holes ", Hole, true},
		{"x", Electron, false},
	}
	for _, tt := range tests {
		got, err := ParseCarrier(tt.in)
		if (err == nil) != tt.ok || (tt.ok && got != tt.want) {
			t.Errorf("ParseCarrier(%q) = %v, %v", tt.in, got, err)
		}
	}
	if Electron.Sign() != -1 || Hole.Sign() != 1 {
		t.Error("carrier signs")
	}
}
