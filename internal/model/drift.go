package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/wildstyl3r/sensorprop/internal/field"
)

var (
	ErrAgainstField   = errors.New("field does not drive the carrier to the readout surface")
	ErrVanishingField = errors.New("field vanishes along the drift path")
)

// uniformLimit bounds the relative field change below which a segment is
// integrated as uniform.
const uniformLimit = 1e-9

// DriftTime integrates dz / v(E) from z0 to z1 in a segment holding the
// effective field E(z) = Slope*z + Intercept, positive along the drift.
// With v = mu0*E/(1 + E/ec):
//
//	t = [ln E / k + z / ec] / mu0
//
// evaluated between the endpoints, k being the slope.
func DriftTime(seg field.Segment, z0, z1, mu0, ec float64) (float64, error) {
	if z1 < z0 {
		return math.NaN(), fmt.Errorf("drift from %g down to %g: %w", z0, z1, ErrAgainstField)
	}
	e0, e1 := seg.At(z0), seg.At(z1)
	if e0 < 0 || e1 < 0 {
		return math.NaN(), fmt.Errorf("field %g..%g V/m: %w", e0, e1, ErrAgainstField)
	}
	if e0 == 0 || e1 == 0 {
		return math.Inf(1), ErrVanishingField
	}

	delta := z1 - z0
	k := seg.Slope
	var t float64
	if math.Abs(k*delta) <= uniformLimit*e0 {
		t = delta * (1/e0 + 1/ec) / mu0
	} else {
		t = (math.Log1p(k*delta/e0)/k + delta/ec) / mu0
	}
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return t, fmt.Errorf("drift time %g from %g to %g: %w", t, z0, z1, ErrAgainstField)
	}
	return t, nil
}

// orient turns a segment of E_z into the effective field of the carrier.
func orient(seg field.Segment, sign float64) field.Segment {
	seg.Slope *= sign
	seg.Intercept *= sign
	return seg
}

// path is the drift of one batch from its start to the readout surface.
type path struct {
	time       float64
	startField float64 // effective, [V/m]
	endField   float64
}

// driftPath integrates the drift time segment by segment from z to the top
// of the field map.
func driftPath(m *field.Map, z float64, carrier CarrierType, mobility Mobility) (path, error) {
	var p path
	segments := m.From(z)
	if len(segments) == 0 {
		return p, fmt.Errorf("position %g above the readout surface: %w", z, ErrAgainstField)
	}
	sign := carrier.Sign()
	for i, seg := range segments {
		eff := orient(seg, sign)
		from := seg.ZMin
		if i == 0 {
			from = math.Max(z, seg.ZMin)
			p.startField = eff.At(from)
		}
		t, err := DriftTime(eff, from, seg.ZMax, mobility.Mu0, mobility.CriticalField)
		if err != nil {
			return p, err
		}
		p.time += t
		p.endField = eff.At(seg.ZMax)
	}
	return p, nil
}
