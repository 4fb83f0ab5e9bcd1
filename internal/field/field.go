// Package field holds the linear approximation of the electric field along
// the sensor thickness.
package field

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/wildstyl3r/sensorprop/internal/config"
)

var (
	ErrNonLinearField = errors.New("electric field is not linear")
	ErrInvalidField   = errors.New("invalid electric field")
)

// Segment is E_z(z) = Slope*z + Intercept for z in [ZMin, ZMax].
type Segment struct {
	Slope     float64 // [V/m^2]
	Intercept float64 // [V/m]
	ZMin      float64 // [m]
	ZMax      float64 // [m]
}

func (s Segment) At(z float64) float64 {
	return s.Slope*z + s.Intercept
}

// Map is a sorted, contiguous list of segments ending at the readout
// surface. Below the lowest segment the sensor is undepleted.
type Map struct {
	segments []Segment
	top      float64
}

// NewMap validates segments and orders them along z.
func NewMap(segments []Segment, top float64) (*Map, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("no segments: %w", ErrInvalidField)
	}
	sorted := slices.Clone(segments)
	slices.SortFunc(sorted, func(a, b Segment) int {
		switch {
		case a.ZMin < b.ZMin:
			return -1
		case a.ZMin > b.ZMin:
			return 1
		}
		return 0
	})
	tolerance := 1e-9 * math.Max(math.Abs(top), 1e-6)
	for i, s := range sorted {
		if !(s.ZMax > s.ZMin) {
			return nil, fmt.Errorf("segment [%g, %g] is empty: %w", s.ZMin, s.ZMax, ErrInvalidField)
		}
		if math.IsNaN(s.Slope) || math.IsInf(s.Slope, 0) || math.IsNaN(s.Intercept) || math.IsInf(s.Intercept, 0) {
			return nil, fmt.Errorf("segment [%g, %g] has non-finite field: %w", s.ZMin, s.ZMax, ErrInvalidField)
		}
		if i > 0 && math.Abs(s.ZMin-sorted[i-1].ZMax) > tolerance {
			return nil, fmt.Errorf("gap between %g and %g: %w", sorted[i-1].ZMax, s.ZMin, ErrInvalidField)
		}
	}
	last := sorted[len(sorted)-1]
	if math.Abs(last.ZMax-top) > tolerance {
		return nil, fmt.Errorf("field ends at %g, readout surface at %g: %w", last.ZMax, top, ErrInvalidField)
	}
	if sorted[0].ZMin < -top-tolerance {
		return nil, fmt.Errorf("field starts at %g below the sensor: %w", sorted[0].ZMin, ErrInvalidField)
	}
	sorted[len(sorted)-1].ZMax = top
	return &Map{segments: sorted, top: top}, nil
}

// Lookup returns the segment containing z; false means z is not depleted.
func (m *Map) Lookup(z float64) (Segment, bool) {
	if z < m.segments[0].ZMin || z > m.top {
		return Segment{}, false
	}
	i := sort.Search(len(m.segments), func(i int) bool {
		return m.segments[i].ZMax >= z
	})
	if i == len(m.segments) {
		return Segment{}, false
	}
	return m.segments[i], true
}

// At is E_z at z, zero in the undepleted region.
func (m *Map) At(z float64) float64 {
	s, ok := m.Lookup(z)
	if !ok {
		return 0
	}
	return s.At(z)
}

// DepletionEdge is the lower boundary of the depleted region.
func (m *Map) DepletionEdge() float64 {
	return m.segments[0].ZMin
}

func (m *Map) Top() float64 {
	return m.top
}

// From returns the segments from the one containing z up to the readout
// surface, or nil above it. A z on a boundary starts in the upper segment.
// The slice is shared and must not be modified.
func (m *Map) From(z float64) []Segment {
	if z > m.top {
		return nil
	}
	i := sort.Search(len(m.segments), func(i int) bool {
		return m.segments[i].ZMax > z
	})
	if i == len(m.segments) {
		i--
	}
	return m.segments[i:]
}

func (m *Map) Segments() []Segment {
	return slices.Clone(m.segments)
}

// Build approximates the configured field for a sensor of the given
// thickness centred at z = 0.
func Build(cfg config.ElectricField, thickness float64) (*Map, error) {
	if !(thickness > 0) {
		return nil, fmt.Errorf("thickness %g: %w", thickness, ErrInvalidField)
	}
	top := thickness / 2
	switch cfg.Model {
	case "constant":
		e := cfg.Field
		if e == 0 {
			e = cfg.BiasVoltage / thickness
		}
		if e == 0 {
			return nil, fmt.Errorf("constant field needs field or bias_voltage: %w", ErrInvalidField)
		}
		return NewMap([]Segment{{Intercept: e, ZMin: -top, ZMax: top}}, top)
	case "linear":
		return buildLinear(cfg, thickness)
	case "segments":
		segments := make([]Segment, 0, len(cfg.Segments))
		for _, s := range cfg.Segments {
			if s.To == s.From {
				return nil, fmt.Errorf("segment at %g is empty: %w", s.From, ErrInvalidField)
			}
			from, to := s.From, s.To
			fieldFrom, fieldTo := s.FieldFrom, s.FieldTo
			if to < from {
				from, to = to, from
				fieldFrom, fieldTo = fieldTo, fieldFrom
			}
			slope := (fieldTo - fieldFrom) / (to - from)
			segments = append(segments, Segment{
				Slope:     slope,
				Intercept: fieldFrom - slope*from,
				ZMin:      from,
				ZMax:      to,
			})
		}
		return NewMap(segments, top)
	default:
		return nil, fmt.Errorf("model %q: %w", cfg.Model, ErrNonLinearField)
	}
}

// buildLinear follows the linear field of a planar diode. The depth below
// the readout surface is u = top - z.
func buildLinear(cfg config.ElectricField, thickness float64) (*Map, error) {
	top := thickness / 2
	vb := cfg.BiasVoltage
	if vb == 0 {
		return nil, fmt.Errorf("linear field needs bias_voltage: %w", ErrInvalidField)
	}

	if cfg.DepletionDepth > 0 {
		d := math.Min(cfg.DepletionDepth, thickness)
		return NewMap([]Segment{{Intercept: vb / d, ZMin: top - d, ZMax: top}}, top)
	}

	vd := cfg.DepletionVoltage
	if vd != 0 && math.Signbit(vd) != math.Signbit(vb) {
		return nil, fmt.Errorf("bias %g V and depletion %g V differ in sign: %w", vb, vd, ErrInvalidField)
	}

	if math.Abs(vb) >= math.Abs(vd) {
		// E(u) = (Vb-Vd)/T + 2Vd/T (1 - u/T)
		return NewMap([]Segment{{
			Slope:     2 * vd / (thickness * thickness),
			Intercept: vb / thickness,
			ZMin:      -top,
			ZMax:      top,
		}}, top)
	}

	// E(u) = 2Vb/d (1 - u/d), vanishing exactly at the depletion edge
	d := thickness * math.Sqrt(vb/vd)
	slope := 2 * vb / (d * d)
	edge := top - d
	return NewMap([]Segment{{
		Slope:     slope,
		Intercept: -(slope * edge),
		ZMin:      edge,
		ZMax:      top,
	}}, top)
}
