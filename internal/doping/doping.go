// Package doping describes the effective doping concentration along the
// sensor thickness.
package doping

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/wildstyl3r/sensorprop/internal/config"
)

var (
	ErrUnsupportedProfile = errors.New("unsupported doping profile")
	ErrInvalidProfile     = errors.New("invalid doping profile")
)

// Segment is a constant concentration over [ZMin, ZMax].
type Segment struct {
	Concentration float64 // [m^-3]
	ZMin          float64 // [m]
	ZMax          float64 // [m]
}

// Profile is piecewise constant along z. A position on a boundary belongs to
// the segment above it; positions outside take the nearest segment.
type Profile struct {
	segments []Segment
}

func NewProfile(segments []Segment) (*Profile, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("no segments: %w", ErrInvalidProfile)
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
	for _, s := range sorted {
		if s.ZMax < s.ZMin || math.IsNaN(s.Concentration) {
			return nil, fmt.Errorf("segment [%g, %g]: %w", s.ZMin, s.ZMax, ErrInvalidProfile)
		}
	}
	return &Profile{segments: sorted}, nil
}

func (p *Profile) Concentration(z float64) float64 {
	i := sort.Search(len(p.segments), func(i int) bool {
		return p.segments[i].ZMax > z
	})
	if i == len(p.segments) {
		i--
	}
	return p.segments[i].Concentration
}

func (p *Profile) Segments() []Segment {
	return slices.Clone(p.segments)
}

// Build reads the configured doping for a sensor of the given thickness
// centred at z = 0. Only a constant concentration is supported; doping_depth
// is checked against the thickness but does not shape the profile.
func Build(cfg config.Doping, thickness float64) (*Profile, error) {
	top := thickness / 2
	switch cfg.Model {
	case "constant":
		if cfg.DopingDepth < 0 || cfg.DopingDepth > thickness {
			return nil, fmt.Errorf("doping_depth %g outside [0, %g]: %w", cfg.DopingDepth, thickness, ErrInvalidProfile)
		}
		if math.IsNaN(cfg.Concentration) || math.IsInf(cfg.Concentration, 0) {
			return nil, fmt.Errorf("concentration %g: %w", cfg.Concentration, ErrInvalidProfile)
		}
		return NewProfile([]Segment{{Concentration: cfg.Concentration, ZMin: -top, ZMax: top}})
	default:
		return nil, fmt.Errorf("model %q: %w", cfg.Model, ErrUnsupportedProfile)
	}
}
