package model

import (
	"math"

	"github.com/wildstyl3r/sensorprop/internal/constants"
	"github.com/wildstyl3r/sensorprop/internal/doping"
)

// LifetimeModel combines Shockley-Read-Hall and Auger recombination:
//
//	1/tau = (1 + N/N0)/tau0 + Ca*N
//
// The Auger term is linear in N as in the reduced single-carrier model, so
// Ca*N carries m^3/s rather than 1/s. Do not square N here.
type LifetimeModel struct {
	reference       float64 // tau0 [s]
	dopingReference float64 // N0 [m^-3]
	auger           float64 // Ca [m^6 s^-1]
	profile         *doping.Profile
}

func NewLifetimeModel(carrier CarrierType, profile *doping.Profile) *LifetimeModel {
	if carrier == Hole {
		return &LifetimeModel{
			reference:       constants.HoleLifetimeReference,
			dopingReference: constants.HoleDopingReference,
			auger:           constants.HoleAugerCoefficient,
			profile:         profile,
		}
	}
	return &LifetimeModel{
		reference:       constants.ElectronLifetimeReference,
		dopingReference: constants.ElectronDopingReference,
		auger:           constants.ElectronAugerCoefficient,
		profile:         profile,
	}
}

// Lifetime is the effective lifetime at concentration n, of either sign.
func (l *LifetimeModel) Lifetime(n float64) float64 {
	n = math.Abs(n)
	inverse := (1+n/l.dopingReference)/l.reference + l.auger*n
	if inverse <= 0 {
		return math.Inf(1)
	}
	return 1 / inverse
}

// At is the lifetime at local z.
func (l *LifetimeModel) At(z float64) float64 {
	return l.Lifetime(l.profile.Concentration(z))
}
