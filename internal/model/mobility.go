package model

import (
	"math"

	"github.com/wildstyl3r/sensorprop/internal/constants"
)

// Mobility is mu(E) = Mu0 / (1 + E/CriticalField), the Jacoboni-Canali
// parametrisation with beta = 1.
type Mobility struct {
	Mu0           float64 // [m^2 V^-1 s^-1]
	CriticalField float64 // [V/m]
}

func NewMobility(carrier CarrierType, temperature float64) Mobility {
	var vm, ec float64 // [cm/s], [V/cm]
	if carrier == Hole {
		vm = constants.HoleSaturationVelocity * math.Pow(temperature, constants.HoleSaturationExponent)
		ec = constants.HoleCriticalField * math.Pow(temperature, constants.HoleCriticalExponent)
	} else {
		vm = constants.ElectronSaturationVelocity * math.Pow(temperature, constants.ElectronSaturationExponent)
		ec = constants.ElectronCriticalField * math.Pow(temperature, constants.ElectronCriticalExponent)
	}
	vm *= 1e-2
	ec *= 1e2
	return Mobility{Mu0: vm / ec, CriticalField: ec}
}

func (m Mobility) At(e float64) float64 {
	return m.Mu0 / (1 + math.Abs(e)/m.CriticalField)
}

func (m Mobility) Velocity(e float64) float64 {
	return m.At(e) * e
}
