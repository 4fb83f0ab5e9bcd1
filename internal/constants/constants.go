package constants

const KBolzmann float64 = 1.380649e-23 // [J K^-1]
const ElectronCharge = 1.602176634e-19 // C
const Quantile95 = 1.96

// reference lifetimes and doping concentrations for SRH recombination,
// Fossum & Lee, Solid-State Electronics 25 (1982)
const (
	ElectronLifetimeReference float64 = 1e-5     // [s]
	HoleLifetimeReference     float64 = 4.0e-4   // [s]
	ElectronDopingReference   float64 = 1e22     // [m^-3] = 1e16 cm^-3
	HoleDopingReference       float64 = 7.1e21   // [m^-3] = 7.1e15 cm^-3
)

// Auger coefficients, Dziewior & Schmid, Appl. Phys. Lett. 31 (1977).
// The lifetime model multiplies them by N once, not N^2, so Ca*N is not in
// s^-1.
const (
	ElectronAugerCoefficient float64 = 2.8e-43 // [m^6 s^-1] = 2.8e-31 cm^6 s^-1
	HoleAugerCoefficient     float64 = 9.9e-44 // [m^6 s^-1] = 9.9e-32 cm^6 s^-1
)

// Jacoboni-Canali mobility parametrisation, Solid-State Electronics 20 (1977);
// values in cm/s and V/cm, scaled with temperature powers.
const (
	ElectronSaturationVelocity = 1.53e9
	ElectronSaturationExponent = -0.87
	ElectronCriticalField      = 1.01
	ElectronCriticalExponent   = 1.55

	HoleSaturationVelocity = 1.62e8
	HoleSaturationExponent = -0.52
	HoleCriticalField      = 1.24
	HoleCriticalExponent   = 1.68
)
