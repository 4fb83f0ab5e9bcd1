package config

import "github.com/wildstyl3r/sensorprop/internal/utils"

var unitToSI = map[string]float64{
	"nm": 1e-9,  // [m]
	"um": 1e-6,  // [m]
	"mm": 1e-3,  // [m]
	"cm": 1e-2,  // [m]
	"m":  1,     // [m]
	"ps": 1e-12, // [s]
	"ns": 1e-9,  // [s]
	"us": 1e-6,  // [s]
	"ms": 1e-3,  // [s]
	"s":  1,     // [s]
	"mV": 1e-3,  // [V]
	"V":  1,     // [V]
	"kV": 1e3,   // [V]
}

type UnitClass int

const (
	Length UnitClass = iota
	Time
	Voltage
)

var unitsInClass = map[UnitClass][]string{
	Length:  {"nm", "um", "mm", "cm", "m"},
	Time:    {"ps", "ns", "us", "ms", "s"},
	Voltage: {"mV", "V", "kV"},
}

var classesOfUnits = map[string]UnitClass{
	"nm": Length,
	"um": Length,
	"mm": Length,
	"cm": Length,
	"m":  Length,
	"ps": Time,
	"ns": Time,
	"us": Time,
	"ms": Time,
	"s":  Time,
	"mV": Voltage,
	"V":  Voltage,
	"kV": Voltage,
}

type UnitElement = struct {
	Class UnitClass
	Power int
}

var defaultUnits = []string{"um", "ns", "V"}

// checkUnits completes units with the defaults of the classes they do not
// mention and reports units that are unknown or repeat a class.
func checkUnits(units []string) (extended, conflicts []string) {
	classes := map[UnitClass]struct{}{}
	for _, unit := range units {
		class, known := classesOfUnits[unit]
		if !known {
			conflicts = append(conflicts, unit)
			continue
		}
		if _, some := classes[class]; some {
			conflicts = append(conflicts, unit)
		} else {
			classes[class] = struct{}{}
		}
	}
	extended = append([]string(nil), units...)
	for _, unit := range defaultUnits {
		if _, some := classes[classesOfUnits[unit]]; !some {
			extended = append(extended, unit)
		}
	}
	return
}

// SI converts v expressed in units into SI when direct is set, and back
// from SI otherwise.
func SI(v float64, classes []UnitElement, units []string, direct bool) float64 {
	for i := range classes {
		uc := classes[i]
		unit := utils.Intersect(unitsInClass[uc.Class], units)
		if unit == nil {
			continue
		}
		absPower := utils.IntAbs(uc.Power)
		if direct {
			if uc.Power > 0 {
				for range absPower {
					v *= unitToSI[*unit]
				}
			} else {
				for range absPower {
					v /= unitToSI[*unit]
				}
			}
		} else {
			if uc.Power > 0 {
				for range absPower {
					v /= unitToSI[*unit]
				}
			} else {
				for range absPower {
					v *= unitToSI[*unit]
				}
			}
		}
	}
	return v
}

// PerCubicCentimetre converts a concentration in cm^-3 to m^-3.
func PerCubicCentimetre(v float64) float64 {
	return v * 1e6
}
