package model

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/sensorprop/internal/constants"
)

// DiffusionCoefficient follows the Einstein relation D = mu kT/q.
func DiffusionCoefficient(mu, temperature float64) float64 {
	return mu * constants.KBolzmann * temperature / constants.ElectronCharge
}

// DiffusionSigma is the spread sqrt(2Dt) after diffusing for t.
func DiffusionSigma(mu, temperature, t float64) float64 {
	return math.Sqrt(2 * DiffusionCoefficient(mu, temperature) * t)
}

// Diffuse2D draws a lateral offset, x first.
func Diffuse2D(s *Stream, sigma float64) r3.Vec {
	x := s.Normal(sigma)
	y := s.Normal(sigma)
	return r3.Vec{X: x, Y: y}
}

func Diffuse3D(s *Stream, sigma float64) r3.Vec {
	x := s.Normal(sigma)
	y := s.Normal(sigma)
	z := s.Normal(sigma)
	return r3.Vec{X: x, Y: y, Z: z}
}
