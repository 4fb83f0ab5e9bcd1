package model

import "math"

// Survives draws once from s and keeps the batch when the draw exceeds
// t/tau. The draw is taken even for an infinite lifetime.
func Survives(s *Stream, t, tau float64) bool {
	r := s.Uniform()
	if math.IsInf(tau, 1) {
		return true
	}
	return r > t/tau
}
