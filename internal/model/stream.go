package model

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Stream is the random source of one event. It is not safe for concurrent
// use; every event owns its own.
type Stream struct {
	src rand.Source
}

func NewStream(seed, event uint64) *Stream {
	return &Stream{src: rand.NewPCG(seed, event)}
}

// Normal draws from a zero-mean normal distribution.
func (s *Stream) Normal(sigma float64) float64 {
	return distuv.Normal{Mu: 0, Sigma: sigma, Src: s.src}.Rand()
}

// Uniform draws from [0, 1).
func (s *Stream) Uniform() float64 {
	return distuv.Uniform{Min: 0, Max: 1, Src: s.src}.Rand()
}
