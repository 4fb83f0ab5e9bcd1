package model

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

var ErrUnknownCarrier = errors.New("unknown carrier type")

type CarrierType int

const (
	Electron CarrierType = iota
	Hole
)

func ParseCarrier(s string) (CarrierType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "e", "electron", "electrons", "-1":
		return Electron, nil
	case "h", "hole", "holes", "+1", "1":
		return Hole, nil
	}
	return Electron, fmt.Errorf("%q: %w", s, ErrUnknownCarrier)
}

func (c CarrierType) String() string {
	if c == Hole {
		return "h"
	}
	return "e"
}

// Sign orients E_z into the field that drives the carrier towards the
// readout surface: electrons move against the field, holes along it.
func (c CarrierType) Sign() float64 {
	if c == Hole {
		return 1
	}
	return -1
}

// Deposit is a packet of carriers created at one point of the sensor.
type Deposit struct {
	Local      r3.Vec // [m]
	Global     r3.Vec // [m]
	Carrier    CarrierType
	Charge     uint64
	LocalTime  float64 // [s]
	GlobalTime float64 // [s]
}

// PropagatedCharge is a batch of carriers projected onto the readout
// surface. Deposit indexes the originating deposit.
type PropagatedCharge struct {
	Local      r3.Vec
	Global     r3.Vec
	Carrier    CarrierType
	Charge     uint64
	LocalTime  float64
	GlobalTime float64
	Deposit    int
}

// Tally accounts deposited charge by outcome. For the propagated carrier
// type Deposited = Propagated + Recombined + MissedIntegration + Undepleted.
type Tally struct {
	Deposited         uint64
	Propagated        uint64
	Recombined        uint64
	MissedIntegration uint64
	Undepleted        uint64
	Skipped           uint64
	Batches           uint64
}

func (t *Tally) Add(other Tally) {
	t.Deposited += other.Deposited
	t.Propagated += other.Propagated
	t.Recombined += other.Recombined
	t.MissedIntegration += other.MissedIntegration
	t.Undepleted += other.Undepleted
	t.Skipped += other.Skipped
	t.Batches += other.Batches
}

func (t Tally) Lost() uint64 {
	return t.Recombined + t.MissedIntegration + t.Undepleted
}

func (t Tally) Balanced() bool {
	return t.Deposited == t.Propagated+t.Lost()
}
