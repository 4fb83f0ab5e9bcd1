// Package events reads deposited charges and groups them into events.
package events

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/sensorprop/internal/config"
	"github.com/wildstyl3r/sensorprop/internal/detector"
	"github.com/wildstyl3r/sensorprop/internal/model"
)

// Row is one line of a deposits file. Coordinates are local to the detector
// and, like the time, in the configured input units.
type Row struct {
	Event    uint64  `csv:"event"`
	Detector string  `csv:"detector"`
	X        float64 `csv:"x"`
	Y        float64 `csv:"y"`
	Z        float64 `csv:"z"`
	Carrier  string  `csv:"carrier"`
	Charge   uint64  `csv:"charge"`
	Time     float64 `csv:"time"`
}

// Event holds the deposits of one event per detector, in file order.
type Event struct {
	Number   uint64
	Deposits map[string][]model.Deposit
}

func Read(r io.Reader) ([]Row, error) {
	var rows []Row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("decoding deposits: %w", err)
	}
	return rows, nil
}

func Load(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening deposits: %w", err)
	}
	defer file.Close()
	rows, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// Group converts rows into deposits of the known detectors and orders the
// events by number. Rows of unknown detectors are counted per name and left
// out.
func Group(rows []Row, detectors map[string]*detector.Detector, units []string) ([]Event, map[string]int, error) {
	length := []config.UnitElement{{Class: config.Length, Power: 1}}
	time := []config.UnitElement{{Class: config.Time, Power: 1}}

	unknown := map[string]int{}
	byNumber := map[uint64]*Event{}
	for i, row := range rows {
		det, known := detectors[row.Detector]
		if !known {
			unknown[row.Detector]++
			continue
		}
		carrier, err := model.ParseCarrier(row.Carrier)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		local := r3.Vec{
			X: config.SI(row.X, length, units, true),
			Y: config.SI(row.Y, length, units, true),
			Z: config.SI(row.Z, length, units, true),
		}
		t := config.SI(row.Time, time, units, true)

		event, some := byNumber[row.Event]
		if !some {
			event = &Event{Number: row.Event, Deposits: map[string][]model.Deposit{}}
			byNumber[row.Event] = event
		}
		event.Deposits[row.Detector] = append(event.Deposits[row.Detector], model.Deposit{
			Local:      local,
			Global:     det.ToGlobal(local),
			Carrier:    carrier,
			Charge:     row.Charge,
			LocalTime:  t,
			GlobalTime: t,
		})
	}

	events := make([]Event, 0, len(byNumber))
	for _, event := range byNumber {
		events = append(events, *event)
	}
	slices.SortFunc(events, func(a, b Event) int {
		return cmp.Compare(a.Number, b.Number)
	})
	return events, unknown, nil
}
