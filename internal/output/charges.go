// Package output writes propagation results as CSV files.
package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/wildstyl3r/sensorprop/internal/config"
	"github.com/wildstyl3r/sensorprop/internal/detector"
	"github.com/wildstyl3r/sensorprop/internal/model"
)

// ChargeRecord is one propagated charge in the output units.
type ChargeRecord struct {
	Event      uint64  `csv:"event"`
	Detector   string  `csv:"detector"`
	Deposit    int     `csv:"deposit"`
	Carrier    string  `csv:"carrier"`
	Charge     uint64  `csv:"charge"`
	X          float64 `csv:"x"`
	Y          float64 `csv:"y"`
	Z          float64 `csv:"z"`
	GlobalX    float64 `csv:"global_x"`
	GlobalY    float64 `csv:"global_y"`
	GlobalZ    float64 `csv:"global_z"`
	LocalTime  float64 `csv:"local_time"`
	GlobalTime float64 `csv:"global_time"`
	PixelX     int     `csv:"pixel_x"`
	PixelY     int     `csv:"pixel_y"`
}

var (
	lengthUnit = []config.UnitElement{{Class: config.Length, Power: 1}}
	timeUnit   = []config.UnitElement{{Class: config.Time, Power: 1}}
)

// Records converts charges of one detector. Charges outside the pixel matrix
// get pixel -1.
func Records(event uint64, det *detector.Detector, charges []model.PropagatedCharge, units []string) []ChargeRecord {
	records := make([]ChargeRecord, 0, len(charges))
	for _, c := range charges {
		px, py, ok := det.Pixel(c.Local)
		if !ok {
			px, py = -1, -1
		}
		records = append(records, ChargeRecord{
			Event:      event,
			Detector:   det.Name(),
			Deposit:    c.Deposit,
			Carrier:    c.Carrier.String(),
			Charge:     c.Charge,
			X:          config.SI(c.Local.X, lengthUnit, units, false),
			Y:          config.SI(c.Local.Y, lengthUnit, units, false),
			Z:          config.SI(c.Local.Z, lengthUnit, units, false),
			GlobalX:    config.SI(c.Global.X, lengthUnit, units, false),
			GlobalY:    config.SI(c.Global.Y, lengthUnit, units, false),
			GlobalZ:    config.SI(c.Global.Z, lengthUnit, units, false),
			LocalTime:  config.SI(c.LocalTime, timeUnit, units, false),
			GlobalTime: config.SI(c.GlobalTime, timeUnit, units, false),
			PixelX:     px,
			PixelY:     py,
		})
	}
	return records
}

// ChargeWriter streams records into one CSV file, writing the header with
// the first non-empty batch.
type ChargeWriter struct {
	file          *os.File
	headerWritten bool
}

func NewChargeWriter(dir, filename string) (*ChargeWriter, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	file, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", filename, err)
	}
	return &ChargeWriter{file: file}, nil
}

func (w *ChargeWriter) Write(records []ChargeRecord) error {
	if len(records) == 0 {
		return nil
	}
	if !w.headerWritten {
		if err := gocsv.Marshal(records, w.file); err != nil {
			return fmt.Errorf("writing charges: %w", err)
		}
		w.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, w.file); err != nil {
		return fmt.Errorf("writing charges: %w", err)
	}
	return nil
}

func (w *ChargeWriter) Close() error {
	return w.file.Close()
}
