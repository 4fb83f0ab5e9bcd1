// Package detector describes the sensor geometry of a configured detector:
// its model file, placement in the global frame and pixel grid.
package detector

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/wildstyl3r/sensorprop/internal/config"
)

var ErrInvalidModel = errors.New("invalid detector model")

// Model is the content of a detector model file. Lengths are in the
// configured input length unit until LoadModel scales them.
type Model struct {
	Type            string    `yaml:"type"`
	NumberOfPixels  []int     `yaml:"number_of_pixels"`
	PixelSize       []float64 `yaml:"pixel_size"`
	SensorThickness float64   `yaml:"sensor_thickness"`
	SensorExcess    float64   `yaml:"sensor_excess"`
}

// LoadModel reads a YAML detector model and converts its lengths to metres
// with lengthScale.
func LoadModel(path string, lengthScale float64) (Model, error) {
	var m Model
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("reading detector model: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decoding detector model %s: %w", path, err)
	}
	if len(m.NumberOfPixels) != 2 || len(m.PixelSize) != 2 {
		return m, fmt.Errorf("%s: number_of_pixels and pixel_size need two values: %w", path, ErrInvalidModel)
	}
	if m.NumberOfPixels[0] <= 0 || m.NumberOfPixels[1] <= 0 || m.PixelSize[0] <= 0 || m.PixelSize[1] <= 0 {
		return m, fmt.Errorf("%s: empty pixel grid: %w", path, ErrInvalidModel)
	}
	if m.SensorThickness <= 0 {
		return m, fmt.Errorf("%s: sensor_thickness %g: %w", path, m.SensorThickness, ErrInvalidModel)
	}
	if m.SensorExcess < 0 {
		return m, fmt.Errorf("%s: sensor_excess %g: %w", path, m.SensorExcess, ErrInvalidModel)
	}
	m.PixelSize = []float64{m.PixelSize[0] * lengthScale, m.PixelSize[1] * lengthScale}
	m.SensorThickness *= lengthScale
	m.SensorExcess *= lengthScale
	return m, nil
}

var (
	axisX = r3.Vec{X: 1}
	axisY = r3.Vec{Y: 1}
	axisZ = r3.Vec{Z: 1}
)

// Detector places a model in the global frame. The local frame has its
// origin in the centre of the sensor with z along the thickness; the readout
// surface is at z = +thickness/2.
type Detector struct {
	name     string
	model    Model
	position r3.Vec
	rotation [3]r3.Rotation
	inverse  [3]r3.Rotation
}

// New builds a detector from the unified parameters. Orientation angles are
// in degrees and applied around X, then Y, then Z.
func New(p config.DetectorParameters, m Model) *Detector {
	d := &Detector{
		name:     p.Name(),
		model:    m,
		position: r3.Vec{X: p.Position[0], Y: p.Position[1], Z: p.Position[2]},
	}
	axes := [3]r3.Vec{axisX, axisY, axisZ}
	for i, deg := range p.Orientation {
		angle := deg * math.Pi / 180
		d.rotation[i] = r3.NewRotation(angle, axes[i])
		d.inverse[2-i] = r3.NewRotation(-angle, axes[i])
	}
	return d
}

func (d *Detector) Name() string {
	return d.name
}

func (d *Detector) Model() Model {
	return d.model
}

func (d *Detector) Position() r3.Vec {
	return d.position
}

func (d *Detector) Thickness() float64 {
	return d.model.SensorThickness
}

// Top is the local z of the readout surface.
func (d *Detector) Top() float64 {
	return d.model.SensorThickness / 2
}

// Bottom is the local z of the back side of the sensor.
func (d *Detector) Bottom() float64 {
	return -d.model.SensorThickness / 2
}

// MatrixSize is the lateral extent of the pixel matrix.
func (d *Detector) MatrixSize() (float64, float64) {
	return float64(d.model.NumberOfPixels[0]) * d.model.PixelSize[0],
		float64(d.model.NumberOfPixels[1]) * d.model.PixelSize[1]
}

// SensorBox is the sensor volume in local coordinates, the pixel matrix
// widened by the excess on every side.
func (d *Detector) SensorBox() r3.Box {
	w, h := d.MatrixSize()
	e := d.model.SensorExcess
	t := d.model.SensorThickness
	return r3.NewBox(-w/2-e, -h/2-e, -t/2, w/2+e, h/2+e, t/2)
}

func (d *Detector) IsWithinSensor(local r3.Vec) bool {
	return d.SensorBox().Contains(local)
}

func (d *Detector) ToGlobal(local r3.Vec) r3.Vec {
	v := local
	for _, r := range d.rotation {
		v = r.Rotate(v)
	}
	return r3.Add(v, d.position)
}

func (d *Detector) ToLocal(global r3.Vec) r3.Vec {
	v := r3.Sub(global, d.position)
	for _, r := range d.inverse {
		v = r.Rotate(v)
	}
	return v
}

// Pixel returns the indices of the pixel above a local position, false
// outside the matrix.
func (d *Detector) Pixel(local r3.Vec) (int, int, bool) {
	w, h := d.MatrixSize()
	x := math.Floor((local.X + w/2) / d.model.PixelSize[0])
	y := math.Floor((local.Y + h/2) / d.model.PixelSize[1])
	if x < 0 || y < 0 || x >= float64(d.model.NumberOfPixels[0]) || y >= float64(d.model.NumberOfPixels[1]) {
		return 0, 0, false
	}
	return int(x), int(y), true
}

// PixelCenter is the local position of the centre of pixel (i, j) on the
// readout surface.
func (d *Detector) PixelCenter(i, j int) r3.Vec {
	w, h := d.MatrixSize()
	return r3.Vec{
		X: -w/2 + (float64(i)+0.5)*d.model.PixelSize[0],
		Y: -h/2 + (float64(j)+0.5)*d.model.PixelSize[1],
		Z: d.Top(),
	}
}
