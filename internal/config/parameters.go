package config

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wildstyl3r/sensorprop/internal/utils"
)

var (
	ErrNoDetectors     = errors.New("no detectors configured")
	ErrMissingKey      = errors.New("missing required key")
	ErrAmbiguousKeys   = errors.New("ambiguous keys")
	ErrUnitConflict    = errors.New("unit conflict")
	ErrInvalidValue    = errors.New("invalid value")
	ErrUnknownDetector = errors.New("unknown detector")
)

type Config struct {
	OutputDir     string
	Deposits      string
	Seed          uint64
	Threads       int
	LogLevel      string
	MagneticField [3]float64 // [T]
	InputUnits    []string
	OutputUnits   []string
	Detectors     map[string]DetectorParameters
	DetectorParameters

	path string
	meta toml.MetaData
}

type DetectorParameters struct {
	Model               string        `toml:"model"`
	Position            [3]float64    `toml:"position"`    // [m]
	Orientation         [3]float64    `toml:"orientation"` // [deg], X then Y then Z
	Temperature         float64       `toml:"temperature"` // [K]
	ChargePerStep       int           `toml:"charge_per_step"`
	PropagateHoles      bool          `toml:"propagate_holes"`
	IgnoreMagneticField bool          `toml:"ignore_magnetic_field"`
	IntegrationTime     float64       `toml:"integration_time"` // [s]
	DiffuseDeposit      bool          `toml:"diffuse_deposit"`
	OutputPlots         bool          `toml:"output_plots"`
	ElectricField       ElectricField `toml:"electric_field"`
	Doping              Doping        `toml:"doping"`

	_name        string
	_lengthScale float64
	_outputUnits []string
}

type ElectricField struct {
	Model            string         `toml:"model"`
	Field            float64        `toml:"field"`             // [V/m]
	BiasVoltage      float64        `toml:"bias_voltage"`      // [V]
	DepletionVoltage float64        `toml:"depletion_voltage"` // [V]
	DepletionDepth   float64        `toml:"depletion_depth"`   // [m]
	Segments         []FieldSegment `toml:"segments"`
}

// FieldSegment describes E_z linearly interpolated between the field values
// at the two ends of [From, To].
type FieldSegment struct {
	From      float64 `toml:"from"`       // [m]
	To        float64 `toml:"to"`         // [m]
	FieldFrom float64 `toml:"field_from"` // [V/m]
	FieldTo   float64 `toml:"field_to"`   // [V/m]
}

type Doping struct {
	Model         string  `toml:"model"`
	Concentration float64 `toml:"doping_concentration"` // [m^-3]
	DopingDepth   float64 `toml:"doping_depth"`         // [m]
}

func (p *DetectorParameters) Name() string {
	return p._name
}

// LengthScale converts lengths in the input unit to metres.
func (p *DetectorParameters) LengthScale() float64 {
	return p._lengthScale
}

func (p *DetectorParameters) OutputUnits() []string {
	return p._outputUnits
}

func (c *Config) Path() string {
	return c.path
}

// LoadConfig decodes the TOML run configuration. Detector parameters are not
// unified yet, see CheckAndUnify.
func LoadConfig(configFileName string) (Config, error) {
	var config Config
	if !strings.HasSuffix(configFileName, ".toml") {
		configFileName += ".toml"
	}
	meta, err := toml.DecodeFile(configFileName, &config)
	if err != nil {
		return config, fmt.Errorf("decoding %s: %w", configFileName, err)
	}
	config.path = configFileName
	config.meta = meta

	if len(config.Detectors) == 0 {
		return config, ErrNoDetectors
	}

	var unitsConflict []string
	config.InputUnits, unitsConflict = checkUnits(config.InputUnits)
	if len(unitsConflict) > 0 {
		return config, fmt.Errorf("input units %v: %w", unitsConflict, ErrUnitConflict)
	}
	if len(config.OutputUnits) == 0 {
		config.OutputUnits = config.InputUnits
	}
	config.OutputUnits, unitsConflict = checkUnits(config.OutputUnits)
	if len(unitsConflict) > 0 {
		return config, fmt.Errorf("output units %v: %w", unitsConflict, ErrUnitConflict)
	}

	if config.Threads <= 0 {
		config.Threads = runtime.NumCPU()
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.OutputDir == "" {
		config.OutputDir = "."
	}
	return config, nil
}

// DetectorNames lists the configured detectors in natural order.
func (c *Config) DetectorNames() []string {
	names := make([]string, 0, len(c.Detectors))
	for name := range c.Detectors {
		names = append(names, name)
	}
	utils.SortNatural(names)
	return names
}

var defaultValues = map[string]any{ // in SI
	"position":              [3]float64{},
	"orientation":           [3]float64{},
	"temperature":           293.15, // [K]
	"charge_per_step":       10,
	"propagate_holes":       false,
	"ignore_magnetic_field": false,
	"integration_time":      25e-9, // [s]
	"diffuse_deposit":       false,
	"output_plots":          false,
}

var requiredFields = []string{"model", "electric_field"}

var valueUnits = map[string][]UnitElement{
	"position": {
		{Class: Length, Power: 1},
	},
	"integration_time": {
		{Class: Time, Power: 1},
	},
}

var fieldsXor = map[string][]string{
	"depletion_voltage": {"depletion_depth"},
	"depletion_depth":   {"depletion_voltage"},
}

func tomlKey(field reflect.StructField) string {
	tag := field.Tag.Get("toml")
	if tag == "" {
		return field.Name
	}
	return strings.Split(tag, ",")[0]
}

func (c *Config) isDefined(path ...string) bool {
	return c.meta.IsDefined(path...)
}

func (modelConfig *DetectorParameters) toSI(parameterNames, units []string) {
	modelConfigReflect := reflect.ValueOf(modelConfig).Elem()
	modelConfigType := modelConfigReflect.Type()
	for i := range modelConfigType.NumField() {
		key := tomlKey(modelConfigType.Field(i))
		if !slices.Contains(parameterNames, key) {
			continue
		}
		classes, some := valueUnits[key]
		if !some {
			continue
		}
		field := modelConfigReflect.Field(i)
		switch {
		case field.CanFloat():
			field.SetFloat(SI(field.Float(), classes, units, true))
		case field.Kind() == reflect.Array && field.Type().Elem().Kind() == reflect.Float64:
			for j := range field.Len() {
				field.Index(j).SetFloat(SI(field.Index(j).Float(), classes, units, true))
			}
		}
	}
}

func (f *ElectricField) toSI(units []string) {
	perLength := []UnitElement{{Class: Voltage, Power: 1}, {Class: Length, Power: -1}}
	voltage := []UnitElement{{Class: Voltage, Power: 1}}
	length := []UnitElement{{Class: Length, Power: 1}}

	f.Model = strings.ToLower(f.Model)
	f.Field = SI(f.Field, perLength, units, true)
	f.BiasVoltage = SI(f.BiasVoltage, voltage, units, true)
	f.DepletionVoltage = SI(f.DepletionVoltage, voltage, units, true)
	f.DepletionDepth = SI(f.DepletionDepth, length, units, true)
	for i := range f.Segments {
		f.Segments[i].From = SI(f.Segments[i].From, length, units, true)
		f.Segments[i].To = SI(f.Segments[i].To, length, units, true)
		f.Segments[i].FieldFrom = SI(f.Segments[i].FieldFrom, perLength, units, true)
		f.Segments[i].FieldTo = SI(f.Segments[i].FieldTo, perLength, units, true)
	}
}

func (d *Doping) toSI(units []string) {
	length := []UnitElement{{Class: Length, Power: 1}}

	d.Model = strings.ToLower(d.Model)
	d.Concentration = PerCubicCentimetre(d.Concentration)
	d.DopingDepth = SI(d.DopingDepth, length, units, true)
}

func (c *Config) checkFieldProblems(path []string) (ambiguities [][]string) {
	for field, alternatives := range fieldsXor {
		if !c.isDefined(append(slices.Clone(path), field)...) {
			continue
		}
		found := []string{field}
		for _, alternative := range alternatives {
			if c.isDefined(append(slices.Clone(path), alternative)...) {
				found = append(found, alternative)
			}
		}
		if len(found) > 1 {
			ambiguities = append(ambiguities, found)
		}
	}
	return
}

/*
field value priority:
1. detector table
2. global table
3. default
tables (electric_field, doping) are taken as a whole from the first level
that defines them.
*/

// CheckAndUnify resolves the parameters of one detector and converts them
// into SI units.
func (c *Config) CheckAndUnify(detectorName string) (DetectorParameters, error) {
	modelConfig, some := c.Detectors[detectorName]
	if !some {
		return modelConfig, fmt.Errorf("%q: %w", detectorName, ErrUnknownDetector)
	}
	local := []string{"Detectors", detectorName}

	for _, table := range []string{"electric_field", "doping"} {
		for _, prefix := range [][]string{local, {}} {
			path := append(slices.Clone(prefix), table)
			if ambiguities := c.checkFieldProblems(path); len(ambiguities) > 0 {
				return modelConfig, fmt.Errorf("detector %s: %v: %w", detectorName, ambiguities, ErrAmbiguousKeys)
			}
		}
	}

	var discoveredParameters []string
	modelConfigReflect := reflect.ValueOf(&modelConfig).Elem()
	globalConfigReflect := reflect.ValueOf(&c.DetectorParameters).Elem()
	modelConfigType := modelConfigReflect.Type()
	for i := range modelConfigType.NumField() {
		field := modelConfigType.Field(i)
		if !field.IsExported() {
			continue
		}
		key := tomlKey(field)
		switch {
		case c.isDefined(append(slices.Clone(local), key)...):
			discoveredParameters = append(discoveredParameters, key)
		case c.isDefined(key):
			modelConfigReflect.Field(i).Set(globalConfigReflect.Field(i))
			discoveredParameters = append(discoveredParameters, key)
		}
	}

	for _, key := range requiredFields {
		if !slices.Contains(discoveredParameters, key) {
			return modelConfig, fmt.Errorf("detector %s: %q: %w", detectorName, key, ErrMissingKey)
		}
	}

	modelConfig.ElectricField.Segments = slices.Clone(modelConfig.ElectricField.Segments)
	modelConfig.toSI(discoveredParameters, c.InputUnits)
	modelConfig.ElectricField.toSI(c.InputUnits)
	modelConfig.Doping.toSI(c.InputUnits)

	for i := range modelConfigType.NumField() {
		field := modelConfigType.Field(i)
		if !field.IsExported() {
			continue
		}
		key := tomlKey(field)
		if value, some := defaultValues[key]; some && !slices.Contains(discoveredParameters, key) {
			modelConfigReflect.Field(i).Set(reflect.ValueOf(value))
		}
	}

	if modelConfig.ChargePerStep <= 0 {
		return modelConfig, fmt.Errorf("detector %s: charge_per_step %d: %w", detectorName, modelConfig.ChargePerStep, ErrInvalidValue)
	}
	if modelConfig.Temperature <= 0 {
		return modelConfig, fmt.Errorf("detector %s: temperature %g: %w", detectorName, modelConfig.Temperature, ErrInvalidValue)
	}
	if modelConfig.IntegrationTime <= 0 {
		return modelConfig, fmt.Errorf("detector %s: integration_time %g: %w", detectorName, modelConfig.IntegrationTime, ErrInvalidValue)
	}

	modelConfig._name = detectorName
	modelConfig._lengthScale = SI(1, []UnitElement{{Class: Length, Power: 1}}, c.InputUnits, true)
	modelConfig._outputUnits = c.OutputUnits
	return modelConfig, nil
}
