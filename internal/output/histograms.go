package output

import (
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/wildstyl3r/sensorprop/internal/config"
	"github.com/wildstyl3r/sensorprop/internal/model"
	"github.com/wildstyl3r/sensorprop/internal/utils"
)

const defaultBins = 100

type histogram struct {
	fileSuffix string
	label      string
	values     func(*model.Samples) []float64
	unit       []config.UnitElement
}

var histograms = []histogram{
	{
		fileSuffix: "drift_time",
		label:      "drift time",
		values:     func(s *model.Samples) []float64 { return s.DriftTime },
		unit:       timeUnit,
	},
	{
		fileSuffix: "diffusion",
		label:      "lateral diffusion",
		values:     func(s *model.Samples) []float64 { return s.Diffusion },
		unit:       lengthUnit,
	},
	{
		fileSuffix: "lifetime",
		label:      "lifetime",
		values:     func(s *model.Samples) []float64 { return s.Lifetime },
		unit:       timeUnit,
	},
	{
		fileSuffix: "arrival_time",
		label:      "arrival time",
		values:     func(s *model.Samples) []float64 { return s.ArrivalTime },
		unit:       timeUnit,
	},
}

// Plots accumulates samples of every detector over a run.
type Plots struct {
	mu      sync.Mutex
	samples map[string]*model.Samples
	Bins    int
}

func NewPlots() *Plots {
	return &Plots{samples: map[string]*model.Samples{}, Bins: defaultBins}
}

func (p *Plots) Add(detector string, s *model.Samples) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, some := p.samples[detector]
	if !some {
		acc = &model.Samples{}
		p.samples[detector] = acc
	}
	acc.DriftTime = append(acc.DriftTime, s.DriftTime...)
	acc.Diffusion = append(acc.Diffusion, s.Diffusion...)
	acc.Lifetime = append(acc.Lifetime, s.Lifetime...)
	acc.ArrivalTime = append(acc.ArrivalTime, s.ArrivalTime...)
}

// Bin counts values in equal bins between their extremes.
func Bin(values []float64, bins int) (dividers, counts []float64) {
	if len(values) == 0 || bins < 1 {
		return nil, nil
	}
	x := slices.Clone(values)
	slices.Sort(x)
	lo, hi := x[0], x[len(x)-1]
	if hi <= lo {
		hi = lo + math.Max(math.Abs(lo)*1e-6, math.SmallestNonzeroFloat64)
	}
	dividers = floats.Span(make([]float64, bins+1), lo, math.Nextafter(hi, math.Inf(1)))
	counts = stat.Histogram(nil, dividers, x, nil)
	return dividers, counts
}

// Save writes <dir>/<detector>/<histogram>.csv for every detector with
// samples, bin edges in the output units.
func (p *Plots) Save(dir string, units []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, samples := range p.samples {
		for _, h := range histograms {
			dividers, counts := Bin(h.values(samples), p.Bins)
			if dividers == nil {
				continue
			}
			rows := make(utils.CSV, 0, len(counts))
			for i := range counts {
				rows = append(rows, []string{
					strconv.Itoa(i),
					strconv.FormatFloat(config.SI(dividers[i], h.unit, units, false), 'g', -1, 64),
					strconv.FormatFloat(config.SI(dividers[i+1], h.unit, units, false), 'g', -1, 64),
					strconv.FormatFloat(counts[i], 'f', -1, 64),
				})
			}
			columns := []string{"bin", h.label + " low", h.label + " high", "count"}
			if err := utils.WriteAsCSV(rows, filepath.Join(dir, name), h.fileSuffix+".csv", columns); err != nil {
				return fmt.Errorf("saving %s of %s: %w", h.label, name, err)
			}
		}
	}
	return nil
}
