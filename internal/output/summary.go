package output

import (
	"strconv"

	"github.com/wildstyl3r/sensorprop/internal/constants"
	"github.com/wildstyl3r/sensorprop/internal/model"
	"github.com/wildstyl3r/sensorprop/internal/utils"
)

var summaryColumns = []string{
	"detector",
	"deposited",
	"propagated",
	"recombined",
	"missed_integration",
	"undepleted",
	"skipped",
	"batches",
	"collected_fraction",
	"collected_fraction_error",
}

// SummaryRows lays out tallies per detector. The error is the 95% interval
// of the collected fraction.
func SummaryRows(tallies map[string]model.Tally) utils.CSV {
	rows := make(utils.CSV, 0, len(tallies))
	for name, t := range tallies {
		fraction := 0.0
		if t.Deposited > 0 {
			fraction = float64(t.Propagated) / float64(t.Deposited)
		}
		rows = append(rows, []string{
			name,
			strconv.FormatUint(t.Deposited, 10),
			strconv.FormatUint(t.Propagated, 10),
			strconv.FormatUint(t.Recombined, 10),
			strconv.FormatUint(t.MissedIntegration, 10),
			strconv.FormatUint(t.Undepleted, 10),
			strconv.FormatUint(t.Skipped, 10),
			strconv.FormatUint(t.Batches, 10),
			strconv.FormatFloat(fraction, 'f', -1, 64),
			strconv.FormatFloat(utils.BinomialError(t.Propagated, t.Deposited, constants.Quantile95), 'f', -1, 64),
		})
	}
	return rows
}

func WriteSummary(dir, filename string, tallies map[string]model.Tally) error {
	return utils.WriteAsCSV(SummaryRows(tallies), dir, filename, summaryColumns)
}
