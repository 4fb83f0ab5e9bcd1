package main

import (
	"context"
	"sync"

	"github.com/wildstyl3r/sensorprop/internal/events"
	"github.com/wildstyl3r/sensorprop/internal/model"
	"github.com/wildstyl3r/sensorprop/internal/output"
	"github.com/wildstyl3r/sensorprop/internal/utils"
)

type eventResult struct {
	index   int
	number  uint64
	records []output.ChargeRecord
	tallies map[string]model.Tally
	samples map[string]*model.Samples
	failed  int
}

// processEvent propagates one event through every detector. All detectors
// draw from the same stream, in natural order, so the result depends only on
// the seed and the event number.
func (s *session) processEvent(index int, event events.Event) eventResult {
	result := eventResult{
		index:   index,
		number:  event.Number,
		tallies: map[string]model.Tally{},
		samples: map[string]*model.Samples{},
	}
	stream := model.NewStream(s.config.Seed, event.Number)
	for _, name := range s.order {
		deposits := event.Deposits[name]
		if len(deposits) == 0 {
			continue
		}
		prop := s.propagators[name]
		res, err := prop.Propagate(deposits, stream)
		if err != nil {
			s.logger.Error("event aborted", "event", event.Number, "detector", name, "err", err)
			result.failed++
			continue
		}
		records := output.Records(event.Number, prop.Detector(), res.Charges, s.config.OutputUnits)
		s.logger.Debug("event propagated",
			"event", event.Number,
			"detector", name,
			"deposits", len(deposits),
			"charges", len(records),
			"collected", utils.SumSlice(collected(res.Charges)),
		)
		result.records = append(result.records, records...)
		result.tallies[name] = res.Tally
		if res.Samples != nil {
			result.samples[name] = res.Samples
		}
	}
	return result
}

func collected(charges []model.PropagatedCharge) []uint64 {
	amounts := make([]uint64, len(charges))
	for i := range charges {
		amounts[i] = charges[i].Charge
	}
	return amounts
}

// propagateEvents fans the events out to a fixed number of workers. Feeding
// stops when ctx is done; the events handed out before that are still
// completed, so the results always cover a prefix of evs.
func (s *session) propagateEvents(ctx context.Context, evs []events.Event, threads int) <-chan eventResult {
	jobs := make(chan int)
	dataflow := make(chan eventResult)

	var workersWg sync.WaitGroup
	for range max(threads, 1) {
		workersWg.Add(1)
		//worker
		go func() {
			defer workersWg.Done()
			for index := range jobs {
				dataflow <- s.processEvent(index, evs[index])
			}
		}()
	}

	go func() {
		defer close(jobs)
		for index := range evs {
			select {
			case jobs <- index:
			case <-ctx.Done():
				return
			}
		}
	}()

	// chan killer
	go func() {
		workersWg.Wait()
		close(dataflow)
	}()
	return dataflow
}

// collect hands the results to emit in event order.
func collect(dataflow <-chan eventResult, emit func(eventResult) error, progress func(done int)) error {
	pending := map[int]eventResult{}
	next, done := 0, 0
	var firstErr error
	for result := range dataflow {
		done++
		progress(done)
		pending[result.index] = result
		for {
			ready, some := pending[next]
			if !some {
				break
			}
			delete(pending, next)
			next++
			if firstErr != nil {
				continue
			}
			firstErr = emit(ready)
		}
	}
	return firstErr
}
