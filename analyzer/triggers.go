package analyzer

import (
	"strconv"

	"github.com/foamtail/foamtail/metrics"
)

type trigger struct {
	at       float64
	fn       func()
	once     bool
	until    float64
	hasUntil bool
}

// triggers fires callbacks as the simulation time passes their threshold,
// in the order they were added.
type triggers struct {
	list []trigger
}

func (ts *triggers) add(t trigger) {
	ts.list = append(ts.list, t)
}

func (ts *triggers) len() int {
	return len(ts.list)
}

// check fires every due trigger for time. Removal happens after the pass.
func (ts *triggers) check(time string) {
	t, err := strconv.ParseFloat(time, 64)
	if err != nil {
		return
	}

	var remove []int
	for i, tr := range ts.list {
		if t < tr.at {
			continue
		}
		if tr.hasUntil && t > tr.until {
			remove = append(remove, i)
			continue
		}
		tr.fn()
		metrics.TriggerFires.Inc()
		if tr.once {
			remove = append(remove, i)
		}
	}
	if len(remove) == 0 {
		return
	}

	kept := ts.list[:0]
	next := 0
	for i, tr := range ts.list {
		if next < len(remove) && remove[next] == i {
			next++
			continue
		}
		kept = append(kept, tr)
	}
	ts.list = kept
}
