package timeline

import (
	"math"

	"github.com/sirupsen/logrus"
)

// Collection keeps every series in memory, aligned to a common list of
// times. Rows that a series did not receive a value for are filled with the
// default value, or with its previous value when extending.
type Collection struct {
	times  []float64
	series map[string][]float64
	order  []string

	accumulations map[string]Accumulation
	defaultValue  float64
	extend        bool

	// names set since the last SetTime
	touched map[string]bool

	collectors []Store
}

// NewCollection returns an empty store. Missing values default to NaN.
func NewCollection() *Collection {
	return &Collection{
		series:        make(map[string][]float64),
		accumulations: make(map[string]Accumulation),
		defaultValue:  math.NaN(),
		touched:       make(map[string]bool),
	}
}

// SetTime starts a new row unless t is the time of the current one.
func (c *Collection) SetTime(t float64) {
	for _, child := range c.collectors {
		child.SetTime(t)
	}
	if n := len(c.times); n > 0 && c.times[n-1] == t {
		return
	}
	c.times = append(c.times, t)
	for _, name := range c.order {
		c.series[name] = append(c.series[name], c.fill(name))
	}
	c.touched = make(map[string]bool)
}

func (c *Collection) fill(name string) float64 {
	vals := c.series[name]
	if c.extend && len(vals) > 0 {
		return vals[len(vals)-1]
	}
	return c.defaultValue
}

// SetValue records v for name at the current time, combining repeated
// values according to the accumulation of name.
func (c *Collection) SetValue(name string, v float64) {
	for _, child := range c.collectors {
		child.SetValue(name, v)
	}
	if len(c.times) == 0 {
		logrus.WithFields(logrus.Fields{
			"name":  name,
			"value": v,
		}).Debug("Dropping timeline value, no time set yet")
		return
	}

	vals, ok := c.series[name]
	if !ok {
		vals = make([]float64, len(c.times))
		for i := range vals {
			vals[i] = c.defaultValue
		}
		c.order = append(c.order, name)
	}
	last := len(vals) - 1
	if !c.touched[name] {
		vals[last] = v
	} else {
		switch c.accumulations[name] {
		case First:
		case Last:
			vals[last] = v
		case Sum:
			vals[last] += v
		}
	}
	c.series[name] = vals
	c.touched[name] = true
}

// SetAccumulator sets how repeated values for name are combined.
func (c *Collection) SetAccumulator(name string, acc Accumulation) {
	for _, child := range c.collectors {
		child.SetAccumulator(name, acc)
	}
	c.accumulations[name] = acc
}

// SetDefault sets the value used for rows a series has no data for.
func (c *Collection) SetDefault(v float64) {
	for _, child := range c.collectors {
		child.SetDefault(v)
	}
	c.defaultValue = v
}

// SetExtend makes missing rows repeat the previous value of the series.
func (c *Collection) SetExtend(extend bool) {
	for _, child := range c.collectors {
		child.SetExtend(extend)
	}
	c.extend = extend
}

// AddCollector forwards every following update to child as well.
func (c *Collection) AddCollector(child Store) {
	c.collectors = append(c.collectors, child)
}

// Times returns the row times.
func (c *Collection) Times() []float64 {
	return append([]float64(nil), c.times...)
}

// Names returns the series names in order of appearance.
func (c *Collection) Names() []string {
	return append([]string(nil), c.order...)
}

// Series returns the values of one series, one per row.
func (c *Collection) Series(name string) ([]float64, bool) {
	vals, ok := c.series[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), vals...), true
}

// LatestData returns the value of every series in the most recent row.
func (c *Collection) LatestData(structured bool) map[string]interface{} {
	flat := make(map[string]float64, len(c.order))
	for _, name := range c.order {
		vals := c.series[name]
		flat[name] = vals[len(vals)-1]
	}
	if structured {
		return nest(flat)
	}
	out := make(map[string]interface{}, len(flat))
	for k, v := range flat {
		out[k] = v
	}
	return out
}
