package timeline

import (
	"math"
	"os"
	"strconv"

	"github.com/honeycombio/libhoney-go"
	"github.com/honeycombio/libhoney-go/transmission"
	"github.com/sirupsen/logrus"
)

// HoneycombOptions configures the Honeycomb collector.
type HoneycombOptions struct {
	WriteKey   string `long:"writekey" description:"Team write key" yaml:"writekey,omitempty"`
	Dataset    string `long:"dataset" description:"Name of the dataset. Forwarding is disabled when empty." yaml:"dataset,omitempty"`
	APIHost    string `long:"api_host" description:"Host for the Honeycomb API" default:"https://api.honeycomb.io/" yaml:"api_host"`
	SampleRate uint   `long:"samplerate" description:"Only send 1 / N time rows" default:"1" yaml:"samplerate"`
	DebugOut   bool   `long:"debug_stdout" description:"Instead of sending rows to Honeycomb, print them to STDOUT for debugging" yaml:"debug_stdout,omitempty"`
	Run        string `long:"run" description:"Value of the run field added to every event. Defaults to the log file name." yaml:"run,omitempty"`
}

// Honeycomb is a Store that sends every completed row as one event. It is
// meant to be added as collector of a Collection.
type Honeycomb struct {
	client  *libhoney.Client
	sampler *rowSampler
	run     string

	time    float64
	hasTime bool
	row     map[string]float64
	last    map[string]float64

	accumulations map[string]Accumulation
	defaultValue  float64
	extend        bool

	collectors []Store
}

// NewHoneycomb creates the libhoney client for opts.
func NewHoneycomb(opts HoneycombOptions) (*Honeycomb, error) {
	var sender transmission.Sender
	if opts.DebugOut {
		sender = &transmission.WriterSender{W: os.Stdout}
	}
	return newHoneycomb(opts, sender)
}

func newHoneycomb(opts HoneycombOptions, sender transmission.Sender) (*Honeycomb, error) {
	sampler, err := newRowSampler(opts.SampleRate)
	if err != nil {
		return nil, err
	}
	client, err := libhoney.NewClient(libhoney.ClientConfig{
		APIKey:       opts.WriteKey,
		Dataset:      opts.Dataset,
		APIHost:      opts.APIHost,
		Transmission: sender,
	})
	if err != nil {
		return nil, err
	}
	return &Honeycomb{
		client:        client,
		sampler:       sampler,
		run:           opts.Run,
		row:           make(map[string]float64),
		last:          make(map[string]float64),
		accumulations: make(map[string]Accumulation),
		defaultValue:  math.NaN(),
	}, nil
}

// SetTime sends the pending row when t starts a new one.
func (h *Honeycomb) SetTime(t float64) {
	for _, child := range h.collectors {
		child.SetTime(t)
	}
	if h.hasTime && h.time == t {
		return
	}
	h.flush()
	h.time = t
	h.hasTime = true
	h.row = make(map[string]float64)
}

func (h *Honeycomb) flush() {
	if !h.hasTime || len(h.row) == 0 {
		return
	}
	for name, prev := range h.last {
		if _, ok := h.row[name]; ok {
			continue
		}
		if h.extend {
			h.row[name] = prev
		} else {
			h.row[name] = h.defaultValue
		}
	}

	key := strconv.FormatFloat(h.time, 'g', -1, 64)
	keep := h.sampler.keep(key)
	ev := h.client.NewEvent()
	ev.SampleRate = h.sampler.rate
	ev.AddField("time", h.time)
	if h.run != "" {
		ev.AddField("run", h.run)
	}
	for name, v := range h.row {
		h.last[name] = v
		// JSON has no NaN
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		ev.AddField(name, v)
	}
	if !keep {
		logrus.WithFields(logrus.Fields{
			"time": key,
		}).Debug("Dropped timeline row due to sampling")
		return
	}
	if err := ev.SendPresampled(); err != nil {
		logrus.WithFields(logrus.Fields{
			"time":  key,
			"error": err,
		}).Error("Unexpected error sending timeline row to Honeycomb")
	}
}

// SetValue stores v in the pending row.
func (h *Honeycomb) SetValue(name string, v float64) {
	for _, child := range h.collectors {
		child.SetValue(name, v)
	}
	if !h.hasTime {
		return
	}
	prev, seen := h.row[name]
	if !seen {
		h.row[name] = v
		return
	}
	switch h.accumulations[name] {
	case Last:
		h.row[name] = v
	case Sum:
		h.row[name] = prev + v
	}
}

func (h *Honeycomb) SetAccumulator(name string, acc Accumulation) {
	for _, child := range h.collectors {
		child.SetAccumulator(name, acc)
	}
	h.accumulations[name] = acc
}

func (h *Honeycomb) SetDefault(v float64) {
	for _, child := range h.collectors {
		child.SetDefault(v)
	}
	h.defaultValue = v
}

func (h *Honeycomb) SetExtend(extend bool) {
	for _, child := range h.collectors {
		child.SetExtend(extend)
	}
	h.extend = extend
}

func (h *Honeycomb) AddCollector(child Store) {
	h.collectors = append(h.collectors, child)
}

// LatestData returns the pending row on top of the last sent values.
func (h *Honeycomb) LatestData(structured bool) map[string]interface{} {
	flat := make(map[string]float64, len(h.last)+len(h.row))
	for k, v := range h.last {
		flat[k] = v
	}
	for k, v := range h.row {
		flat[k] = v
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

// Close sends the pending row and waits for libhoney to drain.
func (h *Honeycomb) Close() {
	h.flush()
	h.row = make(map[string]float64)
	h.client.Close()
}
