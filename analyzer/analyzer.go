// Package analyzer feeds solver log lines through a set of matchers and
// keeps them in step with the simulation time found in the log.
//
// An Analyzer is not safe for concurrent use. Lines have to be handed to
// AnalyzeLine by a single goroutine, in log order.
package analyzer

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/foamtail/foamtail/metrics"
	"github.com/foamtail/foamtail/reporting"
	"github.com/foamtail/foamtail/timeline"
)

// TimeName is the name the time tracker is registered under.
const TimeName = "Time"

// CustomBucket collects the data of CustomNN_name matchers under name.
const CustomBucket = "Custom"

var customName = regexp.MustCompile(`^Custom\d+_(.+)$`)

// TimeListener is notified after every change of the simulation time.
type TimeListener interface {
	TimeChanged()
}

// DataSetter is optionally implemented by a TimeListener that wants a copy
// of the structured data after each time change.
type DataSetter interface {
	SetDataSet(data map[string]interface{})
}

// Options are read once when the analyzer is created.
type Options struct {
	// Strip removes leading and trailing whitespace from every line.
	Strip bool
	// TimeRegex overrides the time announcement pattern. It needs one
	// capture group holding the time.
	TimeRegex string
}

type entry struct {
	name     string
	matcher  Matcher
	patterns []*regexp.Regexp
}

// Analyzer dispatches lines to its matchers and owns the simulation time.
type Analyzer struct {
	strip bool

	entries []*entry
	byName  map[string]*entry
	tracker *TimeTracker

	time     string
	step     int
	phase    string
	lineNr   int
	progress []string

	dir      string
	timeline timeline.Store

	listeners     []TimeListener
	resetTriggers []func()
	triggers      triggers
}

// New creates an analyzer with its time tracker already registered.
func New(opts Options) (*Analyzer, error) {
	tracker, err := NewTimeTracker(opts.TimeRegex)
	if err != nil {
		return nil, err
	}
	a := &Analyzer{
		strip:  opts.Strip,
		byName: make(map[string]*entry),
	}
	if err := a.AddMatcher(TimeName, tracker); err != nil {
		return nil, err
	}
	return a, nil
}

// AddMatcher registers m under name and attaches it to the analyzer.
// Matchers see each line in registration order.
func (a *Analyzer) AddMatcher(name string, m Matcher) error {
	if _, ok := a.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMatcher, name)
	}
	if tt, ok := m.(*TimeTracker); ok {
		if a.tracker != nil {
			return ErrSecondTracker
		}
		a.tracker = tt
	}
	e := &entry{
		name:     name,
		matcher:  m,
		patterns: m.Patterns(),
	}
	a.entries = append(a.entries, e)
	a.byName[name] = e
	m.Attach(a)

	if a.dir != "" {
		if ds, ok := m.(DirectorySetter); ok {
			if err := ds.SetDirectory(a.dir); err != nil {
				return err
			}
		}
	}
	if a.timeline != nil {
		if ts, ok := m.(TimelineSetter); ok {
			ts.SetTimeline(a.timeline)
		}
	}
	logrus.WithFields(logrus.Fields{
		"matcher":  name,
		"patterns": len(e.patterns),
	}).Debug("Registered matcher")
	return nil
}

// Matcher returns the matcher registered under name.
func (a *Analyzer) Matcher(name string) (Matcher, error) {
	e, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMatcher, name)
	}
	return e.matcher, nil
}

// MatcherNames lists the registered names in registration order.
func (a *Analyzer) MatcherNames() []string {
	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.name
	}
	return names
}

// TimeTracker returns the tracker owned by the analyzer.
func (a *Analyzer) TimeTracker() *TimeTracker {
	return a.tracker
}

// AnalyzeLine hands line to every matcher. Parse errors are logged and do
// not keep later matchers from seeing the line; any other error is
// returned immediately.
func (a *Analyzer) AnalyzeLine(line string) error {
	a.lineNr++
	metrics.LinesAnalyzed.Inc()
	if a.strip {
		line = strings.TrimSpace(line)
	}

	for _, e := range a.entries {
		for i, re := range e.patterns {
			idx := re.FindStringSubmatchIndex(line)
			if idx == nil {
				continue
			}
			err := e.matcher.OnMatch(Match{
				Line:    line,
				Number:  a.lineNr,
				Pattern: i,
				Regexp:  re,
				Indices: idx,
				Phase:   a.phase,
			})
			if err == nil {
				continue
			}
			if errors.Is(err, ErrParse) {
				metrics.ParseErrors.WithLabelValues(e.name).Inc()
				reporting.ParseError(e.name, line, err)
				continue
			}
			return fmt.Errorf("matcher %s, line %d: %w", e.name, a.lineNr, err)
		}
	}
	return nil
}

// LineNumber is the number of lines analyzed so far.
func (a *Analyzer) LineNumber() int {
	return a.lineNr
}

// Time is the current simulation time as found in the log.
func (a *Analyzer) Time() string {
	return a.time
}

// SetTime changes the simulation time. Setting the current value again does
// nothing. Otherwise the progress output is reset, every matcher and
// listener is told about the change, due triggers fire and listeners that
// want it receive a copy of the structured data.
func (a *Analyzer) SetTime(t string) {
	if t == a.time {
		return
	}
	a.progress = a.progress[:0]
	a.time = t
	a.step++
	metrics.TimeChanges.Inc()

	for _, e := range a.entries {
		e.matcher.TimeChanged()
	}
	for _, l := range a.listeners {
		l.TimeChanged()
	}
	a.triggers.check(t)

	var data map[string]interface{}
	for _, l := range a.listeners {
		ds, ok := l.(DataSetter)
		if !ok {
			continue
		}
		if data == nil {
			data = a.CollectData(true)
		}
		ds.SetDataSet(deepCopy(data))
	}
}

// Step is the number of time changes so far. It keeps counting across
// ResetFile so a shared timeline stays ordered.
func (a *Analyzer) Step() int {
	return a.step
}

// Phase is the solver phase currently reported to matchers.
func (a *Analyzer) Phase() string {
	return a.phase
}

// SetPhase changes the phase passed along with later matches. It stays in
// effect until changed again.
func (a *Analyzer) SetPhase(phase string) {
	if phase != a.phase {
		logrus.WithFields(logrus.Fields{
			"phase": phase,
			"time":  a.time,
		}).Debug("Solver phase changed")
	}
	a.phase = phase
}

// AddProgress appends a fragment to the progress line of the current time.
func (a *Analyzer) AddProgress(text string) {
	a.progress = append(a.progress, text)
}

// Progress returns the progress fragments collected since the last time
// change.
func (a *Analyzer) Progress() string {
	return strings.Join(a.progress, " ")
}

// SetDirectory makes every file writing matcher write below dir.
func (a *Analyzer) SetDirectory(dir string) error {
	a.dir = dir
	for _, e := range a.entries {
		ds, ok := e.matcher.(DirectorySetter)
		if !ok {
			continue
		}
		if err := ds.SetDirectory(dir); err != nil {
			return fmt.Errorf("matcher %s: %w", e.name, err)
		}
	}
	return nil
}

// Directory is the output directory, "" if none was set.
func (a *Analyzer) Directory() string {
	return a.dir
}

// SetTimeline makes every series forwarding matcher use store.
func (a *Analyzer) SetTimeline(store timeline.Store) {
	a.timeline = store
	for _, e := range a.entries {
		if ts, ok := e.matcher.(TimelineSetter); ok {
			ts.SetTimeline(store)
		}
	}
}

// CollectData gathers the latest data of every matcher that has any, keyed
// by matcher name. Data of CustomNN_name matchers is also available under
// Custom/name.
func (a *Analyzer) CollectData(structured bool) map[string]interface{} {
	data := make(map[string]interface{})
	for _, e := range a.entries {
		if d := e.matcher.LatestData(structured); len(d) > 0 {
			data[e.name] = d
		}
	}

	custom, ok := data[CustomBucket].(map[string]interface{})
	if !ok {
		custom = make(map[string]interface{})
	}
	for name, d := range data {
		if m := customName.FindStringSubmatch(name); m != nil {
			custom[m[1]] = d
		}
	}
	if len(custom) > 0 {
		data[CustomBucket] = custom
	}
	return data
}

// AddTimeListener registers l for time change notifications.
func (a *Analyzer) AddTimeListener(l TimeListener) error {
	if l == nil {
		return ErrListenerContract
	}
	if v := reflect.ValueOf(l); v.Kind() == reflect.Ptr && v.IsNil() {
		return ErrListenerContract
	}
	a.listeners = append(a.listeners, l)
	return nil
}

// AddResetFileTrigger registers fn to run on ResetFile.
func (a *Analyzer) AddResetFileTrigger(fn func()) {
	a.resetTriggers = append(a.resetTriggers, fn)
}

// ResetFile tells everyone interested that the log starts over. Matchers
// implementing Resetter are reset before the registered triggers run.
func (a *Analyzer) ResetFile() {
	for _, e := range a.entries {
		if r, ok := e.matcher.(Resetter); ok {
			r.ResetFile()
		}
	}
	for _, fn := range a.resetTriggers {
		fn()
	}
}

// AddTrigger runs fn once, the first time the simulation time reaches at.
func (a *Analyzer) AddTrigger(at float64, fn func()) {
	a.triggers.add(trigger{at: at, fn: fn, once: true})
}

// AddRangeTrigger runs fn on every time change while at <= time <= until
// and forgets it once until has passed.
func (a *Analyzer) AddRangeTrigger(at, until float64, fn func()) {
	a.triggers.add(trigger{at: at, fn: fn, until: until, hasUntil: true})
}

// AddRepeatingTrigger runs fn on every time change from at on.
func (a *Analyzer) AddRepeatingTrigger(at float64, fn func()) {
	a.triggers.add(trigger{at: at, fn: fn})
}

// PendingTriggers is the number of triggers that may still fire.
func (a *Analyzer) PendingTriggers() int {
	return a.triggers.len()
}

// TearDown detaches and tears down every matcher, closing their files.
// The analyzer has no matchers afterwards.
func (a *Analyzer) TearDown() error {
	var firstErr error
	for _, e := range a.entries {
		e.matcher.Attach(nil)
		if err := e.matcher.TearDown(); err != nil {
			logrus.WithFields(logrus.Fields{
				"matcher": e.name,
				"error":   err,
			}).Error("Error tearing down matcher")
			if firstErr == nil {
				firstErr = fmt.Errorf("matcher %s: %w", e.name, err)
			}
		}
	}
	a.entries = nil
	a.byName = make(map[string]*entry)
	a.tracker = nil
	a.listeners = nil
	return firstErr
}

func deepCopy(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		return deepCopy(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = copyValue(e)
		}
		return out
	case []float64:
		return append([]float64(nil), v...)
	case []string:
		return append([]string(nil), v...)
	}
	return v
}
