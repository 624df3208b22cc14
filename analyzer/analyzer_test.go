package analyzer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foamtail/foamtail/timeline"
)

// countingMatcher records what the analyzer did to it.
type countingMatcher struct {
	Base
	re          *regexp.Regexp
	err         error
	matches     []Match
	timeChanges int
	tornDown    bool
}

func newCountingMatcher(expr string) *countingMatcher {
	return &countingMatcher{re: regexp.MustCompile(expr)}
}

func (c *countingMatcher) Patterns() []*regexp.Regexp { return []*regexp.Regexp{c.re} }

func (c *countingMatcher) OnMatch(m Match) error {
	c.matches = append(c.matches, m)
	return c.err
}

func (c *countingMatcher) TimeChanged() { c.timeChanges++ }

func (c *countingMatcher) TearDown() error {
	c.tornDown = true
	return nil
}

// valueMatcher writes the number after "value" through a Router.
type valueMatcher struct {
	Router
	re *regexp.Regexp
}

func newValueMatcher(conf RouterConfig) *valueMatcher {
	return &valueMatcher{
		Router: NewRouter(conf, "v"),
		re:     regexp.MustCompile(`^value (?P<v>\S+)`),
	}
}

func (v *valueMatcher) Patterns() []*regexp.Regexp { return []*regexp.Regexp{v.re} }

func (v *valueMatcher) OnMatch(m Match) error {
	return v.Record(m, "value", Value{Name: "v", Text: m.Group(1)})
}

type listener struct {
	changes int
	data    []map[string]interface{}
}

func (l *listener) TimeChanged() { l.changes++ }

func (l *listener) SetDataSet(d map[string]interface{}) { l.data = append(l.data, d) }

type plainListener struct{ changes int }

func (l *plainListener) TimeChanged() { l.changes++ }

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := New(Options{Strip: true})
	require.NoError(t, err)
	return a
}

func feed(t *testing.T, a *Analyzer, lines ...string) {
	t.Helper()
	for _, l := range lines {
		require.NoError(t, a.AnalyzeLine(l))
	}
}

func TestSetTimeCascadesOnce(t *testing.T) {
	a := newAnalyzer(t)
	m := newCountingMatcher(`never`)
	require.NoError(t, a.AddMatcher("m", m))
	l := &listener{}
	require.NoError(t, a.AddTimeListener(l))

	a.SetTime("1")
	a.SetTime("1")
	assert.Equal(t, 1, m.timeChanges)
	assert.Equal(t, 1, l.changes)
	assert.Len(t, l.data, 1)

	a.SetTime("2")
	assert.Equal(t, 2, m.timeChanges)
}

func TestTimeFromLog(t *testing.T) {
	a := newAnalyzer(t)
	feed(t, a, "Create mesh for time = 0", "", "Time = 0.005", "Courant Number mean: 0 max: 0")
	assert.Equal(t, "0.005", a.Time())

	mesh, ok := a.TimeTracker().MeshTime()
	assert.True(t, ok)
	assert.Equal(t, "0", mesh)

	// malformed time is not an error and does not change the time
	feed(t, a, "Time = zero")
	assert.Equal(t, "0.005", a.Time())
}

func TestFallbackDisabledAfterPrimary(t *testing.T) {
	a := newAnalyzer(t)
	feed(t, a, "Iteration: 3")
	assert.Equal(t, "3", a.Time())
	assert.True(t, a.TimeTracker().UsesFallback())

	hook := test.NewGlobal()
	defer hook.Reset()
	level := logrus.GetLevel()
	logrus.SetLevel(logrus.DebugLevel)
	defer logrus.SetLevel(level)

	feed(t, a, "Time = 10", "Iteration: 4")
	assert.Equal(t, "10", a.Time())
	assert.False(t, a.TimeTracker().UsesFallback())

	entry := hook.LastEntry()
	if assert.NotNil(t, entry) {
		assert.Equal(t, logrus.DebugLevel, entry.Level)
		assert.Equal(t, "Iteration: 4", entry.Data["line"])
	}
}

func TestCustomTimeRegex(t *testing.T) {
	a, err := New(Options{TimeRegex: `^t=(\S+)$`})
	require.NoError(t, err)
	require.NoError(t, a.AnalyzeLine("t=4"))
	assert.Equal(t, "4", a.Time())

	_, err = New(Options{TimeRegex: `^t=\S+$`})
	assert.Error(t, err, "no capture group")
	_, err = New(Options{TimeRegex: `(`})
	assert.Error(t, err)
}

func TestTriggerFiring(t *testing.T) {
	a := newAnalyzer(t)
	var fired []string
	a.AddTrigger(1.0, func() { fired = append(fired, "once@"+a.Time()) })
	a.AddRangeTrigger(2.0, 4.0, func() { fired = append(fired, "range@"+a.Time()) })

	for _, tm := range []string{"0.5", "1.0", "2.0", "3.0", "4.0", "5.0"} {
		a.SetTime(tm)
	}
	assert.Equal(t, []string{"once@1.0", "range@2.0", "range@3.0", "range@4.0"}, fired)
	assert.Equal(t, 0, a.PendingTriggers())
}

func TestTriggersFireInRegistrationOrder(t *testing.T) {
	a := newAnalyzer(t)
	var fired []string
	a.AddRangeTrigger(1.0, 10.0, func() { fired = append(fired, "late-threshold") })
	a.AddTrigger(0.5, func() { fired = append(fired, "early-threshold") })
	a.AddRepeatingTrigger(0, func() { fired = append(fired, "always") })

	a.SetTime("2")
	assert.Equal(t, []string{"late-threshold", "early-threshold", "always"}, fired)
}

func TestTriggersSeeUpdatedMatchers(t *testing.T) {
	a := newAnalyzer(t)
	m := newCountingMatcher(`never`)
	require.NoError(t, a.AddMatcher("m", m))
	seen := -1
	a.AddTrigger(1, func() { seen = m.timeChanges })
	a.SetTime("1")
	assert.Equal(t, 1, seen)
}

func TestNonNumericTimeSkipsTriggers(t *testing.T) {
	a := newAnalyzer(t)
	fired := 0
	a.AddTrigger(0, func() { fired++ })
	a.SetTime("start")
	assert.Equal(t, 0, fired)
	assert.Equal(t, 1, a.PendingTriggers())
}

func TestUnmatchedMatcherContributesNothing(t *testing.T) {
	dir := t.TempDir()
	a := newAnalyzer(t)
	v := newValueMatcher(RouterConfig{})
	require.NoError(t, a.AddMatcher("value", v))
	require.NoError(t, a.SetDirectory(dir))
	a.SetTimeline(timeline.NewCollection())

	feed(t, a, "Time = 1", "something else", "Time = 2")
	assert.Empty(t, a.CollectData(false))
	assert.Empty(t, a.CollectData(true))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	require.NoError(t, a.TearDown())
}

func TestCollectDataCustomBucket(t *testing.T) {
	a := newAnalyzer(t)
	require.NoError(t, a.AddMatcher("Custom01_pressure", newValueMatcher(RouterConfig{NoFiles: true})))
	require.NoError(t, a.AddMatcher("plain", newValueMatcher(RouterConfig{NoFiles: true})))
	feed(t, a, "Time = 1", "value 3.5")

	data := a.CollectData(false)
	assert.Equal(t, map[string]interface{}{"v": 3.5}, data["Custom01_pressure"])
	assert.Equal(t, map[string]interface{}{"v": 3.5}, data["plain"])
	custom, ok := data[CustomBucket].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, data["Custom01_pressure"], custom["pressure"])
	assert.NotContains(t, custom, "plain")

	structured := a.CollectData(true)
	assert.Equal(t, map[string]interface{}{
		"value": map[string]interface{}{"v": 3.5},
	}, structured["plain"])
}

func TestListenerGetsDeepCopy(t *testing.T) {
	a := newAnalyzer(t)
	require.NoError(t, a.AddMatcher("value", newValueMatcher(RouterConfig{NoFiles: true})))
	first, second := &listener{}, &listener{}
	require.NoError(t, a.AddTimeListener(first))
	require.NoError(t, a.AddTimeListener(second))
	plain := &plainListener{}
	require.NoError(t, a.AddTimeListener(plain))

	feed(t, a, "Time = 1", "value 2", "Time = 2")
	require.Len(t, first.data, 2)
	require.Len(t, second.data, 2)
	assert.Equal(t, 2, plain.changes)

	group := first.data[1]["value"].(map[string]interface{})["value"].(map[string]interface{})
	assert.Equal(t, 2.0, group["v"])
	group["v"] = 99.0
	other := second.data[1]["value"].(map[string]interface{})["value"].(map[string]interface{})
	assert.Equal(t, 2.0, other["v"])
}

func TestAddTimeListenerContract(t *testing.T) {
	a := newAnalyzer(t)
	assert.Equal(t, ErrListenerContract, a.AddTimeListener(nil))
	var typedNil *listener
	assert.Equal(t, ErrListenerContract, a.AddTimeListener(typedNil))
}

func TestMatcherRegistration(t *testing.T) {
	a := newAnalyzer(t)
	require.NoError(t, a.AddMatcher("m", newCountingMatcher(`x`)))
	err := a.AddMatcher("m", newCountingMatcher(`y`))
	assert.True(t, errors.Is(err, ErrDuplicateMatcher))
	err = a.AddMatcher(TimeName, newCountingMatcher(`y`))
	assert.True(t, errors.Is(err, ErrDuplicateMatcher))

	tt, err := NewTimeTracker("")
	require.NoError(t, err)
	assert.Equal(t, ErrSecondTracker, a.AddMatcher("other time", tt))

	_, err = a.Matcher("missing")
	assert.True(t, errors.Is(err, ErrUnknownMatcher))
	got, err := a.Matcher("m")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, []string{TimeName, "m"}, a.MatcherNames())
}

func TestDispatchOrderAndErrors(t *testing.T) {
	a := newAnalyzer(t)
	first := newCountingMatcher(`^line`)
	first.err = &ParseError{Field: "x", Text: "y", Err: errors.New("bad")}
	second := newCountingMatcher(`^line`)
	require.NoError(t, a.AddMatcher("first", first))
	require.NoError(t, a.AddMatcher("second", second))

	require.NoError(t, a.AnalyzeLine("  line one  "))
	require.Len(t, second.matches, 1, "parse errors do not stop later matchers")
	assert.Equal(t, "line one", second.matches[0].Line)
	assert.Equal(t, 1, second.matches[0].Number)

	fatal := errors.New("disk full")
	first.err = fatal
	err := a.AnalyzeLine("line two")
	assert.True(t, errors.Is(err, fatal))
	assert.Len(t, second.matches, 1, "other errors stop the line")
}

func TestPhaseIsPassedToMatches(t *testing.T) {
	dir := t.TempDir()
	a := newAnalyzer(t)
	v := newValueMatcher(RouterConfig{})
	require.NoError(t, a.AddMatcher("value", v))
	require.NoError(t, a.SetDirectory(dir))

	feed(t, a, "Time = 1", "value 1")
	a.SetPhase("air")
	feed(t, a, "value 2")
	a.SetPhase("")
	require.NoError(t, a.TearDown())

	assert.FileExists(t, filepath.Join(dir, "value"))
	assert.FileExists(t, filepath.Join(dir, "value_air"))
}

func TestRouterWindow(t *testing.T) {
	start, end := 1.0, 2.0
	a := newAnalyzer(t)
	require.NoError(t, a.AddMatcher("value", newValueMatcher(RouterConfig{
		NoFiles:   true,
		StartTime: &start,
		EndTime:   &end,
	})))
	store := timeline.NewCollection()
	a.SetTimeline(store)

	feed(t, a, "value 7") // no time yet, silently skipped
	for _, tm := range []string{"0.5", "1.0", "1.5", "2.0", "2.5"} {
		feed(t, a, "Time = "+tm, "value "+tm)
	}
	assert.Equal(t, []float64{1.0, 1.5, 2.0}, store.Times())
	v, _ := store.Series("v")
	assert.Equal(t, []float64{1.0, 1.5, 2.0}, v)
}

func TestRouterIterationMode(t *testing.T) {
	start := 100.0
	dir := t.TempDir()
	a := newAnalyzer(t)
	require.NoError(t, a.AddMatcher("value", newValueMatcher(RouterConfig{
		Iterations: true,
		StartTime:  &start,
	})))
	require.NoError(t, a.SetDirectory(dir))
	store := timeline.NewCollection()
	a.SetTimeline(store)

	feed(t, a, "value 5", "Time = 1", "value 6", "value 7", "Time = 2.5", "value 8")
	assert.Equal(t, []float64{1, 2}, store.Times())
	v, ok := store.Series("v")
	require.True(t, ok)
	assert.Equal(t, []float64{6, 8}, v)
	require.NoError(t, a.TearDown())

	raw, err := os.ReadFile(filepath.Join(dir, "value"))
	require.NoError(t, err)
	assert.Equal(t, "# time \tv\n\t5\n1\t6\n2.5\t8\n", string(raw))
	raw, err = os.ReadFile(filepath.Join(dir, "value_2"))
	require.NoError(t, err)
	assert.Equal(t, "# time \tv\n1\t7\n", string(raw))
}

func TestStepCountsTimeChanges(t *testing.T) {
	a := newAnalyzer(t)
	assert.Equal(t, 0, a.Step())
	feed(t, a, "Time = 1", "Time = 1", "Time = 2")
	assert.Equal(t, 2, a.Step())
	a.ResetFile()
	feed(t, a, "Time = 1")
	assert.Equal(t, 3, a.Step(), "steps keep counting after a restart")
}

func TestRouterMalformedValue(t *testing.T) {
	dir := t.TempDir()
	a := newAnalyzer(t)
	require.NoError(t, a.AddMatcher("value", newValueMatcher(RouterConfig{})))
	require.NoError(t, a.SetDirectory(dir))
	store := timeline.NewCollection()
	a.SetTimeline(store)

	feed(t, a, "Time = 1", "value oops")
	_, ok := store.Series("v")
	assert.False(t, ok)
	assert.Empty(t, a.CollectData(false))
	require.NoError(t, a.TearDown())

	raw, err := os.ReadFile(filepath.Join(dir, "value"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "1\toops\n")
}

func TestProgressTemplate(t *testing.T) {
	a := newAnalyzer(t)
	v := newValueMatcher(RouterConfig{NoFiles: true, Progress: "v=${v}"})
	require.NoError(t, a.AddMatcher("value", v))

	feed(t, a, "Time = 1", "value 3")
	assert.Equal(t, "v=3", a.Progress())
	assert.True(t, v.DidProgress())

	feed(t, a, "Time = 2")
	assert.Equal(t, "", a.Progress())
	assert.False(t, v.DidProgress())
}

// resettingMatcher counts matches since the last ResetFile.
type resettingMatcher struct {
	countingMatcher
	resets int
}

func (m *resettingMatcher) ResetFile() {
	m.resets++
	m.matches = nil
}

func TestResetFileTriggers(t *testing.T) {
	a := newAnalyzer(t)
	m := &resettingMatcher{countingMatcher: *newCountingMatcher(`^x$`)}
	require.NoError(t, a.AddMatcher("m", m))
	var order []string
	a.AddResetFileTrigger(func() { order = append(order, fmt.Sprintf("first %d", m.resets)) })
	a.AddResetFileTrigger(func() { order = append(order, "second") })

	feed(t, a, "x", "x")
	a.ResetFile()
	assert.Equal(t, 1, m.resets)
	assert.Empty(t, m.matches)
	assert.Equal(t, []string{"first 1", "second"}, order, "matchers are reset before triggers run")
}

func TestTearDownDetaches(t *testing.T) {
	a := newAnalyzer(t)
	m := newCountingMatcher(`x`)
	require.NoError(t, a.AddMatcher("m", m))
	assert.NotNil(t, m.Parent())

	require.NoError(t, a.TearDown())
	assert.Nil(t, m.Parent())
	assert.True(t, m.tornDown)
	assert.Empty(t, a.MatcherNames())
}

func TestMatchHelpers(t *testing.T) {
	re := regexp.MustCompile(`^(?P<name>\w+) = (\S+)(?: (x))?`)
	line := "p = 4"
	m := Match{Line: line, Regexp: re, Indices: re.FindStringSubmatchIndex(line)}
	assert.Equal(t, "p", m.Named("name"))
	assert.Equal(t, "4", m.Group(2))
	assert.Equal(t, "", m.Group(3))
	assert.Equal(t, "", m.Group(9))
	assert.Equal(t, []string{"p = 4", "p", "4", ""}, m.Groups())
	assert.Equal(t, "4 for p", m.Expand("$2 for ${name}"))
	assert.True(t, strings.HasPrefix((&ParseError{Field: "f", Text: "t", Err: errors.New("e")}).Error(), "field f"))
}
