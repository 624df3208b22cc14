package matchers

import (
	"regexp"
	"strconv"

	"github.com/foamtail/foamtail/analyzer"
)

var executionRegex = regexp.MustCompile(`^ExecutionTime = ` + number + ` s\s+ClockTime = ` + number + ` s`)

// ExecutionTime records the cpu and wall clock time the solver reports.
// The file keeps the running totals next to the time spent in the step;
// the series are the per step values.
type ExecutionTime struct {
	single
	lastCPU   float64
	lastClock float64
}

func NewExecutionTime(conf analyzer.RouterConfig) *ExecutionTime {
	return &ExecutionTime{single: single{
		Router: analyzer.NewRouter(conf, "cpu", "clock", "cpuStep", "clockStep"),
		re:     executionRegex,
	}}
}

func (e *ExecutionTime) OnMatch(m analyzer.Match) error {
	cpuText, clockText := m.Group(1), m.Group(2)
	cpu, err := strconv.ParseFloat(cpuText, 64)
	if err != nil {
		return &analyzer.ParseError{Field: "cpu", Text: cpuText, Err: err}
	}
	clock, err := strconv.ParseFloat(clockText, 64)
	if err != nil {
		return &analyzer.ParseError{Field: "clock", Text: clockText, Err: err}
	}
	cpuStep, clockStep := cpu-e.lastCPU, clock-e.lastClock
	e.lastCPU, e.lastClock = cpu, clock

	return e.Record(m, "executionTime",
		analyzer.Value{Text: cpuText, FileOnly: true},
		analyzer.Value{Text: clockText, FileOnly: true},
		analyzer.Value{Name: "cpu", Text: formatFloat(cpuStep)},
		analyzer.Value{Name: "clock", Text: formatFloat(clockStep)},
	)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ResetFile forgets the totals of the previous run so the first step of
// the new one is measured from zero.
func (e *ExecutionTime) ResetFile() {
	e.lastCPU, e.lastClock = 0, 0
}
