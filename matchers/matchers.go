// Package matchers holds the matchers for the lines an OpenFOAM solver
// writes on every time step, plus the user configurable ones.
package matchers

import (
	"regexp"

	"github.com/foamtail/foamtail/analyzer"
)

// number matches a numeric token without a trailing separator.
const number = `([^,\s]+)`

// Entry is a matcher together with the name it is registered under.
type Entry struct {
	Name    string
	Matcher analyzer.Matcher
}

// Standard returns the matchers every run gets, in registration order.
func Standard(conf analyzer.RouterConfig) []Entry {
	return []Entry{
		{"Continuity", NewContinuity(conf)},
		{"Linear", NewLinearSolver(conf)},
		{"Execution", NewExecutionTime(conf)},
		{"Courant", NewCourant(conf)},
		{"Bounding", NewBounding(conf)},
		{"Phase", NewPhase()},
	}
}

// Register adds entries to a in order and stops at the first failure.
func Register(a *analyzer.Analyzer, entries []Entry) error {
	for _, e := range entries {
		if err := a.AddMatcher(e.Name, e.Matcher); err != nil {
			return err
		}
	}
	return nil
}

// single is the shape most solver matchers share: one pattern, one file.
type single struct {
	analyzer.Router
	re *regexp.Regexp
}

func (s *single) Patterns() []*regexp.Regexp {
	return []*regexp.Regexp{s.re}
}
