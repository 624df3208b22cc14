package matchers

import (
	"regexp"

	"github.com/foamtail/foamtail/analyzer"
)

var continuityRegex = regexp.MustCompile(
	`^time step continuity errors : sum local = ` + number + `, global = ` + number + `, cumulative = ` + number)

// Continuity records the continuity errors of each time step.
type Continuity struct {
	single
}

func NewContinuity(conf analyzer.RouterConfig) *Continuity {
	return &Continuity{single{
		Router: analyzer.NewRouter(conf, "Local", "Global", "Cumulative"),
		re:     continuityRegex,
	}}
}

func (c *Continuity) OnMatch(m analyzer.Match) error {
	return c.Record(m, "continuity",
		analyzer.Value{Name: "Local", Text: m.Group(1)},
		analyzer.Value{Name: "Global", Text: m.Group(2)},
		analyzer.Value{Name: "Cumulative", Text: m.Group(3)},
	)
}
