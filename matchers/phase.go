package matchers

import (
	"regexp"

	"github.com/foamtail/foamtail/analyzer"
)

var phaseRegex = regexp.MustCompile(`^Solving for (fluid|solid) region (\S+)`)

// Phase follows the region a multi region solver is working on. Everything
// matched afterwards is written with the region name as suffix.
type Phase struct {
	analyzer.Base
}

func NewPhase() *Phase {
	return &Phase{}
}

func (p *Phase) Patterns() []*regexp.Regexp {
	return []*regexp.Regexp{phaseRegex}
}

func (p *Phase) OnMatch(m analyzer.Match) error {
	if parent := p.Parent(); parent != nil {
		parent.SetPhase(m.Group(2))
	}
	return nil
}
