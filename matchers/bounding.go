package matchers

import (
	"regexp"

	"github.com/foamtail/foamtail/analyzer"
)

var boundingRegex = regexp.MustCompile(
	`^bounding (\w+), min: ` + number + ` max: ` + number + ` average: ` + number)

// Bounding records the range a turbulence variable was clipped to.
type Bounding struct {
	single
}

func NewBounding(conf analyzer.RouterConfig) *Bounding {
	return &Bounding{single{
		Router: analyzer.NewRouter(conf, "min", "max", "average"),
		re:     boundingRegex,
	}}
}

func (b *Bounding) OnMatch(m analyzer.Match) error {
	field := m.Group(1)
	return b.Record(m, "bounding_"+field,
		analyzer.Value{Name: field + "_min", Text: m.Group(2)},
		analyzer.Value{Name: field + "_max", Text: m.Group(3)},
		analyzer.Value{Name: field + "_average", Text: m.Group(4)},
	)
}
