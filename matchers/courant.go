package matchers

import (
	"regexp"

	"github.com/foamtail/foamtail/analyzer"
)

var courantRegex = regexp.MustCompile(`^Courant Number mean: ` + number + ` max: ` + number)

type Courant struct {
	single
}

func NewCourant(conf analyzer.RouterConfig) *Courant {
	return &Courant{single{
		Router: analyzer.NewRouter(conf, "mean", "max"),
		re:     courantRegex,
	}}
}

func (c *Courant) OnMatch(m analyzer.Match) error {
	return c.Record(m, "courant",
		analyzer.Value{Name: "mean", Text: m.Group(1)},
		analyzer.Value{Name: "max", Text: m.Group(2)},
	)
}
