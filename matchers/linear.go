package matchers

import (
	"regexp"

	"github.com/foamtail/foamtail/analyzer"
)

var linearRegex = regexp.MustCompile(
	`^(\w+):\s+Solving for (\w+), Initial residual = ` + number + `, Final residual = ` + number + `, No Iterations ` + number)

// LinearSolver records the residuals of every linear solve. The series of
// a variable carries its initial residual; with the default accumulation
// that is the residual of the first solve within a time step.
type LinearSolver struct {
	single
	solvers map[string]string
}

func NewLinearSolver(conf analyzer.RouterConfig) *LinearSolver {
	return &LinearSolver{
		single: single{
			Router: analyzer.NewRouter(conf, "initial", "final", "iterations"),
			re:     linearRegex,
		},
		solvers: make(map[string]string),
	}
}

func (l *LinearSolver) OnMatch(m analyzer.Match) error {
	solver, field := m.Group(1), m.Group(2)
	l.solvers[field] = solver
	return l.Record(m, "linear_"+field,
		analyzer.Value{Name: field, Text: m.Group(3)},
		analyzer.Value{Name: field + "_final", Text: m.Group(4)},
		analyzer.Value{Name: field + "_iterations", Text: m.Group(5)},
	)
}

// Solver returns the name of the linear solver last used for field.
func (l *LinearSolver) Solver(field string) string {
	return l.solvers[field]
}
