package analyzer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/foamtail/foamtail/reporting"
)

const (
	DefaultTimeRegex     = `^Time = (\S+)`
	DefaultFallbackRegex = `^Iteration: (\S+)`
	DefaultMeshRegex     = `^Create mesh for time = (\S+)`
)

const (
	patternPrimary = iota
	patternFallback
	patternMesh
)

// TimeTracker finds the simulation time in the log and sets it on the
// analyzer. Logs that never announce a time the usual way fall back to
// iteration markers; after the first regular time announcement the fallback
// is ignored for the rest of the run.
type TimeTracker struct {
	Base

	patterns    []*regexp.Regexp
	primarySeen bool

	meshTime string
	hasMesh  bool
}

// NewTimeTracker compiles primary, or DefaultTimeRegex if it is empty.
func NewTimeTracker(primary string) (*TimeTracker, error) {
	if primary == "" {
		primary = DefaultTimeRegex
	}
	re, err := regexp.Compile(primary)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"TimeRegex": primary,
		}).Debug("Could not compile time regex")
		return nil, err
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("time regex %q needs a capture group for the time", primary)
	}
	return &TimeTracker{
		patterns: []*regexp.Regexp{
			re,
			regexp.MustCompile(DefaultFallbackRegex),
			regexp.MustCompile(DefaultMeshRegex),
		},
	}, nil
}

func (t *TimeTracker) Patterns() []*regexp.Regexp {
	return t.patterns
}

func (t *TimeTracker) OnMatch(m Match) error {
	switch m.Pattern {
	case patternPrimary:
		t.primarySeen = true
		return t.update(m.Group(1))
	case patternFallback:
		if t.primarySeen {
			reporting.Skip(m.Line, "iteration marker ignored, the log announces its time")
			return nil
		}
		return t.update(m.Group(1))
	case patternMesh:
		if t.hasMesh {
			return nil
		}
		text := strings.TrimSpace(m.Group(1))
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return &ParseError{Field: "mesh time", Text: text, Err: err}
		}
		t.meshTime = text
		t.hasMesh = true
	}
	return nil
}

func (t *TimeTracker) update(text string) error {
	text = strings.TrimSpace(text)
	if _, err := strconv.ParseFloat(text, 64); err != nil {
		return &ParseError{Field: "time", Text: text, Err: err}
	}
	if p := t.Parent(); p != nil {
		p.SetTime(text)
	}
	return nil
}

// UsesFallback reports whether the time currently comes from iteration
// markers.
func (t *TimeTracker) UsesFallback() bool {
	return !t.primarySeen
}

// MeshTime is the time the mesh was created for, if the log said so.
func (t *TimeTracker) MeshTime() (string, bool) {
	return t.meshTime, t.hasMesh
}
