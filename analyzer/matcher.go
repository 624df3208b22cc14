package analyzer

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/foamtail/foamtail/timeline"
)

var (
	ErrDuplicateMatcher = errors.New("matcher name already registered")
	ErrUnknownMatcher   = errors.New("no matcher registered under that name")
	ErrListenerContract = errors.New("time listener must implement TimeChanged")
	ErrSecondTracker    = errors.New("analyzer already owns a time tracker")

	// ErrParse marks recoverable match failures. The analyzer logs them and
	// carries on with the next matcher.
	ErrParse = errors.New("capture could not be parsed")
)

// ParseError is a captured field that is not the number it should be.
type ParseError struct {
	Field string
	Text  string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("field %s: cannot parse %q: %v", e.Field, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// Match is one successful pattern match handed to a Matcher.
type Match struct {
	Line    string
	Number  int
	Pattern int
	Regexp  *regexp.Regexp
	Indices []int
	Phase   string
}

// Group returns capture group i, or "" when it did not participate.
func (m Match) Group(i int) string {
	if 2*i+1 >= len(m.Indices) || m.Indices[2*i] < 0 {
		return ""
	}
	return m.Line[m.Indices[2*i]:m.Indices[2*i+1]]
}

// Groups returns all capture groups, the whole match first.
func (m Match) Groups() []string {
	out := make([]string, len(m.Indices)/2)
	for i := range out {
		out[i] = m.Group(i)
	}
	return out
}

// Named returns the group called name.
func (m Match) Named(name string) string {
	if m.Regexp == nil {
		return ""
	}
	if i := m.Regexp.SubexpIndex(name); i > 0 {
		return m.Group(i)
	}
	return ""
}

// Expand fills $1 or ${name} references in template from the match.
func (m Match) Expand(template string) string {
	if m.Regexp == nil {
		return template
	}
	return string(m.Regexp.ExpandString(nil, template, m.Line, m.Indices))
}

// Parent is the view of the Analyzer a matcher gets while attached.
type Parent interface {
	Time() string
	SetTime(t string)
	Phase() string
	SetPhase(phase string)
	AddProgress(text string)
	LineNumber() int
	// Step counts the time changes seen so far, 0 before the first one.
	Step() int
}

// Matcher is a pluggable unit of log analysis. The analyzer matches every
// line against Patterns and calls OnMatch for each hit.
//
// OnMatch errors wrapping ErrParse are logged; any other error stops the
// analysis of the line and is returned by AnalyzeLine.
type Matcher interface {
	Attach(p Parent)
	Patterns() []*regexp.Regexp
	OnMatch(m Match) error
	TimeChanged()
	LatestData(structured bool) map[string]interface{}
	TearDown() error
}

// DirectorySetter is implemented by matchers that write files.
type DirectorySetter interface {
	SetDirectory(dir string) error
}

// TimelineSetter is implemented by matchers that forward series.
type TimelineSetter interface {
	SetTimeline(store timeline.Store)
}

// Resetter is implemented by matchers that keep state derived from earlier
// lines of the same run. ResetFile is called when the log starts over.
type Resetter interface {
	ResetFile()
}

// Base implements the bookkeeping parts of Matcher.
type Base struct {
	parent Parent
}

func (b *Base) Attach(p Parent) {
	b.parent = p
}

// Parent returns the analyzer the matcher is attached to, or nil.
func (b *Base) Parent() Parent {
	return b.parent
}

// Time is the parent's current time, "" when detached.
func (b *Base) Time() string {
	if b.parent == nil {
		return ""
	}
	return b.parent.Time()
}

func (b *Base) TimeChanged() {}

func (b *Base) LatestData(structured bool) map[string]interface{} {
	return nil
}

func (b *Base) TearDown() error {
	return nil
}
