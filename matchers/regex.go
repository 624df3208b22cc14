package matchers

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/foamtail/foamtail/analyzer"
)

// RegexOptions describe a user defined matcher. Name picks the output file;
// every capture group of Expression becomes a column and a series, named
// after the group or "value N" for unnamed groups.
type RegexOptions struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
	Progress   string `yaml:"progress,omitempty"`
}

// ParseRegexOption reads the name=expression form used on the command line.
func ParseRegexOption(s string) (RegexOptions, error) {
	name, expr, ok := strings.Cut(s, "=")
	if !ok || name == "" || expr == "" {
		return RegexOptions{}, fmt.Errorf("custom matcher %q is not of the form name=regex", s)
	}
	return RegexOptions{Name: name, Expression: expr}, nil
}

// CustomName is the registration name of the n-th user defined matcher.
// The analyzer also lists data of these names under its Custom bucket.
func CustomName(n int, name string) string {
	return fmt.Sprintf("Custom%02d_%s", n, name)
}

// Regex is a user defined matcher.
type Regex struct {
	single
	name   string
	fields []string
}

func NewRegex(opts RegexOptions, conf analyzer.RouterConfig) (*Regex, error) {
	if opts.Name == "" {
		return nil, errors.New("custom matcher needs a name")
	}
	re, err := regexp.Compile(opts.Expression)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"LineRegex": opts.Expression,
		}).Debug("Could not compile line regex")
		return nil, err
	}
	if re.NumSubexp() == 0 {
		return nil, fmt.Errorf("custom matcher %s: expression has no capture groups", opts.Name)
	}

	fields := make([]string, 0, re.NumSubexp())
	for i, name := range re.SubexpNames() {
		if i == 0 {
			continue
		}
		if name == "" {
			name = fmt.Sprintf("value %d", i)
		}
		fields = append(fields, name)
	}
	if opts.Progress != "" {
		conf.Progress = opts.Progress
	}
	return &Regex{
		single: single{
			Router: analyzer.NewRouter(conf, fields...),
			re:     re,
		},
		name:   opts.Name,
		fields: fields,
	}, nil
}

// Fields are the column names in group order.
func (r *Regex) Fields() []string {
	return r.fields
}

func (r *Regex) OnMatch(m analyzer.Match) error {
	values := make([]analyzer.Value, len(r.fields))
	for i, field := range r.fields {
		values[i] = analyzer.Value{Name: field, Text: m.Group(i + 1)}
	}
	logrus.WithFields(logrus.Fields{
		"matcher": r.name,
		"line":    m.Line,
	}).Debug("Custom matcher hit")
	return r.Record(m, r.name, values...)
}
