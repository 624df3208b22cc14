package matchers

import (
	"errors"
	"regexp"

	"github.com/kr/logfmt"

	"github.com/foamtail/foamtail/analyzer"
)

// KeyValOptions select the lines a KeyVal matcher reads: everything after
// Prefix is taken as logfmt key=value pairs.
type KeyValOptions struct {
	Name   string `yaml:"name"`
	Prefix string `yaml:"prefix"`
}

type pair struct {
	key, val string
}

type pairs []pair

func (p *pairs) HandleLogfmt(key, val []byte) error {
	*p = append(*p, pair{string(key), string(val)})
	return nil
}

// KeyVal writes one file and one series per key, so function objects that
// print "name key=value ..." can be followed without writing a regex.
type KeyVal struct {
	single
	name string
}

func NewKeyVal(opts KeyValOptions, conf analyzer.RouterConfig) (*KeyVal, error) {
	if opts.Name == "" || opts.Prefix == "" {
		return nil, errors.New("key value matcher needs a name and a prefix")
	}
	re, err := regexp.Compile(`^` + regexp.QuoteMeta(opts.Prefix) + `\s+(\S.*)$`)
	if err != nil {
		return nil, err
	}
	return &KeyVal{
		single: single{
			Router: analyzer.NewRouter(conf, "value"),
			re:     re,
		},
		name: opts.Name,
	}, nil
}

func (k *KeyVal) OnMatch(m analyzer.Match) error {
	var kv pairs
	if err := logfmt.Unmarshal([]byte(m.Group(1)), &kv); err != nil {
		return &analyzer.ParseError{Field: k.name, Text: m.Group(1), Err: err}
	}

	var firstErr error
	for _, p := range kv {
		if p.val == "" {
			continue
		}
		err := k.Record(m, k.name+"_"+p.key, analyzer.Value{Name: p.key, Text: p.val})
		if err == nil {
			continue
		}
		if !errors.Is(err, analyzer.ErrParse) {
			return err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
