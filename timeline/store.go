// Package timeline contains the time series stores analyzers forward their
// values to.
package timeline

import (
	"fmt"
	"strings"
)

// Accumulation decides what happens when a series receives several values
// for the same time.
type Accumulation int

const (
	// First keeps the first value set at a time.
	First Accumulation = iota
	// Last keeps the most recent value.
	Last
	// Sum adds all values.
	Sum
)

func (a Accumulation) String() string {
	switch a {
	case First:
		return "first"
	case Last:
		return "last"
	case Sum:
		return "sum"
	}
	return fmt.Sprintf("Accumulation(%d)", int(a))
}

// ParseAccumulation converts first, last or sum.
func ParseAccumulation(s string) (Accumulation, error) {
	switch strings.ToLower(s) {
	case "first":
		return First, nil
	case "last":
		return Last, nil
	case "sum":
		return Sum, nil
	}
	return First, fmt.Errorf("unknown accumulation %q, expected first, last or sum", s)
}

// UnmarshalFlag lets go-flags parse an Accumulation option.
func (a *Accumulation) UnmarshalFlag(value string) error {
	acc, err := ParseAccumulation(value)
	if err != nil {
		return err
	}
	*a = acc
	return nil
}

// MarshalFlag is the inverse of UnmarshalFlag.
func (a Accumulation) MarshalFlag() (string, error) {
	return a.String(), nil
}

// Store receives the values of one or more analyzers, row by row. Every
// SetValue refers to the time of the latest SetTime.
type Store interface {
	SetTime(t float64)
	SetValue(name string, v float64)
	SetAccumulator(name string, acc Accumulation)
	SetDefault(v float64)
	SetExtend(extend bool)
	LatestData(structured bool) map[string]interface{}
	AddCollector(child Store)
}

func splitName(k string) (string, string) {
	i := strings.Index(k, "_")
	if i <= 0 || i == len(k)-1 {
		return k, ""
	}
	return k[:i], k[i+1:]
}

// nest groups name_rest keys below name. A plain key that also has
// underscored siblings is stored in its group as "value". If name_value
// exists as well, the keys of name are left flat.
func nest(flat map[string]float64) map[string]interface{} {
	grouped := make(map[string]bool)
	for k := range flat {
		if prefix, rest := splitName(k); rest != "" {
			grouped[prefix] = true
		}
	}
	for k := range flat {
		prefix, rest := splitName(k)
		if rest != "value" {
			continue
		}
		if _, plain := flat[prefix]; plain {
			grouped[prefix] = false
		}
	}

	out := make(map[string]interface{}, len(flat))
	for k, v := range flat {
		prefix, rest := splitName(k)
		if !grouped[prefix] {
			out[k] = v
			continue
		}
		if rest == "" {
			rest = "value"
		}
		group, ok := out[prefix].(map[string]interface{})
		if !ok {
			group = make(map[string]interface{})
			out[prefix] = group
		}
		group[rest] = v
	}
	return out
}
