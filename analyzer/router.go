package analyzer

import (
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/foamtail/foamtail/outfile"
	"github.com/foamtail/foamtail/reporting"
	"github.com/foamtail/foamtail/timeline"
)

// RouterConfig selects where a Router sends its values. The zero value
// writes files and forwards every value to the timeline.
type RouterConfig struct {
	NoFiles     bool
	NoTimelines bool
	SingleFile  bool

	// StartTime and EndTime limit timeline forwarding to an inclusive
	// window. Nil means unbounded.
	StartTime *float64
	EndTime   *float64

	// Iterations forwards values to the timeline at the analyzer's step
	// count instead of the simulation time. The window is ignored. Files
	// keep the simulation time.
	Iterations bool

	Accumulation timeline.Accumulation

	// Progress is an expansion template ($1, ${name}) producing one
	// progress fragment per match.
	Progress string

	// Subdir is appended to the analyzer directory for this router's files.
	Subdir string
}

// Value is one extracted field. Text is written to the file verbatim; the
// timeline and LatestData get the parsed number unless FileOnly is set.
type Value struct {
	Name     string
	Text     string
	FileOnly bool
}

// Router turns matches into file rows and timeline values. Matchers embed
// it and call Record from OnMatch.
type Router struct {
	Base

	conf   RouterConfig
	titles []string

	files       *outfile.Collection
	store       timeline.Store
	accSet      map[string]bool
	didProgress bool

	// namer mirrors the naming of the file collection so groups follow the
	// physical files even without files
	namer  outfile.Namer
	latest map[string]float64
	groups map[string]map[string]float64
}

// NewRouter returns a router to embed in a matcher.
func NewRouter(conf RouterConfig, titles ...string) Router {
	return Router{
		conf:   conf,
		titles: titles,
		accSet: make(map[string]bool),
		latest: make(map[string]float64),
		groups: make(map[string]map[string]float64),
	}
}

// Config returns the configuration the router was created with.
func (r *Router) Config() RouterConfig {
	return r.conf
}

// SetDirectory starts a new file collection below dir.
func (r *Router) SetDirectory(dir string) error {
	if r.conf.NoFiles {
		return nil
	}
	if r.files != nil {
		if err := r.files.Close(); err != nil {
			return err
		}
	}
	opts := []outfile.Option{outfile.WithTitles(r.titles...)}
	if r.conf.SingleFile {
		opts = append(opts, outfile.WithSingleFile())
	}
	files, err := outfile.NewCollection(filepath.Join(dir, r.conf.Subdir), opts...)
	if err != nil {
		return err
	}
	r.files = files
	r.namer = outfile.Namer{}
	return nil
}

// Files is the current file collection, nil before SetDirectory.
func (r *Router) Files() *outfile.Collection {
	return r.files
}

// SetTimeline sets the store values are forwarded to.
func (r *Router) SetTimeline(store timeline.Store) {
	r.store = store
	r.accSet = make(map[string]bool)
}

// TimeChanged starts a new analysis cycle.
func (r *Router) TimeChanged() {
	r.didProgress = false
}

// DidProgress reports whether the last recorded match produced progress
// output.
func (r *Router) DidProgress() bool {
	return r.didProgress
}

// Record writes values as one row of file and forwards them to the
// timeline. A non numeric value is left out of the timeline and reported
// as a ParseError after everything else has been recorded.
func (r *Router) Record(m Match, file string, values ...Value) error {
	r.didProgress = false
	suffix := ""
	if m.Phase != "" {
		suffix = "_" + m.Phase
	}
	now := r.Time()
	name := file + suffix

	if r.files != nil {
		texts := make([]string, len(values))
		for i, v := range values {
			texts[i] = v.Text
		}
		if err := r.files.Write(name, now, texts); err != nil {
			return err
		}
	}

	physical := name
	if !r.conf.SingleFile {
		physical = r.namer.Name(name, now)
	}
	var parseErr error
	names := make([]string, 0, len(values))
	nums := make([]float64, 0, len(values))
	group := r.groups[physical]
	if group == nil {
		group = make(map[string]float64)
		r.groups[physical] = group
	}
	for _, v := range values {
		if v.FileOnly {
			continue
		}
		f, err := strconv.ParseFloat(v.Text, 64)
		if err != nil {
			if parseErr == nil {
				parseErr = &ParseError{Field: v.Name, Text: v.Text, Err: err}
			}
			continue
		}
		names = append(names, v.Name+suffix)
		nums = append(nums, f)
		r.latest[v.Name+suffix] = f
		group[v.Name] = f
	}

	if t, ok := r.timelineTime(m, name, now); ok {
		r.store.SetTime(t)
		for i, series := range names {
			if !r.accSet[series] {
				r.store.SetAccumulator(series, r.conf.Accumulation)
				r.accSet[series] = true
			}
			r.store.SetValue(series, nums[i])
		}
	}

	if r.conf.Progress != "" {
		if p := r.Parent(); p != nil {
			p.AddProgress(m.Expand(r.conf.Progress))
			r.didProgress = true
		}
	}
	return parseErr
}

// timelineTime decides whether values are forwarded and at which time.
func (r *Router) timelineTime(m Match, name, now string) (float64, bool) {
	if r.store == nil || r.conf.NoTimelines {
		return 0, false
	}
	if r.conf.Iterations {
		step := 0
		if p := r.Parent(); p != nil {
			step = p.Step()
		}
		if step == 0 {
			reporting.SkipWithFields(m.Line, "no time step yet, not forwarded to the timeline",
				logrus.Fields{"file": name})
			return 0, false
		}
		return float64(step), true
	}
	t, err := strconv.ParseFloat(now, 64)
	if err != nil {
		reporting.SkipWithFields(m.Line, "no numeric time yet, not forwarded to the timeline",
			logrus.Fields{"file": name, "time": now})
		return 0, false
	}
	if r.conf.StartTime != nil && t < *r.conf.StartTime {
		return 0, false
	}
	if r.conf.EndTime != nil && t > *r.conf.EndTime {
		return 0, false
	}
	return t, true
}

// LatestData returns the last value of every series, or, structured, the
// last values grouped by physical file name. A name repeated within one
// time step has its own group, linear_p_2 next to linear_p.
func (r *Router) LatestData(structured bool) map[string]interface{} {
	out := make(map[string]interface{})
	if structured {
		for file, group := range r.groups {
			if len(group) == 0 {
				continue
			}
			g := make(map[string]interface{}, len(group))
			for k, v := range group {
				g[k] = v
			}
			out[file] = g
		}
		return out
	}
	for k, v := range r.latest {
		out[k] = v
	}
	return out
}

// TearDown closes every file of the router.
func (r *Router) TearDown() error {
	if r.files == nil {
		return nil
	}
	err := r.files.Close()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"dir":   r.files.Dir(),
			"error": err,
		}).Error("Error closing output files")
	}
	r.files = nil
	return err
}
