package outfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/sirupsen/logrus"

	"github.com/foamtail/foamtail/metrics"
)

// MaxOpenFiles is the process wide capacity of every Collection created
// without WithMaxOpen. It is set once at startup.
var MaxOpenFiles = 10

// ErrClosed is returned when writing to a collection after Close.
var ErrClosed = errors.New("output collection is closed")

// WriteError describes a failed write together with the pool state at the
// time of the failure.
type WriteError struct {
	Name    string
	Open    []string
	Tracked int
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s failed (%d tracked, open: %v): %v", e.Name, e.Tracked, e.Open, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Option configures a Collection.
type Option func(*Collection)

// WithTitles sets the column titles written as header of every new file.
func WithTitles(titles ...string) Option {
	return func(c *Collection) {
		c.titles = titles
	}
}

// WithSingleFile disables the _2, _3 suffixes for names written more than
// once at the same time.
func WithSingleFile() Option {
	return func(c *Collection) {
		c.singleFile = true
	}
}

// WithMaxOpen overrides MaxOpenFiles for this collection.
func WithMaxOpen(n int) Option {
	return func(c *Collection) {
		c.maxOpen = n
	}
}

// WithFooter sets a line written when a file is closed at the end of a run.
func WithFooter(footer string) Option {
	return func(c *Collection) {
		c.footer = footer
	}
}

// Collection is a set of named output files below one directory. At most
// maxOpen of them hold a handle at any time; the least recently written one
// is temporarily closed to make room.
type Collection struct {
	dir        string
	titles     []string
	footer     string
	singleFile bool
	maxOpen    int

	mu       sync.Mutex
	files    map[string]*File
	openList *simplelru.LRU[string, *File]
	closed   bool

	namer Namer
}

// NewCollection creates an empty collection. The directory is created on
// the first write.
func NewCollection(dir string, opts ...Option) (*Collection, error) {
	c := &Collection{
		dir:     dir,
		maxOpen: MaxOpenFiles,
		files:   make(map[string]*File),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxOpen < 1 {
		return nil, fmt.Errorf("maximum number of open files must be at least 1, got %d", c.maxOpen)
	}
	lru, err := simplelru.NewLRU[string, *File](c.maxOpen, c.evict)
	if err != nil {
		return nil, err
	}
	c.openList = lru
	return c, nil
}

func (c *Collection) evict(name string, f *File) {
	if f.State() != Open {
		return
	}
	if err := f.close(true); err != nil {
		logrus.WithFields(logrus.Fields{
			"file":  f.Path(),
			"error": err,
		}).Warn("Error while temporarily closing output file")
	}
	metrics.FileEvictions.Inc()
	metrics.OpenFiles.Dec()
	logrus.WithFields(logrus.Fields{
		"file": name,
	}).Debug("Temporarily closed least recently used output file")
}

// Dir is the directory the files are written to.
func (c *Collection) Dir() string {
	return c.dir
}

// Write appends one row to the file for name. Unless the collection is a
// single file collection, a name written repeatedly at the same time is
// redirected to name_2, name_3 and so on.
func (c *Collection) Write(name, time string, data []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	fName := name
	if !c.singleFile {
		fName = c.namer.Name(name, time)
	}

	f, ok := c.files[fName]
	if !ok {
		if err := os.MkdirAll(c.dir, 0755); err != nil {
			return c.writeError(fName, err)
		}
		f = newFile(filepath.Join(c.dir, fName), c.titles, c.footer)
		c.files[fName] = f
	}

	if f.State() != Open {
		// make room first so the pool never exceeds its capacity
		if c.openList.Len() >= c.maxOpen {
			c.openList.RemoveOldest()
		}
		if err := f.open(); err != nil {
			return c.writeError(fName, err)
		}
		metrics.OpenFiles.Inc()
	}
	// moves fName to the most recently used end, evicting the oldest
	// entry when this pushes the list over capacity
	c.openList.Add(fName, f)

	if err := f.write(time, data); err != nil {
		return c.writeError(fName, err)
	}
	return nil
}

// Namer assigns physical names to logical ones. The n-th use of a name at
// the same time, n > 1, becomes name_n. Only the most recent time is
// remembered. The zero value is ready to use.
type Namer struct {
	time  string
	calls map[string]int
}

// Name counts one more use of name at time and returns the physical name.
func (n *Namer) Name(name, time string) string {
	if n.calls == nil || time != n.time {
		n.time = time
		n.calls = make(map[string]int)
	}
	n.calls[name]++
	if cnt := n.calls[name]; cnt > 1 {
		return name + "_" + strconv.Itoa(cnt)
	}
	return name
}

func (c *Collection) writeError(name string, err error) error {
	return &WriteError{
		Name:    name,
		Open:    c.openList.Keys(),
		Tracked: len(c.files),
		Err:     err,
	}
}

// Names lists the physical file names created so far.
func (c *Collection) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.files))
	for n := range c.files {
		names = append(names, n)
	}
	return names
}

// OpenNames lists the files currently holding a handle, least recently
// written first.
func (c *Collection) OpenNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openList.Keys()
}

// State reports the lifecycle state of a physical file name.
func (c *Collection) State(name string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.files[name]; ok {
		return f.State()
	}
	return Unopened
}

// Close finishes every tracked file. Later writes fail with ErrClosed.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	// open files first, so reopening for a footer stays within capacity
	for _, name := range c.openList.Keys() {
		if err := c.files[name].close(false); err != nil && firstErr == nil {
			firstErr = c.writeError(name, err)
		}
		metrics.OpenFiles.Dec()
	}
	for name, f := range c.files {
		if err := f.close(false); err != nil && firstErr == nil {
			firstErr = c.writeError(name, err)
		}
	}
	// every entry is closed by now, so the eviction callback is a no-op
	c.openList.Purge()
	return firstErr
}
