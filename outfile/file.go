// Package outfile writes per-variable data files for a solver run while
// keeping the number of simultaneously open handles bounded.
package outfile

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle position of a File.
type State int

const (
	// Unopened files have never been written to.
	Unopened State = iota
	// Open files hold a live handle.
	Open
	// TemporarilyClosed files released their handle to respect the pool
	// capacity. The next write reopens them in append mode.
	TemporarilyClosed
	// Closed files are finished for this run and are never reopened.
	Closed
)

func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Open:
		return "open"
	case TemporarilyClosed:
		return "temporarily-closed"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// TimeLabel is the first column title of every header row.
const TimeLabel = "time"

// File is one tab separated data file. The header row is written the first
// time the physical file is opened and never again.
type File struct {
	path   string
	titles []string
	footer string

	state State
	fp    *os.File
	buf   *bufio.Writer
}

func newFile(path string, titles []string, footer string) *File {
	return &File{
		path:   path,
		titles: titles,
		footer: footer,
	}
}

// Path is the location of the file on disk.
func (f *File) Path() string {
	return f.path
}

// State reports where the file is in its lifecycle.
func (f *File) State() State {
	return f.state
}

func (f *File) open() error {
	switch f.state {
	case Open:
		return nil
	case Closed:
		return fmt.Errorf("file %s is closed for this run", f.path)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if f.state == Unopened {
		flags |= os.O_TRUNC
	}
	fp, err := os.OpenFile(f.path, flags, 0644)
	if err != nil {
		return err
	}
	f.fp = fp
	f.buf = bufio.NewWriter(fp)

	fresh := f.state == Unopened
	f.state = Open
	if fresh {
		logrus.WithFields(logrus.Fields{
			"file": f.path,
		}).Debug("Created output file")
		if len(f.titles) > 0 {
			f.buf.WriteString("# " + TimeLabel)
			for _, t := range f.titles {
				f.buf.WriteString(" \t" + t)
			}
			f.buf.WriteString("\n")
		}
	}
	return nil
}

// write appends one row and flushes it. The file has to be open.
func (f *File) write(time string, data []string) error {
	if f.state != Open {
		return fmt.Errorf("file %s is %s", f.path, f.state)
	}
	row := time
	if len(data) > 0 {
		row += "\t" + strings.Join(data, "\t")
	}
	if _, err := f.buf.WriteString(row + "\n"); err != nil {
		return err
	}
	return f.buf.Flush()
}

// close releases the handle. A temporary close keeps the file reopenable;
// otherwise the footer, if any, is written first.
func (f *File) close(temporary bool) error {
	if !temporary && f.state == TemporarilyClosed && f.footer != "" {
		if err := f.open(); err != nil {
			return err
		}
	}
	if f.state != Open {
		if !temporary && f.state != Unopened {
			f.state = Closed
		}
		return nil
	}
	if !temporary && f.footer != "" {
		f.buf.WriteString(f.footer + "\n")
	}
	ferr := f.buf.Flush()
	cerr := f.fp.Close()
	f.fp = nil
	f.buf = nil
	if temporary {
		f.state = TemporarilyClosed
	} else {
		f.state = Closed
	}
	if ferr != nil {
		return ferr
	}
	return cerr
}
