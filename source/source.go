// Package source hands out the lines of a solver log, either of a finished
// (possibly gzip compressed) log or of one a running solver still writes.
package source

import (
	"context"
	"errors"
)

// Options are the "tail." command line options.
type Options struct {
	Follow   bool   `long:"follow" description:"Keep following the log as the solver writes it instead of stopping at its end." yaml:"follow,omitempty"`
	ReadFrom string `long:"read_from" description:"Location in the file from which to start following. Values: beginning, end" default:"beginning" yaml:"read_from"`
	Poll     bool   `long:"poll" description:"Poll the file for changes instead of using inotify. Needed on some network filesystems." yaml:"poll,omitempty"`
}

// Line is one line of the log without its line ending. Restart is set on
// the first line read after the log was truncated, as happens when a
// solver is restarted into the same log file.
type Line struct {
	Text    string
	Restart bool
}

// Source produces lines on a channel that is closed at the end of the log
// or when the context is cancelled. Err is valid once the channel is
// closed.
type Source interface {
	Lines() <-chan Line
	Err() error
	Close() error
}

var ErrFollowStdin = errors.New("cannot follow standard input, it is read to its end")

// Open returns a Tailer when following and a Reader otherwise. path "-"
// reads standard input.
func Open(ctx context.Context, path string, opts Options) (Source, error) {
	if !opts.Follow {
		return NewReader(ctx, path)
	}
	if path == "-" {
		return nil, ErrFollowStdin
	}
	return NewTailer(ctx, path, opts)
}
