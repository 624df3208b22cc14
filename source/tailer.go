package source

import (
	"context"
	"fmt"
	"io"

	"github.com/hpcloud/tail"
	"github.com/sirupsen/logrus"
)

// Tailer follows a log that is still being written, across truncation and
// re-creation of the file, until its context is cancelled.
type Tailer struct {
	t     *tail.Tail
	lines chan Line
	err   error
}

func NewTailer(ctx context.Context, path string, opts Options) (*Tailer, error) {
	var loc *tail.SeekInfo
	switch opts.ReadFrom {
	case "", "beginning":
		loc = &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	case "end":
		loc = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	default:
		return nil, fmt.Errorf("unknown read_from %q, use beginning or end", opts.ReadFrom)
	}

	t, err := tail.TailFile(path, tail.Config{
		Location: loc,
		ReOpen:   true,
		Follow:   true,
		Poll:     opts.Poll,
		Logger:   logrus.StandardLogger(),
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"file":      path,
		"read_from": opts.ReadFrom,
		"poll":      opts.Poll,
	}).Info("Following solver log")

	tl := &Tailer{t: t, lines: make(chan Line, 64)}
	go tl.run(ctx)
	return tl, nil
}

func (tl *Tailer) run(ctx context.Context) {
	defer close(tl.lines)
	var last int64
	for {
		select {
		case <-ctx.Done():
			tl.err = ctx.Err()
			return
		case line, ok := <-tl.t.Lines:
			if !ok {
				tl.err = tl.t.Err()
				return
			}
			if line.Err != nil {
				logrus.WithFields(logrus.Fields{
					"file":  tl.t.Filename,
					"error": line.Err,
				}).Warn("Error reading solver log")
				continue
			}

			// the offset only goes back when the file was truncated
			restart := false
			if off, err := tl.t.Tell(); err == nil {
				restart = off < last
				last = off
			}
			if restart {
				logrus.WithField("file", tl.t.Filename).Info("Solver log was truncated, starting over")
			}

			select {
			case tl.lines <- Line{Text: line.Text, Restart: restart}:
			case <-ctx.Done():
				tl.err = ctx.Err()
				return
			}
		}
	}
}

func (tl *Tailer) Lines() <-chan Line {
	return tl.lines
}

func (tl *Tailer) Err() error {
	return tl.err
}

// Close stops following the file.
func (tl *Tailer) Close() error {
	err := tl.t.Stop()
	tl.t.Cleanup()
	return err
}
