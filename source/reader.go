package source

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
)

// Reader reads a log once from start to end. Gzip compressed logs are
// recognized by their magic number. A last line without a newline is
// still delivered.
type Reader struct {
	lines  chan Line
	err    error
	closer io.Closer
}

func NewReader(ctx context.Context, path string) (*Reader, error) {
	r := &Reader{lines: make(chan Line, 64)}

	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		in = f
		r.closer = f
	}

	br := bufio.NewReader(in)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			r.Close()
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"file": path,
		}).Debug("Reading gzip compressed log")
		br = bufio.NewReader(gz)
	}

	go r.run(ctx, br)
	return r, nil
}

func (r *Reader) run(ctx context.Context, br *bufio.Reader) {
	defer close(r.lines)
	for {
		if err := ctx.Err(); err != nil {
			r.err = err
			return
		}
		text, err := br.ReadString('\n')
		if len(text) > 0 {
			select {
			case r.lines <- Line{Text: strings.TrimRight(text, "\r\n")}:
			case <-ctx.Done():
				r.err = ctx.Err()
				return
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			r.err = err
			return
		}
	}
}

func (r *Reader) Lines() <-chan Line {
	return r.lines
}

func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
