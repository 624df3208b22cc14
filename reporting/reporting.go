// Package reporting logs the lines foamtail could not make sense of without
// letting a misbehaving solver flood the log.
package reporting

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/honeycombio/dynsampler-go"
	"github.com/sirupsen/logrus"
)

var (
	mu         sync.Mutex
	sampler    dynsampler.Sampler
	suppressed int64
)

// Init starts the per key throttle. perKeyPerSec warnings of one kind are
// logged each second; the rest is counted. Without Init every warning is
// logged.
func Init(perKeyPerSec int) {
	mu.Lock()
	defer mu.Unlock()

	s := &dynsampler.PerKeyThroughput{
		ClearFrequencySec:      1,
		PerKeyThroughputPerSec: perKeyPerSec,
	}
	if err := s.Start(); err != nil {
		logrus.WithField("error", err).Error("Unexpected error initializing warning throttle")
		return
	}
	sampler = s
}

func shouldLog(key string) bool {
	mu.Lock()
	s := sampler
	mu.Unlock()
	if s == nil {
		return true
	}
	rate := s.GetSampleRate(key)
	if rate <= 1 || rand.Intn(rate) == 0 {
		return true
	}
	atomic.AddInt64(&suppressed, 1)
	return false
}

// ParseError reports a match whose captures could not be converted.
func ParseError(matcher, line string, err error) {
	if !shouldLog("parse:" + matcher) {
		return
	}
	logrus.WithFields(logrus.Fields{
		"matcher": matcher,
		"line":    line,
		"error":   err,
	}).Warn("Skipped: matched line failed to parse")
}

// Skip reports a matched line that was deliberately left out. Skips are
// expected during normal operation and only show up at debug level.
func Skip(line, reason string) {
	SkipWithFields(line, reason, nil)
}

// SkipWithFields is Skip with additional context.
func SkipWithFields(line, reason string, fields logrus.Fields) {
	logrus.WithFields(logrus.Fields{
		"line":   line,
		"reason": reason,
	}).WithFields(fields).Debug("Skipped: line ignored")
}

// WriteFailure reports an output error that ends the run.
func WriteFailure(err error) {
	logrus.WithFields(logrus.Fields{
		"error": err,
	}).Error("Unable to write analysis output")
}

// Suppressed is the number of warnings dropped by the throttle so far.
func Suppressed() int64 {
	return atomic.LoadInt64(&suppressed)
}

// Summary logs how many warnings were throttled, if any.
func Summary() {
	if n := Suppressed(); n > 0 {
		logrus.WithField("suppressed", n).Info("Some parse warnings were throttled")
	}
}
