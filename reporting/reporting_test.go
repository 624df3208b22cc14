package reporting

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestParseErrorLogsWarning(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	ParseError("continuity", "time step continuity errors : sum local = x", errors.New("bad number"))

	entry := hook.LastEntry()
	if assert.NotNil(t, entry) {
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		assert.Equal(t, "continuity", entry.Data["matcher"])
	}
}

func TestSkipIsDebugOnly(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	Skip("anything", "no matcher")
	assert.Empty(t, hook.AllEntries())
}

func TestSkipWithFieldsAtDebug(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()
	level := logrus.GetLevel()
	logrus.SetLevel(logrus.DebugLevel)
	defer logrus.SetLevel(level)

	SkipWithFields("Iteration: 5", "iteration marker ignored", logrus.Fields{"matcher": "Time"})

	entry := hook.LastEntry()
	if assert.NotNil(t, entry) {
		assert.Equal(t, logrus.DebugLevel, entry.Level)
		assert.Equal(t, "Iteration: 5", entry.Data["line"])
		assert.Equal(t, "iteration marker ignored", entry.Data["reason"])
		assert.Equal(t, "Time", entry.Data["matcher"])
	}
}
