package ulogger_test

import (
	"bytes"
	"testing"

	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/ordishs/gocore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroLoggerLevels(t *testing.T) {
	var buf bytes.Buffer

	logger := ulogger.New("test", ulogger.WithWriter(&buf), ulogger.WithLevel("WARN"))
	require.IsType(t, &ulogger.ZLoggerWrapper{}, logger)

	logger.Infof("hidden %d", 1)
	logger.Warnf("shown %d", 2)

	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")
	assert.Equal(t, int(gocore.WARN), logger.LogLevel())
}

func TestZeroLoggerSetLogLevel(t *testing.T) {
	var buf bytes.Buffer

	logger := ulogger.NewZeroLogger("test", ulogger.WithWriter(&buf))
	assert.Equal(t, int(gocore.INFO), logger.LogLevel())

	logger.SetLogLevel("DEBUG")
	logger.Debugf("debug line")
	assert.Contains(t, buf.String(), "debug line")
	assert.Equal(t, int(gocore.DEBUG), logger.LogLevel())
}

func TestZeroLoggerNewInheritsWriterAndLevel(t *testing.T) {
	var buf bytes.Buffer

	parent := ulogger.New("parent", ulogger.WithWriter(&buf), ulogger.WithLevel("ERROR"))
	child := parent.New("child")

	child.Warnf("not written")
	child.Errorf("error line")

	assert.NotContains(t, buf.String(), "not written")
	assert.Contains(t, buf.String(), "error line")
	assert.Equal(t, parent.LogLevel(), child.LogLevel())

	dup := parent.Duplicate(ulogger.WithLevel("DEBUG"))
	assert.Equal(t, int(gocore.DEBUG), dup.LogLevel())
}

func TestGoCoreLoggerSelectedByType(t *testing.T) {
	logger := ulogger.New("gocore_test", ulogger.WithLoggerType("gocore"))
	assert.IsType(t, &ulogger.GoCoreLogger{}, logger)
}

type recordingT struct {
	lines []string
}

func (r *recordingT) Errorf(string, ...interface{}) {}

func (r *recordingT) FailNow() {}

func (r *recordingT) Logf(format string, _ ...any) {
	r.lines = append(r.lines, format)
}

func TestErrorTestLogger(t *testing.T) {
	rt := &recordingT{}
	logger := ulogger.NewErrorTestLogger(rt)

	logger.Infof("ignored")
	logger.Errorf("failure %s", "x")

	require.Len(t, rt.lines, 1)
	assert.Contains(t, rt.lines[0], "ERR_LEVEL failure %s")
	assert.Equal(t, int64(1), logger.ErrorCount())

	logger.Shutdown()
	logger.Errorf("after shutdown")
	assert.Len(t, rt.lines, 1)
	assert.Equal(t, int64(2), logger.ErrorCount())
}

func TestTestLogger(t *testing.T) {
	var logger ulogger.Logger = ulogger.TestLogger{}

	logger.Errorf("nothing happens")
	assert.Equal(t, ulogger.TestLogger{}, logger.New("x"))
}
