package fixtures

import (
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

type testLogWriter struct {
	tb testing.TB
}

var _ io.Writer = testLogWriter{}

func (w testLogWriter) Write(p []byte) (int, error) {
	// tb.Log appends its own newline.
	w.tb.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// NewTestLogger returns a logger which routes everything through the test's
// own log, so output is collated per test and silenced on success.
func NewTestLogger(tb testing.TB) logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	l.SetOutput(testLogWriter{tb: tb})
	return l
}
