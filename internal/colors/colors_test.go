package colors

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(msg string, args ...any) { r.lines = append(r.lines, "debug:"+msg) }
func (r *recordingLogger) Info(msg string, args ...any)  { r.lines = append(r.lines, "info:"+msg) }
func (r *recordingLogger) Warn(msg string, args ...any)  { r.lines = append(r.lines, "warn:"+msg) }
func (r *recordingLogger) Error(msg string, args ...any) { r.lines = append(r.lines, "error:"+msg) }

func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	SetOutput(&out, &errOut)
	t.Cleanup(func() { SetOutput(nil, nil) })
	return &out, &errOut
}

func TestErrorWritesToStderr(t *testing.T) {
	out, errOut := captureOutput(t)

	Error("something went wrong")

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Error:")
	assert.Contains(t, errOut.String(), "something went wrong")
	assert.Contains(t, errOut.String(), Red)
}

func TestSuccessWritesToStdout(t *testing.T) {
	out, _ := captureOutput(t)

	Success("operation", "completed")

	assert.Contains(t, out.String(), checkmark)
	assert.Contains(t, out.String(), "operation completed")
	assert.Contains(t, out.String(), Green)
}

func TestWarningAndInfo(t *testing.T) {
	out, errOut := captureOutput(t)

	Warning("this is a warning")
	Info("fyi")

	assert.Contains(t, errOut.String(), "Warning:")
	assert.Contains(t, out.String(), "fyi")
}

func TestDebugRespectsToggle(t *testing.T) {
	_, errOut := captureOutput(t)
	SetDebug(false)
	t.Cleanup(func() { SetDebug(false) })

	Debug("hidden")
	assert.Empty(t, errOut.String())

	SetDebug(true)
	Debug("shown")
	assert.Contains(t, errOut.String(), "shown")
}

func TestMessagesMirroredToLogger(t *testing.T) {
	captureOutput(t)
	rec := &recordingLogger{}
	SetLogger(rec)
	t.Cleanup(func() { SetLogger(nil) })

	Error("e")
	Warning("w")
	Info("i")

	assert.Equal(t, []string{"error:e", "warn:w", "info:i"}, rec.lines)
}
