package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func reset() {
	SetVerbose(false)
	SetProduction(false)
	SetOutput(os.Stderr)
}

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		reset()
	})
	return &buf
}

func TestDebugGatedByVerbose(t *testing.T) {
	buf := capture(t)

	Debug("hidden %d", 1)
	assert.Empty(t, buf.String())

	SetVerbose(true)
	Debug("shown %d", 2)
	assert.Contains(t, buf.String(), "[DEBUG] shown 2")
}

func TestProductionSuppressesDebug(t *testing.T) {
	buf := capture(t)
	SetVerbose(true)
	SetProduction(true)

	Debug("suppressed")
	Section("also suppressed")
	assert.Empty(t, buf.String())

	Warn("still visible")
	assert.Contains(t, buf.String(), "[WARN] still visible")
}

func TestInfoWarnErrorAlwaysPrint(t *testing.T) {
	buf := capture(t)

	Info("i")
	Warn("w")
	Error("e")
	out := buf.String()
	assert.Contains(t, out, "[INFO] i")
	assert.Contains(t, out, "[WARN] w")
	assert.Contains(t, out, "[ERROR] e")
}
