package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]string {
	t.Helper()
	var out []map[string]string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]string
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, WARN)
	l.Info("skipped")
	l.Warn("kept", "session", "s1")
	l.Error("failed", "err", errors.New("boom"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "s1", lines[0]["session"])
	assert.Equal(t, "boom", lines[1]["err"])
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	child := New(&buf, DEBUG).With("component", "workflow")
	child.Debug("step", "state", "Generating")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "workflow", lines[0]["component"])
	assert.Equal(t, "Generating", lines[0]["state"])
}

func TestLoggerRedactsEmails(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DEBUG)
	l.Info("send", "email", "john.doe@example.com",
		"recipients", []string{"alice@x.com", "bo@y.org"},
		"note", "reply to carol@z.net")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "jo***@example.com", lines[0]["email"])
	assert.Equal(t, "[al***@x.com ***@y.org]", lines[0]["recipients"])
	assert.Equal(t, "reply to ca***@z.net", lines[0]["note"])
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"debug": DEBUG, "INFO": INFO, "warning": WARN, " error ": ERROR} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-address"))
}
