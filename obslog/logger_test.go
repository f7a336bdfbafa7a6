package obslog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wilbur-shi/bufcache/obslog/syslog"
)

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	l := New("test", NewTextHandler(&buf), syslog.LOG_WARNING)

	l.Info("should not appear")
	l.Warn("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestOkAccessorsReflectLevel(t *testing.T) {
	l := New("test", NewTextHandler(&bytes.Buffer{}), syslog.LOG_INFO)

	_, ok := l.DEBUGok()
	assert.False(t, ok)

	_, ok = l.INFOok()
	assert.True(t, ok)
}

func TestTextHandlerFormatsKV(t *testing.T) {
	var buf bytes.Buffer
	l := New("cache", NewTextHandler(&buf), syslog.LOG_DEBUG)
	l.Debug("loaded sector", "sector", 7, "bytes", 512)

	line := buf.String()
	assert.True(t, strings.Contains(line, "[cache]"))
	assert.True(t, strings.Contains(line, "sector=7"))
	assert.True(t, strings.Contains(line, "bytes=512"))
}

func TestJSONHandlerProducesOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	l := New("cache", NewJSONHandler(&buf), syslog.LOG_DEBUG)
	l.Info("flushed", "sector", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"msg":"flushed"`)
	assert.Contains(t, lines[0], `"sector":3`)
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := MultiHandler(NewTextHandler(&a), NewTextHandler(&b))
	l := New("x", h, syslog.LOG_INFO)
	l.Info("hello")

	assert.Contains(t, a.String(), "hello")
	assert.Contains(t, b.String(), "hello")
}

func TestWithPreservesLevelUnderNewName(t *testing.T) {
	parent := New("parent", NewTextHandler(&bytes.Buffer{}), syslog.LOG_WARNING)
	child := parent.With("child")
	assert.Equal(t, parent.Level(), child.Level())
}

func TestDiscardDropsEverything(t *testing.T) {
	l := Discard()
	assert.False(t, l.Does(syslog.LOG_DEBUG))
	assert.False(t, l.Does(syslog.LOG_INFO))
}
