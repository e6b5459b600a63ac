package log

import (
	"regexp"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerCategoryFields(t *testing.T) {
	t.Parallel()

	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base, nil).With("conn", "c-1")

	l.Debugf("connection", "pump started for %s", "driver")

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, "pump started for driver", entry.Message)
	assert.Equal(t, "connection", entry.Data["category"])
	assert.Equal(t, "c-1", entry.Data["conn"])
	assert.Contains(t, entry.Data, "elapsed")
}

func TestLoggerLevelAndFilter(t *testing.T) {
	t.Parallel()

	base, hook := test.NewNullLogger()
	l := New(base, regexp.MustCompile(`^registry`))
	require.NoError(t, l.SetLevel("debug"))
	assert.True(t, l.DebugMode())

	l.Tracef("registry", "below level")
	l.Debugf("connection", "filtered out")
	l.Warnf("registry:dispose", "kept")

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "kept", hook.LastEntry().Message)
	assert.Error(t, l.SetLevel("loud"))
}

func TestNilLoggerIsSilent(t *testing.T) {
	t.Parallel()

	var l *Logger
	assert.NotPanics(t, func() {
		l.Errorf("connection", "nothing %d", 1)
		_ = l.With("k", "v")
	})
	assert.False(t, l.DebugMode())
}
