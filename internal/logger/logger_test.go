package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTogglesDebug(t *testing.T) {
	Init(true)
	assert.True(t, IsDebugEnabled())

	Init(false)
	assert.False(t, IsDebugEnabled())
}

func TestHelpersDoNotPanicBeforeInit(t *testing.T) {
	// base starts as a no-op logger, so early calls are safe
	require.NotPanics(t, func() {
		Info("hello %s", "world")
		VisionWarn("model %s slow", "llava")
		SearchDebug("stage %d", 1)
		DatasetError("boom: %v", assert.AnError)
	})
}

func TestNamedReturnsChild(t *testing.T) {
	Init(false)
	l := Named("cascade")
	require.NotNil(t, l)
	l.Infow("stage finished", "stage", "builtin", "hits", 3)
}
