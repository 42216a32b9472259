package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		verbosity   int
		development bool
	}{
		{DEFAULT, false},
		{DEBUG, true},
		{TRACE, false},
	}

	for _, tc := range testCases {
		log, err := New(tc.verbosity, tc.development)
		assert.NoError(err)
		assert.True(log.V(tc.verbosity).Enabled())
		assert.False(log.V(tc.verbosity + 1).Enabled())
	}
}

func TestNewTestLogger(t *testing.T) {
	assert := assert.New(t)

	log := NewTestLogger()
	assert.True(log.V(DEBUG).Enabled())
}

func TestNewObserved(t *testing.T) {
	assert := assert.New(t)

	core, logs := observer.New(zapcore.Level(-1 * DEBUG))
	log := NewObserved(core)

	log.V(DEBUG).Info("recursion index optimized", "criterion", 0.5)
	log.V(TRACE).Info("dropped")

	entries := logs.All()
	assert.Len(entries, 1)
	assert.Equal("recursion index optimized", entries[0].Message)
	assert.Equal(0.5, entries[0].ContextMap()["criterion"])
}
