package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrame_SamePositionIgnoresLine(t *testing.T) {
	a := NewFrame("Serve").WithOwner("*Server").WithSource("net/http/server.go").WithLine(3100)
	b := a.WithLine(3120)

	assert.True(t, a.SamePosition(b))
	assert.Equal(t, 3100, a.Line)
	assert.False(t, a.SamePosition(a.WithOwner("Server")))
	assert.False(t, a.SamePosition(a.WithSource("server.go")))
}

func TestFrame_ReservedFramesHaveNoPosition(t *testing.T) {
	assert.Empty(t, TruncatedFrame.SourcePath)
	assert.Zero(t, SleepFrame.Line)
	assert.False(t, TruncatedFrame.SamePosition(SleepFrame))
}
