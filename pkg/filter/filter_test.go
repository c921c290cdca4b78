package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll_AcceptsEverything(t *testing.T) {
	emit, ok := All{}.Accept("gamedata/weapons/x.blk")
	assert.True(t, ok)
	assert.Equal(t, "gamedata/weapons/x.blk", emit)
}

func TestPrefix_MatchWithStrip(t *testing.T) {
	f := Prefix{Path: "gamedata/", Strip: true}
	emit, ok := f.Accept("gamedata/weapons/x.blk")
	require.True(t, ok)
	assert.Equal(t, "weapons/x.blk", emit)
}

func TestPrefix_MatchWithoutStrip(t *testing.T) {
	f := Prefix{Path: "gamedata/"}
	emit, ok := f.Accept("gamedata/weapons/x.blk")
	require.True(t, ok)
	assert.Equal(t, "gamedata/weapons/x.blk", emit)
}

func TestPrefix_NoMatch(t *testing.T) {
	f := Prefix{Path: "gamedata/"}
	_, ok := f.Accept("sounds/x.wav")
	assert.False(t, ok)
}

func TestRegex_Match(t *testing.T) {
	f, err := NewRegex(`\.blk$`)
	require.NoError(t, err)
	emit, ok := f.Accept("gamedata/weapons/x.blk")
	require.True(t, ok)
	assert.Equal(t, "gamedata/weapons/x.blk", emit)
}

func TestRegex_NoMatch(t *testing.T) {
	f, err := NewRegex(`\.blk$`)
	require.NoError(t, err)
	_, ok := f.Accept("sounds/x.wav")
	assert.False(t, ok)
}

func TestNewRegex_InvalidPattern(t *testing.T) {
	_, err := NewRegex("(unterminated")
	assert.Error(t, err)
}
