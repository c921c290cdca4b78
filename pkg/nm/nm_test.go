package nm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RoundTrip(t *testing.T) {
	section := WriteNamesSection([]string{"alpha", "beta", "gamma"})
	m, err := New(section)
	require.NoError(t, err)
	require.Equal(t, 3, m.Len())

	n0, ok := m.At(0)
	require.True(t, ok)
	assert.Equal(t, "alpha", n0.String())

	n2, ok := m.At(2)
	require.True(t, ok)
	assert.Equal(t, "gamma", n2.String())

	_, ok = m.At(3)
	assert.False(t, ok)
}

func TestRawAt(t *testing.T) {
	section := WriteNamesSection([]string{"one", "two"})
	m, err := New(section)
	require.NoError(t, err)

	s, err := m.RawAt(0)
	require.NoError(t, err)
	assert.Equal(t, "one", s)
}
