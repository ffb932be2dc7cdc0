package heater

import (
	"errors"
	"testing"

	"github.com/itohio/brickheat/pkg/expander"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_PolarityLaw(t *testing.T) {
	tests := []struct {
		name        string
		offPolarity uint8
		wantOn      bool
		wantOff     bool
	}{
		{"active high heater", 0, true, false},
		{"active low heater", 1, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := expander.NewMock()
			c := New(m, 5)
			require.NoError(t, c.InitializeOutput(tt.offPolarity))

			level, ok := m.Level(5)
			require.True(t, ok)
			assert.Equal(t, tt.wantOff, level, "initialize forces off")

			require.NoError(t, c.WriteOn(tt.offPolarity))
			level, _ = m.Level(5)
			assert.Equal(t, tt.wantOn, level)
			assert.Equal(t, tt.offPolarity == 0, level, "on is the complement of off-polarity")

			require.NoError(t, c.WriteOff(tt.offPolarity))
			level, _ = m.Level(5)
			assert.Equal(t, tt.wantOff, level)
		})
	}
}

func TestController_InitializeWritesOnce(t *testing.T) {
	m := expander.NewMock()
	c := New(m, 2)
	require.NoError(t, c.InitializeOutput(1))
	assert.True(t, m.IsOutput(2))
	assert.Equal(t, 1, m.Writes())
	assert.Equal(t, uint8(2), c.Pin())
}

func TestController_WriteBeforeInitialize(t *testing.T) {
	c := New(expander.NewMock(), 1)
	err := c.WriteOn(0)
	assert.ErrorIs(t, err, expander.ErrNotConfigured)
}

func TestController_ExpanderFailure(t *testing.T) {
	m := expander.NewMock()
	boom := errors.New("bus error")
	m.FailWith(boom)

	c := New(m, 1)
	assert.ErrorIs(t, c.InitializeOutput(0), boom)
}
