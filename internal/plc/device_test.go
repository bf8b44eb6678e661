package plc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimDevice_ClosedReadsFail(t *testing.T) {
	d := NewSimDevice("SM400", "D200", "M8164")

	_, code := d.ReadRegister("SM400")
	assert.NotZero(t, code)
	assert.NotZero(t, d.WriteRegister("D200", 1))

	require.Zero(t, d.Open())
	value, code := d.ReadRegister("SM400")
	assert.Zero(t, code)
	assert.Equal(t, 1, value)
}

func TestSimDevice_ActionCountdown(t *testing.T) {
	d := NewSimDevice("SM400", "D200", "M8164")
	d.PollsPerAction = 2
	require.Zero(t, d.Open())

	// Idle: done register reads whatever was written (zero value).
	value, code := d.ReadRegister("M8164")
	require.Zero(t, code)
	assert.Zero(t, value)

	require.Zero(t, d.WriteRegister("D200", 2))
	require.Zero(t, d.WriteRegister("D210", 30))

	for i := 0; i < 2; i++ {
		value, code = d.ReadRegister("M8164")
		require.Zero(t, code)
		assert.Zero(t, value, "poll %d should not be done yet", i+1)
	}
	value, code = d.ReadRegister("M8164")
	require.Zero(t, code)
	assert.Equal(t, 1, value)

	// Clearing the mode register disarms the done signal.
	require.Zero(t, d.WriteRegister("D200", 0))
	value, code = d.ReadRegister("M8164")
	require.Zero(t, code)
	assert.Zero(t, value)
}
