package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkOrderStatus_Valid(t *testing.T) {
	for _, s := range []WorkOrderStatus{StatusPending, StatusInProgress, StatusPaused, StatusDelayed, StatusCompleted} {
		assert.True(t, s.Valid(), "status %s", s)
	}
	assert.False(t, WorkOrderStatus("").Valid())
	assert.False(t, WorkOrderStatus("cancelled").Valid())
}

func TestWorkOrderStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusDelayed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.False(t, StatusPaused.Terminal())
}

func TestSimulationMode_Valid(t *testing.T) {
	assert.True(t, ModeManual.Valid())
	assert.True(t, ModeAutomatic.Valid())
	assert.False(t, SimulationMode("auto").Valid())
}
