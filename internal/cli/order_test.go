package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addManualPlan registers a manual-mode order and returns nothing; the code
// is deterministic for the fixed date.
func addManualPlan(t *testing.T, opts *RootOptions, qty string) {
	t.Helper()
	_, err := execute(t, opts, NewPlanCommand, "",
		"add", "--product", "WIDGET-01", "--name", "Widget", "--qty", qty, "--date", "2026-01-15")
	require.NoError(t, err)
}

func TestOrderLifecycle(t *testing.T) {
	opts := testOptions(t)
	addManualPlan(t, opts, "5")
	const code = "PP-20260115-001"

	out, err := execute(t, opts, NewOrderCommand, "", "start", code)
	require.NoError(t, err)
	assert.Contains(t, out, code+": in_progress (0/5)")

	out, err = execute(t, opts, NewOrderCommand, "", "pause", code)
	require.NoError(t, err)
	assert.Contains(t, out, "paused")

	out, err = execute(t, opts, NewOrderCommand, "", "resume", code)
	require.NoError(t, err)
	assert.Contains(t, out, "in_progress")

	out, err = execute(t, opts, NewOrderCommand, "", "complete", code)
	require.NoError(t, err)
	assert.Contains(t, out, code+": completed (5/5)")

	// Completion posted the production receipt.
	out, err = execute(t, opts, NewInventoryCommand, "", "stock", "--product", "WIDGET-01")
	require.NoError(t, err)
	assert.Contains(t, out, "WIDGET-01: 5")
}

func TestOrderCancelAndRestart(t *testing.T) {
	opts := testOptions(t)
	addManualPlan(t, opts, "5")
	const code = "PP-20260115-001"

	_, err := execute(t, opts, NewOrderCommand, "", "start", code)
	require.NoError(t, err)

	out, err := execute(t, opts, NewOrderCommand, "", "cancel", code)
	require.NoError(t, err)
	assert.Contains(t, out, "delayed")

	out, err = execute(t, opts, NewOrderCommand, "", "restart", code)
	require.NoError(t, err)
	assert.Contains(t, out, "in_progress")
}

func TestOrderInvalidTransition(t *testing.T) {
	opts := testOptions(t)
	addManualPlan(t, opts, "5")
	const code = "PP-20260115-001"

	// Pausing a pending order is undefined.
	out, err := execute(t, opts, NewOrderCommand, "", "pause", code)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E101]")
}

func TestOrderNotFound(t *testing.T) {
	opts := testOptions(t)

	out, err := execute(t, opts, NewOrderCommand, "", "start", "PP-20260115-099")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E004]")
}

func TestOrderShow(t *testing.T) {
	opts := testOptions(t)
	addManualPlan(t, opts, "7")

	out, err := execute(t, opts, NewOrderCommand, "", "show", "PP-20260115-001")
	require.NoError(t, err)
	assert.Contains(t, out, "PP-20260115-001")
	assert.Contains(t, out, "WIDGET-01")
	assert.Contains(t, out, "0/   7")
}
