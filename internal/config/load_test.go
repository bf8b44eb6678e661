package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shopfloor.cue"), []byte(doc), 0o644))
	return dir
}

func TestLoad_SimulationOverride(t *testing.T) {
	dir := writeConfig(t, `
simulation: {
	tick_interval: "250ms"
	step_qty:      2
}
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	tick, err := cfg.TickInterval()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, tick)
	assert.Equal(t, 2, cfg.Simulation.StepQty)

	// Lines keep the compiled-in defaults.
	require.Len(t, cfg.Lines, 3)
	assert.Equal(t, "line-1", cfg.Lines[0].ID)
}

func TestLoad_LinesReplaceDefaults(t *testing.T) {
	dir := writeConfig(t, `
lines: [{
	id:      "press-1"
	station: 7
	actions: {stamp: 4}
	registers: {
		heartbeat:      "SM400"
		heartbeat_live: 1
		mode:           "D300"
		count:          "D310"
		done:           "M9000"
	}
}]
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	require.Len(t, cfg.Lines, 1)
	line := cfg.Lines[0]
	assert.Equal(t, "press-1", line.ID)
	assert.Equal(t, 7, line.Station)
	assert.Equal(t, "D300", line.Registers.Mode)
	// Omitted optional fields fall back to the defaults.
	assert.Equal(t, "1s", line.PollInterval)
	assert.Equal(t, 5, line.MissTolerance)

	// Simulation block untouched.
	assert.Equal(t, "1s", cfg.Simulation.TickInterval)
}

func TestLoad_SchemaRejectsBadDocument(t *testing.T) {
	dir := writeConfig(t, `
simulation: {
	tick_interval: "1s"
	step_qty:      0
}
`)

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoad_RejectsIncompleteRegisters(t *testing.T) {
	dir := writeConfig(t, `
lines: [{
	id:      "press-1"
	station: 1
	actions: {stamp: 4}
	registers: {
		heartbeat:      "SM400"
		heartbeat_live: 1
		mode:           "D300"
		count:          "D310"
	}
}]
`)

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoad_MissingDirectory(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config directory")
}

func TestLoad_PathIsFile(t *testing.T) {
	dir := writeConfig(t, `simulation: {tick_interval: "1s", step_qty: 1}`)

	_, err := Load(filepath.Join(dir, "shopfloor.cue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}
