// Package config holds the tool's runtime configuration: simulation tick
// parameters and the production line set with their device register maps.
// Configuration is written in CUE and loaded with the cue toolchain; the
// compiled-in defaults mirror the line controllers this tool was built
// against.
package config

import (
	"fmt"
	"time"
)

// Config is the decoded runtime configuration.
type Config struct {
	Simulation Simulation `json:"simulation"`
	Lines      []Line     `json:"lines"`
}

// Simulation configures the production simulation engine.
type Simulation struct {
	// TickInterval is the delay between production increments, as a Go
	// duration string ("1s", "250ms").
	TickInterval string `json:"tick_interval"`
	// StepQty is the quantity produced per tick.
	StepQty int `json:"step_qty"`
}

// Line configures one production line's equipment link.
type Line struct {
	ID            string         `json:"id"`
	Station       int            `json:"station"`
	PollInterval  string         `json:"poll_interval"`
	MissTolerance int            `json:"miss_tolerance"`
	Actions       map[string]int `json:"actions"`
	Registers     Registers      `json:"registers"`
}

// Registers names the device registers for one line.
type Registers struct {
	Heartbeat     string `json:"heartbeat"`
	HeartbeatLive int    `json:"heartbeat_live"`
	Mode          string `json:"mode"`
	Count         string `json:"count"`
	Done          string `json:"done"`
}

// Default returns the compiled-in configuration: three lines, one unit per
// second, five-poll reconnect tolerance.
func Default() Config {
	lines := make([]Line, 0, 3)
	for i := 1; i <= 3; i++ {
		lines = append(lines, Line{
			ID:            fmt.Sprintf("line-%d", i),
			Station:       i,
			PollInterval:  "1s",
			MissTolerance: 5,
			Actions:       map[string]int{"op-1": 1, "op-2": 2, "op-3": 3},
			Registers: Registers{
				Heartbeat:     "SM400",
				HeartbeatLive: 1,
				Mode:          "D200",
				Count:         "D210",
				Done:          "M8164",
			},
		})
	}
	return Config{
		Simulation: Simulation{TickInterval: "1s", StepQty: 1},
		Lines:      lines,
	}
}

// Validate checks invariants the CUE schema cannot express on its own and
// pre-parses the duration fields.
func (c *Config) Validate() error {
	if _, err := c.TickInterval(); err != nil {
		return err
	}
	if c.Simulation.StepQty <= 0 {
		return fmt.Errorf("simulation.step_qty must be positive, got %d", c.Simulation.StepQty)
	}
	if len(c.Lines) == 0 {
		return fmt.Errorf("at least one production line must be configured")
	}
	seen := make(map[string]bool, len(c.Lines))
	for _, l := range c.Lines {
		if l.ID == "" {
			return fmt.Errorf("line with station %d has no id", l.Station)
		}
		if seen[l.ID] {
			return fmt.Errorf("duplicate line id %q", l.ID)
		}
		seen[l.ID] = true
		if _, err := time.ParseDuration(l.PollInterval); err != nil {
			return fmt.Errorf("line %s: malformed poll_interval: %w", l.ID, err)
		}
		if l.MissTolerance <= 0 {
			return fmt.Errorf("line %s: miss_tolerance must be positive", l.ID)
		}
		if len(l.Actions) == 0 {
			return fmt.Errorf("line %s: no actions configured", l.ID)
		}
		r := l.Registers
		if r.Heartbeat == "" || r.Mode == "" || r.Count == "" || r.Done == "" {
			return fmt.Errorf("line %s: incomplete register map", l.ID)
		}
	}
	return nil
}

// TickInterval returns the parsed simulation tick interval.
func (c *Config) TickInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Simulation.TickInterval)
	if err != nil {
		return 0, fmt.Errorf("simulation.tick_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("simulation.tick_interval must be positive, got %s", d)
	}
	return d, nil
}

// PollDuration returns the parsed poll interval for a line. Call Validate
// first; this panics on malformed input.
func (l *Line) PollDuration() time.Duration {
	d, err := time.ParseDuration(l.PollInterval)
	if err != nil {
		panic(fmt.Sprintf("line %s: poll_interval not validated: %v", l.ID, err))
	}
	return d
}
