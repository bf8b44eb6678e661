package harness

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one YAML-defined lifecycle flow. Steps run in order against a
// fresh in-memory store with a fixed clock, so codes, quantities and the
// resulting trace are fully deterministic.
type Scenario struct {
	// Name uniquely identifies this scenario; the golden trace lives at
	// testdata/<name>.golden.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description"`

	// Steps is the ordered operation list.
	Steps []Step `yaml:"steps"`
}

// Step is one scenario operation. Op selects the operation; the remaining
// fields parameterize it (unused fields are ignored).
type Step struct {
	// Op is one of: post-inventory, stock, add-contract, confirm-contract,
	// plan, start-order, complete-order, cancel-order, simulate.
	Op string `yaml:"op"`

	Order    string `yaml:"order,omitempty"`    // contract number or work order code
	Product  string `yaml:"product,omitempty"`
	Name     string `yaml:"name,omitempty"`     // product name
	Qty      int    `yaml:"qty,omitempty"`
	Company  string `yaml:"company,omitempty"`
	Delivery string `yaml:"delivery,omitempty"` // YYYY-MM-DD
	Line     string `yaml:"line,omitempty"`
	Shift    string `yaml:"shift,omitempty"`
	Mode     string `yaml:"mode,omitempty"`

	// confirm-contract: Decline aborts at the prompt; Plan answers the
	// shortfall prompt. Without either, the sufficient-stock prompt is
	// accepted.
	Decline bool      `yaml:"decline,omitempty"`
	Plan    *PlanStep `yaml:"plan,omitempty"`

	// simulate: number of ticks to deliver, and what to do if the order is
	// still running afterwards ("stop", "pause", or empty to require
	// completion).
	Ticks int    `yaml:"ticks,omitempty"`
	Halt  string `yaml:"halt,omitempty"`
}

// PlanStep is the scripted answer to a shortfall plan request.
type PlanStep struct {
	Qty   int    `yaml:"qty,omitempty"`
	Line  string `yaml:"line,omitempty"`
	Shift string `yaml:"shift,omitempty"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s has no name", path)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", s.Name)
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return nil, fmt.Errorf("scenario %s step %d: %w", s.Name, i+1, err)
		}
	}
	return &s, nil
}

func (s *Step) validate() error {
	switch s.Op {
	case "post-inventory", "add-contract", "plan":
		if s.Product == "" {
			return fmt.Errorf("%s: product is required", s.Op)
		}
		if s.Qty == 0 {
			return fmt.Errorf("%s: qty is required", s.Op)
		}
	case "stock":
		if s.Product == "" {
			return fmt.Errorf("stock: product is required")
		}
	case "confirm-contract", "start-order", "complete-order", "cancel-order", "simulate":
		if s.Order == "" {
			return fmt.Errorf("%s: order is required", s.Op)
		}
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
	return nil
}

func (s *Step) deliveryDate() (time.Time, error) {
	if s.Delivery == "" {
		return time.Time{}, fmt.Errorf("add-contract: delivery is required")
	}
	return time.Parse("2006-01-02", s.Delivery)
}
