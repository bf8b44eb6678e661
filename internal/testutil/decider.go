package testutil

import (
	"fmt"
	"sync"

	"github.com/suk-kr/shopfloor/internal/model"
)

// ScriptedDecider answers fulfillment prompts from fixed values and records
// everything it was asked. It implements both fulfillment.Decider and
// fulfillment.Notifier.
type ScriptedDecider struct {
	mu sync.Mutex

	// ConfirmAnswer is returned by every Confirm call.
	ConfirmAnswer bool
	// Plan and PlanOK are returned by RequestPlan.
	Plan   model.PlanRequest
	PlanOK bool

	prompts       []string
	planRequests  []int // shortfalls, in order
	notifications []string
}

// Confirm implements fulfillment.Decider.
func (d *ScriptedDecider) Confirm(prompt string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prompts = append(d.prompts, prompt)
	return d.ConfirmAnswer
}

// RequestPlan implements fulfillment.Decider.
func (d *ScriptedDecider) RequestPlan(_ model.Contract, shortfall int) (model.PlanRequest, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.planRequests = append(d.planRequests, shortfall)
	return d.Plan, d.PlanOK
}

// Notify implements fulfillment.Notifier.
func (d *ScriptedDecider) Notify(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = append(d.notifications, fmt.Sprintf(format, args...))
}

// Prompts returns the Confirm prompts seen so far.
func (d *ScriptedDecider) Prompts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.prompts...)
}

// PlanRequests returns the shortfalls passed to RequestPlan.
func (d *ScriptedDecider) PlanRequests() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.planRequests...)
}

// Notifications returns the formatted Notify messages.
func (d *ScriptedDecider) Notifications() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.notifications...)
}
