package model

// WorkOrderStatus is the life-cycle status of a work order.
//
// The status field is the single source of truth for where an order sits in
// its run: transitions are validated by the workorder package and persisted
// by the store. Completed is terminal; Delayed is terminal for the run that
// produced it but a manual restart may open a new run.
type WorkOrderStatus string

const (
	StatusPending    WorkOrderStatus = "pending"
	StatusInProgress WorkOrderStatus = "in_progress"
	StatusPaused     WorkOrderStatus = "paused"
	StatusDelayed    WorkOrderStatus = "delayed"
	StatusCompleted  WorkOrderStatus = "completed"
)

// Valid reports whether s is one of the defined work-order statuses.
func (s WorkOrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusPaused, StatusDelayed, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether the status ends the current run.
// Delayed orders can be restarted manually; Completed orders cannot.
func (s WorkOrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusDelayed
}

// SimulationMode selects who is allowed to drive an order's transitions.
//
// Manual orders are driven by operator commands; automatic orders are driven
// exclusively by the simulation engine. The two sets of transitions are
// mutually exclusive per order.
type SimulationMode string

const (
	ModeManual    SimulationMode = "manual"
	ModeAutomatic SimulationMode = "automatic"
)

// Valid reports whether m is a defined simulation mode.
func (m SimulationMode) Valid() bool {
	return m == ModeManual || m == ModeAutomatic
}

// ContractStatus is the status of a sales order (contract).
type ContractStatus string

const (
	ContractPending   ContractStatus = "pending"
	ContractConfirmed ContractStatus = "confirmed"
	ContractCancelled ContractStatus = "cancelled"
)

// ShipmentStatus is the status of a shipment.
type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "pending"
	ShipmentConfirmed ShipmentStatus = "confirmed"
	ShipmentCancelled ShipmentStatus = "cancelled"
)

// PostingType is the direction of an inventory posting.
type PostingType string

const (
	PostingReceipt PostingType = "receipt" // positive quantity, stock in
	PostingIssue   PostingType = "issue"   // negative quantity, stock out
)
