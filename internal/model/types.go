package model

import "time"

// WorkOrder is one unit of planned production.
//
// Rows are created at plan registration and never deleted; an order is
// logically closed by its status. ProducedQty never exceeds OrderedQty
// (enforced by both the simulation engine and a CHECK constraint).
type WorkOrder struct {
	Code          string          // PP-YYYYMMDD-NNN
	OrderNumber   string          // linked contract order number, empty if none
	ProductCode   string
	ProductName   string
	OrderedQty    int
	ProducedQty   int
	Status        WorkOrderStatus
	Mode          SimulationMode
	Line          string // production line, e.g. "line-1"
	Shift         string // work shift, e.g. "day-1"
	SeqForDay     int    // ordinal among the day's orders
	PlannedDate   time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	EmployeeName  string
	Remarks       string
}

// Contract is a sales order. Confirmation triggers the fulfillment
// coordinator: either a shipment from stock or a new production plan.
type Contract struct {
	OrderNumber  string
	CompanyCode  string
	CompanyName  string
	ProductCode  string
	ProductName  string
	Quantity     int
	DeliveryDate time.Time
	Status       ContractStatus
}

// InventoryPosting is one immutable ledger row. Current stock for a product
// is the signed sum of its postings. The correlation tag makes side-effect
// postings idempotent: at most one posting may carry a given tag.
type InventoryPosting struct {
	ID          int64
	ProductCode string
	Quantity    int // signed: positive receipt, negative issue
	Type        PostingType
	Tag         string // correlation tag, empty for ad hoc postings
	Remarks     string
	PostedBy    string
	PostedAt    time.Time
}

// Shipment is a planned outbound delivery, optionally linked to a contract.
// At most one shipment may exist per linked contract.
type Shipment struct {
	Code         string // SH-YYYYMMDD-NNN
	OrderNumber  string // linked contract, empty if standalone
	CompanyCode  string
	CompanyName  string
	ProductCode  string
	Quantity     int
	ScheduledFor time.Time
	Vehicle      string
	Status       ShipmentStatus
	CreatedBy    string
	CreatedAt    time.Time
}

// PlanRequest is the human-supplied answer to a stock shortfall during
// contract confirmation: how much to produce, where, and when. Quantity must
// cover the shortfall; zero means "exactly the shortfall".
type PlanRequest struct {
	Quantity     int
	Line         string
	Shift        string
	Mode         SimulationMode
	PlannedDate  time.Time
	EmployeeName string
	Remarks      string
}

// AuditEntry is one append-only audit log row.
type AuditEntry struct {
	ID         int64
	Token      string // UUID correlating related entries
	UserID     string
	ActionType string
	Detail     string
	LoggedAt   time.Time
}
