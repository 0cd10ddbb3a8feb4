package model

import "time"

// MachineType distinguishes single- and double-width looms.
type MachineType string

const (
	MachineSingle MachineType = "single"
	MachineDouble MachineType = "double"
)

// Multiplier is the factor applied to length and pick aggregates.
// A double machine produces two fabric widths per run.
func (t MachineType) Multiplier() float64 {
	if t == MachineDouble {
		return 2
	}
	return 1
}

// Valid reports whether t is a known machine type.
func (t MachineType) Valid() bool {
	return t == MachineSingle || t == MachineDouble
}

// Machine is a loom registered to a tenant.
type Machine struct {
	ID            string      `json:"id"`
	TenantID      string      `json:"tenantId"`
	MachineNumber string      `json:"machineNumber"`
	Type          MachineType `json:"machineType"`
	Description   string      `json:"description,omitempty"`
	IsActive      bool        `json:"isActive"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Worker is a loom operator.
type Worker struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenantId"`
	Name          string    `json:"name"`
	AadhaarNumber string    `json:"aadhaarNumber,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
