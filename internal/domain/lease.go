package domain

import "time"

const (
	LeaseStatusActive     = "active"
	LeaseStatusTerminated = "terminated"
)

// Lease is owned by the surrounding CRUD layer. The ledger only reads it to
// resolve existence and the owning LLC.
type Lease struct {
	ID        string    `json:"id" db:"id"`
	LLCID     string    `json:"llc_id" db:"llc_id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
