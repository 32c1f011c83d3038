package models

import "time"

// Company is an organisation contacts and deals can be attached to.
type Company struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	OwnerID   int64     `json:"owner_id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	Industry  string    `json:"industry"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CompanyFilter struct {
	OwnerID *int64
	Query   string
	Limit   int
	Offset  int
}
