package models

import (
	"time"
)

// Role is the closed set of user roles. Permission checks go through the
// methods below instead of comparing raw strings.
type Role string

const (
	RoleUser              Role = "user"
	RoleAdmin             Role = "admin"
	RoleComplianceOfficer Role = "compliance_officer"
	RoleAuditor           Role = "auditor"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleComplianceOfficer, RoleAuditor:
		return true
	}
	return false
}

// CanManageCompliance reports whether the role may create or mutate
// retention policies and compliance reports.
func (r Role) CanManageCompliance() bool {
	return r == RoleAdmin || r == RoleComplianceOfficer
}

// CanReadCompliance reports whether the role may read access logs, audit
// trails and compliance reports.
func (r Role) CanReadCompliance() bool {
	return r == RoleAdmin || r == RoleComplianceOfficer || r == RoleAuditor
}

type User struct {
	ID           int       `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        *string   `json:"email,omitempty" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	PublicKey    *string   `json:"publicKey,omitempty" db:"public_key"`
	Role         Role      `json:"role" db:"role"`
	Department   *string   `json:"department,omitempty" db:"department"`
	IsOnline     bool      `json:"isOnline" db:"is_online"`
	LastSeen     time.Time `json:"lastSeen" db:"last_seen"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
