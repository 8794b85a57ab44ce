// Package identity provides users, roles, and the capability checks every
// other bounded context gates its operations on.
package identity

import "github.com/google/uuid"

// Actor is the validated identity a request handler passes into core
// operations. Services never read an ambient session; the actor is always
// an explicit parameter.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// Role names.
const (
	RoleAdmin          = "ADMIN"
	RoleBD             = "BD"
	RoleInsuranceHead  = "INSURANCE_HEAD"
	RoleInsuranceExec  = "INSURANCE_EXEC"
	RoleFinanceManager = "FINANCE_MANAGER"
	RoleHRManager      = "HR_MANAGER"
	RoleEmployee       = "EMPLOYEE"
)

var knownRoles = map[string]struct{}{
	RoleAdmin:          {},
	RoleBD:             {},
	RoleInsuranceHead:  {},
	RoleInsuranceExec:  {},
	RoleFinanceManager: {},
	RoleHRManager:      {},
	RoleEmployee:       {},
}

// IsKnownRole reports whether the role name is one the system defines.
func IsKnownRole(role string) bool {
	_, ok := knownRoles[role]
	return ok
}

// Capability strings consumed by core operations.
const (
	CapCasesRead      = "cases:read"
	CapCasesWrite     = "cases:write"
	CapInsuranceWrite = "insurance:write"
	CapFinanceWrite   = "finance:write"
	CapFinanceApprove = "finance:approve"
	CapHRManage       = "hr:manage"
)
