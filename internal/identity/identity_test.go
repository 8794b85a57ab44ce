package identity

import "testing"

// The package holds only the shared actor, role, and capability types; it
// must stay importable by every service package without pulling in any
// handler or service wiring.
func TestKnownRoles(t *testing.T) {
	for _, role := range []string{
		RoleAdmin, RoleBD, RoleInsuranceHead, RoleInsuranceExec,
		RoleFinanceManager, RoleHRManager, RoleEmployee,
	} {
		if !IsKnownRole(role) {
			t.Fatalf("IsKnownRole(%q) = false", role)
		}
	}
	if IsKnownRole("SUPERUSER") {
		t.Fatal("IsKnownRole accepted an undefined role")
	}
}
