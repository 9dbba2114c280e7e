package auth

import "github.com/kenvote/registry/internal/domain"

// Authorize fails with Forbidden unless account ranks at least min.
func Authorize(account *domain.StaffAccount, min domain.Role) error {
	if account == nil {
		return domain.ErrUnauthorized("not authenticated")
	}
	if !account.Role.AtLeast(min) {
		return domain.ErrForbidden("requires role " + string(min) + " or higher")
	}
	return nil
}

// CanActOn fails with Forbidden unless actor strictly outranks target.
// Applies to delete, password reset and viewing of other accounts.
func CanActOn(actor, target *domain.StaffAccount) error {
	if !actor.Role.Outranks(target.Role) {
		return domain.ErrForbidden("cannot act on an account of equal or higher rank")
	}
	return nil
}

// CanCreate reports whether actor may create an account with role.
// The new role must rank below the actor, and an admin may not mint a
// superuser.
func CanCreate(actor *domain.StaffAccount, role domain.Role) error {
	if actor.Role == domain.RoleAdmin && role == domain.RoleSuperuser {
		return domain.ErrForbidden("admin cannot create superuser accounts")
	}
	if !actor.Role.Outranks(role) {
		return domain.ErrForbidden("cannot create an account of equal or higher rank")
	}
	return nil
}

// CanAssign reports whether actor may move target to role. Promotion is
// reserved to superadmins, the target must currently rank below the actor,
// and the new role may not exceed the actor's own.
func CanAssign(actor, target *domain.StaffAccount, role domain.Role) error {
	if err := Authorize(actor, domain.RoleSuperadmin); err != nil {
		return err
	}
	if err := CanActOn(actor, target); err != nil {
		return err
	}
	if role.Outranks(actor.Role) {
		return domain.ErrForbidden("cannot assign a role above your own")
	}
	return nil
}

// Visible filters accounts down to those ranked strictly below actor.
func Visible(actor *domain.StaffAccount, accounts []domain.StaffAccount) []domain.StaffAccount {
	out := make([]domain.StaffAccount, 0, len(accounts))
	for _, a := range accounts {
		if actor.Role.Outranks(a.Role) {
			out = append(out, a)
		}
	}
	return out
}
