package authz

import "github.com/kardexsoft/kardex-gateway/internal/domain"

// PermissionsFor returns the matrix row for a role as a fresh copy so
// callers can never mutate the build-time table. Unknown or empty roles
// get an empty row.
func PermissionsFor(role domain.Role) map[Resource][]Action {
	row, ok := matrix[role]
	out := make(map[Resource][]Action, len(allResources))
	for _, res := range allResources {
		if !ok {
			out[res] = []Action{}
			continue
		}
		actions := row[res]
		cp := make([]Action, len(actions))
		copy(cp, actions)
		out[res] = cp
	}
	return out
}

// Can answers an allow/deny query. It is pure and never fails: an unknown
// role, an unknown resource, or an unlisted action all yield false.
func Can(role domain.Role, resource Resource, action Action) bool {
	row, ok := matrix[role]
	if !ok {
		return false
	}
	for _, a := range row[resource] {
		if a == action {
			return true
		}
	}
	return false
}

// UserCan is the nil-safe variant used with session state: no user or no
// role means deny.
func UserCan(u *domain.User, resource Resource, action Action) bool {
	if u == nil {
		return false
	}
	return Can(u.Role, resource, action)
}

// Convenience derivations over Can.

func CanCreate(role domain.Role, resource Resource) bool {
	return Can(role, resource, ActionCreate)
}

func CanRead(role domain.Role, resource Resource) bool {
	return Can(role, resource, ActionRead)
}

func CanUpdate(role domain.Role, resource Resource) bool {
	return Can(role, resource, ActionUpdate)
}

func CanDelete(role domain.Role, resource Resource) bool {
	return Can(role, resource, ActionDelete)
}

func CanApprove(role domain.Role, resource Resource) bool {
	return Can(role, resource, ActionApprove)
}

// Role shorthands: direct equality checks against the session role.

func IsAdmin(u *domain.User) bool {
	return u != nil && u.Role == domain.RoleAdmin
}

func IsVendor(u *domain.User) bool {
	return u != nil && u.Role == domain.RoleVendor
}

func IsCustomer(u *domain.User) bool {
	return u != nil && u.Role == domain.RoleCustomer
}

// ParseResource validates a raw resource name from a query string.
func ParseResource(s string) (Resource, bool) {
	for _, res := range allResources {
		if Resource(s) == res {
			return res, true
		}
	}
	return "", false
}

// ParseAction validates a raw action name from a query string.
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionApprove:
		return Action(s), true
	}
	return "", false
}
