// Package routes owns the role directory and the resolution of an
// authenticated identity to its dashboard destination.
//
// Resolution is a total function: any role value, including nil, the empty
// string, or an identifier this build has never heard of, resolves to a real
// path. Routing must never be the thing that breaks a login.
package routes

import "github.com/campuskit/portal/internal/portal/domain"

// DefaultDashboardPath is the destination for accounts whose role carries no
// configured route.
const DefaultDashboardPath = "/dashboard"

// Catalog returns the role directory in presentation order. The order of
// groups, and of roles within a group, is also the priority order used when
// an account carries multiple roles.
func Catalog() []domain.RoleGroup {
	return []domain.RoleGroup{
		{
			Name: "Administration",
			Roles: []domain.Role{
				{
					ID:          domain.RoleAdmin,
					DisplayName: "Administrator",
					Description: "Full platform administration",
					Icon:        "shield",
					ColorToken:  "danger",
				},
				{
					ID:          domain.RoleRegistrar,
					DisplayName: "Registrar",
					Description: "Enrollment and academic records",
					Icon:        "archive",
					ColorToken:  "warning",
				},
			},
		},
		{
			Name: "Academics",
			Roles: []domain.Role{
				{
					ID:          domain.RoleFaculty,
					DisplayName: "Faculty",
					Description: "Courses, grading and announcements",
					Icon:        "book-open",
					ColorToken:  "primary",
				},
				{
					ID:          domain.RoleStudent,
					DisplayName: "Student",
					Description: "Courses, surveys and results",
					Icon:        "graduation-cap",
					ColorToken:  "success",
				},
			},
		},
		{
			Name: "Technology",
			Roles: []domain.Role{
				{
					ID:          domain.RoleTechOps,
					DisplayName: "Technology Operations",
					Description: "Infrastructure metrics and ticket queues",
					Icon:        "server",
					ColorToken:  "info",
				},
				{
					ID:          domain.RoleTechDesk,
					DisplayName: "Service Desk",
					Description: "Support tickets and device management",
					Icon:        "headset",
					ColorToken:  "info",
				},
			},
		},
	}
}

// Lookup returns the directory entry for a role ID.
func Lookup(id domain.RoleID) (domain.Role, bool) {
	for _, group := range Catalog() {
		for _, role := range group.Roles {
			if role.ID == id {
				return role, true
			}
		}
	}
	return domain.Role{}, false
}

// dashboardPath maps a role to its dashboard. The switch is exhaustive over
// the RoleID constants; any identifier outside the closed set reports false
// and falls back to the default.
func dashboardPath(id domain.RoleID) (string, bool) {
	switch id {
	case domain.RoleAdmin:
		return "/dashboard/admin", true
	case domain.RoleRegistrar:
		return "/dashboard/registrar", true
	case domain.RoleFaculty:
		return "/dashboard/faculty", true
	case domain.RoleStudent:
		return "/dashboard/student", true
	case domain.RoleTechOps:
		return "/dashboard/tech/operations", true
	case domain.RoleTechDesk:
		return "/dashboard/tech/servicedesk", true
	default:
		return DefaultDashboardPath, false
	}
}

// Resolve maps a persisted role value to a single dashboard path. When the
// value carries several roles, the first one recognized in catalog priority
// order wins, so repeated calls with the same input always agree. Unknown,
// empty, or nil values resolve to DefaultDashboardPath.
func Resolve(value domain.RoleValue) string {
	path, _ := resolve(value)
	return path
}

// HasConfiguredRoute reports whether Resolve used a real mapping rather than
// the fallback. Diagnostic only; it must never gate navigation.
func HasConfiguredRoute(value domain.RoleValue) bool {
	_, configured := resolve(value)
	return configured
}

func resolve(value domain.RoleValue) (string, bool) {
	if len(value) == 1 {
		return dashboardPath(domain.RoleID(value[0]))
	}

	held := make(map[domain.RoleID]bool, len(value))
	for _, raw := range value {
		held[domain.RoleID(raw)] = true
	}

	// Scan the catalog rather than the input so priority comes from the
	// directory, not from whatever order the backend returned the array in.
	for _, group := range Catalog() {
		for _, role := range group.Roles {
			if held[role.ID] {
				return dashboardPath(role.ID)
			}
		}
	}

	return DefaultDashboardPath, false
}
