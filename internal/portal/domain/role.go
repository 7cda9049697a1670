package domain

import "encoding/json"

// RoleID identifies one of the platform's account roles. The set is closed:
// adding a role means adding a constant here and a case to every exhaustive
// switch over RoleID, so an unhandled role is visible at review time instead
// of surfacing as a runtime fallback.
type RoleID string

const (
	RoleAdmin     RoleID = "admin"
	RoleRegistrar RoleID = "registrar"
	RoleFaculty   RoleID = "faculty"
	RoleStudent   RoleID = "student"
	RoleTechOps   RoleID = "techops"
	RoleTechDesk  RoleID = "techdesk"
)

// Role carries the display metadata for a role as shown on the role
// selection screen.
type Role struct {
	ID          RoleID
	DisplayName string
	Description string
	Icon        string // icon identifier consumed by the front-end asset set
	ColorToken  string // theme color token, not a literal color value
}

// RoleGroup is a named, ordered grouping of roles for presentation.
// Group order doubles as resolution priority when an account carries
// multiple roles.
type RoleGroup struct {
	Name  string
	Roles []Role
}

// RoleValue is the role field of a persisted identity. The backend returns
// either a single string or an array of strings; both decode into the same
// ordered slice.
type RoleValue []string

func (v *RoleValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*v = nil
			return nil
		}
		*v = RoleValue{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*v = RoleValue(many)
	return nil
}

// MarshalJSON preserves the backend's single-string form when only one role
// is present so a round-tripped identity stays byte-compatible.
func (v RoleValue) MarshalJSON() ([]byte, error) {
	if len(v) == 1 {
		return json.Marshal(v[0])
	}
	return json.Marshal([]string(v))
}

// IsZero reports whether no role is present.
func (v RoleValue) IsZero() bool { return len(v) == 0 }
