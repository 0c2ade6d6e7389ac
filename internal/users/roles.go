package users

// Role is carried in the access token issued by the auth provider
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleParent  Role = "PARENT"
	RoleCoach   Role = "COACH"
	RoleAdmin   Role = "ADMIN"
)

// AllRoles lists every role allowed to call the member facing endpoints
var AllRoles = []Role{RoleStudent, RoleParent, RoleCoach, RoleAdmin}

func IsValidRole(role string) bool {
	switch Role(role) {
	case RoleStudent, RoleParent, RoleCoach, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanActForOthers reports whether the role may manage another entrant's waitlist entry
func (r Role) CanActForOthers() bool {
	return r == RoleParent || r == RoleCoach || r == RoleAdmin
}

// Strings converts roles for the middleware helpers
func Strings(roles ...Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
