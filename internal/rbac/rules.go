package rbac

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// ValidRole reports whether r is a known role.
func ValidRole(r string) bool {
	return r == RoleStudent || r == RoleInstructor || r == RoleAdmin
}

// RolePermissions is the default policy. Ownership checks (instructors only
// see their own assessments) are applied by the stores on top of this.
var RolePermissions = map[string][]string{
	RoleStudent: {
		"catalog:view",
		"product:view",
		"product:enroll",
		"question:view",
		"assessment:view",
		"submission:create",
		"submission:submit",
		"submission:view-own",
		"enrollment:view-own",
		"enrollment:progress",
		"flashcard:view",
		"flashcard:review",
		"user:change_password",
	},
	RoleInstructor: {
		"catalog:*",
		"product:*",
		"question:*",
		"assessment:*",
		"submission:view-all",
		"submission:grade",
		"enrollment:view-all",
		"enrollment:manage",
		"flashcard:*",
		"import:*",
		"asset:upload",
		"users:list",
		"user:change_password",
	},
	RoleAdmin: {
		"*",
	},
}
