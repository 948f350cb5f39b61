package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"operator": {
		"key:view",
		"sheet:upload",
		"sheet:process",
		"sheet:view",
		"result:view",
		"stats:view",
		"user:change_password",
	},
	"reviewer": {
		"key:view",
		"sheet:view",
		"sheet:review",
		"result:view",
		"stats:view",
		"export:create",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
