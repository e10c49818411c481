package shared

// Administrative panel permissions checked by the core itself.
const (
	PermUsersView   = "usuarios.ver"
	PermUsersManage = "usuarios.gestionar"

	PermRolesView   = "roles.ver"
	PermRolesManage = "roles.gestionar"
)

// CoreScopes lists the permissions guarding user and role administration.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersManage,
		PermRolesView,
		PermRolesManage,
	}
}
