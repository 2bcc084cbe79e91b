package domain

import "strings"

// Role: роль актора, переданная слоем аутентификации.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSupplier Role = "supplier"
)

// ParseRole приводит внешнее значение роли к Role.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleBuyer:
		return RoleBuyer, true
	case RoleSupplier:
		return RoleSupplier, true
	default:
		return "", false
	}
}

// Actor: аутентифицированный пользователь: покупатель или поставщик.
// Ядро доверяет этим данным и не перепроверяет учётные данные.
type Actor struct {
	ID            string
	Role          Role
	Authenticated bool
}

// Is проверяет, что актор аутентифицирован и имеет заданную роль.
func (a Actor) Is(role Role) bool {
	return a.Authenticated && a.ID != "" && a.Role == role
}
