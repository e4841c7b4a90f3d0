package models

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the identity resolved from a verified token.
type User struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
