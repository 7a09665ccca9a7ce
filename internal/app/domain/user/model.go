package user

import "time"

// Role gates every authorization decision. It is immutable after registration.
type Role string

const (
	RoleDonor     Role = "donor"
	RoleReceiver  Role = "receiver"
	RoleVolunteer Role = "volunteer"
)

// Valid reports whether the role is one of the registerable roles.
func (r Role) Valid() bool {
	switch r {
	case RoleDonor, RoleReceiver, RoleVolunteer:
		return true
	}
	return false
}

// User represents a registered account. The password hash never serializes.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Summary is the sanitized projection embedded in API responses. It never
// carries the password hash.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Summarize projects the user into its public form.
func (u User) Summarize() Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}
