package types

type Role string

const (
	RoleAdmin  Role = "admin"
	RolePorter Role = "porter"
	RoleStaff  Role = "staff"
	RoleVendor Role = "vendor"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePorter, RoleStaff, RoleVendor:
		return true
	}
	return false
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	User      User   `json:"user"`
}

type CreateUserRequest struct {
	Login     string `json:"login"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	JobTitle  string `json:"job_title"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

type User struct {
	ID        string `json:"id"`
	Login     string `json:"login"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	JobTitle  string `json:"job_title"`
	Role      Role   `json:"role"`
	PhotoURL  string `json:"photo_url,omitempty"`
}
