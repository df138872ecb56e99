package domain

// User is one entry of the administrable user collection. Supervisors and
// admins see it in the user-management views; the signed-in user's own record
// is exposed separately as a Principal.
type User struct {
	ID           int            `json:"id"`
	Name         string         `json:"name"`
	Email        string         `json:"email"`
	Role         Role           `json:"role"`
	JobTitle     JobTitle       `json:"job_title"`
	Supervisor   *SupervisorRef `json:"supervisor,omitempty"`
	AutoApproved bool           `json:"auto_approved"`
	Active       bool           `json:"active"`
}

// Supervisor is the lightweight view returned by the supervisors endpoint.
type Supervisor struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
