package domain

// Role is a reference-data descriptor joined into users for display.
type Role struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// JobTitle is a reference-data descriptor joined into users for display.
type JobTitle struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// SupervisorRef is a weak reference to another user, used for lookup only.
type SupervisorRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Principal models the signed-in user's identity and session-scoped
// attributes. At most one Principal exists per session at a time.
type Principal struct {
	ID                int            `json:"id"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	Role              Role           `json:"role"`
	JobTitle          JobTitle       `json:"job_title"`
	Supervisor        *SupervisorRef `json:"supervisor,omitempty"`
	AutoApproved      bool           `json:"auto_approved"`
	ShowAllTasks      bool           `json:"show_all_tasks"`
	ExternalAccountID string         `json:"external_account_id,omitempty"`
	Avatar            string         `json:"avatar,omitempty"`
}

// PrincipalPatch carries a partial update: nil fields are left untouched by
// Apply. Mirrors the shallow-merge semantics of a profile update.
type PrincipalPatch struct {
	Name              *string
	Email             *string
	Role              *Role
	JobTitle          *JobTitle
	Supervisor        *SupervisorRef
	AutoApproved      *bool
	ShowAllTasks      *bool
	ExternalAccountID *string
	Avatar            *string
}

// Apply merges the non-nil fields of the patch into a copy of p and returns
// the copy. The receiver is never mutated.
func (p Principal) Apply(patch PrincipalPatch) Principal {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Email != nil {
		p.Email = *patch.Email
	}
	if patch.Role != nil {
		p.Role = *patch.Role
	}
	if patch.JobTitle != nil {
		p.JobTitle = *patch.JobTitle
	}
	if patch.Supervisor != nil {
		p.Supervisor = patch.Supervisor
	}
	if patch.AutoApproved != nil {
		p.AutoApproved = *patch.AutoApproved
	}
	if patch.ShowAllTasks != nil {
		p.ShowAllTasks = *patch.ShowAllTasks
	}
	if patch.ExternalAccountID != nil {
		p.ExternalAccountID = *patch.ExternalAccountID
	}
	if patch.Avatar != nil {
		p.Avatar = *patch.Avatar
	}
	return p
}
