package model

import "time"

// Thread is a support conversation between a customer, staff and the agent.
type Thread struct {
	ID                 string    `json:"id"`
	OwnerID            string    `json:"owner_id"`
	Title              string    `json:"title"`
	ManualIntervention bool      `json:"is_manual_intervention"`
	LastMessage        string    `json:"last_message,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CreateThreadRequest is the request to open a new thread.
type CreateThreadRequest struct {
	Title string `json:"title"`
}

// UpdateThreadRequest is the request to update a thread.
type UpdateThreadRequest struct {
	Title              string `json:"title,omitempty"`
	ManualIntervention *bool  `json:"is_manual_intervention,omitempty"`
}

// ListThreadsResponse is the response for listing threads.
type ListThreadsResponse struct {
	Threads []Thread `json:"threads"`
	Total   int64    `json:"total"`
	HasMore bool     `json:"has_more"`
}

// RoleAdmin is a user role only; admins post messages as RoleStaff.
const RoleAdmin Role = "admin"

// User is an authenticated principal as seen by the platform.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// IsStaff reports whether the user speaks for the support team.
func (u User) IsStaff() bool {
	return u.Role == RoleStaff || u.Role == RoleAdmin
}

// MessageRole is the role of the messages u sends.
func (u User) MessageRole() Role {
	if u.IsStaff() {
		return RoleStaff
	}
	return RoleCustomer
}
