package domain

// Task is a unit of work hours can be reported against. Tasks are addressed
// by their code, not by a numeric id.
type Task struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	ClientID int    `json:"client_id"`
	Subtype  string `json:"subtype,omitempty"`
	Active   bool   `json:"active"`
}

// TaskSubtype is a reference-data descriptor for task categorisation.
type TaskSubtype struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Client is a customer tasks are billed to.
type Client struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}
