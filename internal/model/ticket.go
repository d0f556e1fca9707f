package model

// TicketRequest is the payload submitted to the tracker, constructed from
// the confirmed draft. Submitted exactly once per user confirmation.
type TicketRequest struct {
	TeamID      string
	Title       string
	Description string
	LabelIDs    []string
}

// Issue is a created tracker issue.
type Issue struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	URL        string `json:"url"`
}

// Customer is a tracker customer record.
type Customer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Label is a tracker team label.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
