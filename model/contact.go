package model

import "time"

type ContactStatus string

const (
	ContactPending    ContactStatus = "pending"
	ContactInProgress ContactStatus = "in_progress"
	ContactResolved   ContactStatus = "resolved"
	ContactClosed     ContactStatus = "closed"
)

var ContactStatuses = []ContactStatus{ContactPending, ContactInProgress, ContactResolved, ContactClosed}

func (s ContactStatus) IsValid() bool {
	for _, v := range ContactStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type ContactQuery struct {
	ID          int64           `json:"-"`
	QueryID     string          `json:"query_id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Subject     string          `json:"subject"`
	Message     string          `json:"message"`
	Status      ContactStatus   `json:"status"`
	Timeline    []TimelineEntry `json:"timeline,omitempty"`
	AdminNotes  []AdminNote     `json:"admin_notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	LastUpdated time.Time       `json:"last_updated"`
}

type ContactFilter struct {
	Status ContactStatus
	Limit  int
	Offset int
}
