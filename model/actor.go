package model

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Actor is the authenticated caller an operation runs on behalf of.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// SystemActor identifies automated writers in timelines, e.g. "system:payments".
func SystemActor(component string) Actor {
	return Actor{ID: "system:" + component, Role: RoleAdmin}
}

// SubmissionInput is the wizard payload a user submits.
type SubmissionInput struct {
	DraftID            string                 `json:"draft_id,omitempty"`
	Track              Track                  `json:"track"`
	BusinessProfile    BusinessProfile        `json:"business_profile"`
	Addresses          Addresses              `json:"addresses"`
	AdditionalServices []string               `json:"additional_services"`
	MetaData           map[string]interface{} `json:"meta_data,omitempty"`
}
