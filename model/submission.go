package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Track string

const (
	TrackDIY      Track = "DIY"
	TrackAssisted Track = "ASSISTED"
)

func (t Track) IsValid() bool {
	return t == TrackDIY || t == TrackAssisted
}

type SubmissionStatus string

const (
	StatusPending    SubmissionStatus = "pending"
	StatusProcessing SubmissionStatus = "processing"
	StatusReview     SubmissionStatus = "review"
	StatusApproved   SubmissionStatus = "approved"
	StatusCompleted  SubmissionStatus = "completed"
	StatusRejected   SubmissionStatus = "rejected"
	StatusCancelled  SubmissionStatus = "cancelled"
)

// SubmissionStatuses lists every status in lifecycle order.
var SubmissionStatuses = []SubmissionStatus{
	StatusPending, StatusProcessing, StatusReview, StatusApproved,
	StatusCompleted, StatusRejected, StatusCancelled,
}

func (s SubmissionStatus) IsValid() bool {
	for _, v := range SubmissionStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is expected from s.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

func (p PaymentStatus) IsValid() bool {
	return p == PaymentUnpaid || p == PaymentPending || p == PaymentPaid
}

type BusinessProfile struct {
	Name         string `json:"name"`
	EntityType   string `json:"entity_type"`
	Industry     string `json:"industry,omitempty"`
	Description  string `json:"description,omitempty"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone,omitempty"`
}

type Address struct {
	Line1  string `json:"line1"`
	Line2  string `json:"line2,omitempty"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
	County string `json:"county,omitempty"`
}

type Addresses struct {
	Personal               *Address `json:"personal,omitempty"`
	Business               *Address `json:"business,omitempty"`
	BusinessSameAsPersonal bool     `json:"business_same_as_personal"`
}

// Resolve copies the personal address into business when BusinessSameAsPersonal is set.
func (a Addresses) Resolve() Addresses {
	if a.BusinessSameAsPersonal && a.Personal != nil {
		business := *a.Personal
		a.Business = &business
	}
	return a
}

type Submission struct {
	ID                   int64                  `json:"-"`
	SubmissionID         string                 `json:"submission_id"`
	DraftID              string                 `json:"draft_id,omitempty"`
	UserID               string                 `json:"user_id"`
	Track                Track                  `json:"track"`
	Status               SubmissionStatus       `json:"status"`
	PaymentStatus        PaymentStatus          `json:"payment_status"`
	BusinessProfile      BusinessProfile        `json:"business_profile"`
	Addresses            Addresses              `json:"addresses"`
	AdditionalServices   []string               `json:"additional_services"`
	UnrecognizedServices []string               `json:"unrecognized_services,omitempty"`
	TotalAmount          decimal.Decimal        `json:"total_amount"`
	Currency             string                 `json:"currency"`
	Timeline             []TimelineEntry        `json:"timeline,omitempty"`
	AdminNotes           []AdminNote            `json:"admin_notes,omitempty"`
	MetaData             map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	LastUpdated          time.Time              `json:"last_updated"`
}

func (s *Submission) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// SubmissionFilter narrows admin listings. Zero values do not filter.
type SubmissionFilter struct {
	Status        SubmissionStatus
	PaymentStatus PaymentStatus
	Track         Track
	UserID        string
	Limit         int
	Offset        int
}
