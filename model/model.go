package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Id prefixes per entity.
const (
	SubmissionPrefix   = "sub"
	TransactionPrefix  = "txn"
	ContactQueryPrefix = "cq"
	DraftPrefix        = "drf"
)

// GenerateUUIDWithSuffix returns "<module>_<uuid>".
func GenerateUUIDWithSuffix(module string) string {
	return fmt.Sprintf("%s_%s", module, uuid.New().String())
}

// HasPrefix reports whether id was generated for module.
func HasPrefix(id, module string) bool {
	return strings.HasPrefix(id, module+"_")
}

// TimelineEntry is one append-only record of a status change.
type TimelineEntry struct {
	ID        int64     `json:"-"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	UpdatedBy string    `json:"updated_by"`
}

// AdminNote is an operator annotation. Notes are never edited or removed.
type AdminNote struct {
	ID        int64     `json:"-"`
	Note      string    `json:"note"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}
