package chat

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrSelfReport    = errors.New("chat: cannot report yourself")
	ErrInvalidReason = errors.New("chat: invalid report reason")
)

// ReportStatus tracks the moderation lifecycle of a report.
type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportReviewed ReportStatus = "reviewed"
	ReportResolved ReportStatus = "resolved"
)

// ReportReasons lists the accepted reason codes.
var ReportReasons = []string{"spam", "scam", "harassment", "inappropriate", "other"}

// Report is an immutable moderation record. It never mutates the
// conversation it references.
type Report struct {
	ID             string       `bson:"_id" json:"id"`
	ReporterID     string       `bson:"reporter_id" json:"reporter_id"`
	ReportedID     string       `bson:"reported_id" json:"reported_id"`
	ConversationID string       `bson:"conversation_id" json:"conversation_id"`
	Reason         string       `bson:"reason" json:"reason"`
	Description    string       `bson:"description,omitempty" json:"description,omitempty"`
	Status         ReportStatus `bson:"status" json:"status"`
	CreatedAt      time.Time    `bson:"created_at" json:"created_at"`
}

// ValidReason reports whether reason is one of the accepted codes.
func ValidReason(reason string) bool {
	reason = strings.ToLower(strings.TrimSpace(reason))
	for _, r := range ReportReasons {
		if r == reason {
			return true
		}
	}
	return false
}
