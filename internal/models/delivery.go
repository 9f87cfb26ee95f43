package models

import "time"

// Delivery statuses.
const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// Delivery records one attempt to send a composed email. It is an audit log,
// not conversation state; nothing is read back into a session.
type Delivery struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Platform    string    `gorm:"size:16" json:"platform"`
	UserID      string    `gorm:"size:64;not null;index" json:"user_id"`
	Subject     string    `gorm:"size:512" json:"subject"`
	Method      string    `gorm:"size:16" json:"method"`
	Recipients  int       `gorm:"not null" json:"recipients"`
	Attachments int       `gorm:"default:0" json:"attachments"`
	Transport   string    `gorm:"size:16" json:"transport,omitempty"`
	Status      string    `gorm:"size:16;not null;index" json:"status"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}
