package models

import (
	"time"

	"gorm.io/gorm"
)

// Recipient delivery roles.
const (
	RecipientTypeTo  = "TO"
	RecipientTypeCc  = "CC"
	RecipientTypeBcc = "BCC"
)

// Email represents a single authored message, draft or sent. SentAt is null
// exactly while the message is a draft; once sent it is never changed.
type Email struct {
	gorm.Model

	Subject  string `gorm:"not null" json:"subject"`
	Body     string `gorm:"type:text;not null" json:"body"`
	BodyHTML string `gorm:"type:text" json:"body_html,omitempty"`
	SenderID uint   `gorm:"not null;index" json:"sender_id"`
	ThreadID *uint  `gorm:"index" json:"thread_id,omitempty"`

	IsDraft    bool `gorm:"default:false" json:"is_draft"`
	IsStarred  bool `gorm:"default:false" json:"is_starred"`
	IsTrashed  bool `gorm:"default:false" json:"is_trashed"`
	IsSpam     bool `gorm:"default:false" json:"is_spam"`
	IsArchived bool `gorm:"default:false" json:"is_archived"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`

	// Relations
	Sender       User             `json:"sender"`
	Recipients   []EmailRecipient `gorm:"foreignKey:EmailID" json:"recipients"`
	Attachments  []Attachment     `gorm:"foreignKey:EmailID" json:"attachments"`
	Labels       []EmailLabel     `gorm:"foreignKey:EmailID" json:"labels"`
	ReadReceipts []ReadReceipt    `gorm:"foreignKey:EmailID" json:"read_receipts,omitempty"`
}

// EmailRecipient joins a message to a user in a given delivery role and
// carries that user's read state. At most one delivery role per (email, user).
type EmailRecipient struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	EmailID uint       `gorm:"not null;uniqueIndex:uidx_email_recipient" json:"email_id"`
	UserID  uint       `gorm:"not null;uniqueIndex:uidx_email_recipient;index" json:"user_id"`
	Type    string     `gorm:"not null;default:'TO'" json:"type"`
	IsRead  bool       `gorm:"default:false" json:"is_read"`
	ReadAt  *time.Time `json:"read_at,omitempty"`

	User User `json:"user"`
}

// Attachment is an opaque file reference owned by exactly one message.
// The binary itself lives behind the URL and is never streamed by this core.
type Attachment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	EmailID  uint   `gorm:"not null;index" json:"email_id"`
	Filename string `gorm:"not null" json:"filename"`
	MimeType string `gorm:"not null" json:"mime_type"`
	Size     int64  `gorm:"not null" json:"size"`
	URL      string `gorm:"not null" json:"url"`
}
