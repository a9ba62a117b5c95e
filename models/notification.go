package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification types.
const (
	NotificationTypeNewEmail    = "NEW_EMAIL"
	NotificationTypeReadReceipt = "READ_RECEIPT"
	NotificationTypeMention     = "MENTION"
	NotificationTypeReply       = "REPLY"
)

// Notification is an in-app message addressed to one user, optionally tied
// to an email.
type Notification struct {
	gorm.Model

	UserID  uint   `gorm:"not null;index" json:"user_id"`
	Type    string `gorm:"not null" json:"type"`
	Title   string `gorm:"not null" json:"title"`
	Message string `gorm:"not null" json:"message"`
	EmailID *uint  `json:"email_id,omitempty"`
	IsRead  bool   `gorm:"default:false" json:"is_read"`
}

// ReadReceipt records the first read confirmation a recipient sends for a
// message. One row per (email, user); repeat confirmations are benign no-ops.
type ReadReceipt struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	EmailID uint      `gorm:"not null;uniqueIndex:uidx_read_receipt" json:"email_id"`
	UserID  uint      `gorm:"not null;uniqueIndex:uidx_read_receipt;index" json:"user_id"`
	ReadAt  time.Time `gorm:"not null" json:"read_at"`

	User User `json:"user"`
}
