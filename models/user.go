package models

import (
	"gorm.io/gorm"
)

// User represents a mailbox account. Users are created at registration, or
// lazily as placeholder contacts the first time an unknown address shows up
// as a message recipient. Placeholder contacts have no password hash and
// cannot log in until they register and claim the row.
type User struct {
	gorm.Model

	Email        string  `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string  `gorm:"column:password_hash" json:"-"`
	Name         *string `json:"name,omitempty"`
	Image        *string `json:"image,omitempty"`

	// Relations
	SentEmails    []Email          `gorm:"foreignKey:SenderID" json:"-"`
	Deliveries    []EmailRecipient `gorm:"foreignKey:UserID" json:"-"`
	UserLabels    []UserLabel      `gorm:"foreignKey:UserID" json:"-"`
	Notifications []Notification   `gorm:"foreignKey:UserID" json:"-"`
}

// IsPlaceholder reports whether the user is an auto-created contact that has
// never registered.
func (u *User) IsPlaceholder() bool {
	return u.PasswordHash == ""
}
