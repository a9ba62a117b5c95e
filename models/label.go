package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultLabelColor is applied when a label is created without a color.
const DefaultLabelColor = "#6B7280"

// Label is a named, colored tag. Label names form a shared global namespace:
// the row is shared between every user holding a UserLabel association and is
// deleted only when the last association goes away.
type Label struct {
	gorm.Model

	Name  string `gorm:"uniqueIndex;not null" json:"name"`
	Color string `gorm:"default:'#6B7280'" json:"color"`

	UserLabels  []UserLabel  `gorm:"foreignKey:LabelID" json:"-"`
	EmailLabels []EmailLabel `gorm:"foreignKey:LabelID" json:"-"`
}

// UserLabel associates a shared label with one user.
type UserLabel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID  uint `gorm:"not null;uniqueIndex:uidx_user_label" json:"user_id"`
	LabelID uint `gorm:"not null;uniqueIndex:uidx_user_label;index" json:"label_id"`

	Label Label `json:"label"`
}

// EmailLabel applies a label to a message, once per pair.
type EmailLabel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	EmailID uint `gorm:"not null;uniqueIndex:uidx_email_label" json:"email_id"`
	LabelID uint `gorm:"not null;uniqueIndex:uidx_email_label;index" json:"label_id"`

	Label Label `json:"label"`
}
