package controller

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"postbox/models"
	"postbox/utils"
)

// fetchEmails runs one paginated mailbox view. Every view shares the same
// envelope: failures still carry an empty emails list.
func (ec *EmailController) fetchEmails(c *fiber.Ctx, failMsg, order string, filter func(uint, *gorm.DB) *gorm.DB) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorizedList(c, "emails")
	}

	page, limit := parsePagination(c)

	emails := make([]models.Email, 0, limit)
	query := filter(user.ID, ec.db.Model(&models.Email{}))
	err := withEmailRelations(query).
		Order(order).
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&emails).Error
	if err != nil {
		utils.LogError("fetch_emails_failed", err, map[string]interface{}{
			"user_id": user.ID,
			"path":    c.Path(),
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": failMsg,
			"emails":  []models.Email{},
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"emails":  emails,
	})
}

func (ec *EmailController) GetInboxEmails(c *fiber.Ctx) error {
	return ec.fetchEmails(c, "Failed to fetch emails", "sent_at DESC", func(userID uint, db *gorm.DB) *gorm.DB {
		return db.Scopes(recipientOf(userID)).
			Where("is_trashed = ? AND is_spam = ? AND is_archived = ?", false, false, false)
	})
}

func (ec *EmailController) GetSentEmails(c *fiber.Ctx) error {
	return ec.fetchEmails(c, "Failed to fetch sent emails", "sent_at DESC", func(userID uint, db *gorm.DB) *gorm.DB {
		return db.Where("sender_id = ? AND is_draft = ? AND is_trashed = ?", userID, false, false)
	})
}

func (ec *EmailController) GetDraftEmails(c *fiber.Ctx) error {
	return ec.fetchEmails(c, "Failed to fetch drafts", "updated_at DESC", func(userID uint, db *gorm.DB) *gorm.DB {
		return db.Where("sender_id = ? AND is_draft = ? AND is_trashed = ?", userID, true, false)
	})
}

func (ec *EmailController) GetStarredEmails(c *fiber.Ctx) error {
	return ec.fetchEmails(c, "Failed to fetch starred emails", "sent_at DESC", func(userID uint, db *gorm.DB) *gorm.DB {
		return db.Scopes(visibleTo(userID)).
			Where("is_starred = ? AND is_trashed = ?", true, false)
	})
}

func (ec *EmailController) GetSnoozedEmails(c *fiber.Ctx) error {
	return ec.fetchEmails(c, "Failed to fetch snoozed emails", "scheduled_at ASC", func(userID uint, db *gorm.DB) *gorm.DB {
		return db.Scopes(recipientOf(userID)).
			Where("scheduled_at IS NOT NULL AND scheduled_at > ?", time.Now()).
			Where("is_trashed = ? AND is_spam = ?", false, false)
	})
}

func (ec *EmailController) GetSpamEmails(c *fiber.Ctx) error {
	return ec.fetchEmails(c, "Failed to fetch spam emails", "sent_at DESC", func(userID uint, db *gorm.DB) *gorm.DB {
		return db.Scopes(recipientOf(userID)).
			Where("is_spam = ? AND is_trashed = ?", true, false)
	})
}

func (ec *EmailController) GetArchivedEmails(c *fiber.Ctx) error {
	return ec.fetchEmails(c, "Failed to fetch archived emails", "sent_at DESC", func(userID uint, db *gorm.DB) *gorm.DB {
		return db.Scopes(visibleTo(userID)).
			Where("is_archived = ? AND is_trashed = ?", true, false)
	})
}

// GetTrashedEmails ignores the other flags: Trash overrides every view a
// trashed message would otherwise appear in.
func (ec *EmailController) GetTrashedEmails(c *fiber.Ctx) error {
	return ec.fetchEmails(c, "Failed to fetch trash", "updated_at DESC", func(userID uint, db *gorm.DB) *gorm.DB {
		return db.Scopes(visibleTo(userID)).Where("is_trashed = ?", true)
	})
}

// GetEmailByID returns one message with all its relations. Reading marks the
// caller's own delivery rows read. A missing message and a message the caller
// has no visibility into are indistinguishable on purpose.
func (ec *EmailController) GetEmailByID(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Unauthorized",
			"email":   nil,
		})
	}

	emailID, err := c.ParamsInt("id")
	if err != nil || emailID < 1 {
		return emailNotFound(c)
	}

	var email models.Email
	err = withEmailRelations(ec.db.Scopes(visibleTo(user.ID))).
		Preload("ReadReceipts.User").
		Where("emails.id = ?", emailID).
		First(&email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return emailNotFound(c)
	}
	if err != nil {
		utils.LogError("get_email_failed", err, map[string]interface{}{
			"user_id":  user.ID,
			"email_id": emailID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch email",
			"email":   nil,
		})
	}

	// Read-on-view: viewing the message flips the caller's unread delivery
	// rows. Zero matching rows (the caller is the sender) is fine.
	now := time.Now()
	res := ec.db.Model(&models.EmailRecipient{}).
		Where("email_id = ? AND user_id = ? AND is_read = ?", email.ID, user.ID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if res.Error != nil {
		utils.LogError("mark_read_on_view_failed", res.Error, map[string]interface{}{
			"user_id":  user.ID,
			"email_id": email.ID,
		})
	} else if res.RowsAffected > 0 {
		for i := range email.Recipients {
			if email.Recipients[i].UserID == user.ID && !email.Recipients[i].IsRead {
				email.Recipients[i].IsRead = true
				email.Recipients[i].ReadAt = &now
			}
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"email":   email,
	})
}

func emailNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"success": false,
		"message": "Email not found",
		"email":   nil,
	})
}
