package controller

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"postbox/cache"
	"postbox/models"
	"postbox/utils"
)

// findVisibleEmail loads a message only if the user is its sender or one of
// its recipients. Every targeted mutation goes through this check.
func (ec *EmailController) findVisibleEmail(userID uint, emailID int) (*models.Email, error) {
	var email models.Email
	err := ec.db.Scopes(visibleTo(userID)).Where("emails.id = ?", emailID).First(&email).Error
	if err != nil {
		return nil, err
	}
	return &email, nil
}

// ToggleStar flips the starred flag and returns the new value.
func (ec *EmailController) ToggleStar(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	emailID, err := c.ParamsInt("id")
	if err != nil || emailID < 1 {
		return emailNotFound(c)
	}

	email, err := ec.findVisibleEmail(user.ID, emailID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return emailNotFound(c)
	}
	if err == nil {
		err = ec.db.Model(&models.Email{}).
			Where("id = ?", email.ID).
			Update("is_starred", !email.IsStarred).Error
	}
	if err != nil {
		utils.LogError("toggle_star_failed", err, map[string]interface{}{
			"user_id":  user.ID,
			"email_id": emailID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to toggle star",
		})
	}

	ec.invalidator.InvalidateViews(c.UserContext(), user.ID,
		cache.ViewInbox, cache.ViewStarred, cache.ViewSent)

	return c.JSON(fiber.Map{
		"success":    true,
		"is_starred": !email.IsStarred,
	})
}

// setReadState bulk-updates the caller's own delivery rows for the message.
// Zero matching rows (not a recipient) is success, not an error.
func (ec *EmailController) setReadState(c *fiber.Ctx, read bool, failMsg string) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	emailID, err := c.ParamsInt("id")
	if err != nil || emailID < 1 {
		return emailNotFound(c)
	}

	updates := map[string]interface{}{"is_read": read}
	if read {
		updates["read_at"] = time.Now()
	} else {
		updates["read_at"] = nil
	}

	res := ec.db.Model(&models.EmailRecipient{}).
		Where("email_id = ? AND user_id = ?", emailID, user.ID).
		Updates(updates)
	if res.Error != nil {
		utils.LogError("set_read_state_failed", res.Error, map[string]interface{}{
			"user_id":  user.ID,
			"email_id": emailID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": failMsg,
		})
	}

	ec.invalidator.InvalidateViews(c.UserContext(), user.ID, cache.ViewInbox)

	return c.JSON(fiber.Map{"success": true})
}

func (ec *EmailController) MarkAsRead(c *fiber.Ctx) error {
	return ec.setReadState(c, true, "Failed to mark as read")
}

func (ec *EmailController) MarkAsUnread(c *fiber.Ctx) error {
	return ec.setReadState(c, false, "Failed to mark as unread")
}

// setEmailFlag applies one boolean flag mutation after a visibility check.
func (ec *EmailController) setEmailFlag(c *fiber.Ctx, column string, value bool, failMsg string, views ...string) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	emailID, err := c.ParamsInt("id")
	if err != nil || emailID < 1 {
		return emailNotFound(c)
	}

	email, err := ec.findVisibleEmail(user.ID, emailID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return emailNotFound(c)
	}
	if err == nil {
		err = ec.db.Model(email).Update(column, value).Error
	}
	if err != nil {
		utils.LogError("set_email_flag_failed", err, map[string]interface{}{
			"user_id":  user.ID,
			"email_id": emailID,
			"column":   column,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": failMsg,
		})
	}

	ec.invalidator.InvalidateViews(c.UserContext(), user.ID, views...)

	return c.JSON(fiber.Map{"success": true})
}

// Trash and archive are independent flags: a message can be both at once,
// and the Trash view wins while is_trashed is set.
func (ec *EmailController) MoveToTrash(c *fiber.Ctx) error {
	return ec.setEmailFlag(c, "is_trashed", true, "Failed to move to trash",
		cache.ViewInbox, cache.ViewSent, cache.ViewArchive, cache.ViewTrash)
}

func (ec *EmailController) RestoreFromTrash(c *fiber.Ctx) error {
	return ec.setEmailFlag(c, "is_trashed", false, "Failed to restore email",
		cache.ViewInbox, cache.ViewSent, cache.ViewArchive, cache.ViewTrash)
}

func (ec *EmailController) ArchiveEmail(c *fiber.Ctx) error {
	return ec.setEmailFlag(c, "is_archived", true, "Failed to archive email",
		cache.ViewInbox, cache.ViewArchive)
}

func (ec *EmailController) UnarchiveEmail(c *fiber.Ctx) error {
	return ec.setEmailFlag(c, "is_archived", false, "Failed to unarchive email",
		cache.ViewInbox, cache.ViewArchive)
}

func (ec *EmailController) MarkAsSpam(c *fiber.Ctx) error {
	return ec.setEmailFlag(c, "is_spam", true, "Failed to mark as spam",
		cache.ViewInbox, cache.ViewSpam)
}

func (ec *EmailController) MarkAsNotSpam(c *fiber.Ctx) error {
	return ec.setEmailFlag(c, "is_spam", false, "Failed to mark as not spam",
		cache.ViewInbox, cache.ViewSpam)
}

type SnoozeEmailRequest struct {
	SnoozedUntil time.Time `json:"snoozed_until" validate:"required"`
}

// SnoozeEmail hides a delivered message until the given time; the Snoozed
// view lists messages whose scheduled_at is still in the future.
func (ec *EmailController) SnoozeEmail(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	emailID, err := c.ParamsInt("id")
	if err != nil || emailID < 1 {
		return emailNotFound(c)
	}

	var req SnoozeEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}
	if !req.SnoozedUntil.After(time.Now()) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "snoozed_until must be in the future",
		})
	}

	email, err := ec.findVisibleEmail(user.ID, emailID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return emailNotFound(c)
	}
	if err == nil {
		err = ec.db.Model(email).Update("scheduled_at", req.SnoozedUntil).Error
	}
	if err != nil {
		utils.LogError("snooze_email_failed", err, map[string]interface{}{
			"user_id":  user.ID,
			"email_id": emailID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to snooze email",
		})
	}

	ec.invalidator.InvalidateViews(c.UserContext(), user.ID, cache.ViewInbox, cache.ViewSnoozed)

	return c.JSON(fiber.Map{"success": true})
}

// DeleteEmailPermanently removes the message row and everything it owns:
// delivery rows, attachments, label applications and read receipts.
// Notifications keep their row but lose the email reference.
func (ec *EmailController) DeleteEmailPermanently(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	emailID, err := c.ParamsInt("id")
	if err != nil || emailID < 1 {
		return emailNotFound(c)
	}

	email, err := ec.findVisibleEmail(user.ID, emailID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return emailNotFound(c)
	}
	if err == nil {
		err = ec.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("email_id = ?", email.ID).Delete(&models.EmailRecipient{}).Error; err != nil {
				return err
			}
			if err := tx.Where("email_id = ?", email.ID).Delete(&models.Attachment{}).Error; err != nil {
				return err
			}
			if err := tx.Where("email_id = ?", email.ID).Delete(&models.EmailLabel{}).Error; err != nil {
				return err
			}
			if err := tx.Where("email_id = ?", email.ID).Delete(&models.ReadReceipt{}).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Notification{}).
				Where("email_id = ?", email.ID).
				Update("email_id", nil).Error; err != nil {
				return err
			}
			return tx.Unscoped().Delete(&models.Email{}, email.ID).Error
		})
	}
	if err != nil {
		utils.LogError("delete_email_failed", err, map[string]interface{}{
			"user_id":  user.ID,
			"email_id": emailID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete email",
		})
	}

	ec.invalidator.InvalidateViews(c.UserContext(), user.ID, cache.ViewTrash)

	return c.JSON(fiber.Map{"success": true})
}
