package controller

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"postbox/cache"
	"postbox/models"
	"postbox/utils"
)

const notificationListCap = 50

type NotificationController struct {
	db          *gorm.DB
	logger      *log.Logger
	invalidator *cache.Invalidator
}

func NewNotificationController(db *gorm.DB, logger *log.Logger, invalidator *cache.Invalidator) *NotificationController {
	return &NotificationController{
		db:          db,
		logger:      logger,
		invalidator: invalidator,
	}
}

func (nc *NotificationController) GetNotifications(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorizedList(c, "notifications")
	}

	notifications := make([]models.Notification, 0, notificationListCap)
	err := nc.db.Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Limit(notificationListCap).
		Find(&notifications).Error
	if err != nil {
		utils.LogError("get_notifications_failed", err, map[string]interface{}{"user_id": user.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":       false,
			"message":       "Failed to fetch notifications",
			"notifications": []models.Notification{},
		})
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"notifications": notifications,
	})
}

func (nc *NotificationController) MarkNotificationAsRead(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	notificationID, err := c.ParamsInt("id")
	if err != nil || notificationID < 1 {
		return notificationNotFound(c)
	}

	res := nc.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, user.ID).
		Update("is_read", true)
	if res.Error != nil {
		utils.LogError("mark_notification_read_failed", res.Error, map[string]interface{}{
			"user_id":         user.ID,
			"notification_id": notificationID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to mark notification as read",
		})
	}
	if res.RowsAffected == 0 {
		return notificationNotFound(c)
	}

	nc.invalidator.InvalidateViews(c.UserContext(), user.ID, cache.ViewNotifications)

	return c.JSON(fiber.Map{"success": true})
}

func (nc *NotificationController) MarkAllNotificationsAsRead(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	err := nc.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", user.ID, false).
		Update("is_read", true).Error
	if err != nil {
		utils.LogError("mark_all_notifications_read_failed", err, map[string]interface{}{"user_id": user.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to mark notifications as read",
		})
	}

	nc.invalidator.InvalidateViews(c.UserContext(), user.ID, cache.ViewNotifications)

	return c.JSON(fiber.Map{"success": true})
}

func (nc *NotificationController) DeleteNotification(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	notificationID, err := c.ParamsInt("id")
	if err != nil || notificationID < 1 {
		return notificationNotFound(c)
	}

	res := nc.db.Unscoped().
		Where("id = ? AND user_id = ?", notificationID, user.ID).
		Delete(&models.Notification{})
	if res.Error != nil {
		utils.LogError("delete_notification_failed", res.Error, map[string]interface{}{
			"user_id":         user.ID,
			"notification_id": notificationID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete notification",
		})
	}
	if res.RowsAffected == 0 {
		return notificationNotFound(c)
	}

	nc.invalidator.InvalidateViews(c.UserContext(), user.ID, cache.ViewNotifications)

	return c.JSON(fiber.Map{"success": true})
}

// RecordReadReceipt stores the caller's read confirmation for a message they
// received. Idempotent: a repeat call succeeds without a second receipt or
// notification. The first call notifies the sender unless the reader is the
// sender.
func (nc *NotificationController) RecordReadReceipt(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	emailID, err := c.ParamsInt("id")
	if err != nil || emailID < 1 {
		return emailNotFound(c)
	}

	var email models.Email
	err = nc.db.Scopes(recipientOf(user.ID)).Where("emails.id = ?", emailID).First(&email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return emailNotFound(c)
	}

	if err == nil {
		var existing models.ReadReceipt
		err = nc.db.Where("email_id = ? AND user_id = ?", email.ID, user.ID).First(&existing).Error
		if err == nil {
			return c.JSON(fiber.Map{
				"success": true,
				"message": "Read receipt already recorded",
			})
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = nc.db.Transaction(func(tx *gorm.DB) error {
				receipt := models.ReadReceipt{
					EmailID: email.ID,
					UserID:  user.ID,
					ReadAt:  time.Now(),
				}
				if err := tx.Create(&receipt).Error; err != nil {
					// A concurrent confirmation won the unique index; the
					// receipt exists, nothing more to do.
					var raced models.ReadReceipt
					if findErr := tx.Where("email_id = ? AND user_id = ?", email.ID, user.ID).
						First(&raced).Error; findErr == nil {
						return nil
					}
					return err
				}
				if email.SenderID == user.ID {
					return nil
				}
				return tx.Create(&models.Notification{
					UserID:  email.SenderID,
					Type:    models.NotificationTypeReadReceipt,
					Title:   "Email Read",
					Message: fmt.Sprintf("%s has read your email: %s", user.Email, email.Subject),
					EmailID: &email.ID,
				}).Error
			})
		}
	}
	if err != nil {
		utils.LogError("record_read_receipt_failed", err, map[string]interface{}{
			"user_id":  user.ID,
			"email_id": emailID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to record read receipt",
		})
	}

	if email.SenderID != user.ID {
		nc.invalidator.InvalidateViews(c.UserContext(), email.SenderID, cache.ViewNotifications)
	}

	return c.JSON(fiber.Map{"success": true})
}

// GetReadReceipts lists who has confirmed reading a message the caller can
// see, most recent first.
func (nc *NotificationController) GetReadReceipts(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorizedList(c, "receipts")
	}

	emailID, err := c.ParamsInt("id")
	if err != nil || emailID < 1 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success":  false,
			"message":  "Email not found",
			"receipts": []models.ReadReceipt{},
		})
	}

	var email models.Email
	err = nc.db.Scopes(visibleTo(user.ID)).Where("emails.id = ?", emailID).First(&email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success":  false,
			"message":  "Email not found",
			"receipts": []models.ReadReceipt{},
		})
	}

	receipts := make([]models.ReadReceipt, 0)
	if err == nil {
		err = nc.db.Preload("User").
			Where("email_id = ?", email.ID).
			Order("read_at DESC").
			Find(&receipts).Error
	}
	if err != nil {
		utils.LogError("get_read_receipts_failed", err, map[string]interface{}{
			"user_id":  user.ID,
			"email_id": emailID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":  false,
			"message":  "Failed to fetch read receipts",
			"receipts": []models.ReadReceipt{},
		})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"receipts": receipts,
	})
}

// HandleNotificationWS streams the caller's unread notifications. The client
// opens the socket and sends {"token": "..."} as a handshake; the server then
// pushes the unread set every few seconds until the connection drops.
func (nc *NotificationController) HandleNotificationWS(c *websocket.Conn) {
	defer c.Close()

	var handshake struct {
		Token string `json:"token"`
	}
	if err := c.ReadJSON(&handshake); err != nil {
		nc.logger.Printf("Error reading handshake: %v", err)
		return
	}

	claims, err := utils.ParseJWTToken(handshake.Token)
	if err != nil {
		_ = c.WriteJSON(fiber.Map{"success": false, "message": "Unauthorized"})
		return
	}

	var user models.User
	if err := nc.db.First(&user, claims.UserID).Error; err != nil {
		_ = c.WriteJSON(fiber.Map{"success": false, "message": "Unauthorized"})
		return
	}

	for {
		var unread []models.Notification
		err := nc.db.Where("user_id = ? AND is_read = ?", user.ID, false).
			Order("created_at DESC").
			Limit(notificationListCap).
			Find(&unread).Error
		if err != nil {
			nc.logger.Printf("Error fetching notifications for user %d: %v", user.ID, err)
			return
		}

		if err := c.WriteJSON(fiber.Map{
			"success":       true,
			"notifications": unread,
		}); err != nil {
			return
		}

		time.Sleep(5 * time.Second)
	}
}

func notificationNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"success": false,
		"message": "Notification not found",
	})
}
