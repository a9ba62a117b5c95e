package controller_test

import (
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"postbox/models"
)

func listNotifications(t *testing.T, app *fiber.App, token string) []map[string]interface{} {
	t.Helper()
	status, envelope := doRequest(t, app, fiber.MethodGet, "/api/v1/notifications", token, nil)
	if status != fiber.StatusOK || envelope["success"] != true {
		t.Fatalf("list notifications: status %d, envelope %v", status, envelope)
	}
	raw, _ := envelope["notifications"].([]interface{})
	notifications := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		notifications = append(notifications, item.(map[string]interface{}))
	}
	return notifications
}

func TestRecordReadReceiptIdempotent(t *testing.T) {
	app, db := newTestApp(t)
	alice := registerAndLogin(t, app, "Alice", "alice@example.com", "secret123")
	bob := registerAndLogin(t, app, "Bob", "bob@example.com", "secret123")

	emailID := sendEmail(t, app, alice, fiber.Map{
		"to":      []string{"bob@example.com"},
		"subject": "Confirm this",
		"body":    "body",
	})
	path := fmt.Sprintf("/api/v1/emails/%d/receipt", emailID)

	status, envelope := doRequest(t, app, fiber.MethodPost, path, bob, nil)
	if status != fiber.StatusOK || envelope["success"] != true {
		t.Fatalf("first receipt: status %d, envelope %v", status, envelope)
	}

	status, envelope = doRequest(t, app, fiber.MethodPost, path, bob, nil)
	if status != fiber.StatusOK || envelope["success"] != true {
		t.Fatalf("second receipt: status %d, envelope %v", status, envelope)
	}
	if envelope["message"] != "Read receipt already recorded" {
		t.Errorf("second receipt message = %v", envelope["message"])
	}

	var receipts int64
	db.Model(&models.ReadReceipt{}).Where("email_id = ?", emailID).Count(&receipts)
	if receipts != 1 {
		t.Errorf("receipt rows = %d, want 1", receipts)
	}

	notifications := listNotifications(t, app, alice)
	if len(notifications) != 1 {
		t.Fatalf("sender notifications = %d, want exactly 1", len(notifications))
	}
	if notifications[0]["type"] != models.NotificationTypeReadReceipt {
		t.Errorf("notification type = %v", notifications[0]["type"])
	}
	if msg := notifications[0]["message"].(string); msg != "bob@example.com has read your email: Confirm this" {
		t.Errorf("notification message = %q", msg)
	}
}

func TestRecordReadReceiptRequiresRecipient(t *testing.T) {
	app, db := newTestApp(t)
	alice := registerAndLogin(t, app, "Alice", "alice@example.com", "secret123")
	_ = registerAndLogin(t, app, "Bob", "bob@example.com", "secret123")
	carol := registerAndLogin(t, app, "Carol", "carol@example.com", "secret123")

	emailID := sendEmail(t, app, alice, fiber.Map{
		"to":      []string{"bob@example.com"},
		"subject": "Private",
		"body":    "body",
	})
	path := fmt.Sprintf("/api/v1/emails/%d/receipt", emailID)

	// The sender is not a recipient, and an outsider sees nothing at all.
	for _, token := range []string{alice, carol} {
		status, envelope := doRequest(t, app, fiber.MethodPost, path, token, nil)
		if status != fiber.StatusNotFound || envelope["message"] != "Email not found" {
			t.Errorf("non-recipient receipt: status %d, envelope %v", status, envelope)
		}
	}

	var receipts int64
	db.Model(&models.ReadReceipt{}).Where("email_id = ?", emailID).Count(&receipts)
	if receipts != 0 {
		t.Errorf("receipt rows = %d, want 0", receipts)
	}
}

func TestGetReadReceipts(t *testing.T) {
	app, _ := newTestApp(t)
	alice := registerAndLogin(t, app, "Alice", "alice@example.com", "secret123")
	bob := registerAndLogin(t, app, "Bob", "bob@example.com", "secret123")
	carol := registerAndLogin(t, app, "Carol", "carol@example.com", "secret123")

	emailID := sendEmail(t, app, alice, fiber.Map{
		"to":      []string{"bob@example.com", "carol@example.com"},
		"subject": "Group note",
		"body":    "body",
	})
	for _, token := range []string{bob, carol} {
		if status, _ := doRequest(t, app, fiber.MethodPost, fmt.Sprintf("/api/v1/emails/%d/receipt", emailID), token, nil); status != fiber.StatusOK {
			t.Fatalf("record receipt: status %d", status)
		}
	}

	status, envelope := doRequest(t, app, fiber.MethodGet, fmt.Sprintf("/api/v1/emails/%d/receipts", emailID), alice, nil)
	if status != fiber.StatusOK || envelope["success"] != true {
		t.Fatalf("get receipts: status %d, envelope %v", status, envelope)
	}
	receipts, _ := envelope["receipts"].([]interface{})
	if len(receipts) != 2 {
		t.Fatalf("receipts = %d, want 2", len(receipts))
	}
	first := receipts[0].(map[string]interface{})
	if _, ok := first["user"].(map[string]interface{}); !ok {
		t.Error("receipt should embed the reading user")
	}

	outsider := registerAndLogin(t, app, "Dave", "dave@example.com", "secret123")
	status, _ = doRequest(t, app, fiber.MethodGet, fmt.Sprintf("/api/v1/emails/%d/receipts", emailID), outsider, nil)
	if status != fiber.StatusNotFound {
		t.Errorf("outsider receipts: status %d, want 404", status)
	}
}

func TestNotificationLifecycle(t *testing.T) {
	app, db := newTestApp(t)
	alice := registerAndLogin(t, app, "Alice", "alice@example.com", "secret123")

	var user models.User
	if err := db.Where("email = ?", "alice@example.com").First(&user).Error; err != nil {
		t.Fatalf("find user: %v", err)
	}
	ids := make([]uint, 0, 3)
	for i := 0; i < 3; i++ {
		n := models.Notification{
			UserID:  user.ID,
			Type:    models.NotificationTypeNewEmail,
			Title:   "New Email",
			Message: fmt.Sprintf("message %d", i),
		}
		if err := db.Create(&n).Error; err != nil {
			t.Fatalf("create notification: %v", err)
		}
		ids = append(ids, n.ID)
	}

	if got := listNotifications(t, app, alice); len(got) != 3 {
		t.Fatalf("notifications = %d, want 3", len(got))
	}

	if status, _ := doRequest(t, app, fiber.MethodPost, fmt.Sprintf("/api/v1/notifications/%d/read", ids[0]), alice, nil); status != fiber.StatusOK {
		t.Fatalf("mark read: status %d", status)
	}
	var unread int64
	db.Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", user.ID, false).Count(&unread)
	if unread != 2 {
		t.Errorf("unread after single mark = %d, want 2", unread)
	}

	if status, _ := doRequest(t, app, fiber.MethodPost, "/api/v1/notifications/read-all", alice, nil); status != fiber.StatusOK {
		t.Fatalf("read-all: status %d", status)
	}
	db.Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", user.ID, false).Count(&unread)
	if unread != 0 {
		t.Errorf("unread after read-all = %d, want 0", unread)
	}

	if status, _ := doRequest(t, app, fiber.MethodDelete, fmt.Sprintf("/api/v1/notifications/%d", ids[1]), alice, nil); status != fiber.StatusOK {
		t.Fatalf("delete: status %d", status)
	}
	if err := db.Unscoped().First(&models.Notification{}, ids[1]).Error; err != gorm.ErrRecordNotFound {
		t.Errorf("deleted notification still present, err %v", err)
	}
}

func TestNotificationOwnershipEnforced(t *testing.T) {
	app, db := newTestApp(t)
	alice := registerAndLogin(t, app, "Alice", "alice@example.com", "secret123")
	bob := registerAndLogin(t, app, "Bob", "bob@example.com", "secret123")

	var user models.User
	if err := db.Where("email = ?", "alice@example.com").First(&user).Error; err != nil {
		t.Fatalf("find user: %v", err)
	}
	n := models.Notification{UserID: user.ID, Type: models.NotificationTypeReply, Title: "Reply", Message: "m"}
	if err := db.Create(&n).Error; err != nil {
		t.Fatalf("create notification: %v", err)
	}

	if status, _ := doRequest(t, app, fiber.MethodPost, fmt.Sprintf("/api/v1/notifications/%d/read", n.ID), bob, nil); status != fiber.StatusNotFound {
		t.Errorf("bob marking alice's notification: status %d, want 404", status)
	}
	if status, _ := doRequest(t, app, fiber.MethodDelete, fmt.Sprintf("/api/v1/notifications/%d", n.ID), bob, nil); status != fiber.StatusNotFound {
		t.Errorf("bob deleting alice's notification: status %d, want 404", status)
	}
	if got := listNotifications(t, app, alice); len(got) != 1 {
		t.Errorf("alice's notifications = %d, want 1 untouched", len(got))
	}
}
