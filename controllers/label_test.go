package controller_test

import (
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"postbox/models"
)

func createLabel(t *testing.T, app *fiber.App, token, name string) uint {
	t.Helper()
	status, envelope := doRequest(t, app, fiber.MethodPost, "/api/v1/labels", token, fiber.Map{"name": name})
	if status != fiber.StatusOK || envelope["success"] != true {
		t.Fatalf("create label %q: status %d, envelope %v", name, status, envelope)
	}
	label, ok := envelope["label"].(map[string]interface{})
	if !ok {
		t.Fatalf("create label %q: no label in envelope %v", name, envelope)
	}
	return uint(label["ID"].(float64))
}

func listLabels(t *testing.T, app *fiber.App, token string) []map[string]interface{} {
	t.Helper()
	status, envelope := doRequest(t, app, fiber.MethodGet, "/api/v1/labels", token, nil)
	if status != fiber.StatusOK || envelope["success"] != true {
		t.Fatalf("list labels: status %d, envelope %v", status, envelope)
	}
	raw, _ := envelope["labels"].([]interface{})
	labels := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		labels = append(labels, item.(map[string]interface{}))
	}
	return labels
}

func TestCreateLabelSharedAcrossUsers(t *testing.T) {
	app, db := newTestApp(t)
	alice := registerAndLogin(t, app, "Alice", "alice@example.com", "secret123")
	bob := registerAndLogin(t, app, "Bob", "bob@example.com", "secret123")

	aliceLabelID := createLabel(t, app, alice, "Work")
	bobLabelID := createLabel(t, app, bob, "Work")

	if aliceLabelID != bobLabelID {
		t.Errorf("label ids differ (%d vs %d), want one shared Label row", aliceLabelID, bobLabelID)
	}

	var labelCount, userLabelCount int64
	db.Model(&models.Label{}).Where("name = ?", "Work").Count(&labelCount)
	db.Model(&models.UserLabel{}).Where("label_id = ?", aliceLabelID).Count(&userLabelCount)
	if labelCount != 1 {
		t.Errorf("Label rows for Work = %d, want 1", labelCount)
	}
	if userLabelCount != 2 {
		t.Errorf("UserLabel rows = %d, want 2", userLabelCount)
	}
}

func TestCreateLabelDuplicateForSameUser(t *testing.T) {
	app, _ := newTestApp(t)
	alice := registerAndLogin(t, app, "Alice", "alice@example.com", "secret123")

	createLabel(t, app, alice, "Work")
	status, envelope := doRequest(t, app, fiber.MethodPost, "/api/v1/labels", alice, fiber.Map{"name": "Work"})
	if status != fiber.StatusConflict {
		t.Errorf("status = %d, want 409", status)
	}
	if envelope["message"] != "Label already exists" {
		t.Errorf("message = %v", envelope["message"])
	}
}

func TestDeleteLabelRefCounting(t *testing.T) {
	app, db := newTestApp(t)
	alice := registerAndLogin(t, app, "Alice", "alice@example.com", "secret123")
	bob := registerAndLogin(t, app, "Bob", "bob@example.com", "secret123")

	labelID := createLabel(t, app, alice, "Shared")
	createLabel(t, app, bob, "Shared")

	// Alice drops her association: the Label row survives for Bob.
	status, _ := doRequest(t, app, fiber.MethodDelete, fmt.Sprintf("/api/v1/labels/%d", labelID), alice, nil)
	if status != fiber.StatusOK {
		t.Fatalf("alice delete: status %d", status)
	}
	var label models.Label
	if err := db.First(&label, labelID).Error; err != nil {
		t.Fatalf("shared label should survive while bob still holds it: %v", err)
	}
	if labels := listLabels(t, app, alice); len(labels) != 0 {
		t.Errorf("alice still lists %d labels, want 0", len(labels))
	}

	// Bob drops the last association: the Label row goes away.
	status, _ = doRequest(t, app, fiber.MethodDelete, fmt.Sprintf("/api/v1/labels/%d", labelID), bob, nil)
	if status != fiber.StatusOK {
		t.Fatalf("bob delete: status %d", status)
	}
	if err := db.Unscoped().First(&models.Label{}, labelID).Error; err != gorm.ErrRecordNotFound {
		t.Errorf("label row should be gone after the last holder leaves, got err %v", err)
	}
}

func TestUpdateLabelRequiresAssociation(t *testing.T) {
	app, _ := newTestApp(t)
	alice := registerAndLogin(t, app, "Alice", "alice@example.com", "secret123")
	bob := registerAndLogin(t, app, "Bob", "bob@example.com", "secret123")

	labelID := createLabel(t, app, alice, "Mine")

	status, envelope := doRequest(t, app, fiber.MethodPut, fmt.Sprintf("/api/v1/labels/%d", labelID), bob, fiber.Map{"name": "Stolen"})
	if status != fiber.StatusNotFound {
		t.Errorf("bob updating alice's label: status %d, envelope %v", status, envelope)
	}

	status, envelope = doRequest(t, app, fiber.MethodPut, fmt.Sprintf("/api/v1/labels/%d", labelID), alice, fiber.Map{"color": "#FF0000"})
	if status != fiber.StatusOK || envelope["success"] != true {
		t.Fatalf("alice recoloring: status %d, envelope %v", status, envelope)
	}
}

func TestLabelOnEmailLifecycle(t *testing.T) {
	app, _ := newTestApp(t)
	alice := registerAndLogin(t, app, "Alice", "alice@example.com", "secret123")
	bob := registerAndLogin(t, app, "Bob", "bob@example.com", "secret123")
	carol := registerAndLogin(t, app, "Carol", "carol@example.com", "secret123")

	labelID := createLabel(t, app, bob, "Receipts")
	emailID := sendEmail(t, app, alice, fiber.Map{
		"to":      []string{"bob@example.com"},
		"subject": "Order confirmation",
		"body":    "thanks for your purchase",
	})

	attach := fmt.Sprintf("/api/v1/emails/%d/labels/%d", emailID, labelID)
	if status, _ := doRequest(t, app, fiber.MethodPost, attach, bob, nil); status != fiber.StatusOK {
		t.Fatalf("attach label: status %d", status)
	}
	if status, envelope := doRequest(t, app, fiber.MethodPost, attach, bob, nil); status != fiber.StatusConflict {
		t.Errorf("re-attach: status %d, envelope %v, want 409", status, envelope)
	}

	// An outsider cannot label mail they cannot see.
	if status, _ := doRequest(t, app, fiber.MethodPost, attach, carol, nil); status != fiber.StatusNotFound {
		t.Errorf("outsider attach: status %d, want 404", status)
	}

	byLabel := listEmails(t, app, bob, fmt.Sprintf("/api/v1/labels/%d/emails", labelID))
	if len(byLabel) != 1 {
		t.Fatalf("by-label view = %d emails, want 1", len(byLabel))
	}

	// Removing an absent association is a quiet success.
	detach := attach
	if status, _ := doRequest(t, app, fiber.MethodDelete, detach, bob, nil); status != fiber.StatusOK {
		t.Fatalf("detach label: status %d", status)
	}
	if status, envelope := doRequest(t, app, fiber.MethodDelete, detach, bob, nil); status != fiber.StatusOK || envelope["success"] != true {
		t.Errorf("second detach: status %d, envelope %v, want quiet success", status, envelope)
	}
	if byLabel := listEmails(t, app, bob, fmt.Sprintf("/api/v1/labels/%d/emails", labelID)); len(byLabel) != 0 {
		t.Errorf("by-label view after detach = %d, want 0", len(byLabel))
	}
}

func TestLabelCountsExcludeTrashed(t *testing.T) {
	app, _ := newTestApp(t)
	alice := registerAndLogin(t, app, "Alice", "alice@example.com", "secret123")
	bob := registerAndLogin(t, app, "Bob", "bob@example.com", "secret123")

	labelID := createLabel(t, app, bob, "Todo")
	first := sendEmail(t, app, alice, fiber.Map{
		"to": []string{"bob@example.com"}, "subject": "one", "body": "b",
	})
	second := sendEmail(t, app, alice, fiber.Map{
		"to": []string{"bob@example.com"}, "subject": "two", "body": "b",
	})
	for _, id := range []uint{first, second} {
		if status, _ := doRequest(t, app, fiber.MethodPost, fmt.Sprintf("/api/v1/emails/%d/labels/%d", id, labelID), bob, nil); status != fiber.StatusOK {
			t.Fatalf("attach to %d: status %d", id, status)
		}
	}

	if status, _ := doRequest(t, app, fiber.MethodPost, fmt.Sprintf("/api/v1/emails/%d/trash", first), bob, nil); status != fiber.StatusOK {
		t.Fatalf("trash: status %d", status)
	}

	labels := listLabels(t, app, bob)
	if len(labels) != 1 {
		t.Fatalf("labels = %d, want 1", len(labels))
	}
	if count := labels[0]["count"].(float64); count != 1 {
		t.Errorf("label count = %v, want 1 (trashed mail excluded)", count)
	}
}
