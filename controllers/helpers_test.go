package controller_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"postbox/cache"
	"postbox/config"
	"postbox/models"
	"postbox/routes"
)

// newTestApp wires the full route surface over an in-memory SQLite database.
// Redis stays disabled, so the invalidator is a no-op.
func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	config.AppConfig = config.Config{
		Environment:   "test",
		EncryptionKey: "test-secret",
		RateLimitSend: 1000,
	}

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := config.MigrateDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	app := fiber.New()
	routes.SetupRoutes(app, db, cache.NewInvalidator(config.RedisConfig{}))
	return app, db
}

// doRequest performs one request and decodes the response envelope.
func doRequest(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var envelope map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode %s %s response: %v", method, path, err)
	}
	return resp.StatusCode, envelope
}

func registerAndLogin(t *testing.T, app *fiber.App, name, email, password string) string {
	t.Helper()

	status, envelope := doRequest(t, app, fiber.MethodPost, "/auth/register", "", fiber.Map{
		"name":     name,
		"email":    email,
		"password": password,
	})
	if status != fiber.StatusOK {
		t.Fatalf("register %s: status %d, envelope %v", email, status, envelope)
	}

	status, envelope = doRequest(t, app, fiber.MethodPost, "/auth/login", "", fiber.Map{
		"email":    email,
		"password": password,
	})
	if status != fiber.StatusOK {
		t.Fatalf("login %s: status %d, envelope %v", email, status, envelope)
	}

	token, _ := envelope["token"].(string)
	if token == "" {
		t.Fatalf("login %s: no token in %v", email, envelope)
	}
	return token
}

// sendEmail sends through the API and returns the new email id.
func sendEmail(t *testing.T, app *fiber.App, token string, body fiber.Map) uint {
	t.Helper()

	status, envelope := doRequest(t, app, fiber.MethodPost, "/api/v1/emails", token, body)
	if status != fiber.StatusOK {
		t.Fatalf("send email: status %d, envelope %v", status, envelope)
	}
	id, ok := envelope["email_id"].(float64)
	if !ok || id < 1 {
		t.Fatalf("send email: bad email_id in %v", envelope)
	}
	return uint(id)
}

func listEmails(t *testing.T, app *fiber.App, token, path string) []map[string]interface{} {
	t.Helper()

	status, envelope := doRequest(t, app, fiber.MethodGet, path, token, nil)
	if status != fiber.StatusOK {
		t.Fatalf("GET %s: status %d, envelope %v", path, status, envelope)
	}
	raw, ok := envelope["emails"].([]interface{})
	if !ok {
		t.Fatalf("GET %s: no emails list in %v", path, envelope)
	}
	emails := make([]map[string]interface{}, len(raw))
	for i, item := range raw {
		emails[i] = item.(map[string]interface{})
	}
	return emails
}

func setSentAt(t *testing.T, db *gorm.DB, emailID uint, sentAt time.Time) {
	t.Helper()
	if err := db.Model(&models.Email{}).Where("id = ?", emailID).Update("sent_at", sentAt).Error; err != nil {
		t.Fatalf("set sent_at: %v", err)
	}
}
