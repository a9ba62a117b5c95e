package controller

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"postbox/models"
	"postbox/utils"
)

const (
	searchResultCap         = 50
	advancedSearchResultCap = 100
)

type SearchController struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewSearchController(db *gorm.DB, logger *log.Logger) *SearchController {
	return &SearchController{
		db:     db,
		logger: logger,
	}
}

// SearchEmails matches a single term against subject, body and the sender's
// name or address, case-insensitively, within the caller's visible
// non-trashed messages. A blank query returns an empty set without touching
// the store.
func (sc *SearchController) SearchEmails(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorizedList(c, "emails")
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		return c.JSON(fiber.Map{
			"success": true,
			"emails":  []models.Email{},
		})
	}

	pattern := likePattern(query)
	emails := make([]models.Email, 0, searchResultCap)
	err := withEmailRelations(sc.db.Model(&models.Email{}).Scopes(visibleTo(user.ID))).
		Where("is_trashed = ?", false).
		Where(
			"LOWER(subject) LIKE ? OR LOWER(body) LIKE ? OR sender_id IN (SELECT id FROM users WHERE LOWER(email) LIKE ? OR LOWER(name) LIKE ?)",
			pattern, pattern, pattern, pattern,
		).
		Order("sent_at DESC").
		Limit(searchResultCap).
		Find(&emails).Error
	if err != nil {
		utils.LogError("search_emails_failed", err, map[string]interface{}{"user_id": user.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to search emails",
			"emails":  []models.Email{},
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"emails":  emails,
	})
}

// AdvancedSearchRequest is the closed set of optional filters. Every
// provided field contributes one predicate and the predicates AND together;
// omitted fields impose no constraint.
type AdvancedSearchRequest struct {
	From          string     `json:"from"`
	To            string     `json:"to"`
	Subject       string     `json:"subject"`
	HasWords      string     `json:"has_words"`
	DoesntHave    string     `json:"doesnt_have"`
	HasAttachment bool       `json:"has_attachment"`
	DateFrom      *time.Time `json:"date_from"`
	DateTo        *time.Time `json:"date_to"`
}

func (sc *SearchController) AdvancedSearch(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorizedList(c, "emails")
	}

	var req AdvancedSearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
			"emails":  []models.Email{},
		})
	}

	query := sc.db.Model(&models.Email{}).
		Scopes(visibleTo(user.ID)).
		Where("is_trashed = ?", false)

	if req.From != "" {
		pattern := likePattern(req.From)
		query = query.Where(
			"sender_id IN (SELECT id FROM users WHERE LOWER(email) LIKE ? OR LOWER(name) LIKE ?)",
			pattern, pattern,
		)
	}
	if req.To != "" {
		pattern := likePattern(req.To)
		query = query.Where(
			"EXISTS (SELECT 1 FROM email_recipients er JOIN users u ON u.id = er.user_id WHERE er.email_id = emails.id AND (LOWER(u.email) LIKE ? OR LOWER(u.name) LIKE ?))",
			pattern, pattern,
		)
	}
	if req.Subject != "" {
		query = query.Where("LOWER(subject) LIKE ?", likePattern(req.Subject))
	}
	if req.HasWords != "" {
		pattern := likePattern(req.HasWords)
		query = query.Where("LOWER(subject) LIKE ? OR LOWER(body) LIKE ?", pattern, pattern)
	}
	if req.DoesntHave != "" {
		// Excludes a message when either field contains the term.
		pattern := likePattern(req.DoesntHave)
		query = query.Where("LOWER(subject) NOT LIKE ? AND LOWER(body) NOT LIKE ?", pattern, pattern)
	}
	if req.HasAttachment {
		query = query.Where("EXISTS (SELECT 1 FROM attachments a WHERE a.email_id = emails.id)")
	}
	if req.DateFrom != nil {
		query = query.Where("sent_at >= ?", *req.DateFrom)
	}
	if req.DateTo != nil {
		query = query.Where("sent_at <= ?", *req.DateTo)
	}

	emails := make([]models.Email, 0, advancedSearchResultCap)
	err := withEmailRelations(query).
		Order("sent_at DESC").
		Limit(advancedSearchResultCap).
		Find(&emails).Error
	if err != nil {
		utils.LogError("advanced_search_failed", err, map[string]interface{}{"user_id": user.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to search emails",
			"emails":  []models.Email{},
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"emails":  emails,
	})
}
