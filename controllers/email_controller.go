package controller

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"postbox/cache"
	"postbox/models"
	"postbox/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type EmailController struct {
	db          *gorm.DB
	logger      *log.Logger
	invalidator *cache.Invalidator
}

func NewEmailController(db *gorm.DB, logger *log.Logger, invalidator *cache.Invalidator) *EmailController {
	return &EmailController{
		db:          db,
		logger:      logger,
		invalidator: invalidator,
	}
}

// sessionUser returns the identity resolved by the authentication middleware,
// or nil. Operations never trust a caller-supplied user id; this is the only
// identity they may branch on.
func sessionUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals("user").(*models.User)
	return user
}

func parsePagination(c *fiber.Ctx) (page, limit int) {
	page = c.QueryInt("page", 1)
	limit = c.QueryInt("limit", defaultPageSize)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

// visibleTo scopes an email query to messages the user may see: ones they
// sent or ones delivered to them.
func visibleTo(userID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"emails.sender_id = ? OR EXISTS (SELECT 1 FROM email_recipients er WHERE er.email_id = emails.id AND er.user_id = ?)",
			userID, userID,
		)
	}
}

// recipientOf scopes an email query to messages delivered to the user.
func recipientOf(userID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"EXISTS (SELECT 1 FROM email_recipients er WHERE er.email_id = emails.id AND er.user_id = ?)",
			userID,
		)
	}
}

func withEmailRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Sender").
		Preload("Recipients.User").
		Preload("Attachments").
		Preload("Labels.Label")
}

func likePattern(term string) string {
	return "%" + strings.ToLower(term) + "%"
}

type SendEmailRequest struct {
	To       []string `json:"to" validate:"required,min=1"`
	Cc       []string `json:"cc"`
	Bcc      []string `json:"bcc"`
	Subject  string   `json:"subject" validate:"required"`
	Body     string   `json:"body" validate:"required"`
	BodyHTML string   `json:"body_html"`
	IsDraft  bool     `json:"is_draft"`
}

// SendEmail creates the message and its delivery rows. No network mail is
// sent; "send" only writes local records. The whole mutation, including the
// lazily created contact users, runs in one transaction so an interrupted
// send cannot leave a message without recipients.
func (ec *EmailController) SendEmail(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	var req SendEmailRequest
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

	for _, address := range flatten(req.To, req.Cc, req.Bcc) {
		if err := checkmail.ValidateFormat(address); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": address + " is not a valid email address",
			})
		}
	}

	var email models.Email
	var recipientIDs []uint

	err := ec.db.Transaction(func(tx *gorm.DB) error {
		// One delivery role per recipient; the first listed role wins when
		// an address appears under more than one of to/cc/bcc.
		roleByUser := make(map[uint]string)
		var order []uint

		resolve := func(addresses []string, role string) error {
			for _, address := range addresses {
				recipient, err := findOrCreateUser(tx, address)
				if err != nil {
					return err
				}
				if _, dup := roleByUser[recipient.ID]; dup {
					continue
				}
				roleByUser[recipient.ID] = role
				order = append(order, recipient.ID)
			}
			return nil
		}

		if err := resolve(req.To, models.RecipientTypeTo); err != nil {
			return err
		}
		if err := resolve(req.Cc, models.RecipientTypeCc); err != nil {
			return err
		}
		if err := resolve(req.Bcc, models.RecipientTypeBcc); err != nil {
			return err
		}

		email = models.Email{
			Subject:  req.Subject,
			Body:     req.Body,
			BodyHTML: req.BodyHTML,
			SenderID: user.ID,
			IsDraft:  req.IsDraft,
		}
		if !req.IsDraft {
			email.SentAt = utils.Pointer(time.Now())
		}
		if err := tx.Create(&email).Error; err != nil {
			return err
		}

		for _, recipientID := range order {
			delivery := models.EmailRecipient{
				EmailID: email.ID,
				UserID:  recipientID,
				Type:    roleByUser[recipientID],
			}
			if err := tx.Create(&delivery).Error; err != nil {
				return err
			}
		}

		recipientIDs = order
		return nil
	})
	if err != nil {
		utils.LogError("send_email_failed", err, map[string]interface{}{"user_id": user.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to send email",
		})
	}

	ctx := c.UserContext()
	ec.invalidator.InvalidateViews(ctx, user.ID, cache.ViewSent, cache.ViewDrafts)
	for _, recipientID := range recipientIDs {
		ec.invalidator.InvalidateViews(ctx, recipientID, cache.ViewInbox)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"message":  "Email sent successfully",
		"email_id": email.ID,
	})
}

// findOrCreateUser resolves an address to a user row, creating a placeholder
// contact on first sight. The unique index on users.email is the concurrency
// guard: a create that loses the race falls back to re-fetching the winner.
func findOrCreateUser(tx *gorm.DB, address string) (*models.User, error) {
	var user models.User
	err := tx.Where("email = ?", address).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		Email: address,
		Name:  utils.Pointer(utils.DisplayNameFromEmail(address)),
	}
	if createErr := tx.Create(&user).Error; createErr != nil {
		if err := tx.Where("email = ?", address).First(&user).Error; err != nil {
			return nil, createErr
		}
	}
	return &user, nil
}

func flatten(lists ...[]string) []string {
	var out []string
	for _, list := range lists {
		out = append(out, list...)
	}
	return out
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"message": "Unauthorized",
	})
}

// unauthorizedList mirrors unauthorized for list operations, which answer
// with an empty payload field rather than omitting it.
func unauthorizedList(c *fiber.Ctx, field string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"message": "Unauthorized",
		field:     []interface{}{},
	})
}
