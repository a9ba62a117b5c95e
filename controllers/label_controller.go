package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"postbox/cache"
	"postbox/models"
	"postbox/utils"
)

type LabelController struct {
	db          *gorm.DB
	logger      *log.Logger
	invalidator *cache.Invalidator
}

func NewLabelController(db *gorm.DB, logger *log.Logger, invalidator *cache.Invalidator) *LabelController {
	return &LabelController{
		db:          db,
		logger:      logger,
		invalidator: invalidator,
	}
}

type CreateLabelRequest struct {
	Name  string `json:"name" validate:"required,max=50"`
	Color string `json:"color"`
}

type UpdateLabelRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=50"`
	Color *string `json:"color"`
}

// LabelWithCount annotates a label with the number of non-trashed messages
// visible to the caller that carry it. The count is computed, never stored.
type LabelWithCount struct {
	models.Label
	Count int64 `json:"count"`
}

// CreateLabel creates a label, or joins the caller to an existing one with
// the same name: label names are a shared global namespace with per-user
// visibility. A caller who already holds the association gets a conflict.
func (lc *LabelController) CreateLabel(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	var req CreateLabelRequest
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
	if req.Color == "" {
		req.Color = models.DefaultLabelColor
	}

	var label models.Label
	err := lc.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("name = ?", req.Name).First(&label).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			label = models.Label{Name: req.Name, Color: req.Color}
			if createErr := tx.Create(&label).Error; createErr != nil {
				// Lost a race on the name index: reuse the winner's row.
				if err := tx.Where("name = ?", req.Name).First(&label).Error; err != nil {
					return createErr
				}
			} else {
				return tx.Create(&models.UserLabel{UserID: user.ID, LabelID: label.ID}).Error
			}
		} else if err != nil {
			return err
		}

		var existing models.UserLabel
		err = tx.Where("user_id = ? AND label_id = ?", user.ID, label.ID).First(&existing).Error
		if err == nil {
			return errLabelExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&models.UserLabel{UserID: user.ID, LabelID: label.ID}).Error
	})
	if errors.Is(err, errLabelExists) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Label already exists",
		})
	}
	if err != nil {
		utils.LogError("create_label_failed", err, map[string]interface{}{"user_id": user.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create label",
		})
	}

	lc.invalidator.InvalidateViews(c.UserContext(), user.ID, cache.ViewLabels)

	return c.JSON(fiber.Map{
		"success": true,
		"label":   label,
	})
}

var errLabelExists = errors.New("label already associated")

// GetUserLabels lists the caller's labels with their visible message counts.
func (lc *LabelController) GetUserLabels(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorizedList(c, "labels")
	}

	var userLabels []models.UserLabel
	err := lc.db.Preload("Label").
		Where("user_id = ?", user.ID).
		Order("id ASC").
		Find(&userLabels).Error
	if err != nil {
		utils.LogError("get_labels_failed", err, map[string]interface{}{"user_id": user.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch labels",
			"labels":  []LabelWithCount{},
		})
	}

	labels := make([]LabelWithCount, 0, len(userLabels))
	for _, userLabel := range userLabels {
		var count int64
		err := lc.db.Model(&models.Email{}).
			Scopes(visibleTo(user.ID)).
			Where("is_trashed = ?", false).
			Where("EXISTS (SELECT 1 FROM email_labels el WHERE el.email_id = emails.id AND el.label_id = ?)", userLabel.LabelID).
			Count(&count).Error
		if err != nil {
			utils.LogError("count_label_emails_failed", err, map[string]interface{}{
				"user_id":  user.ID,
				"label_id": userLabel.LabelID,
			})
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to fetch labels",
				"labels":  []LabelWithCount{},
			})
		}
		labels = append(labels, LabelWithCount{Label: userLabel.Label, Count: count})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"labels":  labels,
	})
}

// UpdateLabel renames or recolors a label the caller holds.
func (lc *LabelController) UpdateLabel(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	labelID, err := c.ParamsInt("id")
	if err != nil || labelID < 1 {
		return labelNotFound(c)
	}

	var req UpdateLabelRequest
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

	var userLabel models.UserLabel
	err = lc.db.Where("user_id = ? AND label_id = ?", user.ID, labelID).First(&userLabel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return labelNotFound(c)
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Color != nil {
		updates["color"] = *req.Color
	}

	var label models.Label
	if err == nil && len(updates) > 0 {
		err = lc.db.Model(&models.Label{}).Where("id = ?", labelID).Updates(updates).Error
	}
	if err == nil {
		err = lc.db.First(&label, labelID).Error
	}
	if err != nil {
		utils.LogError("update_label_failed", err, map[string]interface{}{
			"user_id":  user.ID,
			"label_id": labelID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update label",
		})
	}

	lc.invalidator.InvalidateViews(c.UserContext(), user.ID, cache.ViewLabels)

	return c.JSON(fiber.Map{
		"success": true,
		"label":   label,
	})
}

// DeleteLabel removes the caller's association. The label row itself only
// dies with its last association (reference counting); its applications to
// messages go with it.
func (lc *LabelController) DeleteLabel(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	labelID, err := c.ParamsInt("id")
	if err != nil || labelID < 1 {
		return labelNotFound(c)
	}

	err = lc.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND label_id = ?", user.ID, labelID).
			Delete(&models.UserLabel{}).Error; err != nil {
			return err
		}

		var remaining int64
		if err := tx.Model(&models.UserLabel{}).
			Where("label_id = ?", labelID).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		if err := tx.Where("label_id = ?", labelID).Delete(&models.EmailLabel{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&models.Label{}, labelID).Error
	})
	if err != nil {
		utils.LogError("delete_label_failed", err, map[string]interface{}{
			"user_id":  user.ID,
			"label_id": labelID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete label",
		})
	}

	lc.invalidator.InvalidateViews(c.UserContext(), user.ID, cache.ViewLabels)

	return c.JSON(fiber.Map{"success": true})
}

// AddLabelToEmail applies a label to a message the caller can see.
func (lc *LabelController) AddLabelToEmail(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	emailID, err := c.ParamsInt("id")
	if err != nil || emailID < 1 {
		return emailNotFound(c)
	}
	labelID, err := c.ParamsInt("labelId")
	if err != nil || labelID < 1 {
		return labelNotFound(c)
	}

	var email models.Email
	err = lc.db.Scopes(visibleTo(user.ID)).Where("emails.id = ?", emailID).First(&email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return emailNotFound(c)
	}

	if err == nil {
		var existing models.EmailLabel
		err = lc.db.Where("email_id = ? AND label_id = ?", emailID, labelID).First(&existing).Error
		if err == nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "Label already applied",
			})
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = lc.db.Create(&models.EmailLabel{EmailID: uint(emailID), LabelID: uint(labelID)}).Error
		}
	}
	if err != nil {
		utils.LogError("add_label_failed", err, map[string]interface{}{
			"user_id":  user.ID,
			"email_id": emailID,
			"label_id": labelID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to add label",
		})
	}

	lc.invalidator.InvalidateViews(c.UserContext(), user.ID, cache.ViewInbox, cache.ViewLabels)

	return c.JSON(fiber.Map{"success": true})
}

// RemoveLabelFromEmail removes a label application. Removing a label that is
// not applied succeeds quietly.
func (lc *LabelController) RemoveLabelFromEmail(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	emailID, err := c.ParamsInt("id")
	if err != nil || emailID < 1 {
		return emailNotFound(c)
	}
	labelID, err := c.ParamsInt("labelId")
	if err != nil || labelID < 1 {
		return labelNotFound(c)
	}

	var email models.Email
	err = lc.db.Scopes(visibleTo(user.ID)).Where("emails.id = ?", emailID).First(&email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return emailNotFound(c)
	}
	if err == nil {
		err = lc.db.Where("email_id = ? AND label_id = ?", emailID, labelID).
			Delete(&models.EmailLabel{}).Error
	}
	if err != nil {
		utils.LogError("remove_label_failed", err, map[string]interface{}{
			"user_id":  user.ID,
			"email_id": emailID,
			"label_id": labelID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to remove label",
		})
	}

	lc.invalidator.InvalidateViews(c.UserContext(), user.ID, cache.ViewInbox, cache.ViewLabels)

	return c.JSON(fiber.Map{"success": true})
}

// GetEmailsByLabel lists the caller's visible non-trashed messages carrying
// the label, paginated like the other views.
func (lc *LabelController) GetEmailsByLabel(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorizedList(c, "emails")
	}

	labelID, err := c.ParamsInt("id")
	if err != nil || labelID < 1 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Label not found",
			"emails":  []models.Email{},
		})
	}

	page, limit := parsePagination(c)

	emails := make([]models.Email, 0, limit)
	err = withEmailRelations(
		lc.db.Model(&models.Email{}).
			Scopes(visibleTo(user.ID)).
			Where("is_trashed = ?", false).
			Where("EXISTS (SELECT 1 FROM email_labels el WHERE el.email_id = emails.id AND el.label_id = ?)", labelID),
	).
		Order("sent_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&emails).Error
	if err != nil {
		utils.LogError("get_emails_by_label_failed", err, map[string]interface{}{
			"user_id":  user.ID,
			"label_id": labelID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch emails",
			"emails":  []models.Email{},
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"emails":  emails,
	})
}

func labelNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"success": false,
		"message": "Label not found",
	})
}
