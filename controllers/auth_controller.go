package controller

import (
	"errors"
	"log"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"postbox/models"
	"postbox/utils"
)

type AuthController struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewAuthController(db *gorm.DB, logger *log.Logger) *AuthController {
	return &AuthController{
		db:     db,
		logger: logger,
	}
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates an account. An address that already exists as a
// placeholder contact (auto-created by a send) is claimed rather than
// rejected: the contact's mail history becomes the new account's.
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req RegisterRequest
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
	if err := checkmail.ValidateFormat(req.Email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "email must be a valid email",
		})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.LogError("hash_password_failed", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Something went wrong",
		})
	}

	var existing models.User
	err = ac.db.Where("email = ?", req.Email).First(&existing).Error
	switch {
	case err == nil && !existing.IsPlaceholder():
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Email already exists",
		})
	case err == nil:
		err = ac.db.Model(&existing).Updates(map[string]interface{}{
			"name":          req.Name,
			"password_hash": string(hashedPassword),
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		user := models.User{
			Email:        req.Email,
			Name:         utils.Pointer(req.Name),
			PasswordHash: string(hashedPassword),
		}
		err = ac.db.Create(&user).Error
	}
	if err != nil {
		utils.LogError("register_failed", err, map[string]interface{}{"email": req.Email})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Something went wrong",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Account created successfully",
	})
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
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

	var user models.User
	err := ac.db.Where("email = ?", req.Email).First(&user).Error
	if err != nil || user.IsPlaceholder() ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid email or password",
		})
	}

	token, err := utils.GenerateJWTToken(&user)
	if err != nil {
		utils.LogError("generate_token_failed", err, map[string]interface{}{"user_id": user.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Something went wrong",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"token":   token,
		"user":    user,
	})
}

func (ac *AuthController) GetCurrentUser(c *fiber.Ctx) error {
	user := sessionUser(c)
	if user == nil {
		return unauthorized(c)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    user,
	})
}
