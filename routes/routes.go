package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"postbox/cache"
	controller "postbox/controllers"
	"postbox/middleware"
)

func SetupRoutes(app *fiber.App, db *gorm.DB, invalidator *cache.Invalidator) {
	authController := controller.NewAuthController(db, log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile))
	emailController := controller.NewEmailController(db, log.New(os.Stdout, "EMAIL: ", log.LstdFlags), invalidator)
	searchController := controller.NewSearchController(db, log.New(os.Stdout, "SEARCH: ", log.LstdFlags))
	labelController := controller.NewLabelController(db, log.New(os.Stdout, "LABEL: ", log.LstdFlags), invalidator)
	notificationController := controller.NewNotificationController(db, log.New(os.Stdout, "NOTIFY: ", log.LstdFlags), invalidator)

	// Auth routes group with logging middleware
	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	auth.Post("/register", authController.Register)
	auth.Post("/login", authController.Login)

	protectedAuth := auth.Group("", middleware.Protected(db))
	protectedAuth.Get("/me", authController.GetCurrentUser)

	// Mailbox API. Authenticate resolves the identity but does not reject:
	// every operation answers unauthenticated calls with its own envelope.
	api := app.Group("/api/v1", middleware.Authenticate(db), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	emails := api.Group("/emails")
	emails.Post("/", middleware.SendRateLimiter(), emailController.SendEmail)
	emails.Get("/inbox", emailController.GetInboxEmails)
	emails.Get("/sent", emailController.GetSentEmails)
	emails.Get("/drafts", emailController.GetDraftEmails)
	emails.Get("/starred", emailController.GetStarredEmails)
	emails.Get("/snoozed", emailController.GetSnoozedEmails)
	emails.Get("/spam", emailController.GetSpamEmails)
	emails.Get("/archive", emailController.GetArchivedEmails)
	emails.Get("/trash", emailController.GetTrashedEmails)
	emails.Get("/:id", emailController.GetEmailByID)
	emails.Delete("/:id", emailController.DeleteEmailPermanently)
	emails.Post("/:id/star", emailController.ToggleStar)
	emails.Post("/:id/read", emailController.MarkAsRead)
	emails.Post("/:id/unread", emailController.MarkAsUnread)
	emails.Post("/:id/trash", emailController.MoveToTrash)
	emails.Post("/:id/restore", emailController.RestoreFromTrash)
	emails.Post("/:id/archive", emailController.ArchiveEmail)
	emails.Post("/:id/unarchive", emailController.UnarchiveEmail)
	emails.Post("/:id/spam", emailController.MarkAsSpam)
	emails.Post("/:id/unspam", emailController.MarkAsNotSpam)
	emails.Post("/:id/snooze", emailController.SnoozeEmail)
	emails.Post("/:id/labels/:labelId", labelController.AddLabelToEmail)
	emails.Delete("/:id/labels/:labelId", labelController.RemoveLabelFromEmail)
	emails.Post("/:id/receipt", notificationController.RecordReadReceipt)
	emails.Get("/:id/receipts", notificationController.GetReadReceipts)

	search := api.Group("/search")
	search.Get("/", searchController.SearchEmails)
	search.Post("/advanced", searchController.AdvancedSearch)

	labels := api.Group("/labels")
	labels.Post("/", labelController.CreateLabel)
	labels.Get("/", labelController.GetUserLabels)
	labels.Put("/:id", labelController.UpdateLabel)
	labels.Delete("/:id", labelController.DeleteLabel)
	labels.Get("/:id/emails", labelController.GetEmailsByLabel)

	notifications := api.Group("/notifications")
	notifications.Get("/", notificationController.GetNotifications)
	notifications.Post("/read-all", notificationController.MarkAllNotificationsAsRead)
	notifications.Post("/:id/read", notificationController.MarkNotificationAsRead)
	notifications.Delete("/:id", notificationController.DeleteNotification)

	// Websocket notification stream
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/notifications", websocket.New(notificationController.HandleNotificationWS))
}
