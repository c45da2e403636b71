package routes

import (
	"log"
	"os"

	controller "mailsprint/controllers"
	"mailsprint/middleware"
	"mailsprint/runner"
	"mailsprint/sendwindow"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"
)

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, policy *sendwindow.Policy, r *runner.Runner) {
	windowController := controller.NewWindowController(policy, log.New(os.Stdout, "WINDOW: ", log.LstdFlags))
	sequenceController := controller.NewSequenceController(db, r, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags))
	replyController := controller.NewReplyController(db, r.State, log.New(os.Stdout, "REPLY: ", log.LstdFlags))

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	api.Get("/send-window/status", windowController.GetStatus)

	sequences := api.Group("/sequences")
	sequences.Post("/:id/tick", sequenceController.TriggerTick)
	sequences.Get("/:id/stats", sequenceController.GetStats)

	api.Post("/leads/stop", replyController.StopLead)

	senderController := controller.NewSenderController(db, log.New(os.Stdout, "SENDER: ", log.LstdFlags))
	senders := api.Group("/senders")
	senders.Post("/", senderController.CreateSender)
	senders.Get("/", senderController.ListSenders)

	// Inbound reply webhooks come from the mail provider, not the
	// dashboard, so they sit outside the JWT group.
	webhooks := app.Group("/webhooks", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	webhooks.Post("/replies", replyController.HandleReplyWebhook)
}
