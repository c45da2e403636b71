package controllers

import (
	"errors"
	"log"

	"mailsprint/models"
	"mailsprint/store"
	"mailsprint/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ReplyController struct {
	db     *gorm.DB
	state  *store.State
	logger *log.Logger
}

func NewReplyController(db *gorm.DB, state *store.State, logger *log.Logger) *ReplyController {
	return &ReplyController{db: db, state: state, logger: logger}
}

type replyWebhookRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// HandleReplyWebhook marks a lead as replied. A reply is terminal for
// every sequence the lead is in; follow-ups stop immediately.
func (rc *ReplyController) HandleReplyWebhook(c *fiber.Ctx) error {
	var req replyWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	email := utils.Norm(req.Email)
	var lead models.Lead
	if err := rc.db.Where("email = ?", email).First(&lead).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Lead not found",
			})
		}
		rc.logger.Printf("Reply lookup failed for %s: %v", email, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Lookup failed",
		})
	}

	if err := rc.state.MarkReplied(email); err != nil {
		rc.logger.Printf("Failed to mark %s replied: %v", email, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record reply",
		})
	}

	rc.logger.Printf("Lead %s marked replied via webhook", email)
	return c.JSON(fiber.Map{
		"message": "Reply recorded",
		"email":   email,
	})
}

// StopLead is the manual kill switch for one lead across all
// sequences.
func (rc *ReplyController) StopLead(c *fiber.Ctx) error {
	var req replyWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	email := utils.Norm(req.Email)
	var lead models.Lead
	if err := rc.db.Where("email = ?", email).First(&lead).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Lead not found",
			})
		}
		rc.logger.Printf("Stop lookup failed for %s: %v", email, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Lookup failed",
		})
	}

	if err := rc.state.StopAll(email); err != nil {
		rc.logger.Printf("Failed to stop %s: %v", email, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to stop lead",
		})
	}

	rc.logger.Printf("Lead %s stopped", email)
	return c.JSON(fiber.Map{
		"message": "Lead stopped",
		"email":   email,
	})
}
