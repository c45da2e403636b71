package controllers

import (
	"log"

	"mailsprint/models"
	"mailsprint/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SenderController struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewSenderController(db *gorm.DB, logger *log.Logger) *SenderController {
	return &SenderController{db: db, logger: logger}
}

type createSenderRequest struct {
	Name           string `json:"name" validate:"required"`
	FromEmail      string `json:"from_email" validate:"required,email"`
	FromName       string `json:"from_name" validate:"required"`
	SMTPHost       string `json:"smtp_host" validate:"required"`
	SMTPPort       int    `json:"smtp_port" validate:"required"`
	SMTPUsername   string `json:"smtp_username" validate:"required"`
	SMTPPassword   string `json:"smtp_password" validate:"required"`
	Encryption     string `json:"encryption" validate:"required,oneof=SSL TLS STARTTLS"`
	IMAPHost       string `json:"imap_host"`
	IMAPPort       int    `json:"imap_port"`
	IMAPUsername   string `json:"imap_username"`
	IMAPPassword   string `json:"imap_password"`
	IMAPEncryption string `json:"imap_encryption" validate:"omitempty,oneof=SSL TLS STARTTLS"`
	IMAPMailbox    string `json:"imap_mailbox"`
	DailyLimit     int    `json:"daily_limit" validate:"omitempty,min=1,max=500"`
}

// CreateSender registers a sender inbox. Passwords are encrypted
// before they touch the database.
func (sc *SenderController) CreateSender(c *fiber.Ctx) error {
	var req createSenderRequest
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

	encryptedSMTPPassword, err := utils.Encrypt(req.SMTPPassword)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encrypt SMTP password",
		})
	}
	encryptedIMAPPassword := ""
	if req.IMAPPassword != "" {
		encryptedIMAPPassword, err = utils.Encrypt(req.IMAPPassword)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to encrypt IMAP password",
			})
		}
	}

	sender := models.Sender{
		Name:           req.Name,
		FromEmail:      req.FromEmail,
		FromName:       req.FromName,
		IsActive:       true,
		SMTPHost:       req.SMTPHost,
		SMTPPort:       req.SMTPPort,
		SMTPUsername:   req.SMTPUsername,
		SMTPPassword:   encryptedSMTPPassword,
		Encryption:     req.Encryption,
		IMAPHost:       req.IMAPHost,
		IMAPPort:       req.IMAPPort,
		IMAPUsername:   req.IMAPUsername,
		IMAPPassword:   encryptedIMAPPassword,
		IMAPEncryption: req.IMAPEncryption,
		IMAPMailbox:    req.IMAPMailbox,
	}
	if req.DailyLimit > 0 {
		sender.DailyLimit = req.DailyLimit
	}

	if err := sc.db.Create(&sender).Error; err != nil {
		sc.logger.Printf("Failed to create sender %s: %v", req.FromEmail, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sender",
		})
	}

	sc.logger.Printf("Sender %s registered", sender.FromEmail)
	sender.Sanitize()
	return c.Status(fiber.StatusCreated).JSON(sender)
}

// ListSenders returns every sender with credentials stripped.
func (sc *SenderController) ListSenders(c *fiber.Ctx) error {
	var senders []models.Sender
	if err := sc.db.Order("from_email").Find(&senders).Error; err != nil {
		sc.logger.Printf("Failed to list senders: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list senders",
		})
	}
	for i := range senders {
		senders[i].Sanitize()
	}
	return c.JSON(fiber.Map{"senders": senders})
}
