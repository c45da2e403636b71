package utils

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"mailsprint/models"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// ErrNoSenderCapacity is returned when every inbox is at its daily cap.
var ErrNoSenderCapacity = errors.New("no senders with available capacity")

// Mailer delivers one message through a specific sender inbox, or the
// inbox with the most remaining capacity when none is pinned.
type Mailer struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewMailer(db *gorm.DB, logger *log.Logger) *Mailer {
	return &Mailer{
		DB:     db,
		Logger: logger,
	}
}

// RotateSender selects the active sender with the most available
// capacity today.
func (m *Mailer) RotateSender() (*models.Sender, error) {
	var senders []models.Sender
	if err := m.DB.Where("is_active = ?", true).Find(&senders).Error; err != nil {
		return nil, err
	}
	if len(senders) == 0 {
		return nil, errors.New("no active senders available")
	}

	var bestSender *models.Sender
	maxAvailable := 0
	for i := range senders {
		available := senders[i].DailyLimit - senders[i].SentToday
		if available > maxAvailable {
			maxAvailable = available
			bestSender = &senders[i]
		}
	}
	if bestSender == nil || maxAvailable <= 0 {
		return nil, ErrNoSenderCapacity
	}
	return bestSender, nil
}

// Send delivers the message and returns the Message-ID it was sent
// with. An empty inbox falls back to capacity rotation.
func (m *Mailer) Send(ctx context.Context, inbox, to, subject, body string) (string, error) {
	if err := checkmail.ValidateFormat(to); err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	var sender *models.Sender
	if inbox != "" {
		var s models.Sender
		if err := m.DB.Where("from_email = ? AND is_active = ?", inbox, true).First(&s).Error; err != nil {
			return "", fmt.Errorf("sender %q not found: %w", inbox, err)
		}
		sender = &s
	} else {
		var err error
		sender, err = m.RotateSender()
		if err != nil {
			return "", err
		}
	}

	password, err := Decrypt(sender.SMTPPassword)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt SMTP password: %w", err)
	}

	dialer := gomail.NewDialer(sender.SMTPHost, sender.SMTPPort, sender.SMTPUsername, password)
	switch strings.ToUpper(sender.Encryption) {
	case "SSL", "TLS":
		dialer.SSL = true
		dialer.TLSConfig = &tls.Config{ServerName: sender.SMTPHost}
	default: // STARTTLS
		dialer.TLSConfig = &tls.Config{ServerName: sender.SMTPHost}
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), domainOf(sender.FromEmail))

	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", sender.FromName, sender.FromEmail))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetHeader("Message-ID", messageID)
	msg.SetBody("text/plain", body)

	if err := dialer.DialAndSend(msg); err != nil {
		m.recordSenderError(sender.ID, err)
		return "", fmt.Errorf("send from %s to %s: %w", sender.FromEmail, to, err)
	}

	// Update usage counters
	if err := m.DB.Model(&models.Sender{}).
		Where("id = ?", sender.ID).
		Updates(map[string]interface{}{
			"sent_today":   gorm.Expr("sent_today + ?", 1),
			"total_sent":   gorm.Expr("total_sent + ?", 1),
			"last_sent_at": time.Now(),
		}).Error; err != nil {
		m.Logger.Printf("Failed to update sender usage for %s: %v", sender.FromEmail, err)
	}

	return messageID, nil
}

// ResetDailyCounters zeroes every sender's sent_today at midnight.
// Run it in its own goroutine.
func (m *Mailer) ResetDailyCounters(ctx context.Context) {
	for {
		now := time.Now()
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(nextMidnight)):
		}

		if err := m.DB.Model(&models.Sender{}).
			Where("sent_today > 0").
			Update("sent_today", 0).
			Error; err != nil {
			m.Logger.Printf("Failed to reset sender counters: %v", err)
		} else {
			m.Logger.Println("Successfully reset sender daily counters")
		}
	}
}

func (m *Mailer) recordSenderError(senderID uint, sendErr error) {
	msg := sendErr.Error()
	m.DB.Model(&models.Sender{}).Where("id = ?", senderID).
		Update("last_error", msg)
}

func domainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return "localhost"
}
