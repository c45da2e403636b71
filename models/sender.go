package models

import (
	"time"

	"gorm.io/gorm"
)

// Sender represents one outbound mail identity (inbox) with its own
// SMTP/IMAP credentials and daily quota
type Sender struct {
	gorm.Model

	// Basic identification
	Name      string `gorm:"not null" json:"name"`
	FromEmail string `gorm:"not null;uniqueIndex" json:"from_email"`
	FromName  string `gorm:"not null" json:"from_name"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	// ========= SMTP Configuration =========
	SMTPHost     string `gorm:"not null" json:"smtp_host"`
	SMTPPort     int    `gorm:"not null" json:"smtp_port"`
	SMTPUsername string `gorm:"not null" json:"smtp_username"`
	SMTPPassword string `gorm:"not null" json:"-"`          // Encrypted in application layer
	Encryption   string `gorm:"not null" json:"encryption"` // SSL, TLS, STARTTLS

	// ========= IMAP Configuration =========
	IMAPHost       string `json:"imap_host"`
	IMAPPort       int    `json:"imap_port" gorm:"default:993"`
	IMAPUsername   string `json:"imap_username"`
	IMAPPassword   string `json:"-"` // Encrypted in application layer
	IMAPEncryption string `json:"imap_encryption" gorm:"default:'SSL'"`
	IMAPMailbox    string `json:"imap_mailbox" gorm:"default:'INBOX'"`

	// ========= Usage Metrics =========
	DailyLimit int        `gorm:"default:40" json:"daily_limit"`
	SentToday  int        `gorm:"default:0" json:"sent_today"`
	TotalSent  int        `gorm:"default:0" json:"total_sent"`
	LastSentAt *time.Time `json:"last_sent_at"`
	LastError  *string    `json:"last_error"`
}

// Sanitize strips credentials before the record leaves the API.
func (s *Sender) Sanitize() {
	s.SMTPPassword = ""
	s.IMAPPassword = ""
}
