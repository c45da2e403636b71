package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"mailsprint/models"
	"mailsprint/store"
	"mailsprint/utils"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"gorm.io/gorm"
)

// ReplyWorker polls each sender inbox over IMAP and marks leads as
// replied when inbound mail arrives from a known lead address. A reply
// is terminal; the runner will skip the lead from then on.
type ReplyWorker struct {
	DB       *gorm.DB
	State    *store.State
	Interval time.Duration
	Logger   *log.Logger
}

func NewReplyWorker(db *gorm.DB, state *store.State, interval time.Duration, logger *log.Logger) *ReplyWorker {
	return &ReplyWorker{
		DB:       db,
		State:    state,
		Interval: interval,
		Logger:   logger,
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	rw.Logger.Println("Reply worker starting...")

	ticker := time.NewTicker(rw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.Logger.Println("Reply worker shutting down...")
			return
		case <-ticker.C:
			rw.pollAllInboxes()
		}
	}
}

func (rw *ReplyWorker) pollAllInboxes() {
	var senders []models.Sender
	if err := rw.DB.Where("is_active = ? AND imap_host <> ''", true).Find(&senders).Error; err != nil {
		rw.Logger.Printf("Failed to load senders: %v", err)
		return
	}

	for i := range senders {
		if err := rw.pollInbox(&senders[i]); err != nil {
			rw.Logger.Printf("Reply poll failed for %s: %v", senders[i].FromEmail, err)
		}
	}
}

func (rw *ReplyWorker) pollInbox(sender *models.Sender) error {
	password, err := utils.Decrypt(sender.IMAPPassword)
	if err != nil {
		return fmt.Errorf("failed to decrypt IMAP password: %v", err)
	}

	var imapClient *client.Client
	imapAddr := fmt.Sprintf("%s:%d", sender.IMAPHost, sender.IMAPPort)

	switch strings.ToUpper(sender.IMAPEncryption) {
	case "SSL", "TLS":
		imapClient, err = client.DialTLS(imapAddr, &tls.Config{ServerName: sender.IMAPHost})
	case "STARTTLS":
		imapClient, err = client.Dial(imapAddr)
		if err == nil {
			err = imapClient.StartTLS(&tls.Config{ServerName: sender.IMAPHost})
		}
	default:
		imapClient, err = client.Dial(imapAddr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %v", err)
	}
	defer imapClient.Logout()

	if err := imapClient.Login(sender.IMAPUsername, password); err != nil {
		return fmt.Errorf("failed to login to IMAP server: %v", err)
	}

	mailbox := sender.IMAPMailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := imapClient.Select(mailbox, false); err != nil {
		return fmt.Errorf("failed to select mailbox: %v", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search messages: %v", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchItem("BODY.PEEK[]")}, messages)
	}()

	for msg := range messages {
		if err := rw.processMessage(msg); err != nil {
			rw.Logger.Printf("Failed to process message %d: %v", msg.SeqNum, err)
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("error during fetch: %v", err)
	}

	// Mark everything we looked at as seen so it is not re-examined
	// next poll.
	flags := []interface{}{imap.SeenFlag}
	if err := imapClient.Store(seqset, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
		rw.Logger.Printf("Failed to flag messages seen: %v", err)
	}

	return nil
}

func (rw *ReplyWorker) processMessage(msg *imap.Message) error {
	if msg.Envelope == nil || len(msg.Envelope.From) == 0 {
		return nil
	}

	from := utils.Norm(msg.Envelope.From[0].Address())
	if from == "" {
		return nil
	}

	drainBody(msg)

	var lead models.Lead
	if err := rw.DB.Where("email = ?", from).First(&lead).Error; err != nil {
		return nil // not a lead we track
	}
	if lead.RepliedAt != nil {
		return nil
	}

	if err := rw.State.MarkReplied(from); err != nil {
		return fmt.Errorf("failed to mark %s replied: %v", from, err)
	}

	rw.Logger.Printf("Reply detected from %s (subject %q); follow-ups stopped", from, msg.Envelope.Subject)
	return nil
}

// drainBody consumes the fetched body literal so the message stream
// stays healthy even when the message is not from a lead. Body sections
// are stored under the key the client parsed from the server response,
// so the lookup must go through GetBody rather than indexing the map.
func drainBody(msg *imap.Message) {
	section := imap.BodySectionName{}
	literal := msg.GetBody(&section)
	if literal == nil {
		return
	}
	mr, err := mail.CreateReader(literal)
	if err != nil {
		io.Copy(io.Discard, literal)
		return
	}
	for {
		p, err := mr.NextPart()
		if err != nil {
			break
		}
		io.Copy(io.Discard, p.Body)
	}
}
