package steps

import (
	"context"
	"fmt"
	"time"

	"mailsprint/models"
	"mailsprint/sendwindow"
	"mailsprint/sequence"

	"github.com/sirupsen/logrus"
)

// Result statuses.
const (
	StatusOK   = "ok"
	StatusSkip = "skip"
)

// Skip note prefixes/values the runner classifies on.
const (
	NoteNoLeadID         = "no-lead-id"
	NoteAlreadySent      = "already-sent-idempotent"
	NoteSendWindowPrefix = "send-window:"
)

// Result is the outcome of running one step for one lead.
type Result struct {
	Status string
	Notes  string
}

// StateStore is the slice of the lead state store a step may touch.
type StateStore interface {
	Advance(leadID, sequenceID, stepID string, nextActionAt *time.Time) error
	WasSent(leadID, sequenceID, stepID, fingerprint string) (bool, error)
	MarkSent(leadID, sequenceID, stepID, fingerprint string) error
	RecordActivity(leadID, sequenceID, stepID, inbox, messageID, subject string) error
}

// RecordStore writes CRM fields on the external lead record.
type RecordStore interface {
	UpdateFields(leadID string, fields map[string]string) error
}

// WindowGate is the send-window policy surface steps consult.
type WindowGate interface {
	Evaluate(ctx context.Context, inbox string, dryRun, bypassTime bool) (bool, sendwindow.Reason)
}

// Transport performs one delivery and returns the message id.
type Transport interface {
	Send(ctx context.Context, inbox, to, subject, body string) (string, error)
}

// Deps bundles the collaborators steps run against. BypassTime applies
// to every window check made during the run it was built for.
type Deps struct {
	State      StateStore
	Records    RecordStore
	Window     WindowGate
	Renderer   Renderer
	Transport  Transport
	Logger     *logrus.Logger
	BypassTime bool

	// Now is swappable for tests.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Step executes one unit of sequence work for one lead.
type Step interface {
	ID() string
	Run(ctx context.Context, lead *models.Lead, deps *Deps, sequenceID string, dryRun bool) (Result, error)
}

// New builds the executor for a step config.
func New(cfg *sequence.StepConfig) (Step, error) {
	switch cfg.Type {
	case sequence.TypeSendEmail:
		return &SendEmailStep{cfg: cfg}, nil
	case sequence.TypeWaitUntil:
		return &WaitUntilStep{cfg: cfg}, nil
	case sequence.TypeUpdateCRM:
		return &UpdateCRMStep{cfg: cfg}, nil
	}
	return nil, fmt.Errorf("unknown step type %q", cfg.Type)
}
