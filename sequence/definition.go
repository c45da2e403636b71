package sequence

import (
	"fmt"
	"os"
	"time"

	"mailsprint/utils"

	"gopkg.in/yaml.v3"
)

// Step types understood by the engine.
const (
	TypeSendEmail = "send_email"
	TypeWaitUntil = "wait_until"
	TypeUpdateCRM = "update_crm"
)

// Delay is the wait amount for a wait_until step.
type Delay struct {
	Days    int `yaml:"days"`
	Hours   int `yaml:"hours"`
	Minutes int `yaml:"minutes"`
}

func (d Delay) Duration() time.Duration {
	return time.Duration(d.Days)*24*time.Hour +
		time.Duration(d.Hours)*time.Hour +
		time.Duration(d.Minutes)*time.Minute
}

// LLMOptions tune LLM-mode rendering for a send step.
type LLMOptions struct {
	Style       string  `yaml:"style"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// StepConfig is one entry in a sequence definition. Type-specific
// parameters live side by side; validation checks the ones the type
// requires.
type StepConfig struct {
	ID   string `yaml:"id" validate:"required"`
	Type string `yaml:"type" validate:"required,oneof=send_email wait_until update_crm"`

	// send_email
	Subject  string     `yaml:"subject"`
	Template string     `yaml:"template"`
	Mode     string     `yaml:"mode"` // static (default) or llm
	Label    string     `yaml:"label"`
	LLM      LLMOptions `yaml:"llm"`

	// wait_until
	Delay Delay `yaml:"delay"`

	// update_crm
	Fields map[string]string `yaml:"fields"`
}

// Definition is an ordered list of steps; order alone determines the
// successor of every step.
type Definition struct {
	Steps []StepConfig `yaml:"steps"`
}

// File is the full sequences config: id → definition.
type File struct {
	Sequences map[string]Definition `yaml:"sequences"`
}

// Load reads and validates the sequences file. Any malformed step is a
// fatal configuration error.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sequences file %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sequences file %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sequences file %s: %w", path, err)
	}
	return &f, nil
}

func (f *File) Validate() error {
	if len(f.Sequences) == 0 {
		return fmt.Errorf("no sequences defined")
	}
	for id, def := range f.Sequences {
		if len(def.Steps) == 0 {
			return fmt.Errorf("sequence %q has no steps", id)
		}
		seen := make(map[string]struct{}, len(def.Steps))
		for i, step := range def.Steps {
			if err := utils.ValidateStruct(&step); err != nil {
				return fmt.Errorf("sequence %q step %d: %w", id, i, err)
			}
			if _, dup := seen[step.ID]; dup {
				return fmt.Errorf("sequence %q has duplicate step id %q", id, step.ID)
			}
			seen[step.ID] = struct{}{}
			if step.Type == TypeWaitUntil && step.Delay.Duration() <= 0 {
				return fmt.Errorf("sequence %q step %q: wait_until needs a positive delay", id, step.ID)
			}
		}
	}
	return nil
}

// Get returns the definition for id.
func (f *File) Get(id string) (*Definition, error) {
	def, ok := f.Sequences[id]
	if !ok {
		return nil, fmt.Errorf("sequence %q not found in config", id)
	}
	return &def, nil
}

// Step returns the config for a step id.
func (d *Definition) Step(id string) (*StepConfig, bool) {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i], true
		}
	}
	return nil, false
}

// NextStepID resolves the positional successor of current: the first
// step when current is nil or unknown, nil when the list is exhausted.
func (d *Definition) NextStepID(current *string) *string {
	if current == nil {
		return &d.Steps[0].ID
	}
	for i := range d.Steps {
		if d.Steps[i].ID == *current {
			if i+1 < len(d.Steps) {
				return &d.Steps[i+1].ID
			}
			return nil
		}
	}
	return &d.Steps[0].ID
}

// FollowUpLabel names the stage a send step represents for CRM
// display: an explicit label, or "Follow Up #n" counted over the send
// steps so far. Non-send steps have no label.
func (d *Definition) FollowUpLabel(stepID string) string {
	step, ok := d.Step(stepID)
	if !ok {
		return ""
	}
	if step.Label != "" {
		return step.Label
	}
	if step.Type != TypeSendEmail {
		return ""
	}
	n := 0
	for _, s := range d.Steps {
		if s.Type == TypeSendEmail {
			n++
		}
		if s.ID == stepID {
			break
		}
	}
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("Follow Up #%d", n)
}
