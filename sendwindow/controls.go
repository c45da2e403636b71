package sendwindow

import (
	"encoding/json"
	"fmt"
	"os"

	"mailsprint/utils"
)

// Controls is the operator-owned rule file gating all outbound sends.
// Limits left unset mean unlimited.
type Controls struct {
	OutreachEnabled *bool    `json:"outreach_enabled"`
	DaysAllowed     []string `json:"days_allowed" validate:"required,min=1,dive,oneof=Mon Tue Wed Thu Fri Sat Sun"`
	StartTime       string   `json:"start_time" validate:"required,len=5"`
	EndTime         string   `json:"end_time" validate:"required,len=5"`
	Timezone        string   `json:"timezone" validate:"required"`
	DailyLimit      *int     `json:"daily_limit,omitempty" validate:"omitempty,min=1"`
	PerInboxLimit   *int     `json:"per_inbox_limit,omitempty" validate:"omitempty,min=1"`
}

// Enabled defaults to true when the key is absent from the file.
func (c *Controls) Enabled() bool {
	return c.OutreachEnabled == nil || *c.OutreachEnabled
}

// Limits returns the quota portion of the controls.
func (c *Controls) Limits() Limits {
	return Limits{Daily: c.DailyLimit, PerInbox: c.PerInboxLimit}
}

// DefaultControls mirrors the documented fallbacks for a missing file.
func DefaultControls() Controls {
	return Controls{
		DaysAllowed: []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
		StartTime:   "09:00",
		EndTime:     "17:00",
		Timezone:    "America/New_York",
	}
}

// LoadControls reads and validates the controls file. A malformed file
// is a fatal configuration error, never a silent allow.
func LoadControls(path string) (Controls, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Controls{}, fmt.Errorf("read controls file %s: %w", path, err)
	}

	cfg := DefaultControls()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Controls{}, fmt.Errorf("parse controls file %s: %w", path, err)
	}

	if err := utils.ValidateStruct(&cfg); err != nil {
		return Controls{}, fmt.Errorf("invalid controls file %s: %w", path, err)
	}

	if _, err := parseClock(cfg.StartTime); err != nil {
		return Controls{}, fmt.Errorf("invalid start_time %q: %w", cfg.StartTime, err)
	}
	if _, err := parseClock(cfg.EndTime); err != nil {
		return Controls{}, fmt.Errorf("invalid end_time %q: %w", cfg.EndTime, err)
	}

	return cfg, nil
}

// parseClock converts "HH:MM" to minutes past midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range")
	}
	return h*60 + m, nil
}
