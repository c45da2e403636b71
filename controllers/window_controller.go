package controllers

import (
	"log"

	"mailsprint/sendwindow"

	"github.com/gofiber/fiber/v2"
)

type WindowController struct {
	policy *sendwindow.Policy
	logger *log.Logger
}

func NewWindowController(policy *sendwindow.Policy, logger *log.Logger) *WindowController {
	return &WindowController{policy: policy, logger: logger}
}

// GetStatus reports whether sending is currently allowed, without
// consuming any quota, along with today's counter snapshot.
func (wc *WindowController) GetStatus(c *fiber.Ctx) error {
	inbox := c.Query("inbox")

	allowed, reason := wc.policy.Evaluate(c.Context(), inbox, true, false)

	counters, err := wc.policy.Snapshot(c.Context())
	if err != nil {
		wc.logger.Printf("Failed to snapshot counters: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read counters",
		})
	}

	controls := wc.policy.Controls()
	return c.JSON(fiber.Map{
		"allowed":   allowed,
		"reason":    reason,
		"date":      counters.Date,
		"total":     counters.Total,
		"per_inbox": counters.PerInbox,
		"controls": fiber.Map{
			"outreach_enabled": controls.Enabled(),
			"days_allowed":     controls.DaysAllowed,
			"start_time":       controls.StartTime,
			"end_time":         controls.EndTime,
			"timezone":         controls.Timezone,
			"daily_limit":      controls.DailyLimit,
			"per_inbox_limit":  controls.PerInboxLimit,
		},
	})
}
