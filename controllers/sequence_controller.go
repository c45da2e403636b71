package controllers

import (
	"errors"
	"log"

	"mailsprint/config"
	"mailsprint/models"
	"mailsprint/runner"
	"mailsprint/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SequenceController struct {
	db     *gorm.DB
	runner *runner.Runner
	logger *log.Logger
}

func NewSequenceController(db *gorm.DB, r *runner.Runner, logger *log.Logger) *SequenceController {
	return &SequenceController{db: db, runner: r, logger: logger}
}

type tickRequest struct {
	DryRun     bool   `json:"dry_run"`
	MaxActions int    `json:"max_actions" validate:"omitempty,min=1,max=500"`
	Client     string `json:"client"`
	Email      string `json:"email" validate:"omitempty,email"`
	BypassTime bool   `json:"bypass_time"`
}

// TriggerTick runs one tick of the named sequence. Live ticks still
// require the process-level arming flag; the API cannot override it.
func (sc *SequenceController) TriggerTick(c *fiber.Ctx) error {
	sequenceID := c.Params("id")

	var req tickRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	summary, err := sc.runner.RunOnce(c.Context(), runner.Options{
		SequenceID:  sequenceID,
		DryRun:      req.DryRun,
		LiveArmed:   config.AppConfig.LiveArmed,
		MaxActions:  req.MaxActions,
		Client:      req.Client,
		EmailFilter: req.Email,
		BypassTime:  req.BypassTime,
	})
	if err != nil {
		if errors.Is(err, runner.ErrLiveNotArmed) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		sc.logger.Printf("Tick failed for sequence %s: %v", sequenceID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Tick failed",
		})
	}

	return c.JSON(fiber.Map{
		"sequence_id":  sequenceID,
		"dry_run":      req.DryRun,
		"blocked":      summary.Blocked,
		"leads_loaded": summary.LeadsLoaded,
		"actions":      summary.Actions,
		"ok":           summary.OK,
		"skips": fiber.Map{
			"time":     summary.SkipsTime,
			"quota":    summary.SkipsQuota,
			"disabled": summary.SkipsDisabled,
			"error":    summary.SkipsError,
			"waiting":  summary.SkipsWaiting,
			"stopped":  summary.SkipsStopped,
			"other":    summary.SkipsOther,
		},
	})
}

// GetStats returns pointer status counts and the most recent send
// activity for a sequence.
func (sc *SequenceController) GetStats(c *fiber.Ctx) error {
	sequenceID := c.Params("id")

	type statusCount struct {
		Status string
		Count  int64
	}
	var counts []statusCount
	if err := sc.db.Model(&models.SequencePointer{}).
		Select("status, count(*) as count").
		Where("sequence_id = ?", sequenceID).
		Group("status").
		Scan(&counts).Error; err != nil {
		sc.logger.Printf("Failed to count pointers for %s: %v", sequenceID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load stats",
		})
	}

	byStatus := fiber.Map{}
	for _, row := range counts {
		byStatus[row.Status] = row.Count
	}

	var recent []models.SendActivity
	if err := sc.db.Where("sequence_id = ?", sequenceID).
		Order("created_at DESC").
		Limit(20).
		Find(&recent).Error; err != nil {
		sc.logger.Printf("Failed to load activity for %s: %v", sequenceID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load stats",
		})
	}

	return c.JSON(fiber.Map{
		"sequence_id":     sequenceID,
		"pointers":        byStatus,
		"recent_activity": recent,
	})
}
