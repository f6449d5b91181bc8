package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/video-enhancer/internal/controller"
	"github.com/codebuildervaibhav/video-enhancer/internal/remote"
	"github.com/codebuildervaibhav/video-enhancer/internal/storage"
	"github.com/codebuildervaibhav/video-enhancer/internal/types"
)

// ControlHandler exposes the controller's operations to the page
type ControlHandler struct {
	ctrl         *controller.JobController
	models       []types.ModelOption
	defaultModel string
	// base is canceled on shutdown, not per request
	base context.Context
}

// NewControlHandler creates a new control handler
func NewControlHandler(base context.Context, ctrl *controller.JobController, models []types.ModelOption, defaultModel string) *ControlHandler {
	if len(models) == 0 {
		models = types.DefaultModels
	}
	if defaultModel == "" {
		defaultModel = models[0].Value
	}
	return &ControlHandler{
		ctrl:         ctrl,
		models:       models,
		defaultModel: defaultModel,
		base:         base,
	}
}

// EnhanceRequest is the body of POST /enhance
type EnhanceRequest struct {
	Model string `json:"model"`
}

// Models lists the selectable upscaling models
func (h *ControlHandler) Models(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"models":  h.models,
		"default": h.defaultModel,
	})
}

// State returns the controller snapshot
func (h *ControlHandler) State(c *fiber.Ctx) error {
	return c.JSON(h.ctrl.Snapshot())
}

// Enhance uploads the selected file and starts polling
func (h *ControlHandler) Enhance(c *fiber.Ctx) error {
	var req EnhanceRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{
				"error": "Invalid request body",
				"code":  "ERR_INVALID_BODY",
			})
		}
	}

	if req.Model == "" {
		req.Model = h.defaultModel
	}
	if !h.knownModel(req.Model) {
		return c.Status(400).JSON(fiber.Map{
			"error": "Unknown model: " + req.Model,
			"code":  "ERR_INVALID_MODEL",
		})
	}

	if err := h.ctrl.Enhance(h.base, req.Model); err != nil {
		return controlError(c, err)
	}
	return c.Status(202).JSON(h.ctrl.Snapshot())
}

// Cancel abandons the running job
func (h *ControlHandler) Cancel(c *fiber.Ctx) error {
	if err := h.ctrl.Cancel(h.base); err != nil {
		return controlError(c, err)
	}
	return c.JSON(h.ctrl.Snapshot())
}

// Reset returns the page to its initial state
func (h *ControlHandler) Reset(c *fiber.Ctx) error {
	h.ctrl.Reset()
	return c.JSON(h.ctrl.Snapshot())
}

func (h *ControlHandler) knownModel(model string) bool {
	for _, m := range h.models {
		if m.Value == model {
			return true
		}
	}
	return false
}

// HistoryHandler lists archived jobs
type HistoryHandler struct {
	db *storage.HistoryDB
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(db *storage.HistoryDB) *HistoryHandler {
	return &HistoryHandler{db: db}
}

// List returns the most recent jobs, newest first
func (h *HistoryHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	jobs, err := h.db.ListJobs(limit)
	if err != nil {
		log.Printf("[history] %v", err)
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(jobs)
}

// Get returns one archived job
func (h *HistoryHandler) Get(c *fiber.Ctx) error {
	job, err := h.db.GetJob(c.Params("id"))
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "Job not found",
			"code":  "ERR_NOT_FOUND",
		})
	}
	return c.JSON(job)
}

// controlError maps controller and backend failures onto HTTP responses
func controlError(c *fiber.Ctx, err error) error {
	var (
		uploadErr  *remote.UploadError
		startErr   *remote.StartError
		cancelErr  *remote.CancelError
		networkErr *remote.NetworkError
	)

	status, code := 500, "ERR_INTERNAL"
	switch {
	case errors.Is(err, controller.ErrNoFile):
		status, code = 400, "ERR_NO_FILE"
	case errors.Is(err, controller.ErrNotReady):
		status, code = 409, "ERR_NOT_READY"
	case errors.Is(err, controller.ErrSuperseded):
		status, code = 409, "ERR_SUPERSEDED"
	case errors.Is(err, controller.ErrNoJob):
		status, code = 409, "ERR_NO_JOB"
	case errors.As(err, &uploadErr):
		status, code = 502, "ERR_UPLOAD_FAILED"
	case errors.As(err, &startErr):
		status, code = 502, "ERR_START_FAILED"
	case errors.As(err, &cancelErr):
		status, code = 502, "ERR_CANCEL_FAILED"
	case errors.As(err, &networkErr):
		status, code = 502, "ERR_NETWORK"
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
