package handlers

import (
	"errors"
	"log"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/video-enhancer/internal/controller"
	"github.com/codebuildervaibhav/video-enhancer/internal/selector"
	"github.com/codebuildervaibhav/video-enhancer/internal/types"
)

// SelectHandler receives the page's file selection
type SelectHandler struct {
	ctrl    *controller.JobController
	tempDir string
}

// NewSelectHandler creates a new select handler
func NewSelectHandler(ctrl *controller.JobController, tempDir string) *SelectHandler {
	return &SelectHandler{
		ctrl:    ctrl,
		tempDir: tempDir,
	}
}

// Handle stages the uploaded file and makes it the current selection
func (h *SelectHandler) Handle(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "No file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	declared := file.Header.Get("Content-Type")

	// oversized files are rejected without being staged
	if file.Size > types.MaxUploadBytes {
		return selectError(c, h.ctrl.SelectFile(unstagedFile(file)))
	}

	src, err := file.Open()
	if err != nil {
		log.Printf("[select] failed to open uploaded file: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to read file",
			"code":  "ERR_SAVE_FAILED",
		})
	}
	defer src.Close()

	staged, err := selector.Stage(src, file.Filename, declared, h.tempDir)
	if err != nil {
		log.Printf("[select] %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	if err := h.ctrl.SelectFile(staged); err != nil {
		selector.Unstage(staged, h.tempDir)
		return selectError(c, err)
	}

	return c.JSON(fiber.Map{
		"file":  selector.Describe(staged),
		"state": h.ctrl.Snapshot(),
	})
}

// unstagedFile describes an upload from its multipart header alone
func unstagedFile(fh *multipart.FileHeader) selector.File {
	return selector.File{
		Name: fh.Filename,
		Type: selector.BaseType(fh.Header.Get("Content-Type")),
		Size: fh.Size,
	}
}

func selectError(c *fiber.Ctx, err error) error {
	var verr *selector.ValidationError
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"state": "ok"})
	case errors.As(err, &verr):
		return c.Status(400).JSON(fiber.Map{
			"error": verr.Message,
			"code":  verr.Code,
		})
	case errors.Is(err, controller.ErrBusy):
		return c.Status(409).JSON(fiber.Map{
			"error": "An enhancement is already in progress",
			"code":  "ERR_BUSY",
		})
	}
	return c.Status(500).JSON(fiber.Map{
		"error": err.Error(),
		"code":  "ERR_INTERNAL",
	})
}
