package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stemforge/api/internal/model"
	"github.com/stemforge/api/internal/orchestrator"
	"github.com/stemforge/api/internal/store"
	"github.com/stemforge/api/pkg/response"
)

type JobsHandler struct {
	orch      *orchestrator.Orchestrator
	validator *validator.Validate
}

func NewJobsHandler(orch *orchestrator.Orchestrator, v *validator.Validate) *JobsHandler {
	return &JobsHandler{
		orch:      orch,
		validator: v,
	}
}

// Create handles POST /api/jobs
func (h *JobsHandler) Create(c *fiber.Ctx) error {
	var req model.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.orch.CreateJob(c.Context(), &req)
	if err != nil {
		var verr *orchestrator.ValidationError
		if errors.As(err, &verr) {
			return response.ValidationError(c, verr.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/jobs/:jobId
func (h *JobsHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.orch.GetStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/jobs/:jobId/cancel
func (h *JobsHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	canceled, err := h.orch.Cancel(c.Context(), jobID)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	status, err := h.orch.GetStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, &model.CancelJobResponse{
		JobID:    jobID,
		Canceled: canceled,
		Status:   status.Status,
	})
}

// Result handles GET /api/jobs/:jobId/result
func (h *JobsHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.orch.GetResult(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, orchestrator.ErrNotCompleted) {
			return response.ValidationError(c, "Job has not completed yet", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
