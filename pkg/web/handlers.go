// Package web provides the HTTP surface: definition management, event
// submission, approvals, macros and previews.
package web

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/rulegate/rulegate/pkg/dedupe"
	"github.com/rulegate/rulegate/pkg/engine"
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
)

type APIHandlers struct {
	engine    *engine.Engine
	store     persistence.Persistence
	validator *validator.Validate
}

func NewAPIHandlers(eng *engine.Engine, store persistence.Persistence, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		engine:    eng,
		store:     store,
		validator: validate,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.store.HealthCheck(c.Context()); err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

// Automations

func (h *APIHandlers) ListAutomations(c fiber.Ctx) error {
	definitions, err := h.store.Definitions().ListAutomations(c.Context(), c.Query("module_id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"automations": definitions})
}

func (h *APIHandlers) GetAutomation(c fiber.Ctx) error {
	def, err := h.store.Definitions().AutomationByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) SaveAutomation(c fiber.Ctx) error {
	var def models.AutomationDefinition

	if err := c.Bind().JSON(&def); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.engine.SaveAutomation(c.Context(), &def, nil); err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(def)
}

func (h *APIHandlers) PreviewAutomation(c fiber.Ctx) error {
	var req PreviewRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	report, err := h.engine.PreviewWorkflow(c.Context(), c.Params("id"), req.RecordID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(report)
}

// Approval processes

func (h *APIHandlers) ListApprovalProcesses(c fiber.Ctx) error {
	processes, err := h.store.Definitions().ListApprovalProcesses(c.Context(), c.Query("module_id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"approval_processes": processes})
}

func (h *APIHandlers) SaveApprovalProcess(c fiber.Ctx) error {
	var def models.ApprovalProcessDefinition

	if err := c.Bind().JSON(&def); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.engine.SaveApprovalProcess(c.Context(), &def, nil); err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(def)
}

// Events

func (h *APIHandlers) SubmitEvent(c fiber.Ctx) error {
	var req SubmitEventRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := &models.RecordEvent{
		Type:          req.Type,
		ModuleID:      req.ModuleID,
		Record:        req.Record,
		OldRecord:     req.OldRecord,
		ChangedFields: req.ChangedFields,
	}

	if err := h.engine.SubmitEvent(c.Context(), event); err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"event_id": event.ID})
}

func (h *APIHandlers) SubmitWebform(c fiber.Ctx) error {
	var req WebformSubmissionRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	res, err := h.engine.SubmitWebform(c.Context(), dedupe.Submission{
		ModuleID:  req.ModuleID,
		WebformID: c.Params("webformId"),
		Fields:    req.Fields,
		Schema:    req.Schema,
	}, req.Dedupe)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(WebformSubmissionResponse{
		RecordID: res.Record.ID,
		IsNew:    res.IsNew,
		Skipped:  res.Skipped,
	})
}

// Approvals

func (h *APIHandlers) GetApprovalRequest(c fiber.Ctx) error {
	req, steps, err := h.engine.ApprovalRequest(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(RequestWithSteps{Request: req, Steps: steps})
}

func (h *APIHandlers) ListPendingApprovals(c fiber.Ctx) error {
	approverID := c.Query("approver_id")
	if approverID == "" {
		return badRequest(c, "approver_id query parameter is required")
	}

	pending, err := h.engine.ListPendingApprovals(c.Context(), models.Actor{ID: approverID})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"pending": pending})
}

func (h *APIHandlers) DecideStep(c fiber.Ctx) error {
	var req DecisionRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.engine.DecideStep(c.Context(), c.Params("id"), req.StepIndex, req.Actor.toModel(), req.Decision, req.Comment)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DelegateStep(c fiber.Ctx) error {
	var req DelegationRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.engine.DelegateStep(c.Context(), c.Params("id"), req.StepIndex, req.Actor.toModel(), req.DelegateID, req.Comment)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(step)
}

// Macros

func (h *APIHandlers) RunMacro(c fiber.Ctx) error {
	var req RunMacroRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	report, err := h.engine.RunMacro(c.Context(), c.Params("id"), req.Actor.toModel(), req.RecordID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(report)
}

// Reports

func (h *APIHandlers) ListRecordReports(c fiber.Ctx) error {
	reports, err := h.engine.ExecutionHistory(c.Context(), c.Params("moduleId"), c.Params("recordId"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"reports": reports})
}

func (h *APIHandlers) ListRecordApprovals(c fiber.Ctx) error {
	requests, err := h.engine.ApprovalHistory(c.Context(), c.Params("moduleId"), c.Params("recordId"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"approvals": requests})
}
