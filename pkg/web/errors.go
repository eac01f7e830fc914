package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/rulegate/rulegate/pkg/approval"
	"github.com/rulegate/rulegate/pkg/dedupe"
	"github.com/rulegate/rulegate/pkg/engine"
	"github.com/rulegate/rulegate/pkg/macro"
	"github.com/rulegate/rulegate/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func forbidden(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(403).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusForbidden).JSON(problem)
}

func conflict(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps engine and store errors onto problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, engine.ErrInvalidDefinition),
		errors.Is(err, dedupe.ErrInvalidSubmission),
		errors.Is(err, approval.ErrCommentRequired),
		errors.Is(err, macro.ErrConditionsNotMet):
		return badRequest(c, err.Error())

	case errors.Is(err, approval.ErrNotApprover),
		errors.Is(err, macro.ErrRoleDenied):
		return forbidden(c, "not_authorized", err.Error())

	case errors.Is(err, approval.ErrDelegationNotAllowed),
		errors.Is(err, approval.ErrSelfDelegation):
		return badRequest(c, err.Error())

	case errors.Is(err, approval.ErrRequestClosed):
		return conflict(c, "already_terminal", err.Error())

	case errors.Is(err, persistence.ErrTransitionConflict):
		return conflict(c, "already_decided", err.Error())

	case errors.Is(err, macro.ErrNotAMacro),
		errors.Is(err, macro.ErrMacroDisabled):
		return badRequest(c, err.Error())

	case persistence.IsConflict(err):
		return conflict(c, "conflict", err.Error())

	case persistence.IsNotFound(err):
		return notFound(c, err.Error())

	default:
		return internalError(c, err)
	}
}
