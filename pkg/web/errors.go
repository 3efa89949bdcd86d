package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/flowdeck/flowdeck/pkg/persistence"
	"github.com/flowdeck/flowdeck/pkg/platforms"
	"github.com/flowdeck/flowdeck/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps the full service taxonomy onto RFC 7807 problems.
// Types are stable so the presentation layer can distinguish "try again"
// (upstream faults) from "fix your connection" (auth, not found) from
// "upgrade your plan" without parsing detail strings.
func handleServiceError(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	problemType := "internal_error"

	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case persistence.IsInsufficientCredits(err):
		status = fiber.StatusPaymentRequired
		problemType = "insufficient_credits"

	case services.IsPlanUpgradeRequired(err):
		status = fiber.StatusForbidden
		problemType = "plan_upgrade_required"

	case persistence.IsConnectionNotFound(err):
		return notFound(c, "connection_not_found", "no active connection for platform")

	case persistence.IsAccountNotFound(err):
		return notFound(c, "account_not_found", "no credit account for tenant")

	case platforms.IsWorkflowNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found on platform")

	case services.IsConcurrentModification(err):
		status = fiber.StatusConflict
		problemType = "concurrent_modification"

	// Permanent, expected condition: the platform has no control API.
	// Distinct from the transient upstream faults below.
	case platforms.IsUnsupportedOperation(err):
		status = fiber.StatusNotImplemented
		problemType = "unsupported_operation"

	case platforms.IsUpstreamTimeout(err):
		status = fiber.StatusGatewayTimeout
		problemType = "upstream_timeout"

	case platforms.IsUpstreamAuthFailed(err):
		status = fiber.StatusBadGateway
		problemType = "upstream_auth_failed"

	case errors.Is(err, platforms.ErrUpstreamMalformedResponse):
		status = fiber.StatusBadGateway
		problemType = "upstream_malformed_response"

	case errors.Is(err, platforms.ErrUpstreamUnreachable):
		status = fiber.StatusBadGateway
		problemType = "upstream_unreachable"

	default:
		return internalError(c, err)
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(err.Error())

	return c.Status(status).JSON(problem)
}
