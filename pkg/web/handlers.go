package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/services"
)

type APIHandlers struct {
	orchestrator *services.Orchestrator
	validator    *validator.Validate
}

func NewAPIHandlers(orchestrator *services.Orchestrator, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		orchestrator: orchestrator,
		validator:    validate,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	platform := models.Platform(c.Params("platform"))

	result, err := h.orchestrator.ListWorkflows(c.Context(), tenantID, platform)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) SetWorkflowStatus(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	platform := models.Platform(c.Params("platform"))
	workflowID := c.Params("workflowId")

	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req SetWorkflowStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.orchestrator.SetWorkflowStatus(c.Context(), tenantID, platform, workflowID, models.WorkflowStatus(req.Status))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	platform := models.Platform(c.Params("platform"))
	workflowID := c.Params("workflowId")

	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit parameter")
		}

		limit = parsed
	}

	records, err := h.orchestrator.ListWorkflowExecutions(c.Context(), tenantID, platform, workflowID, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": records})
}

func (h *APIHandlers) GetCreditBalance(c fiber.Ctx) error {
	balance, err := h.orchestrator.GetCreditBalance(c.Context(), c.Params("tenantId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(balance)
}

func (h *APIHandlers) GetCreditTransactions(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")

	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	transactions, err := h.orchestrator.ListTransactions(c.Context(), tenantID, limit, offset)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"transactions": transactions})
}

func (h *APIHandlers) GrantCredits(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")

	var req GrantCreditsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.orchestrator.GrantCredits(c.Context(), tenantID, req.Amount, models.CreditKind(req.Kind), req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) ChangePlan(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")

	var req ChangePlanRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	account, err := h.orchestrator.ChangePlan(c.Context(), tenantID, models.PlanTier(req.Tier))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(account)
}

func (h *APIHandlers) GetConnections(c fiber.Ctx) error {
	connections, err := h.orchestrator.ListConnections(c.Context(), c.Params("tenantId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	responses := make([]ConnectionResponse, 0, len(connections))
	for _, conn := range connections {
		responses = append(responses, TransformConnectionResponse(conn))
	}

	return c.JSON(fiber.Map{"connections": responses})
}

func (h *APIHandlers) CreateConnection(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")

	var req CreateConnectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	conn, err := h.orchestrator.CreateConnection(c.Context(), services.CreateConnectionInput{
		TenantID:   tenantID,
		Platform:   models.Platform(req.Platform),
		BaseURL:    req.BaseURL,
		Credential: req.Credential,
		TeamID:     req.TeamID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TransformConnectionResponse(conn))
}

func (h *APIHandlers) DeactivateConnection(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	connectionID := c.Params("connectionId")

	if connectionID == "" {
		return badRequest(c, "Connection ID is required")
	}

	conn, err := h.orchestrator.DeactivateConnection(c.Context(), tenantID, connectionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformConnectionResponse(conn))
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	coreCheck, ok := h.orchestrator.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Flowdeck API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Flowdeck API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"core": coreCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
