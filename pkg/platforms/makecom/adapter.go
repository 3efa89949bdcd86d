// Package makecom adapts the Make.com scenarios API to the normalized
// workflow model. Make has no activation boolean; activation is encoded in
// the scenario's scheduling type. The mapping is exact and load-bearing:
// a missing scheduling object or the sentinel type "indefinitely" means the
// scenario is deactivated, every other type (including "immediately", the
// default activation trigger) means it is active.
package makecom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/flowdeck/flowdeck/pkg/gateway"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/platforms"
)

const (
	// schedulingIndefinitely is Make's deactivated sentinel. Treating it as
	// anything other than inactive is a correctness bug.
	schedulingIndefinitely = "indefinitely"
	// schedulingImmediately is the default activation trigger.
	schedulingImmediately = "immediately"
)

var errMissingScenarioID = errors.New("missing scenario id")

// Adapter implements platforms.Adapter for Make.com.
type Adapter struct {
	gateway *gateway.Client
	logger  *slog.Logger
}

// NewAdapter creates a Make.com adapter dispatching through the gateway.
func NewAdapter(gw *gateway.Client, logger *slog.Logger) *Adapter {
	return &Adapter{
		gateway: gw,
		logger:  logger.With("module", "makecom_adapter"),
	}
}

// Platform returns the platform key this adapter serves.
func (a *Adapter) Platform() models.Platform {
	return models.PlatformMake
}

// SupportsControl reports that scenarios can be toggled via PATCH.
func (a *Adapter) SupportsControl() bool {
	return true
}

type scheduling struct {
	Type string `json:"type"`
}

type scenario struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Scheduling *scheduling `json:"scheduling"`
	LastEdit   time.Time   `json:"lastEdit"`
}

type scenarioList struct {
	Scenarios []scenario `json:"scenarios"`
}

type scenarioEnvelope struct {
	Scenario scenario `json:"scenario"`
}

// List fetches every scenario in the connection's team scope.
func (a *Adapter) List(ctx context.Context, conn *models.Connection) ([]*models.WorkflowState, error) {
	endpoint := conn.BaseURL + "/api/v2/scenarios"
	if conn.TeamID != "" {
		endpoint += "?teamId=" + conn.TeamID
	}

	resp, err := a.gateway.Do(ctx, &gateway.Request{
		Platform:   models.PlatformMake,
		Op:         "List",
		Method:     http.MethodGet,
		URL:        endpoint,
		Header:     a.header(conn),
		Idempotent: true,
	})
	if err != nil {
		return nil, err
	}

	var page scenarioList
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, platforms.NewUpstreamError(models.PlatformMake, "List", resp.StatusCode,
			fmt.Errorf("%w: %w", platforms.ErrUpstreamMalformedResponse, err))
	}

	states := make([]*models.WorkflowState, 0, len(page.Scenarios))
	for i := range page.Scenarios {
		states = append(states, normalize(&page.Scenarios[i]))
	}

	return states, nil
}

// Get fetches one scenario's current state.
func (a *Adapter) Get(ctx context.Context, conn *models.Connection, workflowID string) (*models.WorkflowState, error) {
	resp, err := a.gateway.Do(ctx, &gateway.Request{
		Platform:   models.PlatformMake,
		Op:         "Get",
		Method:     http.MethodGet,
		URL:        conn.BaseURL + "/api/v2/scenarios/" + workflowID,
		Header:     a.header(conn),
		Idempotent: true,
	})
	if err != nil {
		return nil, err
	}

	return a.decodeScenario("Get", resp)
}

// SetStatus toggles a scenario by patching its scheduling object: activation
// sets {type: "immediately"}, deactivation sets {type: "indefinitely"}.
func (a *Adapter) SetStatus(ctx context.Context, conn *models.Connection, workflowID string, desired models.WorkflowStatus) (*models.WorkflowState, error) {
	schedulingType := schedulingImmediately
	if desired == models.WorkflowStatusInactive {
		schedulingType = schedulingIndefinitely
	}

	body, err := json.Marshal(map[string]any{
		"scheduling": scheduling{Type: schedulingType},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scheduling patch: %w", err)
	}

	resp, err := a.gateway.Do(ctx, &gateway.Request{
		Platform: models.PlatformMake,
		Op:       "SetStatus",
		Method:   http.MethodPatch,
		URL:      conn.BaseURL + "/api/v2/scenarios/" + workflowID,
		Header:   a.header(conn),
		Body:     body,
	})
	if err != nil {
		return nil, err
	}

	return a.decodeScenario("SetStatus", resp)
}

// ListExecutions is not exposed by the scenarios API surface this adapter
// targets.
func (a *Adapter) ListExecutions(_ context.Context, _ *models.Connection, _ string, _ int) ([]*models.ExecutionRecord, error) {
	return nil, platforms.NewUpstreamError(models.PlatformMake, "ListExecutions", 0, platforms.ErrUnsupportedOperation)
}

func (a *Adapter) decodeScenario(op string, resp *gateway.Response) (*models.WorkflowState, error) {
	var envelope scenarioEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil || envelope.Scenario.ID == 0 {
		if err == nil {
			err = errMissingScenarioID
		}

		return nil, platforms.NewUpstreamError(models.PlatformMake, op, resp.StatusCode,
			fmt.Errorf("%w: %w", platforms.ErrUpstreamMalformedResponse, err))
	}

	return normalize(&envelope.Scenario), nil
}

func (a *Adapter) header(conn *models.Connection) http.Header {
	header := http.Header{}
	header.Set("Authorization", "Token "+conn.Credential)
	header.Set("Accept", "application/json")

	return header
}

func normalize(s *scenario) *models.WorkflowState {
	return &models.WorkflowState{
		ID:        strconv.FormatInt(s.ID, 10),
		Name:      s.Name,
		Status:    statusFromScheduling(s.Scheduling),
		UpdatedAt: s.LastEdit,
		// The scenarios list shape does not expose module counts.
		NodeCount: nil,
	}
}

// statusFromScheduling applies the scheduling law: absent or "indefinitely"
// means inactive, any other scheduling type means active.
func statusFromScheduling(s *scheduling) models.WorkflowStatus {
	if s == nil || s.Type == "" || s.Type == schedulingIndefinitely {
		return models.WorkflowStatusInactive
	}

	return models.WorkflowStatusActive
}
