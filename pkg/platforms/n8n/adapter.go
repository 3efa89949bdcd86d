// Package n8n adapts the n8n REST API to the normalized workflow model.
// n8n encodes activation as a native boolean `active` field, which maps
// directly onto the normalized active/inactive pair.
package n8n

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/flowdeck/flowdeck/pkg/gateway"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/platforms"
)

const apiKeyHeader = "X-N8N-API-KEY"

const defaultExecutionLimit = 20

var errMissingWorkflowID = errors.New("missing workflow id")

// Adapter implements platforms.Adapter for n8n.
type Adapter struct {
	gateway *gateway.Client
	logger  *slog.Logger
}

// NewAdapter creates an n8n adapter dispatching through the gateway.
func NewAdapter(gw *gateway.Client, logger *slog.Logger) *Adapter {
	return &Adapter{
		gateway: gw,
		logger:  logger.With("module", "n8n_adapter"),
	}
}

// Platform returns the platform key this adapter serves.
func (a *Adapter) Platform() models.Platform {
	return models.PlatformN8N
}

// SupportsControl reports that n8n exposes activate/deactivate endpoints.
func (a *Adapter) SupportsControl() bool {
	return true
}

// workflow is the n8n native workflow shape, reduced to the fields the
// normalization needs.
type workflow struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Active    bool             `json:"active"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Nodes     []map[string]any `json:"nodes"`
}

type workflowList struct {
	Data       []workflow `json:"data"`
	NextCursor string     `json:"nextCursor"`
}

type execution struct {
	ID         json.Number `json:"id"`
	WorkflowID string      `json:"workflowId"`
	Status     string      `json:"status"`
	StartedAt  time.Time   `json:"startedAt"`
	StoppedAt  *time.Time  `json:"stoppedAt"`
}

type executionList struct {
	Data []execution `json:"data"`
}

// List fetches every workflow on the instance, following n8n's cursor
// pagination until exhausted.
func (a *Adapter) List(ctx context.Context, conn *models.Connection) ([]*models.WorkflowState, error) {
	states := make([]*models.WorkflowState, 0)
	cursor := ""

	for {
		endpoint := conn.BaseURL + "/api/v1/workflows"
		if cursor != "" {
			endpoint += "?cursor=" + url.QueryEscape(cursor)
		}

		resp, err := a.gateway.Do(ctx, &gateway.Request{
			Platform:   models.PlatformN8N,
			Op:         "List",
			Method:     http.MethodGet,
			URL:        endpoint,
			Header:     a.header(conn),
			Idempotent: true,
		})
		if err != nil {
			return nil, err
		}

		var page workflowList
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, platforms.NewUpstreamError(models.PlatformN8N, "List", resp.StatusCode,
				fmt.Errorf("%w: %w", platforms.ErrUpstreamMalformedResponse, err))
		}

		for i := range page.Data {
			states = append(states, normalize(&page.Data[i]))
		}

		if page.NextCursor == "" {
			return states, nil
		}

		cursor = page.NextCursor
	}
}

// Get fetches one workflow's current state.
func (a *Adapter) Get(ctx context.Context, conn *models.Connection, workflowID string) (*models.WorkflowState, error) {
	resp, err := a.gateway.Do(ctx, &gateway.Request{
		Platform:   models.PlatformN8N,
		Op:         "Get",
		Method:     http.MethodGet,
		URL:        conn.BaseURL + "/api/v1/workflows/" + url.PathEscape(workflowID),
		Header:     a.header(conn),
		Idempotent: true,
	})
	if err != nil {
		return nil, err
	}

	return a.decodeWorkflow("Get", resp)
}

// SetStatus activates or deactivates a workflow through n8n's dedicated
// endpoints and returns the resulting state.
func (a *Adapter) SetStatus(ctx context.Context, conn *models.Connection, workflowID string, desired models.WorkflowStatus) (*models.WorkflowState, error) {
	verb := "activate"
	if desired == models.WorkflowStatusInactive {
		verb = "deactivate"
	}

	resp, err := a.gateway.Do(ctx, &gateway.Request{
		Platform: models.PlatformN8N,
		Op:       "SetStatus",
		Method:   http.MethodPost,
		URL:      conn.BaseURL + "/api/v1/workflows/" + url.PathEscape(workflowID) + "/" + verb,
		Header:   a.header(conn),
	})
	if err != nil {
		return nil, err
	}

	return a.decodeWorkflow("SetStatus", resp)
}

// ListExecutions returns recent runs for a workflow, newest first.
func (a *Adapter) ListExecutions(ctx context.Context, conn *models.Connection, workflowID string, limit int) ([]*models.ExecutionRecord, error) {
	if limit <= 0 {
		limit = defaultExecutionLimit
	}

	query := url.Values{}
	query.Set("workflowId", workflowID)
	query.Set("limit", strconv.Itoa(limit))

	resp, err := a.gateway.Do(ctx, &gateway.Request{
		Platform:   models.PlatformN8N,
		Op:         "ListExecutions",
		Method:     http.MethodGet,
		URL:        conn.BaseURL + "/api/v1/executions?" + query.Encode(),
		Header:     a.header(conn),
		Idempotent: true,
	})
	if err != nil {
		return nil, err
	}

	var page executionList
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, platforms.NewUpstreamError(models.PlatformN8N, "ListExecutions", resp.StatusCode,
			fmt.Errorf("%w: %w", platforms.ErrUpstreamMalformedResponse, err))
	}

	records := make([]*models.ExecutionRecord, 0, len(page.Data))
	for _, exec := range page.Data {
		records = append(records, &models.ExecutionRecord{
			ID:         exec.ID.String(),
			WorkflowID: exec.WorkflowID,
			Status:     exec.Status,
			StartedAt:  exec.StartedAt,
			FinishedAt: exec.StoppedAt,
		})
	}

	return records, nil
}

func (a *Adapter) decodeWorkflow(op string, resp *gateway.Response) (*models.WorkflowState, error) {
	var wf workflow
	if err := json.Unmarshal(resp.Body, &wf); err != nil || wf.ID == "" {
		if err == nil {
			err = errMissingWorkflowID
		}

		return nil, platforms.NewUpstreamError(models.PlatformN8N, op, resp.StatusCode,
			fmt.Errorf("%w: %w", platforms.ErrUpstreamMalformedResponse, err))
	}

	return normalize(&wf), nil
}

func (a *Adapter) header(conn *models.Connection) http.Header {
	header := http.Header{}
	header.Set(apiKeyHeader, conn.Credential)
	header.Set("Accept", "application/json")

	return header
}

func normalize(wf *workflow) *models.WorkflowState {
	status := models.WorkflowStatusInactive
	if wf.Active {
		status = models.WorkflowStatusActive
	}

	nodeCount := len(wf.Nodes)

	return &models.WorkflowState{
		ID:        wf.ID,
		Name:      wf.Name,
		Status:    status,
		UpdatedAt: wf.UpdatedAt,
		NodeCount: &nodeCount,
	}
}
