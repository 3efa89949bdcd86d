package makecom

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeck/flowdeck/pkg/gateway"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/platforms"
)

func testConnection(baseURL string) *models.Connection {
	return &models.Connection{
		ID:         "conn-1",
		TenantID:   "tenant-1",
		Platform:   models.PlatformMake,
		BaseURL:    baseURL,
		Credential: "make-token",
		TeamID:     "42",
		IsActive:   true,
	}
}

func testAdapter() *Adapter {
	return NewAdapter(gateway.NewClient(slog.Default()), slog.Default())
}

func TestAdapter_Identity(t *testing.T) {
	adapter := testAdapter()

	assert.Equal(t, models.PlatformMake, adapter.Platform())
	assert.True(t, adapter.SupportsControl())
}

func TestStatusFromScheduling(t *testing.T) {
	tests := []struct {
		name       string
		scheduling *scheduling
		want       models.WorkflowStatus
	}{
		{"absent scheduling is inactive", nil, models.WorkflowStatusInactive},
		{"empty type is inactive", &scheduling{Type: ""}, models.WorkflowStatusInactive},
		{"indefinitely is inactive", &scheduling{Type: "indefinitely"}, models.WorkflowStatusInactive},
		{"immediately is active", &scheduling{Type: "immediately"}, models.WorkflowStatusActive},
		{"interval is active", &scheduling{Type: "interval"}, models.WorkflowStatusActive},
		{"cron is active", &scheduling{Type: "cron"}, models.WorkflowStatusActive},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFromScheduling(tc.scheduling))
		})
	}
}

func TestAdapter_List(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token make-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v2/scenarios", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("teamId"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"scenarios": []map[string]any{
				{"id": 101, "name": "Lead router", "scheduling": map[string]any{"type": "immediately"}},
				{"id": 102, "name": "Archive sync", "scheduling": map[string]any{"type": "indefinitely"}},
				{"id": 103, "name": "No schedule"},
			},
		})
	}))
	defer server.Close()

	states, err := testAdapter().List(t.Context(), testConnection(server.URL))
	require.NoError(t, err)
	require.Len(t, states, 3)

	assert.Equal(t, "101", states[0].ID)
	assert.Equal(t, models.WorkflowStatusActive, states[0].Status)
	assert.Equal(t, models.WorkflowStatusInactive, states[1].Status)
	assert.Equal(t, models.WorkflowStatusInactive, states[2].Status)

	// Make's list shape carries no module counts.
	assert.Nil(t, states[0].NodeCount)
}

func TestAdapter_SetStatus(t *testing.T) {
	tests := []struct {
		desired        models.WorkflowStatus
		wantScheduling string
	}{
		{models.WorkflowStatusActive, "immediately"},
		{models.WorkflowStatusInactive, "indefinitely"},
	}

	for _, tc := range tests {
		t.Run(string(tc.desired), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPatch, r.Method)
				assert.Equal(t, "/api/v2/scenarios/101", r.URL.Path)

				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)

				var patch struct {
					Scheduling scheduling `json:"scheduling"`
				}

				require.NoError(t, json.Unmarshal(body, &patch))
				assert.Equal(t, tc.wantScheduling, patch.Scheduling.Type)

				_ = json.NewEncoder(w).Encode(map[string]any{
					"scenario": map[string]any{
						"id":         101,
						"name":       "Lead router",
						"scheduling": map[string]any{"type": tc.wantScheduling},
					},
				})
			}))
			defer server.Close()

			state, err := testAdapter().SetStatus(t.Context(), testConnection(server.URL), "101", tc.desired)
			require.NoError(t, err)
			assert.Equal(t, tc.desired, state.Status)
		})
	}
}

func TestAdapter_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/scenarios/101", r.URL.Path)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"scenario": map[string]any{"id": 101, "name": "Lead router", "scheduling": map[string]any{"type": "cron"}},
		})
	}))
	defer server.Close()

	state, err := testAdapter().Get(t.Context(), testConnection(server.URL), "101")
	require.NoError(t, err)
	assert.Equal(t, "101", state.ID)
	assert.Equal(t, models.WorkflowStatusActive, state.Status)
}

func TestAdapter_GetMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"scenario": {}}`))
	}))
	defer server.Close()

	_, err := testAdapter().Get(t.Context(), testConnection(server.URL), "101")
	require.Error(t, err)
	assert.ErrorIs(t, err, platforms.ErrUpstreamMalformedResponse)
}

func TestAdapter_ListExecutionsUnsupported(t *testing.T) {
	_, err := testAdapter().ListExecutions(t.Context(), testConnection("http://unused"), "101", 10)
	require.Error(t, err)
	assert.True(t, platforms.IsUnsupportedOperation(err))
}
