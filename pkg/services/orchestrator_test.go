package services

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeck/flowdeck/pkg/gateway"
	"github.com/flowdeck/flowdeck/pkg/ledger"
	"github.com/flowdeck/flowdeck/pkg/locks"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence/file"
	"github.com/flowdeck/flowdeck/pkg/plans"
	"github.com/flowdeck/flowdeck/pkg/platforms"
	"github.com/flowdeck/flowdeck/pkg/platforms/n8n"
	"github.com/flowdeck/flowdeck/pkg/platforms/zapier"
)

// fakeN8N is a minimal n8n instance: one workflow whose activation state
// follows the activate/deactivate endpoints.
type fakeN8N struct {
	server *httptest.Server

	active      atomic.Bool
	toggleCalls atomic.Int32
}

func newFakeN8N(t *testing.T) *fakeN8N {
	t.Helper()

	fake := &fakeN8N{}
	fake.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/activate"):
			fake.toggleCalls.Add(1)
			fake.active.Store(true)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/deactivate"):
			fake.toggleCalls.Add(1)
			fake.active.Store(false)
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/workflows":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"id": "wf-1", "name": "Sync contacts", "active": fake.active.Load()}},
			})

			return
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/executions":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"id": 7, "workflowId": "wf-1", "status": "success"}},
			})

			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "wf-1", "name": "Sync contacts", "active": fake.active.Load()})
	}))
	t.Cleanup(fake.server.Close)

	return fake
}

type fixture struct {
	orchestrator *Orchestrator
	ledger       *ledger.Service
	locker       *locks.MemoryLocker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())
	resolver := plans.NewResolver()
	ledgerService := ledger.NewService(persistence, resolver, nil, slog.Default())

	registry := platforms.NewRegistry(slog.Default())
	registry.Register(n8n.NewAdapter(gateway.NewClient(slog.Default()), slog.Default()))
	registry.Register(zapier.NewAdapter(slog.Default()))

	locker := locks.NewMemoryLocker()
	orchestrator := NewOrchestrator(persistence, registry, ledgerService, resolver, locker, nil, slog.Default())

	return &fixture{orchestrator: orchestrator, ledger: ledgerService, locker: locker}
}

func (f *fixture) withAccount(t *testing.T, tenantID string, tier models.PlanTier) {
	t.Helper()

	_, err := f.ledger.OpenAccount(t.Context(), tenantID, tier)
	require.NoError(t, err)
}

func (f *fixture) withConnection(t *testing.T, tenantID string, platform models.Platform, baseURL string) *models.Connection {
	t.Helper()

	conn, err := f.orchestrator.CreateConnection(t.Context(), CreateConnectionInput{
		TenantID:   tenantID,
		Platform:   platform,
		BaseURL:    baseURL,
		Credential: "token",
	})
	require.NoError(t, err)

	return conn
}

func TestSetWorkflowStatus_BilledToggle(t *testing.T) {
	fake := newFakeN8N(t)
	f := newFixture(t)

	f.withAccount(t, "tenant-1", models.PlanTierStarter)
	f.withConnection(t, "tenant-1", models.PlatformN8N, fake.server.URL)

	result, err := f.orchestrator.SetWorkflowStatus(t.Context(), "tenant-1", models.PlatformN8N, "wf-1", models.WorkflowStatusActive)
	require.NoError(t, err)

	assert.False(t, result.NoOp)
	assert.True(t, result.Billed)
	assert.Equal(t, models.WorkflowStatusActive, result.State.Status)

	balance, err := f.orchestrator.GetCreditBalance(t.Context(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, int64(24), balance.Regular)
}

func TestSetWorkflowStatus_NoOpIsFree(t *testing.T) {
	fake := newFakeN8N(t)
	fake.active.Store(true)

	f := newFixture(t)
	f.withAccount(t, "tenant-1", models.PlanTierStarter)
	f.withConnection(t, "tenant-1", models.PlatformN8N, fake.server.URL)

	result, err := f.orchestrator.SetWorkflowStatus(t.Context(), "tenant-1", models.PlatformN8N, "wf-1", models.WorkflowStatusActive)
	require.NoError(t, err)

	assert.True(t, result.NoOp)
	assert.False(t, result.Billed)

	// Nothing was dispatched upstream and nothing was debited.
	assert.Zero(t, fake.toggleCalls.Load())

	balance, err := f.orchestrator.GetCreditBalance(t.Context(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance.Regular)
}

func TestSetWorkflowStatus_RepeatIsIdempotent(t *testing.T) {
	fake := newFakeN8N(t)
	f := newFixture(t)

	f.withAccount(t, "tenant-1", models.PlanTierStarter)
	f.withConnection(t, "tenant-1", models.PlatformN8N, fake.server.URL)

	first, err := f.orchestrator.SetWorkflowStatus(t.Context(), "tenant-1", models.PlatformN8N, "wf-1", models.WorkflowStatusActive)
	require.NoError(t, err)
	assert.True(t, first.Billed)

	second, err := f.orchestrator.SetWorkflowStatus(t.Context(), "tenant-1", models.PlatformN8N, "wf-1", models.WorkflowStatusActive)
	require.NoError(t, err)
	assert.True(t, second.NoOp)
	assert.False(t, second.Billed)

	// Only the first request reached the platform or the ledger.
	assert.Equal(t, int32(1), fake.toggleCalls.Load())

	balance, err := f.orchestrator.GetCreditBalance(t.Context(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, int64(24), balance.Regular)
}

func TestSetWorkflowStatus_ZapierShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.withAccount(t, "tenant-1", models.PlanTierStarter)

	// No Zapier connection exists; the unsupported answer must come back
	// before any connection or upstream work.
	_, err := f.orchestrator.SetWorkflowStatus(t.Context(), "tenant-1", models.PlatformZapier, "zap-1", models.WorkflowStatusActive)
	require.Error(t, err)
	assert.True(t, platforms.IsUnsupportedOperation(err))
}

func TestSetWorkflowStatus_FreeTierGate(t *testing.T) {
	fake := newFakeN8N(t)
	f := newFixture(t)

	f.withAccount(t, "tenant-1", models.PlanTierFree)
	f.withConnection(t, "tenant-1", models.PlatformN8N, fake.server.URL)

	_, err := f.orchestrator.SetWorkflowStatus(t.Context(), "tenant-1", models.PlatformN8N, "wf-1", models.WorkflowStatusActive)
	require.Error(t, err)
	assert.True(t, IsPlanUpgradeRequired(err))
	assert.Zero(t, fake.toggleCalls.Load())
}

func TestSetWorkflowStatus_InsufficientCredits(t *testing.T) {
	fake := newFakeN8N(t)
	f := newFixture(t)

	f.withAccount(t, "tenant-1", models.PlanTierStarter)
	f.withConnection(t, "tenant-1", models.PlatformN8N, fake.server.URL)

	_, err := f.ledger.Debit(t.Context(), "tenant-1", 25, models.OperationWorkflowToggle)
	require.NoError(t, err)

	_, err = f.orchestrator.SetWorkflowStatus(t.Context(), "tenant-1", models.PlatformN8N, "wf-1", models.WorkflowStatusActive)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	// The balance check runs before execution; the platform was never hit.
	assert.Zero(t, fake.toggleCalls.Load())
}

func TestSetWorkflowStatus_BonusFallbackBilling(t *testing.T) {
	fake := newFakeN8N(t)
	f := newFixture(t)

	f.withAccount(t, "tenant-1", models.PlanTierStarter)
	f.withConnection(t, "tenant-1", models.PlatformN8N, fake.server.URL)

	// Drain the regular allocation and leave only bonus credits.
	_, err := f.ledger.Debit(t.Context(), "tenant-1", 25, models.OperationWorkflowToggle)
	require.NoError(t, err)
	_, err = f.ledger.Credit(t.Context(), "tenant-1", 3, models.CreditKindBonus, "promo")
	require.NoError(t, err)

	result, err := f.orchestrator.SetWorkflowStatus(t.Context(), "tenant-1", models.PlatformN8N, "wf-1", models.WorkflowStatusActive)
	require.NoError(t, err)
	assert.True(t, result.Billed)

	account, err := f.ledger.BalanceOf(t.Context(), "tenant-1")
	require.NoError(t, err)
	assert.Zero(t, account.RegularBalance)
	assert.Equal(t, int64(2), account.BonusBalance)
}

func TestSetWorkflowStatus_LockContention(t *testing.T) {
	fake := newFakeN8N(t)
	f := newFixture(t)

	f.withAccount(t, "tenant-1", models.PlanTierStarter)
	conn := f.withConnection(t, "tenant-1", models.PlatformN8N, fake.server.URL)

	// Hold the connection lock as an in-flight toggle would.
	release, err := f.locker.Acquire(t.Context(), conn.ID)
	require.NoError(t, err)

	_, err = f.orchestrator.SetWorkflowStatus(t.Context(), "tenant-1", models.PlatformN8N, "wf-1", models.WorkflowStatusActive)
	require.Error(t, err)
	assert.True(t, IsConcurrentModification(err))
	assert.Zero(t, fake.toggleCalls.Load())

	release()

	// The same request goes through once the holder releases.
	result, err := f.orchestrator.SetWorkflowStatus(t.Context(), "tenant-1", models.PlatformN8N, "wf-1", models.WorkflowStatusActive)
	require.NoError(t, err)
	assert.True(t, result.Billed)
}

func TestSetWorkflowStatus_InvalidStatus(t *testing.T) {
	f := newFixture(t)

	_, err := f.orchestrator.SetWorkflowStatus(t.Context(), "tenant-1", models.PlatformN8N, "wf-1", "paused")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSetWorkflowStatus_MissingAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.orchestrator.SetWorkflowStatus(t.Context(), "ghost", models.PlatformN8N, "wf-1", models.WorkflowStatusActive)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestListWorkflows(t *testing.T) {
	fake := newFakeN8N(t)
	f := newFixture(t)

	f.withAccount(t, "tenant-1", models.PlanTierFree)
	f.withConnection(t, "tenant-1", models.PlatformN8N, fake.server.URL)

	result, err := f.orchestrator.ListWorkflows(t.Context(), "tenant-1", models.PlatformN8N)
	require.NoError(t, err)

	assert.Equal(t, ControlSupported, result.Control)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "wf-1", result.Items[0].ID)
}

func TestListWorkflows_ZapierIsUnsupportedControl(t *testing.T) {
	f := newFixture(t)
	f.withAccount(t, "tenant-1", models.PlanTierFree)
	f.withConnection(t, "tenant-1", models.PlatformZapier, "")

	result, err := f.orchestrator.ListWorkflows(t.Context(), "tenant-1", models.PlatformZapier)
	require.NoError(t, err)

	assert.Equal(t, ControlUnsupported, result.Control)
	assert.Empty(t, result.Items)
}

func TestListWorkflows_NoActiveConnection(t *testing.T) {
	f := newFixture(t)
	f.withAccount(t, "tenant-1", models.PlanTierFree)

	_, err := f.orchestrator.ListWorkflows(t.Context(), "tenant-1", models.PlatformN8N)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestListWorkflowExecutions_CapabilityGate(t *testing.T) {
	fake := newFakeN8N(t)
	f := newFixture(t)

	f.withAccount(t, "tenant-1", models.PlanTierStarter)
	f.withConnection(t, "tenant-1", models.PlatformN8N, fake.server.URL)

	_, err := f.orchestrator.ListWorkflowExecutions(t.Context(), "tenant-1", models.PlatformN8N, "wf-1", 10)
	require.Error(t, err)
	assert.True(t, IsPlanUpgradeRequired(err))
}

func TestListWorkflowExecutions(t *testing.T) {
	fake := newFakeN8N(t)
	f := newFixture(t)

	f.withAccount(t, "tenant-1", models.PlanTierPro)
	f.withConnection(t, "tenant-1", models.PlatformN8N, fake.server.URL)

	records, err := f.orchestrator.ListWorkflowExecutions(t.Context(), "tenant-1", models.PlatformN8N, "wf-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "7", records[0].ID)
}

func TestCreateConnection_ActiveSwap(t *testing.T) {
	fake := newFakeN8N(t)
	f := newFixture(t)

	first := f.withConnection(t, "tenant-1", models.PlatformN8N, fake.server.URL)
	second := f.withConnection(t, "tenant-1", models.PlatformN8N, fake.server.URL)

	connections, err := f.orchestrator.ListConnections(t.Context(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, connections, 2)

	active := 0

	for _, conn := range connections {
		if conn.IsActive {
			active++
			assert.Equal(t, second.ID, conn.ID)
		} else {
			assert.Equal(t, first.ID, conn.ID)
		}
	}

	assert.Equal(t, 1, active)
}

func TestCreateConnection_InvalidPlatform(t *testing.T) {
	f := newFixture(t)

	_, err := f.orchestrator.CreateConnection(t.Context(), CreateConnectionInput{
		TenantID:   "tenant-1",
		Platform:   "airtable",
		Credential: "token",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPlatform)
}

func TestDeactivateConnection(t *testing.T) {
	fake := newFakeN8N(t)
	f := newFixture(t)

	conn := f.withConnection(t, "tenant-1", models.PlatformN8N, fake.server.URL)

	deactivated, err := f.orchestrator.DeactivateConnection(t.Context(), "tenant-1", conn.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)
	assert.NotNil(t, deactivated.DeactivatedAt)
}

func TestDeactivateConnection_ForeignTenant(t *testing.T) {
	fake := newFakeN8N(t)
	f := newFixture(t)

	conn := f.withConnection(t, "tenant-1", models.PlatformN8N, fake.server.URL)

	// Another tenant's connection is indistinguishable from a missing one.
	_, err := f.orchestrator.DeactivateConnection(t.Context(), "tenant-2", conn.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestChangePlan(t *testing.T) {
	f := newFixture(t)
	f.withAccount(t, "tenant-1", models.PlanTierStarter)

	account, err := f.orchestrator.ChangePlan(t.Context(), "tenant-1", models.PlanTierPro)
	require.NoError(t, err)
	assert.Equal(t, models.PlanTierPro, account.Tier)
	assert.Equal(t, int64(100), account.RegularBalance)
}

func TestChangePlan_UnknownTier(t *testing.T) {
	f := newFixture(t)

	_, err := f.orchestrator.ChangePlan(t.Context(), "tenant-1", "enterprise")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestGrantCredits(t *testing.T) {
	f := newFixture(t)
	f.withAccount(t, "tenant-1", models.PlanTierFree)

	result, err := f.orchestrator.GrantCredits(t.Context(), "tenant-1", 50, models.CreditKindBonus, "support goodwill")
	require.NoError(t, err)
	assert.Equal(t, int64(50), result.Account.BonusBalance)

	balance, err := f.orchestrator.GetCreditBalance(t.Context(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance.Total)
}

func TestGrantCredits_EmptyTenant(t *testing.T) {
	f := newFixture(t)

	_, err := f.orchestrator.GrantCredits(t.Context(), "", 50, models.CreditKindBonus, "oops")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyTenantID)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	message, ok := f.orchestrator.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.NotEmpty(t, message)
}
