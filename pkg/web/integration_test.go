//go:build integration

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/flowdeck/flowdeck/pkg/gateway"
	"github.com/flowdeck/flowdeck/pkg/ledger"
	"github.com/flowdeck/flowdeck/pkg/locks"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence/postgresql"
	"github.com/flowdeck/flowdeck/pkg/plans"
	"github.com/flowdeck/flowdeck/pkg/platforms"
	"github.com/flowdeck/flowdeck/pkg/platforms/n8n"
	"github.com/flowdeck/flowdeck/pkg/platforms/zapier"
	"github.com/flowdeck/flowdeck/pkg/services"
	"github.com/flowdeck/flowdeck/pkg/web"
)

func setupTestDB(t *testing.T) (string, func()) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "test_flowdeck",
				"POSTGRES_USER":     "test_user",
				"POSTGRES_PASSWORD": "test_pass",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dbURL := fmt.Sprintf("postgres://test_user:test_pass@%s:%s/test_flowdeck?sslmode=disable", host, port.Port())

	// Wait for database to be ready
	time.Sleep(2 * time.Second)

	cleanup := func() {
		_ = container.Terminate(ctx)
	}

	return dbURL, cleanup
}

func setupIntegrationApp(t *testing.T, dbURL string) (*fiber.App, *ledger.Service) {
	// Create persistence layer with automatic migrations
	persistence, err := postgresql.NewPersistence(context.Background(), slog.Default(), dbURL)
	require.NoError(t, err)

	t.Cleanup(func() { _ = persistence.Close(context.Background()) })

	resolver := plans.NewResolver()
	ledgerService := ledger.NewService(persistence, resolver, nil, slog.Default())

	registry := platforms.NewRegistry(slog.Default())
	registry.Register(n8n.NewAdapter(gateway.NewClient(slog.Default()), slog.Default()))
	registry.Register(zapier.NewAdapter(slog.Default()))

	orchestrator := services.NewOrchestrator(persistence, registry, ledgerService, resolver, locks.NewMemoryLocker(), nil, slog.Default())
	handlers := web.NewAPIHandlers(orchestrator, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	tenants := app.Group("/tenants/:tenantId")
	tenants.Get("/connections", handlers.GetConnections)
	tenants.Post("/connections", handlers.CreateConnection)
	tenants.Delete("/connections/:connectionId", handlers.DeactivateConnection)
	tenants.Get("/credits", handlers.GetCreditBalance)
	tenants.Get("/credits/transactions", handlers.GetCreditTransactions)
	tenants.Post("/credits/grants", handlers.GrantCredits)
	tenants.Put("/plan", handlers.ChangePlan)

	return app, ledgerService
}

func postJSON(t *testing.T, app *fiber.App, target string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, target, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func TestCreditLifecycle_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dbURL, cleanup := setupTestDB(t)
	defer cleanup()

	app, ledgerService := setupIntegrationApp(t, dbURL)

	_, err := ledgerService.OpenAccount(context.Background(), "acme", models.PlanTierStarter)
	require.NoError(t, err)

	t.Run("Balance After Opening", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/tenants/acme/credits", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var balance services.Balance
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&balance))
		assert.Equal(t, int64(25), balance.Regular)
		assert.Equal(t, models.PlanTierStarter, balance.Tier)
	})

	t.Run("Grant And Transactions", func(t *testing.T) {
		resp := postJSON(t, app, "/tenants/acme/credits/grants", web.GrantCreditsRequest{
			Amount: 15,
			Kind:   "bonus",
			Reason: "launch promo",
		})
		defer resp.Body.Close()

		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		req := httptest.NewRequest(http.MethodGet, "/tenants/acme/credits/transactions", nil)

		listResp, err := app.Test(req)
		require.NoError(t, err)
		defer listResp.Body.Close()

		assert.Equal(t, http.StatusOK, listResp.StatusCode)

		var payload struct {
			Transactions []*models.CreditTransaction `json:"transactions"`
		}
		require.NoError(t, json.NewDecoder(listResp.Body).Decode(&payload))
		require.Len(t, payload.Transactions, 2)

		// Newest first: the grant precedes the opening allocation.
		assert.Equal(t, int64(15), payload.Transactions[0].Amount)
		assert.Equal(t, models.CreditKindBonus, payload.Transactions[0].Kind)
	})

	t.Run("Plan Change Survives Restart", func(t *testing.T) {
		body, err := json.Marshal(web.ChangePlanRequest{Tier: "pro"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPut, "/tenants/acme/plan", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		// A fresh persistence instance sees the committed state.
		reopened, err := postgresql.NewPersistence(context.Background(), slog.Default(), dbURL)
		require.NoError(t, err)

		defer func() { _ = reopened.Close(context.Background()) }()

		account, err := reopened.CreditAccountByTenant(context.Background(), "acme")
		require.NoError(t, err)
		assert.Equal(t, models.PlanTierPro, account.Tier)
		assert.Equal(t, int64(100), account.RegularBalance)
	})
}

func TestConnectionLifecycle_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dbURL, cleanup := setupTestDB(t)
	defer cleanup()

	app, _ := setupIntegrationApp(t, dbURL)

	resp := postJSON(t, app, "/tenants/acme/connections", web.CreateConnectionRequest{
		Platform:   "n8n",
		BaseURL:    "https://n8n.acme.example",
		Credential: "api-key-123",
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created web.ConnectionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.True(t, created.IsActive)

	t.Run("Second Connection Swaps Active", func(t *testing.T) {
		swapResp := postJSON(t, app, "/tenants/acme/connections", web.CreateConnectionRequest{
			Platform:   "n8n",
			BaseURL:    "https://n8n-new.acme.example",
			Credential: "api-key-456",
		})
		defer swapResp.Body.Close()

		require.Equal(t, http.StatusCreated, swapResp.StatusCode)

		req := httptest.NewRequest(http.MethodGet, "/tenants/acme/connections", nil)

		listResp, err := app.Test(req)
		require.NoError(t, err)
		defer listResp.Body.Close()

		var payload struct {
			Connections []web.ConnectionResponse `json:"connections"`
		}
		require.NoError(t, json.NewDecoder(listResp.Body).Decode(&payload))
		require.Len(t, payload.Connections, 2)

		active := 0

		for _, conn := range payload.Connections {
			if conn.IsActive {
				active++
				assert.Equal(t, "https://n8n-new.acme.example", conn.BaseURL)
			}
		}

		assert.Equal(t, 1, active)
	})

	t.Run("Deactivate", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/tenants/acme/connections/"+created.ID, nil)

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
