package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buildtall-systems/vendfleet/internal/db"
	"github.com/buildtall-systems/vendfleet/internal/orchestrator"
)

type noopScheduler struct{}

func (noopScheduler) ScheduleDelivery(int64) error { return nil }

func setupRouter(t *testing.T) (*gin.Engine, *db.DB) {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate())
	t.Cleanup(func() { _ = database.Close() })

	orc := orchestrator.New(database, noopScheduler{})
	return NewRouter(orc, zap.NewNop()), database
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := make(map[string]json.RawMessage)
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func errorMessage(t *testing.T, resp map[string]json.RawMessage) string {
	t.Helper()
	var msg string
	require.NoError(t, json.Unmarshal(resp["error"], &msg))
	return msg
}

func TestStartWorkEndpoint(t *testing.T) {
	router, database := setupRouter(t)
	ctx := context.Background()

	// Empty fleet: conflict
	w, resp := doJSON(t, router, http.MethodPost, "/api/orchestrator/start-work", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "No idle vending machine available.", errorMessage(t, resp))

	m, err := database.CreateMachine(ctx, "Machine A")
	require.NoError(t, err)

	w, resp = doJSON(t, router, http.MethodPost, "/api/orchestrator/start-work", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var machine db.Machine
	require.NoError(t, json.Unmarshal(resp["machine"], &machine))
	assert.Equal(t, m.ID, machine.ID)
	assert.Equal(t, "choose_product", machine.Status)

	// Fleet exhausted: conflict again
	w, _ = doJSON(t, router, http.MethodPost, "/api/orchestrator/start-work", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestChooseProductEndpoint(t *testing.T) {
	router, database := setupRouter(t)
	ctx := context.Background()

	machine, err := database.CreateMachine(ctx, "Machine A")
	require.NoError(t, err)
	product, err := database.CreateProduct(ctx, "Cola", 4)
	require.NoError(t, err)

	body := func(count, coins int) map[string]any {
		return map[string]any{
			"machine_id": machine.ID,
			"product_id": product.ID,
			"count":      count,
			"coins":      coins,
		}
	}

	// Machine not assigned yet
	w, resp := doJSON(t, router, http.MethodPost, "/api/orchestrator/choose-product", body(1, 1))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Machine is not in choose_product state.", errorMessage(t, resp))

	w, _ = doJSON(t, router, http.MethodPost, "/api/orchestrator/start-work", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Payment mismatch
	w, resp = doJSON(t, router, http.MethodPost, "/api/orchestrator/choose-product", body(5, 3))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Coins must equal the number of products (1 coin per item).", errorMessage(t, resp))

	// Over stock
	w, resp = doJSON(t, router, http.MethodPost, "/api/orchestrator/choose-product", body(5, 5))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Insufficient stock. Available count: 4", errorMessage(t, resp))

	// Unknown product
	w, resp = doJSON(t, router, http.MethodPost, "/api/orchestrator/choose-product", map[string]any{
		"machine_id": machine.ID, "product_id": 99999, "count": 1, "coins": 1,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Product not found.", errorMessage(t, resp))

	// Success
	w, resp = doJSON(t, router, http.MethodPost, "/api/orchestrator/choose-product", body(3, 3))
	require.Equal(t, http.StatusOK, w.Code)

	var gotMachine db.Machine
	var gotProduct db.Product
	require.NoError(t, json.Unmarshal(resp["machine"], &gotMachine))
	require.NoError(t, json.Unmarshal(resp["product"], &gotProduct))
	assert.Equal(t, "processing", gotMachine.Status)
	assert.Equal(t, 1, gotProduct.Stock)
}

func TestChooseProductEndpoint_ValidationErrors(t *testing.T) {
	router, _ := setupRouter(t)

	// Missing fields
	w, _ := doJSON(t, router, http.MethodPost, "/api/orchestrator/choose-product", map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Negative count
	w, _ = doJSON(t, router, http.MethodPost, "/api/orchestrator/choose-product", map[string]any{
		"machine_id": 1, "product_id": 1, "count": -2, "coins": 1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestResetEndpoint(t *testing.T) {
	router, database := setupRouter(t)
	ctx := context.Background()

	machine, err := database.CreateMachine(ctx, "Machine A")
	require.NoError(t, err)

	resetPath := fmt.Sprintf("/api/vending-machines/%d/reset", machine.ID)

	// Already idle: conflict
	w, resp := doJSON(t, router, http.MethodPost, resetPath, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Machine is already idle.", errorMessage(t, resp))

	// Assign, then reset succeeds
	w, _ = doJSON(t, router, http.MethodPost, "/api/orchestrator/start-work", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = doJSON(t, router, http.MethodPost, resetPath, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var gotMachine db.Machine
	require.NoError(t, json.Unmarshal(resp["machine"], &gotMachine))
	assert.Equal(t, "idle", gotMachine.Status)

	// Unknown machine
	w, resp = doJSON(t, router, http.MethodPost, "/api/vending-machines/99999/reset", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Machine not found.", errorMessage(t, resp))
}

func TestHealthz(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "online", w.Body.String())
}
